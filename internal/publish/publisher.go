package publish

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/sitebuilder/internal/auth"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/authz"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/model"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/project"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/sitecache"
)

// SubdomainPolicy decides what unpublishing does with a project's subdomain.
type SubdomainPolicy string

const (
	// SubdomainPolicyRetain keeps the subdomain reserved for the project.
	SubdomainPolicyRetain SubdomainPolicy = "retain"
	// SubdomainPolicyRelease frees the subdomain for other projects.
	SubdomainPolicyRelease SubdomainPolicy = "release"

	ServeSitePath       = "/serve-site"
	SubdomainQueryParam = "subdomain"

	publishAttempts       = 3
	publishSuccessMessage = "تم نشر موقعك بنجاح"
)

var (
	ErrMissingProjectID       = errors.New("publish: missing project id")
	ErrMissingHTMLContent     = errors.New("publish: missing html content")
	ErrSubdomainUnavailable   = errors.New("publish: subdomain unavailable")
	ErrInvalidSubdomainPolicy = errors.New("publish: invalid subdomain policy")
	ErrMissingPublicBaseURL   = errors.New("publish: missing public base url")
)

// ParseSubdomainPolicy validates a configured policy name.
func ParseSubdomainPolicy(raw string) (SubdomainPolicy, error) {
	switch SubdomainPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case SubdomainPolicyRetain, "":
		return SubdomainPolicyRetain, nil
	case SubdomainPolicyRelease:
		return SubdomainPolicyRelease, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSubdomainPolicy, raw)
	}
}

// Config configures a Publisher.
type Config struct {
	PublicBaseURL   string
	SubdomainPolicy SubdomainPolicy
	Now             func() time.Time
}

// Request is a publish call.
type Request struct {
	ProjectID   string
	HTMLContent string
	Subdomain   string
}

// Result reports where a project was published.
type Result struct {
	Subdomain    string
	PublishedURL string
	Message      string
}

// Publisher assigns subdomains and marks projects as published.
type Publisher struct {
	service    *project.Service
	repository *project.Repository
	cache      sitecache.Cache
	logger     *zap.Logger
	config     Config
}

// NewPublisher builds a Publisher. A nil cache disables invalidation.
func NewPublisher(service *project.Service, cache sitecache.Cache, logger *zap.Logger, config Config) (*Publisher, error) {
	if strings.TrimSpace(config.PublicBaseURL) == "" {
		return nil, ErrMissingPublicBaseURL
	}
	policy, policyErr := ParseSubdomainPolicy(string(config.SubdomainPolicy))
	if policyErr != nil {
		return nil, policyErr
	}
	config.SubdomainPolicy = policy
	if config.Now == nil {
		config.Now = time.Now
	}
	if cache == nil {
		cache = sitecache.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		service:    service,
		repository: service.Repository(),
		cache:      cache,
		logger:     logger,
		config:     config,
	}, nil
}

// Publish stores html as the project's live document and returns its public address.
// A project the caller cannot publish is reported as project.ErrProjectNotFound.
func (publisher *Publisher) Publish(ctx context.Context, caller auth.Caller, request Request) (Result, error) {
	projectID := strings.TrimSpace(request.ProjectID)
	if projectID == "" {
		return Result{}, ErrMissingProjectID
	}
	if strings.TrimSpace(request.HTMLContent) == "" {
		return Result{}, ErrMissingHTMLContent
	}
	if strings.TrimSpace(caller.UserID) == "" {
		return Result{}, auth.ErrMissingCredential
	}

	access, authorizeErr := publisher.service.Authorize(ctx, caller, projectID, authz.ActionPublish)
	if authorizeErr != nil {
		if errors.Is(authorizeErr, authz.ErrForbidden) {
			return Result{}, project.ErrProjectNotFound
		}
		return Result{}, authorizeErr
	}
	current := access.Project

	base, candidateErr := candidateSubdomain(current, request.Subdomain)
	if candidateErr != nil {
		return Result{}, candidateErr
	}

	candidate := base
	taken, takenErr := publisher.repository.SubdomainTakenByOther(ctx, candidate, current.ID)
	if takenErr != nil {
		return Result{}, takenErr
	}
	if taken {
		candidate = model.WithCollisionSuffix(base, publisher.config.Now())
	}

	for attempt := 1; attempt <= publishAttempts; attempt++ {
		publishedURL := BuildPublishedURL(publisher.config.PublicBaseURL, candidate)
		updateErr := publisher.repository.Update(ctx, current.ID, map[string]any{
			"status":        model.ProjectStatusPublished,
			"subdomain":     candidate,
			"published_url": publishedURL,
			"html_content":  request.HTMLContent,
		})
		if updateErr == nil {
			publisher.invalidate(ctx, current.SubdomainValue(), candidate, current.ID)
			publisher.logger.Info("project_published",
				zap.String("project_id", current.ID),
				zap.String("subdomain", candidate),
				zap.Int("attempt", attempt))
			return Result{Subdomain: candidate, PublishedURL: publishedURL, Message: publishSuccessMessage}, nil
		}
		if !errors.Is(updateErr, project.ErrSubdomainTaken) {
			return Result{}, updateErr
		}
		publisher.logger.Debug("publish_subdomain_collision",
			zap.String("project_id", current.ID),
			zap.String("subdomain", candidate),
			zap.Int("attempt", attempt))
		candidate = model.WithCollisionSuffix(base, publisher.config.Now().Add(time.Duration(attempt)*time.Microsecond))
	}
	return Result{}, ErrSubdomainUnavailable
}

// Unpublish takes a project offline. The subdomain is kept or freed according to the configured policy.
func (publisher *Publisher) Unpublish(ctx context.Context, caller auth.Caller, projectID string) (model.Project, error) {
	access, authorizeErr := publisher.service.Authorize(ctx, caller, strings.TrimSpace(projectID), authz.ActionPublish)
	if authorizeErr != nil {
		return model.Project{}, authorizeErr
	}
	current := access.Project

	assignments := map[string]any{
		"status":        model.ProjectStatusDraft,
		"published_url": nil,
	}
	if publisher.config.SubdomainPolicy == SubdomainPolicyRelease {
		assignments["subdomain"] = nil
	}
	if updateErr := publisher.repository.Update(ctx, current.ID, assignments); updateErr != nil {
		return model.Project{}, updateErr
	}
	publisher.invalidate(ctx, current.SubdomainValue(), current.ID)
	publisher.logger.Info("project_unpublished",
		zap.String("project_id", current.ID),
		zap.String("subdomain_policy", string(publisher.config.SubdomainPolicy)))
	return publisher.repository.FindByID(ctx, current.ID)
}

// BuildPublishedURL returns the canonical public address of a subdomain.
func BuildPublishedURL(publicBaseURL string, subdomain string) string {
	return strings.TrimRight(strings.TrimSpace(publicBaseURL), "/") + ServeSitePath + "?" + SubdomainQueryParam + "=" + url.QueryEscape(subdomain)
}

func candidateSubdomain(current model.Project, requested string) (string, error) {
	if strings.TrimSpace(requested) != "" {
		return model.NormalizeSubdomain(requested)
	}
	if existing := current.SubdomainValue(); existing != "" {
		return existing, nil
	}
	return model.GenerateSubdomain(current.Name, current.ID), nil
}

func (publisher *Publisher) invalidate(ctx context.Context, keys ...string) {
	if err := publisher.cache.Invalidate(ctx, keys...); err != nil {
		publisher.logger.Warn("site_cache_invalidate_failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
