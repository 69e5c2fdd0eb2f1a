package sites

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/sitebuilder/internal/model"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/project"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/sitecache"
)

var (
	ErrMissingKey   = errors.New("sites: missing subdomain")
	ErrSiteNotFound = errors.New("sites: site not found")
)

// Site is a published document ready to be served.
type Site struct {
	ProjectID string
	HTML      string
}

// Server resolves public site requests. Lookups ignore caller rights because published sites are public.
type Server struct {
	repository *project.Repository
	cache      sitecache.Cache
	logger     *zap.Logger
}

// NewServer builds a Server. A nil cache reads straight from the store.
func NewServer(repository *project.Repository, cache sitecache.Cache, logger *zap.Logger) *Server {
	if cache == nil {
		cache = sitecache.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{repository: repository, cache: cache, logger: logger}
}

// Resolve finds the published site for key, trying it as a subdomain first and as a project id second.
func (server *Server) Resolve(ctx context.Context, key string) (Site, error) {
	trimmedKey := strings.TrimSpace(key)
	if trimmedKey == "" {
		return Site{}, ErrMissingKey
	}

	cacheKey := strings.ToLower(trimmedKey)
	entry, found, cacheErr := server.cache.Get(ctx, cacheKey)
	if cacheErr != nil {
		server.logger.Warn("site_cache_read_failed", zap.String("key", cacheKey), zap.Error(cacheErr))
	}
	if found {
		return Site{ProjectID: entry.ProjectID, HTML: entry.HTML}, nil
	}

	published, lookupErr := server.lookup(ctx, trimmedKey)
	if lookupErr != nil {
		return Site{}, lookupErr
	}
	site := Site{ProjectID: published.ID, HTML: published.HTML()}
	if site.HTML == "" {
		return Site{}, ErrSiteNotFound
	}

	if setErr := server.cache.Set(ctx, cacheKey, sitecache.Entry{ProjectID: site.ProjectID, HTML: site.HTML}); setErr != nil {
		server.logger.Warn("site_cache_write_failed", zap.String("key", cacheKey), zap.Error(setErr))
	}
	return site, nil
}

func (server *Server) lookup(ctx context.Context, key string) (model.Project, error) {
	bySubdomain, subdomainErr := server.repository.FindPublishedBySubdomain(ctx, strings.ToLower(key))
	if subdomainErr == nil {
		return bySubdomain, nil
	}
	if !errors.Is(subdomainErr, project.ErrProjectNotFound) {
		return model.Project{}, fmt.Errorf("sites: lookup by subdomain: %w", subdomainErr)
	}

	byID, idErr := server.repository.FindPublishedByID(ctx, key)
	if idErr == nil {
		return byID, nil
	}
	if errors.Is(idErr, project.ErrProjectNotFound) {
		return model.Project{}, ErrSiteNotFound
	}
	return model.Project{}, fmt.Errorf("sites: lookup by id: %w", idErr)
}
