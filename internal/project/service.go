package project

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/sitebuilder/internal/auth"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/authz"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/model"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/sitecache"
)

// Access pairs a visible project with the caller's role on it.
type Access struct {
	Project model.Project
	Role    authz.Role
}

// Service implements the authenticated project operations on top of Repository.
type Service struct {
	database   *gorm.DB
	repository *Repository
	enforcer   *authz.Enforcer
	siteCache  sitecache.Cache
	logger     *zap.Logger
}

// NewService builds a Service.
func NewService(database *gorm.DB, enforcer *authz.Enforcer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		database:   database,
		repository: NewRepository(database),
		enforcer:   enforcer,
		siteCache:  sitecache.Noop{},
		logger:     logger,
	}
}

// WithSiteCache makes mutations of a project's served document drop its cached copies.
func (service *Service) WithSiteCache(cache sitecache.Cache) *Service {
	if cache != nil {
		service.siteCache = cache
	}
	return service
}

// invalidateSite drops the cached copies of a project under its id and every subdomain it was reachable at.
func (service *Service) invalidateSite(ctx context.Context, projectID string, subdomains ...string) {
	keys := append([]string{projectID}, subdomains...)
	if err := service.siteCache.Invalidate(ctx, keys...); err != nil {
		service.logger.Warn("site_cache_invalidate_failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// Repository exposes the underlying repository.
func (service *Service) Repository() *Repository {
	return service.repository
}

// Authorize loads the project as the caller and checks that the caller's role allows action.
// Projects the caller cannot see are reported as ErrProjectNotFound.
func (service *Service) Authorize(ctx context.Context, caller auth.Caller, projectID string, action authz.Action) (Access, error) {
	project, findErr := service.repository.FindVisible(ctx, projectID, caller)
	if findErr != nil {
		return Access{}, findErr
	}

	var collaborator *model.Collaborator
	if project.OwnerID != caller.UserID {
		loaded, collaboratorErr := service.repository.CollaboratorFor(ctx, project.ID, caller.Email)
		if collaboratorErr != nil {
			return Access{}, collaboratorErr
		}
		collaborator = loaded
	}

	access := Access{Project: project, Role: authz.RoleFor(project, caller.UserID, collaborator)}
	if authorizeErr := service.enforcer.Authorize(access.Role, action); authorizeErr != nil {
		return access, authorizeErr
	}
	return access, nil
}

// CreateProject saves a new draft owned by the caller.
func (service *Service) CreateProject(ctx context.Context, caller auth.Caller, input model.ProjectInput) (model.Project, error) {
	input.ID = ""
	input.OwnerID = caller.UserID
	project, buildErr := model.NewProject(input)
	if buildErr != nil {
		return model.Project{}, buildErr
	}
	if createErr := service.repository.Create(ctx, &project); createErr != nil {
		service.logger.Warn("project_create_failed", zap.Error(createErr))
		return model.Project{}, createErr
	}
	return project, nil
}

// ListProjects returns the projects visible to the caller.
func (service *Service) ListProjects(ctx context.Context, caller auth.Caller) ([]model.Project, error) {
	return service.repository.ListVisible(ctx, caller)
}

// GetProject returns a project the caller may read.
func (service *Service) GetProject(ctx context.Context, caller auth.Caller, projectID string) (Access, error) {
	return service.Authorize(ctx, caller, projectID, authz.ActionRead)
}

// UpdateProject overwrites authoring fields. Concurrent editors overwrite each other; the last write wins.
func (service *Service) UpdateProject(ctx context.Context, caller auth.Caller, projectID string, update model.ProjectUpdate) (model.Project, error) {
	access, authorizeErr := service.Authorize(ctx, caller, projectID, authz.ActionEdit)
	if authorizeErr != nil {
		return model.Project{}, authorizeErr
	}
	assignments, assignmentsErr := update.Assignments()
	if assignmentsErr != nil {
		return model.Project{}, assignmentsErr
	}
	if updateErr := service.repository.Update(ctx, access.Project.ID, assignments); updateErr != nil {
		service.logger.Warn("project_update_failed", zap.String("project_id", access.Project.ID), zap.Error(updateErr))
		return model.Project{}, updateErr
	}
	updated, findErr := service.repository.FindByID(ctx, access.Project.ID)
	service.invalidateSite(ctx, access.Project.ID, access.Project.SubdomainValue(), updated.SubdomainValue())
	return updated, findErr
}

// DeleteProject removes a project owned by the caller.
func (service *Service) DeleteProject(ctx context.Context, caller auth.Caller, projectID string) (model.Project, error) {
	access, authorizeErr := service.Authorize(ctx, caller, projectID, authz.ActionDelete)
	if authorizeErr != nil {
		return model.Project{}, authorizeErr
	}
	if deleteErr := service.repository.Delete(ctx, access.Project.ID); deleteErr != nil {
		service.logger.Warn("project_delete_failed", zap.String("project_id", access.Project.ID), zap.Error(deleteErr))
		return model.Project{}, deleteErr
	}
	service.invalidateSite(ctx, access.Project.ID, access.Project.SubdomainValue())
	return access.Project, nil
}

// IsValidationError reports errors caused by bad caller input.
func IsValidationError(err error) bool {
	validationErrors := []error{
		model.ErrInvalidProjectName,
		model.ErrInvalidProjectOwner,
		model.ErrInvalidCollaboratorEmail,
		model.ErrInvalidCollaboratorPermission,
		model.ErrInvalidVersionNumber,
		ErrNothingToSnapshot,
	}
	for _, candidate := range validationErrors {
		if errors.Is(err, candidate) {
			return true
		}
	}
	return false
}

func trimmed(value string) string {
	return strings.TrimSpace(value)
}
