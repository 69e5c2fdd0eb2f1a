package project

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/sitebuilder/internal/auth"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/authz"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/model"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/storage"
)

const versionNumberAttempts = 3

// ErrNothingToSnapshot reports a save-version request on a project without HTML.
var ErrNothingToSnapshot = errors.New("project: no html to snapshot")

// SaveVersion snapshots the project's current HTML under the next version number. Two concurrent saves
// race for the same number; the unique (project_id, version_number) index rejects the loser, which retries.
func (service *Service) SaveVersion(ctx context.Context, caller auth.Caller, projectID string, description string) (model.SiteVersion, error) {
	access, authorizeErr := service.Authorize(ctx, caller, projectID, authz.ActionEdit)
	if authorizeErr != nil {
		return model.SiteVersion{}, authorizeErr
	}
	htmlContent := access.Project.HTML()
	if htmlContent == "" {
		return model.SiteVersion{}, ErrNothingToSnapshot
	}

	var lastErr error
	for attempt := 0; attempt < versionNumberAttempts; attempt++ {
		nextNumber, numberErr := service.nextVersionNumber(ctx, access.Project.ID)
		if numberErr != nil {
			return model.SiteVersion{}, numberErr
		}
		version, buildErr := model.NewSiteVersion(access.Project.ID, nextNumber, htmlContent, description)
		if buildErr != nil {
			return model.SiteVersion{}, buildErr
		}
		createErr := service.database.WithContext(ctx).Create(&version).Error
		if createErr == nil {
			return version, nil
		}
		if !storage.IsUniqueViolation(createErr) {
			service.logger.Warn("version_save_failed", zap.String("project_id", access.Project.ID), zap.Error(createErr))
			return model.SiteVersion{}, createErr
		}
		lastErr = createErr
	}
	return model.SiteVersion{}, lastErr
}

// ListVersions returns the snapshots of a project, newest first.
func (service *Service) ListVersions(ctx context.Context, caller auth.Caller, projectID string) ([]model.SiteVersion, error) {
	access, authorizeErr := service.Authorize(ctx, caller, projectID, authz.ActionRead)
	if authorizeErr != nil {
		return nil, authorizeErr
	}
	var versions []model.SiteVersion
	err := service.database.WithContext(ctx).
		Where("project_id = ?", access.Project.ID).
		Order("version_number DESC").
		Find(&versions).Error
	return versions, err
}

// RestoreVersion copies a snapshot back into the project's working HTML. Publication state is untouched.
func (service *Service) RestoreVersion(ctx context.Context, caller auth.Caller, projectID string, versionNumber int) (model.Project, error) {
	access, authorizeErr := service.Authorize(ctx, caller, projectID, authz.ActionEdit)
	if authorizeErr != nil {
		return model.Project{}, authorizeErr
	}
	var version model.SiteVersion
	findErr := service.database.WithContext(ctx).
		First(&version, "project_id = ? AND version_number = ?", access.Project.ID, versionNumber).Error
	if findErr != nil {
		if storage.IsNotFound(findErr) {
			return model.Project{}, ErrVersionNotFound
		}
		return model.Project{}, findErr
	}
	htmlContent := version.HTMLContent
	if updateErr := service.repository.Update(ctx, access.Project.ID, map[string]any{"html_content": htmlContent}); updateErr != nil {
		return model.Project{}, updateErr
	}
	service.invalidateSite(ctx, access.Project.ID, access.Project.SubdomainValue())
	return service.repository.FindByID(ctx, access.Project.ID)
}

func (service *Service) nextVersionNumber(ctx context.Context, projectID string) (int, error) {
	var highest int64
	row := service.database.WithContext(ctx).
		Model(&model.SiteVersion{}).
		Where("project_id = ?", projectID).
		Select("COALESCE(MAX(version_number), 0)").
		Row()
	if scanErr := row.Scan(&highest); scanErr != nil {
		return 0, scanErr
	}
	return int(highest) + 1, nil
}
