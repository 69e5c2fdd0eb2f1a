// Package project stores projects and the records owned by them.
package project

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/sitebuilder/internal/auth"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/model"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/storage"
)

var (
	ErrProjectNotFound       = errors.New("project: not found")
	ErrSubdomainTaken        = errors.New("project: subdomain taken")
	ErrVersionNotFound       = errors.New("project: version not found")
	ErrCollaboratorNotFound  = errors.New("project: collaborator not found")
	ErrDuplicateCollaborator = errors.New("project: collaborator already invited")
)

const visibleToCallerCondition = "(projects.owner_id = ? OR EXISTS (SELECT 1 FROM collaborators WHERE collaborators.project_id = projects.id AND collaborators.email = ?))"

// Repository reads and writes projects. Methods named Visible apply the caller's access rights inside the
// query; the remaining lookups are privileged and must only back public or system operations.
type Repository struct {
	database *gorm.DB
}

// NewRepository wraps a database handle.
func NewRepository(database *gorm.DB) *Repository {
	return &Repository{database: database}
}

// Create inserts a new project, assigning an id when missing.
func (repository *Repository) Create(ctx context.Context, project *model.Project) error {
	if strings.TrimSpace(project.ID) == "" {
		project.ID = storage.NewID()
	}
	if project.Status == "" {
		project.Status = model.ProjectStatusDraft
	}
	return repository.database.WithContext(ctx).Create(project).Error
}

// FindVisible loads a project only when the caller owns it or is a collaborator on it.
func (repository *Repository) FindVisible(ctx context.Context, projectID string, caller auth.Caller) (model.Project, error) {
	var project model.Project
	err := repository.database.WithContext(ctx).
		Where("projects.id = ?", strings.TrimSpace(projectID)).
		Where(visibleToCallerCondition, caller.UserID, visibilityEmail(caller)).
		First(&project).Error
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Project{}, ErrProjectNotFound
		}
		return model.Project{}, err
	}
	return project, nil
}

// ListVisible returns every project the caller owns or collaborates on, most recently updated first.
func (repository *Repository) ListVisible(ctx context.Context, caller auth.Caller) ([]model.Project, error) {
	var projects []model.Project
	err := repository.database.WithContext(ctx).
		Where(visibleToCallerCondition, caller.UserID, visibilityEmail(caller)).
		Order("projects.updated_at DESC").
		Find(&projects).Error
	return projects, err
}

// FindByID loads a project regardless of the caller.
func (repository *Repository) FindByID(ctx context.Context, projectID string) (model.Project, error) {
	var project model.Project
	err := repository.database.WithContext(ctx).First(&project, "id = ?", strings.TrimSpace(projectID)).Error
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Project{}, ErrProjectNotFound
		}
		return model.Project{}, err
	}
	return project, nil
}

// FindBySubdomain loads the project holding a subdomain in any status.
func (repository *Repository) FindBySubdomain(ctx context.Context, subdomain string) (model.Project, error) {
	var project model.Project
	err := repository.database.WithContext(ctx).First(&project, "subdomain = ?", subdomain).Error
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Project{}, ErrProjectNotFound
		}
		return model.Project{}, err
	}
	return project, nil
}

// SubdomainTakenByOther reports whether a project other than projectID holds subdomain.
func (repository *Repository) SubdomainTakenByOther(ctx context.Context, subdomain string, projectID string) (bool, error) {
	var count int64
	err := repository.database.WithContext(ctx).
		Model(&model.Project{}).
		Where("subdomain = ? AND id <> ?", subdomain, projectID).
		Count(&count).Error
	return count > 0, err
}

// FindPublishedBySubdomain loads a published project by subdomain.
func (repository *Repository) FindPublishedBySubdomain(ctx context.Context, subdomain string) (model.Project, error) {
	return repository.findPublished(ctx, "subdomain = ?", subdomain)
}

// FindPublishedByID loads a published project by id.
func (repository *Repository) FindPublishedByID(ctx context.Context, projectID string) (model.Project, error) {
	return repository.findPublished(ctx, "id = ?", projectID)
}

func (repository *Repository) findPublished(ctx context.Context, condition string, value string) (model.Project, error) {
	var project model.Project
	err := repository.database.WithContext(ctx).
		Where(condition, value).
		Where("status = ?", model.ProjectStatusPublished).
		First(&project).Error
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Project{}, ErrProjectNotFound
		}
		return model.Project{}, err
	}
	return project, nil
}

// Update applies column assignments to one project and refreshes updated_at. The last writer wins.
func (repository *Repository) Update(ctx context.Context, projectID string, assignments map[string]any) error {
	if len(assignments) == 0 {
		return nil
	}
	values := make(map[string]any, len(assignments)+1)
	for column, value := range assignments {
		values[column] = value
	}
	values["updated_at"] = time.Now().UTC()

	result := repository.database.WithContext(ctx).
		Model(&model.Project{}).
		Where("id = ?", projectID).
		Updates(values)
	if result.Error != nil {
		if storage.IsUniqueViolation(result.Error) {
			return fmt.Errorf("%w: %v", ErrSubdomainTaken, result.Error)
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// Delete removes a project; versions, collaborators and analytics cascade in the store.
func (repository *Repository) Delete(ctx context.Context, projectID string) error {
	result := repository.database.WithContext(ctx).Delete(&model.Project{}, "id = ?", projectID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// CollaboratorFor loads the collaborator row of an email on a project, or nil when none exists.
func (repository *Repository) CollaboratorFor(ctx context.Context, projectID string, email string) (*model.Collaborator, error) {
	normalizedEmail := model.NormalizeEmail(email)
	if normalizedEmail == "" {
		return nil, nil
	}
	var collaborator model.Collaborator
	err := repository.database.WithContext(ctx).
		First(&collaborator, "project_id = ? AND email = ?", projectID, normalizedEmail).Error
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &collaborator, nil
}

func visibilityEmail(caller auth.Caller) string {
	normalizedEmail := model.NormalizeEmail(caller.Email)
	if normalizedEmail == "" {
		// collaborator emails are validated addresses, so this never matches
		return "-"
	}
	return normalizedEmail
}
