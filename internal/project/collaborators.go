package project

import (
	"context"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/sitebuilder/internal/auth"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/authz"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/model"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/storage"
)

// InviteCollaborator grants an email view or edit access. A second invitation of the same email fails
// with ErrDuplicateCollaborator.
func (service *Service) InviteCollaborator(ctx context.Context, caller auth.Caller, projectID string, email string, permission string) (model.Collaborator, error) {
	access, authorizeErr := service.Authorize(ctx, caller, projectID, authz.ActionInvite)
	if authorizeErr != nil {
		return model.Collaborator{}, authorizeErr
	}
	collaborator, buildErr := model.NewCollaborator(access.Project.ID, email, permission, caller.UserID)
	if buildErr != nil {
		return model.Collaborator{}, buildErr
	}
	if createErr := service.database.WithContext(ctx).Create(&collaborator).Error; createErr != nil {
		if storage.IsUniqueViolation(createErr) {
			return model.Collaborator{}, ErrDuplicateCollaborator
		}
		service.logger.Warn("collaborator_invite_failed", zap.String("project_id", access.Project.ID), zap.Error(createErr))
		return model.Collaborator{}, createErr
	}
	return collaborator, nil
}

// ListCollaborators returns the collaborators of a project in invitation order.
func (service *Service) ListCollaborators(ctx context.Context, caller auth.Caller, projectID string) ([]model.Collaborator, error) {
	access, authorizeErr := service.Authorize(ctx, caller, projectID, authz.ActionRead)
	if authorizeErr != nil {
		return nil, authorizeErr
	}
	var collaborators []model.Collaborator
	err := service.database.WithContext(ctx).
		Where("project_id = ?", access.Project.ID).
		Order("created_at ASC").
		Find(&collaborators).Error
	return collaborators, err
}

// RemoveCollaborator revokes an invitation.
func (service *Service) RemoveCollaborator(ctx context.Context, caller auth.Caller, projectID string, collaboratorID string) error {
	access, authorizeErr := service.Authorize(ctx, caller, projectID, authz.ActionInvite)
	if authorizeErr != nil {
		return authorizeErr
	}
	result := service.database.WithContext(ctx).
		Delete(&model.Collaborator{}, "id = ? AND project_id = ?", trimmed(collaboratorID), access.Project.ID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCollaboratorNotFound
	}
	return nil
}
