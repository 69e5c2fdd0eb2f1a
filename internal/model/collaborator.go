package model

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CollaboratorPermission is the access level granted to an invited email.
type CollaboratorPermission string

const (
	CollaboratorPermissionView CollaboratorPermission = "view"
	CollaboratorPermissionEdit CollaboratorPermission = "edit"
)

var (
	ErrInvalidCollaboratorEmail      = errors.New("invalid_collaborator_email")
	ErrInvalidCollaboratorPermission = errors.New("invalid_collaborator_permission")
	ErrInvalidCollaboratorProjectID  = errors.New("invalid_collaborator_project_id")
)

// Collaborator grants an email access to a project it does not own.
type Collaborator struct {
	ID         string                 `gorm:"primaryKey;size:36"`
	ProjectID  string                 `gorm:"not null;size:36;uniqueIndex:idx_collaborators_project_email"`
	Email      string                 `gorm:"not null;size:320;uniqueIndex:idx_collaborators_project_email;index"`
	Permission CollaboratorPermission `gorm:"not null;size:10"`
	InvitedBy  string                 `gorm:"not null;size:64"`
	CreatedAt  time.Time              `gorm:"autoCreateTime"`
}

// ParseCollaboratorPermission normalizes a permission value.
func ParseCollaboratorPermission(raw string) (CollaboratorPermission, error) {
	switch CollaboratorPermission(strings.ToLower(strings.TrimSpace(raw))) {
	case CollaboratorPermissionView:
		return CollaboratorPermissionView, nil
	case CollaboratorPermissionEdit:
		return CollaboratorPermissionEdit, nil
	default:
		return "", ErrInvalidCollaboratorPermission
	}
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// NewCollaborator constructs a validated invitation.
func NewCollaborator(projectID string, email string, permission string, invitedBy string) (Collaborator, error) {
	trimmedProjectID := strings.TrimSpace(projectID)
	if trimmedProjectID == "" {
		return Collaborator{}, ErrInvalidCollaboratorProjectID
	}
	normalizedEmail := NormalizeEmail(email)
	parsedAddress, parseErr := mail.ParseAddress(normalizedEmail)
	if parseErr != nil || parsedAddress.Address != normalizedEmail {
		return Collaborator{}, ErrInvalidCollaboratorEmail
	}
	parsedPermission, permissionErr := ParseCollaboratorPermission(permission)
	if permissionErr != nil {
		return Collaborator{}, permissionErr
	}
	return Collaborator{
		ID:         uuid.NewString(),
		ProjectID:  trimmedProjectID,
		Email:      normalizedEmail,
		Permission: parsedPermission,
		InvitedBy:  strings.TrimSpace(invitedBy),
	}, nil
}
