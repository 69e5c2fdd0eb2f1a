package model

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const siteVersionDescriptionMaxLength = 500

var (
	ErrInvalidVersionProjectID = errors.New("invalid_version_project_id")
	ErrInvalidVersionNumber    = errors.New("invalid_version_number")
)

// SiteVersion is an explicitly saved snapshot of a project's HTML.
type SiteVersion struct {
	ID            string    `gorm:"primaryKey;size:36"`
	ProjectID     string    `gorm:"not null;size:36;uniqueIndex:idx_site_versions_project_number"`
	VersionNumber int       `gorm:"not null;uniqueIndex:idx_site_versions_project_number"`
	HTMLContent   string    `gorm:"type:text;not null"`
	Description   string    `gorm:"size:500"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

// NewSiteVersion constructs a snapshot numbered within its project.
func NewSiteVersion(projectID string, versionNumber int, htmlContent string, description string) (SiteVersion, error) {
	trimmedProjectID := strings.TrimSpace(projectID)
	if trimmedProjectID == "" {
		return SiteVersion{}, ErrInvalidVersionProjectID
	}
	if versionNumber < 1 {
		return SiteVersion{}, ErrInvalidVersionNumber
	}
	return SiteVersion{
		ID:            uuid.NewString(),
		ProjectID:     trimmedProjectID,
		VersionNumber: versionNumber,
		HTMLContent:   htmlContent,
		Description:   truncateRunes(strings.TrimSpace(description), siteVersionDescriptionMaxLength),
	}, nil
}
