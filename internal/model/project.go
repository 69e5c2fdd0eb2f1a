package model

import (
	"errors"
	"strings"
	"time"
)

// ProjectStatus captures the publication state of a project.
type ProjectStatus string

const (
	ProjectStatusDraft     ProjectStatus = "draft"
	ProjectStatusPublished ProjectStatus = "published"

	projectNameMaxLength        = 200
	projectDescriptionMaxLength = 4000
	projectSEOTitleMaxLength    = 200
	projectSEODescriptionLength = 500
)

var (
	ErrInvalidProjectOwner = errors.New("invalid_project_owner")
	ErrInvalidProjectName  = errors.New("invalid_project_name")
)

// Project is a single website authored by one account.
type Project struct {
	ID              string            `gorm:"primaryKey;size:36"`
	OwnerID         string            `gorm:"not null;size:64;index"`
	Name            string            `gorm:"not null;size:200"`
	Description     string            `gorm:"size:4000"`
	HTMLContent     *string           `gorm:"type:text"`
	Status          ProjectStatus     `gorm:"not null;size:20;default:draft;index"`
	Subdomain       *string           `gorm:"size:100;uniqueIndex"`
	PublishedURL    *string           `gorm:"size:500"`
	SEOTitle        string            `gorm:"size:200"`
	SEODescription  string            `gorm:"size:500"`
	CreatedAt       time.Time         `gorm:"autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"autoUpdateTime"`
	Versions        []SiteVersion     `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	Collaborators   []Collaborator    `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	AnalyticsEvents []AnalyticsEvent  `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	Rollups         []AnalyticsRollup `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
}

// ProjectInput holds the fields accepted when a project is first saved.
type ProjectInput struct {
	ID          string
	OwnerID     string
	Name        string
	Description string
	HTMLContent string
}

// NewProject constructs a validated draft project.
func NewProject(input ProjectInput) (Project, error) {
	ownerID := strings.TrimSpace(input.OwnerID)
	if ownerID == "" {
		return Project{}, ErrInvalidProjectOwner
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Project{}, ErrInvalidProjectName
	}

	project := Project{
		ID:          strings.TrimSpace(input.ID),
		OwnerID:     ownerID,
		Name:        truncateRunes(name, projectNameMaxLength),
		Description: truncateRunes(strings.TrimSpace(input.Description), projectDescriptionMaxLength),
		Status:      ProjectStatusDraft,
	}
	if input.HTMLContent != "" {
		htmlContent := input.HTMLContent
		project.HTMLContent = &htmlContent
	}
	return project, nil
}

// IsPublished reports whether the project is currently served publicly.
func (project Project) IsPublished() bool {
	return project.Status == ProjectStatusPublished
}

// HTML returns the stored document or an empty string.
func (project Project) HTML() string {
	if project.HTMLContent == nil {
		return ""
	}
	return *project.HTMLContent
}

// SubdomainValue returns the assigned subdomain or an empty string.
func (project Project) SubdomainValue() string {
	if project.Subdomain == nil {
		return ""
	}
	return *project.Subdomain
}

// PublishedURLValue returns the public address or an empty string.
func (project Project) PublishedURLValue() string {
	if project.PublishedURL == nil {
		return ""
	}
	return *project.PublishedURL
}

// ProjectUpdate lists the authoring fields a session may overwrite. Nil fields are left untouched.
type ProjectUpdate struct {
	Name           *string
	Description    *string
	HTMLContent    *string
	SEOTitle       *string
	SEODescription *string
}

// Assignments converts the update into column assignments.
func (update ProjectUpdate) Assignments() (map[string]any, error) {
	assignments := make(map[string]any)
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, ErrInvalidProjectName
		}
		assignments["name"] = truncateRunes(name, projectNameMaxLength)
	}
	if update.Description != nil {
		assignments["description"] = truncateRunes(strings.TrimSpace(*update.Description), projectDescriptionMaxLength)
	}
	if update.HTMLContent != nil {
		assignments["html_content"] = *update.HTMLContent
	}
	if update.SEOTitle != nil {
		assignments["seo_title"] = truncateRunes(strings.TrimSpace(*update.SEOTitle), projectSEOTitleMaxLength)
	}
	if update.SEODescription != nil {
		assignments["seo_description"] = truncateRunes(strings.TrimSpace(*update.SEODescription), projectSEODescriptionLength)
	}
	return assignments, nil
}

func truncateRunes(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max])
}
