package storage

import (
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/sitebuilder/internal/model"
)

// normalizeLegacyProjects repairs rows written before status and subdomain were managed by the publisher:
// blank statuses become drafts and blank subdomains become NULL so the unique index ignores them.
func normalizeLegacyProjects(database *gorm.DB) error {
	if err := database.Model(&model.Project{}).
		Where("status IS NULL OR TRIM(status) = ''").
		Update("status", model.ProjectStatusDraft).Error; err != nil {
		return err
	}
	return database.Model(&model.Project{}).
		Where("subdomain IS NOT NULL AND TRIM(subdomain) = ''").
		Update("subdomain", nil).Error
}
