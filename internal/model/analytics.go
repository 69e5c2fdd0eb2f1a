package model

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	analyticsPathMaxLength      = 300
	analyticsIPMaxLength        = 64
	analyticsUserAgentMaxLength = 400
	analyticsReferrerMaxLength  = 500
	analyticsDefaultPagePath    = "/"
)

var (
	ErrInvalidAnalyticsProjectID = errors.New("invalid_analytics_project_id")
	ErrInvalidAnalyticsPath      = errors.New("invalid_analytics_path")
	ErrInvalidAnalyticsRollup    = errors.New("invalid_analytics_rollup")
)

// AnalyticsEvent records one page view of a published project. Rows are append-only.
type AnalyticsEvent struct {
	ID        string    `gorm:"primaryKey;size:36"`
	ProjectID string    `gorm:"not null;size:36;index"`
	PagePath  string    `gorm:"size:300;index"`
	VisitorIP string    `gorm:"size:64"`
	UserAgent string    `gorm:"size:400"`
	Referrer  string    `gorm:"size:500"`
	CreatedAt time.Time `gorm:"not null;index"`
}

// AnalyticsEventInput holds incoming page-view data.
type AnalyticsEventInput struct {
	ProjectID string
	PagePath  string
	VisitorIP string
	UserAgent string
	Referrer  string
	Occurred  time.Time
}

// NewAnalyticsEvent constructs a validated AnalyticsEvent.
func NewAnalyticsEvent(input AnalyticsEventInput) (AnalyticsEvent, error) {
	projectID := strings.TrimSpace(input.ProjectID)
	if projectID == "" {
		return AnalyticsEvent{}, ErrInvalidAnalyticsProjectID
	}
	pagePath, pathErr := normalizePagePath(input.PagePath)
	if pathErr != nil {
		return AnalyticsEvent{}, pathErr
	}
	occurred := input.Occurred
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	return AnalyticsEvent{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		PagePath:  pagePath,
		VisitorIP: truncateString(strings.TrimSpace(input.VisitorIP), analyticsIPMaxLength),
		UserAgent: truncateString(input.UserAgent, analyticsUserAgentMaxLength),
		Referrer:  truncateString(strings.TrimSpace(input.Referrer), analyticsReferrerMaxLength),
		CreatedAt: occurred,
	}, nil
}

func normalizePagePath(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return analyticsDefaultPagePath, nil
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAnalyticsPath, err)
	}
	path := parsed.Path
	if path == "" {
		path = analyticsDefaultPagePath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return truncateString(path, analyticsPathMaxLength), nil
}

// AnalyticsRollup holds the daily counters of one project.
type AnalyticsRollup struct {
	ID             string    `gorm:"primaryKey;size:36"`
	ProjectID      string    `gorm:"not null;size:36;uniqueIndex:idx_analytics_rollups_project_date"`
	Date           time.Time `gorm:"not null;uniqueIndex:idx_analytics_rollups_project_date"` // UTC midnight
	PageViews      int64     `gorm:"not null"`
	UniqueVisitors int64     `gorm:"not null"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// NewAnalyticsRollup constructs a rollup for a specific day.
func NewAnalyticsRollup(projectID string, date time.Time, pageViews int64, uniqueVisitors int64) (AnalyticsRollup, error) {
	trimmedProjectID := strings.TrimSpace(projectID)
	if trimmedProjectID == "" {
		return AnalyticsRollup{}, fmt.Errorf("%w: missing project_id", ErrInvalidAnalyticsRollup)
	}
	if date.IsZero() {
		return AnalyticsRollup{}, fmt.Errorf("%w: missing date", ErrInvalidAnalyticsRollup)
	}
	if pageViews < 0 || uniqueVisitors < 0 {
		return AnalyticsRollup{}, fmt.Errorf("%w: negative counts", ErrInvalidAnalyticsRollup)
	}
	return AnalyticsRollup{
		ID:             uuid.NewString(),
		ProjectID:      trimmedProjectID,
		Date:           StartOfDayUTC(date),
		PageViews:      pageViews,
		UniqueVisitors: uniqueVisitors,
	}, nil
}

// StartOfDayUTC truncates a timestamp to midnight UTC.
func StartOfDayUTC(moment time.Time) time.Time {
	utc := moment.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateString(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
