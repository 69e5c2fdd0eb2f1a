package project

import (
	"context"
	"time"

	"github.com/MarkoPoloResearchLab/sitebuilder/internal/auth"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/authz"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/model"
)

const (
	DefaultAnalyticsDays = 7
	MaxAnalyticsDays     = 90
	analyticsTopLimit    = 5
)

// DailyCount is one day of the analytics series.
type DailyCount struct {
	Date           time.Time `json:"date"`
	PageViews      int64     `json:"page_views"`
	UniqueVisitors int64     `json:"unique_visitors"`
}

// RankedValue is a page path or referrer with its view count.
type RankedValue struct {
	Value string `json:"value"`
	Total int64  `json:"total"`
}

// AnalyticsSummary reports traffic of one project over a window of days ending today.
type AnalyticsSummary struct {
	ProjectID      string        `json:"project_id"`
	Days           int           `json:"days"`
	PageViews      int64         `json:"page_views"`
	UniqueVisitors int64         `json:"unique_visitors"`
	Daily          []DailyCount  `json:"daily"`
	TopPaths       []RankedValue `json:"top_paths"`
	TopReferrers   []RankedValue `json:"top_referrers"`
}

// RecordEvent appends a page view. It bypasses access rights because visitors are anonymous.
func (repository *Repository) RecordEvent(ctx context.Context, event model.AnalyticsEvent) error {
	return repository.database.WithContext(ctx).Create(&event).Error
}

// ClampAnalyticsDays bounds a requested window.
func ClampAnalyticsDays(days int) int {
	if days <= 0 {
		return DefaultAnalyticsDays
	}
	if days > MaxAnalyticsDays {
		return MaxAnalyticsDays
	}
	return days
}

// AnalyticsSummary combines stored daily rollups with live counts for today.
func (service *Service) AnalyticsSummary(ctx context.Context, caller auth.Caller, projectID string, days int, now time.Time) (AnalyticsSummary, error) {
	access, authorizeErr := service.Authorize(ctx, caller, projectID, authz.ActionRead)
	if authorizeErr != nil {
		return AnalyticsSummary{}, authorizeErr
	}
	days = ClampAnalyticsDays(days)
	todayStart := model.StartOfDayUTC(now)
	windowStart := todayStart.Add(-time.Duration(days-1) * 24 * time.Hour)
	summary := AnalyticsSummary{ProjectID: access.Project.ID, Days: days}

	var rollups []model.AnalyticsRollup
	if err := service.database.WithContext(ctx).
		Where("project_id = ? AND date >= ? AND date < ?", access.Project.ID, windowStart, todayStart).
		Order("date ASC").
		Find(&rollups).Error; err != nil {
		return AnalyticsSummary{}, err
	}
	for _, rollup := range rollups {
		summary.Daily = append(summary.Daily, DailyCount{
			Date:           rollup.Date.UTC(),
			PageViews:      rollup.PageViews,
			UniqueVisitors: rollup.UniqueVisitors,
		})
		summary.PageViews += rollup.PageViews
	}

	today, todayErr := service.liveCounts(ctx, access.Project.ID, todayStart)
	if todayErr != nil {
		return AnalyticsSummary{}, todayErr
	}
	today.Date = todayStart
	summary.Daily = append(summary.Daily, today)
	summary.PageViews += today.PageViews

	var uniqueVisitors int64
	if err := service.database.WithContext(ctx).
		Model(&model.AnalyticsEvent{}).
		Where("project_id = ? AND created_at >= ?", access.Project.ID, windowStart).
		Distinct("visitor_ip").
		Count(&uniqueVisitors).Error; err != nil {
		return AnalyticsSummary{}, err
	}
	summary.UniqueVisitors = uniqueVisitors

	topPaths, pathsErr := service.topValues(ctx, access.Project.ID, "page_path", windowStart)
	if pathsErr != nil {
		return AnalyticsSummary{}, pathsErr
	}
	summary.TopPaths = topPaths

	topReferrers, referrersErr := service.topValues(ctx, access.Project.ID, "referrer", windowStart)
	if referrersErr != nil {
		return AnalyticsSummary{}, referrersErr
	}
	summary.TopReferrers = topReferrers

	return summary, nil
}

func (service *Service) liveCounts(ctx context.Context, projectID string, since time.Time) (DailyCount, error) {
	var counts struct {
		PageViews      int64
		UniqueVisitors int64
	}
	err := service.database.WithContext(ctx).
		Model(&model.AnalyticsEvent{}).
		Select("COUNT(*) AS page_views, COUNT(DISTINCT visitor_ip) AS unique_visitors").
		Where("project_id = ? AND created_at >= ?", projectID, since).
		Scan(&counts).Error
	if err != nil {
		return DailyCount{}, err
	}
	return DailyCount{PageViews: counts.PageViews, UniqueVisitors: counts.UniqueVisitors}, nil
}

func (service *Service) topValues(ctx context.Context, projectID string, column string, since time.Time) ([]RankedValue, error) {
	ranked := make([]RankedValue, 0, analyticsTopLimit)
	err := service.database.WithContext(ctx).
		Model(&model.AnalyticsEvent{}).
		Select(column+" AS value, COUNT(*) AS total").
		Where("project_id = ? AND created_at >= ? AND "+column+" <> ''", projectID, since).
		Group(column).
		Order("total DESC, value ASC").
		Limit(analyticsTopLimit).
		Scan(&ranked).Error
	return ranked, err
}
