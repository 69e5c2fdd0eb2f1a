package task

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/sitebuilder/internal/model"
)

// AnalyticsRollupConfig defines rollup behavior.
type AnalyticsRollupConfig struct {
	RetentionDays int
	Now           func() time.Time
}

// AnalyticsRollupJob folds every completed day since the newest rollup into daily rollups and prunes old events.
type AnalyticsRollupJob struct {
	database *gorm.DB
	logger   *zap.Logger
	config   AnalyticsRollupConfig
}

// NewAnalyticsRollupJob builds an AnalyticsRollupJob.
func NewAnalyticsRollupJob(database *gorm.DB, logger *zap.Logger, config AnalyticsRollupConfig) *AnalyticsRollupJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &AnalyticsRollupJob{
		database: database,
		logger:   logger,
		config:   config,
	}
}

// Run executes aggregation then pruning. Pruning is skipped when any day failed to fold.
func (job *AnalyticsRollupJob) Run(ctx context.Context) error {
	if err := job.aggregatePendingDays(ctx); err != nil {
		return err
	}
	return job.pruneOldEvents(ctx)
}

func (job *AnalyticsRollupJob) Name() string {
	return "analytics_rollup"
}

// aggregatePendingDays folds each day from the newest rollup (refolded, since it may have been partial)
// up to yesterday. Without rollups it starts at the day of the oldest event.
func (job *AnalyticsRollupJob) aggregatePendingDays(ctx context.Context) error {
	today := model.StartOfDayUTC(job.config.Now())
	firstDay, pending, err := job.firstPendingDay(ctx, today)
	if err != nil || !pending {
		return err
	}
	for day := firstDay; day.Before(today); day = day.Add(24 * time.Hour) {
		if err := job.aggregateDay(ctx, day); err != nil {
			return err
		}
	}
	return nil
}

func (job *AnalyticsRollupJob) firstPendingDay(ctx context.Context, today time.Time) (time.Time, bool, error) {
	var newestRollups []model.AnalyticsRollup
	if err := job.database.WithContext(ctx).Order("date DESC").Limit(1).Find(&newestRollups).Error; err != nil {
		return time.Time{}, false, err
	}
	if len(newestRollups) > 0 {
		return model.StartOfDayUTC(newestRollups[0].Date), true, nil
	}

	var oldestEvents []model.AnalyticsEvent
	if err := job.database.WithContext(ctx).
		Where("created_at < ?", today).
		Order("created_at ASC").
		Limit(1).
		Find(&oldestEvents).Error; err != nil {
		return time.Time{}, false, err
	}
	if len(oldestEvents) == 0 {
		return time.Time{}, false, nil
	}
	return model.StartOfDayUTC(oldestEvents[0].CreatedAt), true, nil
}

func (job *AnalyticsRollupJob) aggregateDay(ctx context.Context, start time.Time) error {
	end := start.Add(24 * time.Hour)

	type aggregateResult struct {
		ProjectID      string
		PageViews      int64
		UniqueVisitors int64
	}
	var results []aggregateResult
	err := job.database.WithContext(ctx).
		Model(&model.AnalyticsEvent{}).
		Select("project_id, COUNT(*) AS page_views, COUNT(DISTINCT visitor_ip) AS unique_visitors").
		Where("created_at >= ? AND created_at < ?", start, end).
		Group("project_id").
		Scan(&results).Error
	if err != nil {
		return err
	}
	for _, result := range results {
		rollup, rollupErr := model.NewAnalyticsRollup(result.ProjectID, start, result.PageViews, result.UniqueVisitors)
		if rollupErr != nil {
			job.logger.Warn("analytics_rollup_invalid", zap.Error(rollupErr), zap.String("project_id", result.ProjectID))
			continue
		}
		saveErr := job.database.WithContext(ctx).
			Where("project_id = ? AND date = ?", rollup.ProjectID, rollup.Date).
			Assign(map[string]any{"page_views": rollup.PageViews, "unique_visitors": rollup.UniqueVisitors}).
			FirstOrCreate(&rollup).Error
		if saveErr != nil {
			job.logger.Warn("analytics_rollup_save_failed", zap.Error(saveErr), zap.String("project_id", rollup.ProjectID), zap.Time("date", start))
			return fmt.Errorf("task: save rollup for %s: %w", start.Format(time.DateOnly), saveErr)
		}
	}
	return nil
}

func (job *AnalyticsRollupJob) pruneOldEvents(ctx context.Context) error {
	if job.config.RetentionDays <= 0 {
		return nil
	}
	cutoff := model.StartOfDayUTC(job.config.Now().Add(-time.Duration(job.config.RetentionDays) * 24 * time.Hour))
	return job.database.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.AnalyticsEvent{}).Error
}
