package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/sitebuilder/internal/model"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/storage"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/testutil"
)

func TestAnalyticsRollupJobAggregatesAndPrunes(testingT *testing.T) {
	database := testutil.OpenMigratedDatabase(testingT)

	projectRecord, err := model.NewProject(model.ProjectInput{ID: storage.NewID(), OwnerID: "owner-1", Name: "Bakery"})
	require.NoError(testingT, err)
	require.NoError(testingT, database.Create(&projectRecord).Error)

	now := time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)
	inputs := []model.AnalyticsEventInput{
		{ProjectID: projectRecord.ID, PagePath: "/", VisitorIP: "10.0.0.1", Occurred: yesterday},
		{ProjectID: projectRecord.ID, PagePath: "/menu", VisitorIP: "10.0.0.1", Occurred: yesterday},
		{ProjectID: projectRecord.ID, PagePath: "/", VisitorIP: "10.0.0.2", Occurred: yesterday},
		{ProjectID: projectRecord.ID, PagePath: "/", VisitorIP: "10.0.0.3", Occurred: now.Add(-72 * time.Hour)},
	}
	for _, input := range inputs {
		event, eventErr := model.NewAnalyticsEvent(input)
		require.NoError(testingT, eventErr)
		require.NoError(testingT, database.Create(&event).Error)
	}

	job := NewAnalyticsRollupJob(database, nil, AnalyticsRollupConfig{
		RetentionDays: 2,
		Now:           func() time.Time { return now },
	})
	require.NoError(testingT, job.Run(context.Background()))

	var rollups []model.AnalyticsRollup
	require.NoError(testingT, database.Order("date ASC").Find(&rollups).Error)
	require.Len(testingT, rollups, 2)
	require.Equal(testingT, model.StartOfDayUTC(now.Add(-72*time.Hour)), rollups[0].Date.UTC())
	require.Equal(testingT, int64(1), rollups[0].PageViews)
	require.Equal(testingT, model.StartOfDayUTC(yesterday), rollups[1].Date.UTC())
	require.Equal(testingT, int64(3), rollups[1].PageViews)
	require.Equal(testingT, int64(2), rollups[1].UniqueVisitors)

	var remainingEvents int64
	require.NoError(testingT, database.Model(&model.AnalyticsEvent{}).Count(&remainingEvents).Error)
	require.Equal(testingT, int64(3), remainingEvents)

	require.NoError(testingT, job.Run(context.Background()))
	require.NoError(testingT, database.Find(&rollups).Error)
	require.Len(testingT, rollups, 2)
}

func TestAnalyticsRollupJobCatchesUpMissedDaysBeforePruning(testingT *testing.T) {
	database := testutil.OpenMigratedDatabase(testingT)
	projectRecord, err := model.NewProject(model.ProjectInput{ID: storage.NewID(), OwnerID: "owner-1", Name: "Bakery"})
	require.NoError(testingT, err)
	require.NoError(testingT, database.Create(&projectRecord).Error)

	now := time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)
	lastFolded := model.StartOfDayUTC(now.Add(-5 * 24 * time.Hour))
	previousRollup, err := model.NewAnalyticsRollup(projectRecord.ID, lastFolded, 7, 4)
	require.NoError(testingT, err)
	require.NoError(testingT, database.Create(&previousRollup).Error)

	for daysAgo := 4; daysAgo >= 2; daysAgo-- {
		event, eventErr := model.NewAnalyticsEvent(model.AnalyticsEventInput{
			ProjectID: projectRecord.ID,
			VisitorIP: "10.0.0.1",
			Occurred:  now.Add(-time.Duration(daysAgo) * 24 * time.Hour),
		})
		require.NoError(testingT, eventErr)
		require.NoError(testingT, database.Create(&event).Error)
	}

	job := NewAnalyticsRollupJob(database, nil, AnalyticsRollupConfig{
		RetentionDays: 1,
		Now:           func() time.Time { return now },
	})
	require.NoError(testingT, job.Run(context.Background()))

	var rollups []model.AnalyticsRollup
	require.NoError(testingT, database.Order("date ASC").Find(&rollups).Error)
	require.Len(testingT, rollups, 4)
	require.Equal(testingT, int64(7), rollups[0].PageViews)
	for index, rollup := range rollups[1:] {
		require.Equal(testingT, lastFolded.Add(time.Duration(index+1)*24*time.Hour), rollup.Date.UTC())
		require.Equal(testingT, int64(1), rollup.PageViews)
	}

	var remainingEvents int64
	require.NoError(testingT, database.Model(&model.AnalyticsEvent{}).Count(&remainingEvents).Error)
	require.Zero(testingT, remainingEvents)
}

func TestAnalyticsRollupJobKeepsEventsWithoutRetention(testingT *testing.T) {
	database := testutil.OpenMigratedDatabase(testingT)
	projectRecord, err := model.NewProject(model.ProjectInput{ID: storage.NewID(), OwnerID: "owner-1", Name: "Bakery"})
	require.NoError(testingT, err)
	require.NoError(testingT, database.Create(&projectRecord).Error)

	event, err := model.NewAnalyticsEvent(model.AnalyticsEventInput{ProjectID: projectRecord.ID, Occurred: time.Now().UTC().Add(-40 * 24 * time.Hour)})
	require.NoError(testingT, err)
	require.NoError(testingT, database.Create(&event).Error)

	job := NewAnalyticsRollupJob(database, nil, AnalyticsRollupConfig{})
	require.NoError(testingT, job.Run(context.Background()))
	require.Equal(testingT, "analytics_rollup", job.Name())

	var remainingEvents int64
	require.NoError(testingT, database.Model(&model.AnalyticsEvent{}).Count(&remainingEvents).Error)
	require.Equal(testingT, int64(1), remainingEvents)

	var rollups []model.AnalyticsRollup
	require.NoError(testingT, database.Find(&rollups).Error)
	require.Len(testingT, rollups, 1)
	require.Equal(testingT, model.StartOfDayUTC(event.CreatedAt), rollups[0].Date.UTC())
}
