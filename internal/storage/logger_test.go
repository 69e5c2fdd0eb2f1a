package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newObservedZapLogger() (*ZapLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewZapLogger(zap.New(core)), logs
}

func statement() (string, int64) {
	return "SELECT * FROM projects", 1
}

func TestZapLoggerTraceSkipsMissingRecords(testingT *testing.T) {
	gormLogger, logs := newObservedZapLogger()

	gormLogger.Trace(context.Background(), time.Now(), statement, gorm.ErrRecordNotFound)
	require.Zero(testingT, logs.Len())

	gormLogger.Trace(context.Background(), time.Now(), statement, errors.New("disk I/O error"))
	require.Equal(testingT, 1, logs.FilterMessage("gorm_query_failed").Len())
}

func TestZapLoggerTraceReportsSlowQueries(testingT *testing.T) {
	gormLogger, logs := newObservedZapLogger()

	gormLogger.Trace(context.Background(), time.Now().Add(-2*defaultSlowQueryThreshold), statement, nil)
	require.Equal(testingT, 1, logs.FilterMessage("gorm_slow_query").Len())

	gormLogger.Trace(context.Background(), time.Now(), statement, nil)
	require.Equal(testingT, 1, logs.Len())
}

func TestZapLoggerLogModeCopiesLevel(testingT *testing.T) {
	gormLogger, logs := newObservedZapLogger()

	silent := gormLogger.LogMode(logger.Silent)
	silent.Trace(context.Background(), time.Now(), statement, errors.New("ignored"))
	silent.Error(context.Background(), "ignored %s", "too")
	require.Zero(testingT, logs.Len())

	gormLogger.Warn(context.Background(), "migrating %s", "projects")
	gormLogger.Info(context.Background(), "below the configured level")
	require.Equal(testingT, 1, logs.Len())
	require.Equal(testingT, "migrating projects", logs.All()[0].Message)
}
