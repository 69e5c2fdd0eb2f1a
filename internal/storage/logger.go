package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultSlowQueryThreshold = 500 * time.Millisecond

// ZapLogger forwards GORM diagnostics to zap. Missing records are not logged.
type ZapLogger struct {
	logger             *zap.Logger
	level              logger.LogLevel
	slowQueryThreshold time.Duration
}

// NewZapLogger builds a GORM logger that reports warnings and errors.
func NewZapLogger(baseLogger *zap.Logger) *ZapLogger {
	if baseLogger == nil {
		baseLogger = zap.NewNop()
	}
	return &ZapLogger{
		logger:             baseLogger.Named("gorm"),
		level:              logger.Warn,
		slowQueryThreshold: defaultSlowQueryThreshold,
	}
}

func (zapLogger *ZapLogger) LogMode(level logger.LogLevel) logger.Interface {
	copied := *zapLogger
	copied.level = level
	return &copied
}

func (zapLogger *ZapLogger) Info(_ context.Context, message string, arguments ...interface{}) {
	if zapLogger.level >= logger.Info {
		zapLogger.logger.Info(fmt.Sprintf(message, arguments...))
	}
}

func (zapLogger *ZapLogger) Warn(_ context.Context, message string, arguments ...interface{}) {
	if zapLogger.level >= logger.Warn {
		zapLogger.logger.Warn(fmt.Sprintf(message, arguments...))
	}
}

func (zapLogger *ZapLogger) Error(_ context.Context, message string, arguments ...interface{}) {
	if zapLogger.level >= logger.Error {
		zapLogger.logger.Error(fmt.Sprintf(message, arguments...))
	}
}

func (zapLogger *ZapLogger) Trace(_ context.Context, begin time.Time, statement func() (string, int64), err error) {
	if zapLogger.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && zapLogger.level >= logger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := statement()
		zapLogger.logger.Error("gorm_query_failed", zap.Error(err), zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql))
	case elapsed > zapLogger.slowQueryThreshold && zapLogger.level >= logger.Warn:
		sql, rows := statement()
		zapLogger.logger.Warn("gorm_slow_query", zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql))
	case zapLogger.level >= logger.Info:
		sql, rows := statement()
		zapLogger.logger.Debug("gorm_query", zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql))
	}
}
