package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// GormLogger routes GORM output through zap. Bound parameters and driver
// error messages never reach the log: both can carry patient contact data.
type GormLogger struct {
	level gormlogger.LogLevel
	slow  time.Duration
}

func NewGormLogger(level gormlogger.LogLevel) *GormLogger {
	return &GormLogger{level: level, slow: slowQueryThreshold}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, _ ...interface{}) {
	if l.level >= gormlogger.Info {
		FromContext(ctx).Info(msg, zap.String("component", "gorm"))
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, _ ...interface{}) {
	if l.level >= gormlogger.Warn {
		FromContext(ctx).Warn(msg, zap.String("component", "gorm"))
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, _ ...interface{}) {
	if l.level >= gormlogger.Error {
		FromContext(ctx).Error(msg, zap.String("component", "gorm"))
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	// Not-found is an expected outcome of tenant-scoped lookups.
	if errors.Is(err, gormlogger.ErrRecordNotFound) {
		err = nil
	}

	log := FromContext(ctx)
	switch {
	case err != nil && l.level >= gormlogger.Error:
		log.Error("db.query", append(queryFields(fc, elapsed), zap.String("error_type", fmt.Sprintf("%T", err)))...)
	case elapsed > l.slow && l.level >= gormlogger.Warn:
		log.Warn("db.slow_query", queryFields(fc, elapsed)...)
	case l.level >= gormlogger.Info:
		log.Debug("db.query", queryFields(fc, elapsed)...)
	}
}

// ParamsFilter drops bound values so statements log with placeholders.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func queryFields(fc func() (string, int64), elapsed time.Duration) []zap.Field {
	sql, rows := fc()
	sql = strings.TrimSpace(sql)
	fields := []zap.Field{
		zap.String("component", "gorm"),
		zap.String("operation", statementVerb(sql)),
		zap.String("sql", sql),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	return fields
}

func statementVerb(sql string) string {
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		switch token = strings.Trim(token, "();"); token {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			return token
		}
	}
	return "OTHER"
}

var _ gormlogger.Interface = (*GormLogger)(nil)
