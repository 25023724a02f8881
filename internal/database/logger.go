package database

import (
	"context"
	"errors"
	"time"

	"github.com/tgdrive/filebot/internal/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"
)

// Logger routes gorm output to the zap logger carried by the query context.
type Logger struct {
	cfg glogger.Config
}

func NewLogger(slowThreshold time.Duration, ignoreRecordNotFoundError bool, level zapcore.Level) *Logger {
	cfg := glogger.Config{
		SlowThreshold:             slowThreshold,
		IgnoreRecordNotFoundError: ignoreRecordNotFoundError,
	}
	switch level {
	case zapcore.DebugLevel, zapcore.InfoLevel:
		cfg.LogLevel = glogger.Info
	case zapcore.WarnLevel:
		cfg.LogLevel = glogger.Warn
	case zapcore.ErrorLevel:
		cfg.LogLevel = glogger.Error
	default:
		cfg.LogLevel = glogger.Silent
	}
	return &Logger{cfg: cfg}
}

func (l *Logger) LogMode(level glogger.LogLevel) glogger.Interface {
	nl := *l
	nl.cfg.LogLevel = level
	return &nl
}

func (l *Logger) Info(ctx context.Context, s string, args ...any) {
	if l.cfg.LogLevel >= glogger.Info {
		l.fromContext(ctx).Infof(s, args...)
	}
}

func (l *Logger) Warn(ctx context.Context, s string, args ...any) {
	if l.cfg.LogLevel >= glogger.Warn {
		l.fromContext(ctx).Warnf(s, args...)
	}
}

func (l *Logger) Error(ctx context.Context, s string, args ...any) {
	if l.cfg.LogLevel >= glogger.Error {
		l.fromContext(ctx).Errorf(s, args...)
	}
}

func (l *Logger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.LogLevel <= glogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	lg := l.fromContext(ctx)

	switch {
	case err != nil && l.cfg.LogLevel >= glogger.Error && (!errors.Is(err, gorm.ErrRecordNotFound) || !l.cfg.IgnoreRecordNotFoundError):
		sql, rows := fc()
		lg.Errorw("query failed", "err", err, "elapsed", elapsed, "rows", rows, "sql", sql)
	case l.cfg.SlowThreshold != 0 && elapsed > l.cfg.SlowThreshold && l.cfg.LogLevel >= glogger.Warn:
		sql, rows := fc()
		lg.Warnw("slow query", "threshold", l.cfg.SlowThreshold, "elapsed", elapsed, "rows", rows, "sql", sql)
	case l.cfg.LogLevel == glogger.Info:
		sql, rows := fc()
		lg.Debugw("query", "elapsed", elapsed, "rows", rows, "sql", sql)
	}
}

func (l *Logger) fromContext(ctx context.Context) *zap.SugaredLogger {
	return logging.FromContext(ctx).Named("db").Sugar()
}
