package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SlowQueryThreshold is the duration above which queries are logged at Warn.
const SlowQueryThreshold = 200 * time.Millisecond

// gormLogger sends GORM output to an hclog.Logger. Query traces go to Trace
// so a normal run stays quiet.
type gormLogger struct {
	log   hclog.Logger
	level logger.LogLevel
}

// NewGormLogger creates a GORM logger backed by hclog.
func NewGormLogger(log hclog.Logger) logger.Interface {
	return &gormLogger{log: log, level: logger.Warn}
}

func (g *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &gormLogger{log: g.log, level: level}
}

func (g *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if g.level >= logger.Info {
		g.log.Info(msg, data...)
	}
}

func (g *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if g.level >= logger.Warn {
		g.log.Warn(msg, data...)
	}
}

func (g *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if g.level >= logger.Error {
		g.log.Error(msg, data...)
	}
}

func (g *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && g.level >= logger.Error:
		sql, rows := fc()
		g.log.Error("query failed", "error", err, "elapsed", elapsed, "rows", rows, "sql", sql)
	case elapsed > SlowQueryThreshold && g.level >= logger.Warn:
		sql, rows := fc()
		g.log.Warn("slow query", "elapsed", elapsed, "rows", rows, "sql", sql)
	case g.log.IsTrace():
		sql, rows := fc()
		g.log.Trace("query", "elapsed", elapsed, "rows", rows, "sql", sql)
	}
}
