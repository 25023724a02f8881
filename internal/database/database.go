package database

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-faster/errors"
	"github.com/tgdrive/filebot/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "postgres"
)

// Dialect reports which driver a data source string selects. Anything that
// is not a postgres URL or key/value DSN is treated as a SQLite file path.
func Dialect(dataSource string) string {
	ds := strings.TrimSpace(dataSource)
	if strings.HasPrefix(ds, "postgres://") || strings.HasPrefix(ds, "postgresql://") || strings.Contains(ds, "host=") {
		return DialectPostgres
	}
	return DialectSQLite
}

func dialector(dataSource string) (gorm.Dialector, error) {
	if Dialect(dataSource) == DialectPostgres {
		return postgres.Open(dataSource), nil
	}
	path := dataSource
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create database directory")
		}
	}
	if !strings.Contains(dataSource, "?") {
		dataSource += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	return sqlite.Open(dataSource), nil
}

func NewDatabase(cfg *config.DBConfig, lg *zap.SugaredLogger) (*gorm.DB, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.ErrorLevel
	}

	dial, err := dialector(cfg.DataSource)
	if err != nil {
		return nil, err
	}

	var db *gorm.DB
	for i := 0; i <= 5; i++ {
		db, err = gorm.Open(dial, &gorm.Config{
			Logger:         NewLogger(time.Second, true, level),
			TranslateError: true,
			NowFunc: func() time.Time {
				return time.Now().UTC()
			},
		})
		if err == nil {
			break
		}
		lg.Warnw("failed to open database", "err", err)
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	rawDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	rawDB.SetMaxOpenConns(cfg.Pool.MaxOpenConnections)
	rawDB.SetMaxIdleConns(cfg.Pool.MaxIdleConnections)
	rawDB.SetConnMaxLifetime(cfg.Pool.MaxLifetime)

	return db, nil
}
