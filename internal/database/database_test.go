package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tgdrive/filebot/internal/config"
	"go.uber.org/zap"
)

func TestDialect(t *testing.T) {
	assert.Equal(t, DialectPostgres, Dialect("postgres://u:p@localhost:5432/bot"))
	assert.Equal(t, DialectPostgres, Dialect("host=localhost user=bot dbname=bot"))
	assert.Equal(t, DialectSQLite, Dialect("filebot.db"))
	assert.Equal(t, DialectSQLite, Dialect("/var/lib/filebot/movies.db"))
}

func TestNewDatabaseCreatesSchema(t *testing.T) {
	cfg := &config.DBConfig{
		DataSource: filepath.Join(t.TempDir(), "nested", "bot.db"),
		LogLevel:   "error",
	}
	cfg.Pool.MaxOpenConnections = 2
	cfg.Pool.MaxIdleConnections = 2
	cfg.Pool.MaxLifetime = time.Minute

	db, err := NewDatabase(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, MigrateDB(db))
	// running twice is a no-op
	require.NoError(t, MigrateDB(db))

	assert.True(t, db.Migrator().HasTable("tokens"))
	assert.True(t, db.Migrator().HasColumn("tokens", "media_type"))
}

func TestIsKeyConflictErr(t *testing.T) {
	db := NewTestDatabase(t)
	insert := "INSERT INTO tokens (token, send_method, file_id, filename, added_by, added_at) VALUES (?, 'file', 'f', 'n', 1, ?)"
	require.NoError(t, db.Exec(insert, "dup", time.Now()).Error)

	err := db.Exec(insert, "dup", time.Now()).Error
	require.Error(t, err)
	assert.True(t, IsKeyConflictErr(err))
	assert.False(t, IsKeyConflictErr(nil))
}

func TestModeConstraint(t *testing.T) {
	db := NewTestDatabase(t)
	// file mode without a file id violates the check constraint
	err := db.Exec("INSERT INTO tokens (token, send_method, filename, added_by, added_at) VALUES ('x', 'file', 'n', 1, ?)", time.Now()).Error
	assert.Error(t, err)
}
