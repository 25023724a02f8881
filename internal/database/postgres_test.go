package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/tgdrive/filebot/internal/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// setupPostgres starts PostgreSQL in a container. Set TEST_INTEGRATION to
// run it; docker is required.
func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION not set")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("filebot_test"),
		postgres.WithUsername("filebot"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.Equal(t, DialectPostgres, Dialect(dsn))

	cfg := &config.DBConfig{DataSource: dsn, LogLevel: "error"}
	cfg.Pool.MaxOpenConnections = 4
	cfg.Pool.MaxIdleConnections = 2
	cfg.Pool.MaxLifetime = time.Minute

	db, err := NewDatabase(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, MigrateDB(db))
	return db
}

func TestPostgresSchema(t *testing.T) {
	db := setupPostgres(t)

	assert.True(t, db.Migrator().HasTable("tokens"))
	assert.True(t, db.Migrator().HasColumn("tokens", "media_type"))
	require.NoError(t, MigrateDB(db))

	insert := "INSERT INTO tokens (token, send_method, file_id, filename, added_by, added_at) VALUES (?, 'file', 'f', 'n', 1, ?)"
	require.NoError(t, db.Exec(insert, "dup", time.Now()).Error)
	err := db.Exec(insert, "dup", time.Now()).Error
	require.Error(t, err)
	assert.True(t, IsKeyConflictErr(err))

	err = db.Exec("INSERT INTO tokens (token, send_method, filename, added_by, added_at) VALUES ('bad', 'copy', 'n', 1, ?)", time.Now()).Error
	assert.Error(t, err)
}
