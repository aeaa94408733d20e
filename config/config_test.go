package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "tutoring-hub.db", cfg.Store.Path)
	assert.Equal(t, "password321", cfg.Ingest.DefaultCredential)
	assert.Equal(t, "tutoring.com", cfg.Ingest.EmailDomain)
	assert.Equal(t, "Form 4", cfg.Ingest.DefaultCohort)
	assert.Equal(t, 30, cfg.Analytics.TrendWindowDays)
	assert.Equal(t, 90, cfg.Analytics.ChartWindowDays)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.S3Enabled())
	assert.True(t, cfg.IsDevelopment())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "hub")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("FEATURE_EVENT_RELAY", "true")
	t.Setenv("SOURCE_GLOBS", "data/*.csv, exports/*.csv,")
	t.Setenv("S3_BUCKET", "grades")
	t.Setenv("INGEST_LOCK_WAIT", "2s")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://hub:secret@db:5432/tutoring_hub?sslmode=disable", cfg.Store.URL)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, []string{"data/*.csv", "exports/*.csv"}, cfg.Sources.Globs)
	assert.True(t, cfg.S3Enabled())
	assert.Equal(t, 2*time.Second, cfg.Ingest.LockWait)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
}

func TestValidate_Errors(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")

	t.Setenv("STORE_DRIVER", "mongo")
	_, err = FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Store.Driver")

	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("FEATURE_EVENT_RELAY", "true")
	_, err = FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FEATURE_EVENT_RELAY requires REDIS_ADDR")

	t.Setenv("FEATURE_EVENT_RELAY", "false")
	t.Setenv("INGEST_BCRYPT_COST", "2")
	_, err = FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Ingest.BcryptCost")
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ANALYTICS_TREND_WINDOW_DAYS=14\n"), 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		_ = os.Unsetenv("ANALYTICS_TREND_WINDOW_DAYS")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 14, cfg.Analytics.TrendWindowDays)
}

func TestLoad_NoDotEnv(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	_, err = Load()
	assert.NoError(t, err)
}
