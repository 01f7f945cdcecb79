package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, "America/Mexico_City", cfg.Location.String())
	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, "USD", cfg.Rates.ReportingCurrency)
	assert.Equal(t, 24*time.Hour, cfg.Rates.CacheTTL)
	assert.True(t, cfg.Classification.RelevantThreshold.Equal(decimal.NewFromInt(17500)))
	assert.Equal(t, 30, cfg.Classification.WindowDays)
	assert.Equal(t, 3, cfg.Classification.OccurrenceThreshold)
	assert.Equal(t, "OP", cfg.Folio.Prefix)
	assert.Equal(t, 20*time.Millisecond, cfg.Folio.RetryBase)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Empty(t, cfg.Redis.URL)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("AMLCORE_ADDR", ":9000")
	t.Setenv("REPORTING_CURRENCY", "mxn")
	t.Setenv("RELEVANT_THRESHOLD", "1000.50")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("FOLIO_MAX_ATTEMPTS", "5")
	t.Setenv("JURISDICTION_TZ", "UTC")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "MXN", cfg.Rates.ReportingCurrency)
	assert.Equal(t, "1000.5", cfg.Classification.RelevantThreshold.String())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, 5, cfg.Folio.MaxAttempts)
	assert.Equal(t, time.UTC, cfg.Location)
}

func TestFromEnvReportsEveryMalformedValue(t *testing.T) {
	t.Setenv("FOLIO_MAX_ATTEMPTS", "three")
	t.Setenv("RATE_CACHE_TTL", "forever")
	t.Setenv("JURISDICTION_TZ", "Mars/Olympus")
	t.Setenv("LIST_PAGE_SIZE", "0")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FOLIO_MAX_ATTEMPTS")
	assert.Contains(t, err.Error(), "RATE_CACHE_TTL")
	assert.Contains(t, err.Error(), "JURISDICTION_TZ")
	assert.Contains(t, err.Error(), "LIST_PAGE_SIZE")
}

func TestRequireChecks(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Error(t, cfg.RequireDatabase())
	assert.Error(t, cfg.RequireAuth())

	cfg.Database.URL = "postgres://localhost/amlcore"
	cfg.Auth.JWTSigningKey = "secret"
	assert.NoError(t, cfg.RequireDatabase())
	assert.NoError(t, cfg.RequireAuth())
}

func TestLoadDotEnv(t *testing.T) {
	t.Run("missing file is not an error", func(t *testing.T) {
		assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
	})

	t.Run("seeds unset variables only", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("FOLIO_PREFIX=AML\nLOG_LEVEL=debug\n"), 0o600))
		t.Setenv("LOG_LEVEL", "warn")
		t.Setenv("FOLIO_PREFIX", "")
		require.NoError(t, os.Unsetenv("FOLIO_PREFIX"))

		require.NoError(t, LoadDotEnv(path))
		t.Cleanup(func() { _ = os.Unsetenv("FOLIO_PREFIX") })

		assert.Equal(t, "AML", os.Getenv("FOLIO_PREFIX"))
		assert.Equal(t, "warn", os.Getenv("LOG_LEVEL"))
	})
}
