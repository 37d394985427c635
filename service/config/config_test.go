package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Setup environment variables
	os.Setenv("ALCHEMY_API_KEY", "test-key")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "test-key", cfg.AlchemyAPIKey)
	assert.Equal(t, ":8080", cfg.ServerAddr) // Default
	assert.Equal(t, "info", cfg.LogLevel)    // Default
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, "veritax-attestations", cfg.TemporalTaskQueue)
	assert.Equal(t, RunnerInline, cfg.Runner)
	assert.Zero(t, cfg.JobRetention)
	assert.Empty(t, cfg.DatabaseURL) // Archive is optional
}

func TestLoad_MissingAlchemyAPIKey(t *testing.T) {
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "ALCHEMY_API_KEY is required")
}

func TestLoad_InvalidJobRetention(t *testing.T) {
	os.Setenv("ALCHEMY_API_KEY", "test-key")
	os.Setenv("JOB_RETENTION", "invalid")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_InvalidRunner(t *testing.T) {
	os.Setenv("ALCHEMY_API_KEY", "test-key")
	os.Setenv("RUNNER", "celery")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "RUNNER must be")
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("ALCHEMY_API_KEY", "secret-key")
	os.Setenv("SERVER_ADDR", ":9090")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("DATABASE_URL", "postgres://localhost/veritax")
	os.Setenv("NATS_URL", "nats://nats.example.com:4222")
	os.Setenv("TEMPORAL_HOST", "temporal.example.com:7233")
	os.Setenv("GAIN_CONTRACTS", "0xAAA, 0xBBB ,,0xCCC")
	os.Setenv("JOB_RETENTION", "24h")
	os.Setenv("RUNNER", "temporal")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "postgres://localhost/veritax", cfg.DatabaseURL)
	assert.Equal(t, "nats://nats.example.com:4222", cfg.NATSURL)
	assert.Equal(t, "temporal.example.com:7233", cfg.TemporalHost)
	assert.Equal(t, "secret-key", cfg.AlchemyAPIKey)
	assert.Equal(t, []string{"0xAAA", "0xBBB", "0xCCC"}, cfg.GainContracts)
	assert.Equal(t, 24*time.Hour, cfg.JobRetention)
	assert.Equal(t, RunnerTemporal, cfg.Runner)
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := &Config{
		ServerAddr:    ":8080",
		AlchemyAPIKey: "key",
		Runner:        RunnerInline,
	}

	err := cfg.Validate()
	assert.NoError(t, err)
}

func TestValidate_MissingAlchemyAPIKey(t *testing.T) {
	cfg := &Config{
		ServerAddr: ":8080",
		Runner:     RunnerInline,
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AlchemyAPIKey is required")
}

func TestValidate_TemporalRunnerNeedsTemporalConfig(t *testing.T) {
	cfg := &Config{
		ServerAddr:    ":8080",
		AlchemyAPIKey: "key",
		Runner:        RunnerTemporal,
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TemporalHost is required")
	assert.Contains(t, err.Error(), "TemporalTaskQueue is required")
}

func TestValidate_NegativeRetention(t *testing.T) {
	cfg := &Config{
		ServerAddr:    ":8080",
		AlchemyAPIKey: "key",
		Runner:        RunnerInline,
		JobRetention:  -time.Hour,
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JobRetention cannot be negative")
}

func TestMustLoad_Panics(t *testing.T) {
	// Don't set required env vars
	defer cleanupEnv()

	assert.Panics(t, func() {
		MustLoad()
	})
}

func TestMustLoad_Success(t *testing.T) {
	os.Setenv("ALCHEMY_API_KEY", "test-key")
	defer cleanupEnv()

	assert.NotPanics(t, func() {
		cfg := MustLoad()
		assert.NotNil(t, cfg)
	})
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a"}, splitList("a"))
	assert.Equal(t, []string{"a", "b"}, splitList(" a ,, b "))
}

// cleanupEnv clears all environment variables used in tests
func cleanupEnv() {
	os.Unsetenv("ALCHEMY_API_KEY")
	os.Unsetenv("ALCHEMY_URL")
	os.Unsetenv("DATABASE_URL")
	os.Unsetenv("SERVER_ADDR")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("NATS_URL")
	os.Unsetenv("TEMPORAL_HOST")
	os.Unsetenv("GAIN_CONTRACTS")
	os.Unsetenv("LOSS_CONTRACTS")
	os.Unsetenv("YIELD_CONTRACTS")
	os.Unsetenv("JOB_RETENTION")
	os.Unsetenv("RUNNER")
}
