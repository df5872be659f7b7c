package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "periop", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "0.0.0.0", cfg.Listener.BindAddr)
	assert.Equal(t, 2575, cfg.Listener.Port)
	assert.Equal(t, 1<<20, cfg.Listener.MaxFrameBytes)
	assert.Equal(t, 60, cfg.Listener.ReadIdleSeconds)
	assert.Equal(t, "PERIOP-GUARD", cfg.Listener.AppName)

	assert.Equal(t, 48, cfg.Schedule.HorizonHours)
	assert.Equal(t, 24, cfg.Schedule.RetentionHours)
	assert.Equal(t, 300, cfg.Schedule.PollIntervalSeconds)

	assert.Equal(t, 60, cfg.Journey.TriggerSweepSeconds)
	assert.Equal(t, 300, cfg.Journey.RefreshSweepSeconds)

	assert.Equal(t, 30, cfg.Escalation.SweepSeconds)
	assert.Equal(t, 5, cfg.Escalation.AckDelayMinutes)
	assert.Equal(t, 3, cfg.Escalation.MaxLevel)

	assert.Equal(t, "periop:alerts", cfg.Cache.AlertStream)
	assert.Equal(t, "periop:patient:", cfg.Cache.LocationKeyPrefix)
	assert.Equal(t, ":location", cfg.Cache.LocationKeySuffix)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_NAME", "test-db")
	os.Setenv("MLLP_PORT", "6661")
	os.Setenv("MLLP_MAX_FRAME_BYTES", "4096")
	os.Setenv("SCHEDULE_HORIZON_HOURS", "72")
	os.Setenv("ESCALATION_MAX_LEVEL", "5")
	os.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, "test-db", cfg.Database.Database)
	assert.Equal(t, 6661, cfg.Listener.Port)
	assert.Equal(t, 4096, cfg.Listener.MaxFrameBytes)
	assert.Equal(t, 72, cfg.Schedule.HorizonHours)
	assert.Equal(t, 5, cfg.Escalation.MaxLevel)
	assert.Equal(t, "debug", cfg.Log.Level)

	os.Clearenv()
}

func TestGetEnvInt_Invalid(t *testing.T) {
	os.Setenv("TEST_INT", "not-a-number")
	assert.Equal(t, 7, getEnvInt("TEST_INT", 7))
	os.Unsetenv("TEST_INT")

	os.Setenv("TEST_INT", "42")
	assert.Equal(t, 42, getEnvInt("TEST_INT", 7))
	os.Unsetenv("TEST_INT")
}
