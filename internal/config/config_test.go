package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "praxis", cfg.Database.Database)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, "praxis/manikin", cfg.MQTT.TopicPrefix)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, time.Second, cfg.Simulation.TickInterval)
	assert.Equal(t, 64, cfg.Simulation.JoinCodeAttempts)
	assert.Equal(t, time.Hour, cfg.Simulation.CompletedRetention)
	assert.True(t, cfg.Simulation.SeedScenarios)
	assert.Equal(t, 7*24*time.Hour, cfg.Archive.ResultsTTL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("DB_ENABLED", "true")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("REDIS_ENABLED", "1")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("MQTT_ENABLED", "true")
	t.Setenv("MQTT_BROKER", "tcp://mosquitto:1883")
	t.Setenv("MQTT_TOPIC_PREFIX", "lab/manikins/")
	t.Setenv("SIM_TICK_INTERVAL_MS", "250")
	t.Setenv("SIM_SEED_SCENARIOS", "false")
	t.Setenv("ARCHIVE_STREAM", "results")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://mosquitto:1883", cfg.MQTT.Broker)
	assert.Equal(t, "lab/manikins", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 250*time.Millisecond, cfg.Simulation.TickInterval)
	assert.False(t, cfg.Simulation.SeedScenarios)
	assert.Equal(t, "results", cfg.Archive.Stream)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("SIM_TICK_INTERVAL_MS", "fast")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("SIM_TICK_INTERVAL_MS", "0")
	_, err = Load()
	require.Error(t, err)
}
