package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Naser58164/praxis-medius/common/config"
)

// Config 模拟引擎服务配置
type Config struct {
	HTTP struct {
		Addr            string
		ShutdownTimeout time.Duration
	}

	Database struct {
		Enabled bool
		config.DatabaseConfig
	}

	Redis struct {
		Enabled bool
		config.RedisConfig
	}

	MQTT struct {
		Enabled     bool
		TopicPrefix string
		config.MQTTConfig
	}

	Simulation struct {
		TickInterval       time.Duration // 计时间隔，默认 1 秒
		JoinCodeAttempts   int
		CompletedRetention time.Duration // 已结束会话保留时长
		PruneInterval      time.Duration
		SeedScenarios      bool
	}

	Archive struct {
		ResultsTTL time.Duration
		Stream     string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")
	cfg.HTTP.ShutdownTimeout = 10 * time.Second

	cfg.Database.Enabled = getEnvBool("DB_ENABLED", false)
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "praxis"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 10
	cfg.Database.MaxIdle = 5
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Enabled = getEnvBool("REDIS_ENABLED", false)
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.RedisConfig.LoadFromEnv("REDIS")

	cfg.MQTT.Enabled = getEnvBool("MQTT_ENABLED", false)
	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "praxis-sim"
	cfg.MQTT.QoS = 1
	cfg.MQTT.ConnectTimeout = 10 * time.Second
	cfg.MQTT.MQTTConfig.LoadFromEnv("MQTT")
	cfg.MQTT.TopicPrefix = strings.TrimSuffix(getEnv("MQTT_TOPIC_PREFIX", "praxis/manikin"), "/")

	tickMS, err := getEnvInt("SIM_TICK_INTERVAL_MS", 1000)
	if err != nil {
		return nil, err
	}
	if tickMS <= 0 {
		return nil, fmt.Errorf("SIM_TICK_INTERVAL_MS must be positive, got %d", tickMS)
	}
	cfg.Simulation.TickInterval = time.Duration(tickMS) * time.Millisecond

	if cfg.Simulation.JoinCodeAttempts, err = getEnvInt("SIM_JOIN_CODE_ATTEMPTS", 64); err != nil {
		return nil, err
	}
	retention, err := getEnvInt("SIM_COMPLETED_RETENTION_SEC", 3600)
	if err != nil {
		return nil, err
	}
	cfg.Simulation.CompletedRetention = time.Duration(retention) * time.Second

	prune, err := getEnvInt("SIM_PRUNE_INTERVAL_SEC", 60)
	if err != nil {
		return nil, err
	}
	cfg.Simulation.PruneInterval = time.Duration(prune) * time.Second
	cfg.Simulation.SeedScenarios = getEnvBool("SIM_SEED_SCENARIOS", true)

	ttl, err := getEnvInt("ARCHIVE_RESULTS_TTL_SEC", 7*24*3600)
	if err != nil {
		return nil, err
	}
	cfg.Archive.ResultsTTL = time.Duration(ttl) * time.Second
	cfg.Archive.Stream = getEnv("ARCHIVE_STREAM", "praxis:results:stream")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
	return v, nil
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return v
}
