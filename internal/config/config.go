package config

import (
	"os"
	"strconv"
)

// Config for the prophylaxis monitoring service.
type Config struct {
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Database string
		SSLMode  string
		MaxConns int
		MaxIdle  int
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	// MLLP listener for ADT/ORM/SIU traffic.
	Listener struct {
		BindAddr        string
		Port            int
		MaxFrameBytes   int // close the connection beyond this
		ReadIdleSeconds int // drop the connection after this much silence
		AppName         string
		FacilityName    string
	}

	// Schedule registry and booking-system poll.
	Schedule struct {
		PollIntervalSeconds int
		HorizonHours        int // forward poll horizon
		RetentionHours      int // keep operations this long past their time
		BookingBaseURL      string
	}

	// Clinical-order query used by the prophylaxis refresh.
	Orders struct {
		BaseURL      string
		RecencyHours int
	}

	// Journey manager background sweeps.
	Journey struct {
		TriggerSweepSeconds int
		RefreshSweepSeconds int
	}

	Escalation struct {
		SweepSeconds    int
		AckDelayMinutes int // default re-check delay per level
		MaxLevel        int
	}

	// Delivery channels and alert publication.
	Channels struct {
		WebhookURL   string
		MQTTBroker   string
		MQTTTopic    string
		MQTTClientID string
	}

	Cache struct {
		AlertStream        string // Redis Stream alerts are published to
		LocationKeyPrefix  string
		LocationKeySuffix  string
		LocationTTLSeconds int
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "periop")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Listener.BindAddr = getEnv("MLLP_BIND", "0.0.0.0")
	cfg.Listener.Port = getEnvInt("MLLP_PORT", 2575)
	cfg.Listener.MaxFrameBytes = getEnvInt("MLLP_MAX_FRAME_BYTES", 1<<20)
	cfg.Listener.ReadIdleSeconds = getEnvInt("MLLP_READ_IDLE_SECONDS", 60)
	cfg.Listener.AppName = getEnv("MLLP_APP_NAME", "PERIOP-GUARD")
	cfg.Listener.FacilityName = getEnv("MLLP_FACILITY", "HOSP")

	cfg.Schedule.PollIntervalSeconds = getEnvInt("SCHEDULE_POLL_SECONDS", 300)
	cfg.Schedule.HorizonHours = getEnvInt("SCHEDULE_HORIZON_HOURS", 48)
	cfg.Schedule.RetentionHours = getEnvInt("SCHEDULE_RETENTION_HOURS", 24)
	cfg.Schedule.BookingBaseURL = getEnv("BOOKING_BASE_URL", "http://localhost:8081")

	cfg.Orders.BaseURL = getEnv("ORDERS_BASE_URL", "http://localhost:8082")
	cfg.Orders.RecencyHours = getEnvInt("ORDERS_RECENCY_HOURS", 24)

	cfg.Journey.TriggerSweepSeconds = getEnvInt("TRIGGER_SWEEP_SECONDS", 60)
	cfg.Journey.RefreshSweepSeconds = getEnvInt("REFRESH_SWEEP_SECONDS", 300)

	cfg.Escalation.SweepSeconds = getEnvInt("ESCALATION_SWEEP_SECONDS", 30)
	cfg.Escalation.AckDelayMinutes = getEnvInt("ESCALATION_ACK_DELAY_MINUTES", 5)
	cfg.Escalation.MaxLevel = getEnvInt("ESCALATION_MAX_LEVEL", 3)

	cfg.Channels.WebhookURL = getEnv("ALERT_WEBHOOK_URL", "")
	cfg.Channels.MQTTBroker = getEnv("ALERT_MQTT_BROKER", "")
	cfg.Channels.MQTTTopic = getEnv("ALERT_MQTT_TOPIC", "periop/alerts")
	cfg.Channels.MQTTClientID = getEnv("ALERT_MQTT_CLIENT_ID", "periop-guard")

	cfg.Cache.AlertStream = getEnv("CACHE_ALERT_STREAM", "periop:alerts")
	cfg.Cache.LocationKeyPrefix = getEnv("CACHE_LOCATION_PREFIX", "periop:patient:")
	cfg.Cache.LocationKeySuffix = ":location"
	cfg.Cache.LocationTTLSeconds = getEnvInt("CACHE_LOCATION_TTL_SECONDS", 86400)

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

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
