package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type APIConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
	RateBurst int
}

type SessionConfig struct {
	Backend string // "file" or "mongo"
	Dir     string
}

type MongoConfig struct {
	URI      string
	Database string
}

type MQTTConfig struct {
	BrokerURL string
	Topic     string
	ClientID  string
}

type NotifyConfig struct {
	TTL time.Duration
	Max int
}

type FleetConfig struct {
	BulkConcurrency int
	AdminCap        int
}

type LogConfig struct {
	Level  string
	Format string
}

type Credentials struct {
	Username string
	Password string
}

type Config struct {
	Environment string
	Log         LogConfig
	API         APIConfig
	Session     SessionConfig
	Mongo       MongoConfig
	MQTT        MQTTConfig
	Notify      NotifyConfig
	Fleet       FleetConfig
	Credentials Credentials
}

// Load reads configuration from the environment, after loading an optional .env file.
func Load() (*Config, error) {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		API: APIConfig{
			BaseURL:   v.GetString("FLEET_API_URL"),
			Timeout:   v.GetDuration("FLEET_API_TIMEOUT"),
			RateLimit: v.GetFloat64("FLEET_API_RATE_LIMIT"),
			RateBurst: v.GetInt("FLEET_API_RATE_BURST"),
		},
		Session: SessionConfig{
			Backend: v.GetString("FLEET_SESSION_BACKEND"),
			Dir:     v.GetString("FLEET_SESSION_DIR"),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("MONGO_URI"),
			Database: v.GetString("MONGO_DB"),
		},
		MQTT: MQTTConfig{
			BrokerURL: v.GetString("MQTT_BROKER_URL"),
			Topic:     v.GetString("MQTT_TOPIC"),
			ClientID:  v.GetString("MQTT_CLIENT_ID"),
		},
		Notify: NotifyConfig{
			TTL: v.GetDuration("NOTIFY_TTL"),
			Max: v.GetInt("NOTIFY_MAX"),
		},
		Fleet: FleetConfig{
			BulkConcurrency: v.GetInt("BULK_CONCURRENCY"),
			AdminCap:        v.GetInt("ADMIN_CAP"),
		},
		Credentials: Credentials{
			Username: v.GetString("FLEET_USERNAME"),
			Password: v.GetString("FLEET_PASSWORD"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("FLEET_API_URL", "http://localhost:8081/api")
	v.SetDefault("FLEET_API_TIMEOUT", 15*time.Second)
	v.SetDefault("FLEET_API_RATE_LIMIT", 0)
	v.SetDefault("FLEET_API_RATE_BURST", 10)
	v.SetDefault("FLEET_SESSION_BACKEND", "file")
	v.SetDefault("FLEET_SESSION_DIR", defaultSessionDir())
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB", "fleet")
	v.SetDefault("MQTT_TOPIC", "fleet/notifications")
	v.SetDefault("MQTT_CLIENT_ID", "fleet-dashboard")
	v.SetDefault("NOTIFY_TTL", 5*time.Second)
	v.SetDefault("NOTIFY_MAX", 5)
	v.SetDefault("BULK_CONCURRENCY", 0)
	v.SetDefault("ADMIN_CAP", 3)
}

func defaultSessionDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "fleet-dashboard")
}

func validate(cfg *Config) error {
	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("FLEET_API_URL must be an absolute URL, got %q", cfg.API.BaseURL)
	}
	switch cfg.Session.Backend {
	case "file", "mongo":
	default:
		return fmt.Errorf("FLEET_SESSION_BACKEND must be file or mongo, got %q", cfg.Session.Backend)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.Log.Format)
	}
	if cfg.API.Timeout < 0 {
		return fmt.Errorf("FLEET_API_TIMEOUT must not be negative")
	}
	if cfg.Notify.TTL <= 0 {
		return fmt.Errorf("NOTIFY_TTL must be positive")
	}
	if cfg.Notify.Max <= 0 {
		return fmt.Errorf("NOTIFY_MAX must be positive")
	}
	if cfg.Fleet.AdminCap < 0 {
		return fmt.Errorf("ADMIN_CAP must not be negative")
	}
	return nil
}
