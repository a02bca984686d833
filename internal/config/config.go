package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application's configuration. It is read once at startup.
type Config struct {
	Port           string
	AllowedOrigins []string

	DBDriver string // "sqlite" or "postgres"
	DBDSN    string

	BrokerURL   string
	Credentials []string // one broker session per credential
	Topic       string

	DeviceHost      string // host of the device platform's HTTP API
	DeviceScheme    string
	ControlPushMode string // "http" or "mqtt"
	PushTimeout     time.Duration

	DefaultIntervalSeconds int
	TelemetryRetention     int // K: samples kept per account
	AlertRetention         int // N: read alerts kept per account

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	IdentityCacheTTL time.Duration

	InfluxDBURL    string
	InfluxDBToken  string
	InfluxDBOrg    string
	InfluxDBBucket string

	LogLevel  string
	LogFormat string

	EnvFileLoaded bool
}

// DefaultTopic carries attribute updates in both directions.
const DefaultTopic = "v1/devices/me/attributes"

// LoadConfig loads the configuration from a .env file, if present, and the
// process environment.
func LoadConfig() (Config, error) {
	loaded := godotenv.Load() == nil

	cfg := Config{
		Port:            getEnv("PORT", "8888"),
		AllowedOrigins:  splitList(getEnv("ALLOWED_ORIGINS", "*")),
		DBDriver:        strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBDSN:           getEnv("DB_DSN", "telemetry.db"),
		BrokerURL:       os.Getenv("BROKER_URL"),
		Credentials:     splitList(os.Getenv("DEVICE_CREDENTIALS")),
		Topic:           getEnv("BROKER_TOPIC", DefaultTopic),
		DeviceHost:      os.Getenv("DEVICE_HOST"),
		DeviceScheme:    getEnv("DEVICE_SCHEME", "https"),
		ControlPushMode: strings.ToLower(getEnv("CONTROL_PUSH_MODE", "http")),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		InfluxDBURL:     os.Getenv("INFLUXDB_URL"),
		InfluxDBToken:   os.Getenv("INFLUXDB_TOKEN"),
		InfluxDBOrg:     os.Getenv("INFLUXDB_ORG"),
		InfluxDBBucket:  getEnv("INFLUXDB_BUCKET", "telemetry"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		EnvFileLoaded:   loaded,
	}

	var err error
	if cfg.DefaultIntervalSeconds, err = getInt("DEFAULT_INTERVAL_SECONDS", 10); err != nil {
		return Config{}, err
	}
	if cfg.TelemetryRetention, err = getInt("TELEMETRY_RETENTION", 10); err != nil {
		return Config{}, err
	}
	if cfg.AlertRetention, err = getInt("ALERT_RETENTION", 10); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.IdentityCacheTTL, err = getDuration("IDENTITY_CACHE_TTL", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.PushTimeout, err = getDuration("PUSH_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}

	if cfg.BrokerURL == "" && cfg.DeviceHost != "" {
		cfg.BrokerURL = fmt.Sprintf("tcp://%s:1883", cfg.DeviceHost)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DeviceHost == "" {
		return fmt.Errorf("device platform configuration is incomplete. Please set DEVICE_HOST")
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (want sqlite or postgres)", c.DBDriver)
	}
	switch c.ControlPushMode {
	case "http", "mqtt":
	default:
		return fmt.Errorf("unsupported CONTROL_PUSH_MODE %q (want http or mqtt)", c.ControlPushMode)
	}
	if c.DefaultIntervalSeconds <= 0 {
		return fmt.Errorf("DEFAULT_INTERVAL_SECONDS must be positive")
	}
	if c.TelemetryRetention <= 0 || c.AlertRetention <= 0 {
		return fmt.Errorf("TELEMETRY_RETENTION and ALERT_RETENTION must be positive")
	}
	return nil
}

// InfluxEnabled reports whether the long-term telemetry archive is configured.
func (c Config) InfluxEnabled() bool {
	return c.InfluxDBURL != "" && c.InfluxDBToken != "" && c.InfluxDBOrg != ""
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
