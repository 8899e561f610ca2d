package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

type Config struct {
	Env           string
	Version       string
	Port          string
	Storage       string
	DataFile      string
	Database      DatabaseConfig
	RedisAddr     string
	RedisPassword string
	KafkaBroker   string
	ElasticURL    string
	SentryDSN     string
	JWTSecret     string
	TokenTTL      time.Duration
	ServiceKey    string
	Location      *time.Location
	Notifications NotificationConfig
	Reminder      ReminderConfig
}

type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		d.Host, d.User, d.Password, d.Name, d.Port,
	)
}

type NotificationConfig struct {
	Checkpoints  []string
	Tolerance    time.Duration
	PollInterval time.Duration
	Cooldown     time.Duration
}

type ReminderConfig struct {
	SendAt         string
	ZAPIInstanceID string
	ZAPIToken      string
	ZAPIBaseURL    string
}

// Load reads the process environment, preceded by an optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	loc, err := time.LoadLocation(getEnv("APP_TIMEZONE", "America/Sao_Paulo"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_TIMEZONE: %w", err)
	}

	cfg := &Config{
		Env:      getEnv("APP_ENV", EnvLocal),
		Version:  getEnv("APP_VERSION", "dev"),
		Port:     getEnv("PORT", "8080"),
		Storage:  getEnv("STORAGE", StoragePostgres),
		DataFile: getEnv("DATA_FILE", "data/magnata_crm_patients.json"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "magnata_crm"),
			User:     getEnv("DB_USER", "postgres"),
			Password: os.Getenv("DB_PASSWORD"),
		},
		RedisAddr:     redisAddr(getEnv("REDIS_HOST", "localhost:6379")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		KafkaBroker:   getEnv("KAFKA_BROKER", "localhost:9092"),
		ElasticURL:    os.Getenv("ELASTICSEARCH_URL"),
		SentryDSN:     os.Getenv("SENTRY_DSN"),
		JWTSecret:     os.Getenv("JWT_ACCESS_SECRET"),
		TokenTTL:      getDuration("JWT_TTL", 12*time.Hour),
		ServiceKey:    os.Getenv("SERVICE_KEY"),
		Location:      loc,
		Notifications: NotificationConfig{
			Checkpoints:  splitList(getEnv("NOTIFY_CHECKPOINTS", "08:00,10:00,12:00,14:00,16:00,18:00")),
			Tolerance:    getDuration("NOTIFY_TOLERANCE", time.Minute),
			PollInterval: getDuration("NOTIFY_POLL_INTERVAL", time.Minute),
			Cooldown:     getDuration("NOTIFY_SOUND_COOLDOWN", 3*time.Minute),
		},
		Reminder: ReminderConfig{
			SendAt:         getEnv("REMINDER_SEND_AT", "09:00"),
			ZAPIInstanceID: os.Getenv("ZAPI_INSTANCE_ID"),
			ZAPIToken:      os.Getenv("ZAPI_TOKEN"),
			ZAPIBaseURL:    getEnv("ZAPI_BASE_URL", "https://api.z-api.io"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage {
	case StorageFile, StoragePostgres:
	default:
		return fmt.Errorf("unknown STORAGE %q", c.Storage)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_ACCESS_SECRET not set")
	}
	if c.ServiceKey == "" && c.ServiceKeyRequired() {
		return errors.New("SERVICE_KEY not set, required in prod and when Z-API credentials are configured")
	}
	if _, err := time.Parse("15:04", c.Reminder.SendAt); err != nil {
		return fmt.Errorf("invalid REMINDER_SEND_AT %q", c.Reminder.SendAt)
	}
	for _, cp := range c.Notifications.Checkpoints {
		if _, err := time.Parse("15:04", cp); err != nil {
			return fmt.Errorf("invalid checkpoint %q in NOTIFY_CHECKPOINTS", cp)
		}
	}
	return c.validateNotifications()
}

// validateNotifications keeps every checkpoint window hit by at least one
// poll and sounding at most once.
func (c *Config) validateNotifications() error {
	n := c.Notifications
	if n.Tolerance <= 0 || n.PollInterval <= 0 {
		return errors.New("NOTIFY_TOLERANCE and NOTIFY_POLL_INTERVAL must be positive")
	}
	if n.PollInterval > 2*n.Tolerance {
		return fmt.Errorf("NOTIFY_POLL_INTERVAL %s exceeds the checkpoint window of %s", n.PollInterval, 2*n.Tolerance)
	}
	if n.Cooldown <= 2*n.Tolerance {
		return fmt.Errorf("NOTIFY_SOUND_COOLDOWN %s must exceed the checkpoint window of %s", n.Cooldown, 2*n.Tolerance)
	}
	return nil
}

// ServiceKeyRequired reports whether the reminder endpoint must be guarded:
// always in prod, and anywhere a gateway could actually send messages.
func (c *Config) ServiceKeyRequired() bool {
	return c.Env == EnvProd || (c.Reminder.ZAPIInstanceID != "" && c.Reminder.ZAPIToken != "")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// redisAddr adds the default port when only a host is given.
func redisAddr(host string) string {
	if !strings.Contains(host, ":") {
		return host + ":6379"
	}
	return host
}
