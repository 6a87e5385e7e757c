package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config is the service configuration.
type Config struct {
	HTTPAddr    string    `yaml:"http_addr"`
	Store       string    `yaml:"store"`
	DatabaseURL string    `yaml:"database_url"`
	SeedFile    string    `yaml:"seed_file"`
	TenantID    string    `yaml:"tenant_id"`
	Tenants     []string  `yaml:"tenants"`
	JWTSecret   string    `yaml:"jwt_secret"`
	AuthEnabled bool      `yaml:"auth_enabled"`
	Log         LogConfig `yaml:"log"`
	Association string    `yaml:"association"`
	PaymentInfo string    `yaml:"payment_info"`

	Schedule  ScheduleConfig `yaml:"schedule"`
	Reminders ReminderConfig `yaml:"reminders"`
	Kafka     KafkaConfig    `yaml:"kafka"`
	Outbox    OutboxConfig   `yaml:"outbox"`
}

// LogConfig selects the logger preset.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// ScheduleConfig configures the daily jobs.
type ScheduleConfig struct {
	DailyAt         string `yaml:"daily_at"`
	RefreshCache    bool   `yaml:"refresh_cache"`
	Reminders       bool   `yaml:"reminders"`
	ReminderMinTier string `yaml:"reminder_min_tier"`
}

// ReminderConfig configures the WhatsApp gateway notifier.
type ReminderConfig struct {
	WebhookURL   string        `yaml:"webhook_url"`
	Token        string        `yaml:"token"`
	Template     string        `yaml:"template"`
	Cooldown     time.Duration `yaml:"cooldown"`
	DedupeWindow time.Duration `yaml:"dedupe_window"`
	Timeout      time.Duration `yaml:"timeout"`
	BatchSize    int           `yaml:"batch_size"`
	BatchPause   time.Duration `yaml:"batch_pause"`
	Concurrency  int           `yaml:"concurrency"`
}

// KafkaConfig enables the Kafka event sink when brokers are set.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// OutboxConfig tunes the outbox dispatcher.
type OutboxConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr:    ":8080",
		Store:       StoreMemory,
		TenantID:    "jpusap",
		AuthEnabled: true,
		Log:         LogConfig{Level: "info"},
		Association: "Asociación JPUSAP",
		Schedule: ScheduleConfig{
			DailyAt:         "06:00",
			RefreshCache:    true,
			ReminderMinTier: "moroso",
		},
		Reminders: ReminderConfig{
			Cooldown:     72 * time.Hour,
			DedupeWindow: 7 * 24 * time.Hour,
			Timeout:      5 * time.Second,
			BatchSize:    20,
			BatchPause:   2 * time.Second,
			Concurrency:  4,
		},
		Kafka:  KafkaConfig{Topic: "jpusap.billing.events"},
		Outbox: OutboxConfig{Interval: 5 * time.Second, MaxAttempts: 10},
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// JPUSAP_CONFIG, a .env file and the environment, in that order of precedence.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}
	cfg := Default()
	if path := os.Getenv("JPUSAP_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if len(cfg.Tenants) == 0 && cfg.TenantID != "" {
		cfg.Tenants = []string{cfg.TenantID}
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) {
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.Store = strings.ToLower(getenvDefault("STORE", cfg.Store))
	cfg.DatabaseURL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.DatabaseURL))
	cfg.SeedFile = getenvDefault("SEED_FILE", cfg.SeedFile)
	cfg.TenantID = getenvDefault("TENANT_ID", cfg.TenantID)
	if tenants := splitCSV(os.Getenv("TENANTS")); len(tenants) > 0 {
		cfg.Tenants = tenants
	}
	cfg.JWTSecret = getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", cfg.JWTSecret))
	cfg.AuthEnabled = getenvBool("AUTH_ENABLED", cfg.AuthEnabled)
	cfg.Log.Level = getenvDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Development = getenvBool("LOG_DEVELOPMENT", cfg.Log.Development)
	cfg.Association = getenvDefault("ASSOCIATION_NAME", cfg.Association)
	cfg.PaymentInfo = getenvDefault("PAYMENT_INFO", cfg.PaymentInfo)

	cfg.Schedule.DailyAt = getenvDefault("DAILY_AT", cfg.Schedule.DailyAt)
	cfg.Schedule.RefreshCache = getenvBool("SCHEDULE_REFRESH_CACHE", cfg.Schedule.RefreshCache)
	cfg.Schedule.Reminders = getenvBool("SCHEDULE_REMINDERS", cfg.Schedule.Reminders)
	cfg.Schedule.ReminderMinTier = getenvDefault("REMINDER_MIN_TIER", cfg.Schedule.ReminderMinTier)

	cfg.Reminders.WebhookURL = getenvDefault("REMINDER_WEBHOOK_URL", cfg.Reminders.WebhookURL)
	cfg.Reminders.Token = getenvDefault("REMINDER_WEBHOOK_TOKEN", cfg.Reminders.Token)
	cfg.Reminders.Template = getenvDefault("REMINDER_TEMPLATE", cfg.Reminders.Template)
	cfg.Reminders.Cooldown = getenvDuration("REMINDER_COOLDOWN", cfg.Reminders.Cooldown)
	cfg.Reminders.DedupeWindow = getenvDuration("REMINDER_DEDUP_WINDOW", cfg.Reminders.DedupeWindow)
	cfg.Reminders.Timeout = getenvDuration("REMINDER_TIMEOUT", cfg.Reminders.Timeout)
	cfg.Reminders.BatchSize = getenvIntDefault("REMINDER_BATCH_SIZE", cfg.Reminders.BatchSize)
	cfg.Reminders.BatchPause = getenvDuration("REMINDER_BATCH_PAUSE", cfg.Reminders.BatchPause)
	cfg.Reminders.Concurrency = getenvIntDefault("REMINDER_CONCURRENCY", cfg.Reminders.Concurrency)

	if brokers := splitCSV(os.Getenv("KAFKA_BROKERS")); len(brokers) > 0 {
		cfg.Kafka.Brokers = brokers
	}
	cfg.Kafka.Topic = getenvDefault("KAFKA_TOPIC", cfg.Kafka.Topic)
	cfg.Outbox.Interval = getenvDuration("OUTBOX_INTERVAL", cfg.Outbox.Interval)
	cfg.Outbox.MaxAttempts = getenvIntDefault("OUTBOX_MAX_ATTEMPTS", cfg.Outbox.MaxAttempts)
}

// Validate checks settings that have no usable default.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL required for postgres store")
		}
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}
	if c.AuthEnabled && c.JWTSecret == "" {
		return errors.New("config: AUTH_JWT_SECRET required when auth is enabled")
	}
	if c.TenantID == "" {
		return errors.New("config: TENANT_ID required")
	}
	if _, err := time.Parse("15:04", c.Schedule.DailyAt); err != nil {
		return fmt.Errorf("config: daily_at must be HH:MM: %w", err)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("config: kafka topic required")
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
