package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Ticket       TicketConfig
	Notification NotificationConfig
	Push         PushConfig
	SMTP         SMTPConfig
	NATS         NATSConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN runs the service on
// in-memory storage.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// TicketConfig holds lifecycle rules.
type TicketConfig struct {
	ReopenWindowHours int
}

// NotificationConfig tunes the fan-out dispatcher.
type NotificationConfig struct {
	EmailFrom        string
	ChannelTimeoutMS int
	MaxConcurrency   int
	Workers          int
	QueueSize        int
	LedgerTTLHours   int
	PresenceTTLSec   int
}

// PushConfig points at the push provider.
type PushConfig struct {
	Endpoint  string
	ServerKey string
}

// SMTPConfig points at the mail relay.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
}

// NATSConfig enables the event bridge when URL is set.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "complaint-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Ticket: TicketConfig{
			ReopenWindowHours: getEnvAsInt("TICKET_REOPEN_WINDOW_HOURS", 168),
		},
		Notification: NotificationConfig{
			EmailFrom:        getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			ChannelTimeoutMS: getEnvAsInt("NOTIFY_CHANNEL_TIMEOUT_MS", 5000),
			MaxConcurrency:   getEnvAsInt("NOTIFY_MAX_CONCURRENCY", 16),
			Workers:          getEnvAsInt("NOTIFY_WORKERS", 4),
			QueueSize:        getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
			LedgerTTLHours:   getEnvAsInt("NOTIFY_LEDGER_TTL_HOURS", 72),
			PresenceTTLSec:   getEnvAsInt("NOTIFY_PRESENCE_TTL_SECONDS", 90),
		},
		Push: PushConfig{
			Endpoint:  os.Getenv("PUSH_ENDPOINT"),
			ServerKey: os.Getenv("PUSH_SERVER_KEY"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
		},
		NATS: NATSConfig{
			URL:           os.Getenv("NATS_URL"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "complaints"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the bearer token lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// ReopenWindow returns how long after resolution a resident may reopen.
func (t TicketConfig) ReopenWindow() time.Duration {
	return time.Duration(t.ReopenWindowHours) * time.Hour
}

// ChannelTimeout bounds a single channel call.
func (n NotificationConfig) ChannelTimeout() time.Duration {
	if n.ChannelTimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(n.ChannelTimeoutMS) * time.Millisecond
}

// LedgerTTL is how long delivery records are kept.
func (n NotificationConfig) LedgerTTL() time.Duration {
	return time.Duration(n.LedgerTTLHours) * time.Hour
}

// PresenceTTL is how long one session heartbeat keeps a user online.
func (n NotificationConfig) PresenceTTL() time.Duration {
	if n.PresenceTTLSec <= 0 {
		return 90 * time.Second
	}
	return time.Duration(n.PresenceTTLSec) * time.Second
}

// Enabled reports whether push delivery is configured.
func (p PushConfig) Enabled() bool {
	return p.Endpoint != ""
}

// Enabled reports whether email delivery is configured.
func (s SMTPConfig) Enabled() bool {
	return s.Host != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
