package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	Server     ServerConfig
	Session    SessionConfig
	LLM        LLMConfig
	Webhook    WebhookConfig
	Slack      SlackConfig
	Telegram   TelegramConfig
	JWT        JWTConfig
	Dispatcher DispatcherConfig
	Notify     NotifyConfig
	SelfHosted bool
}

// DatabaseConfig holds PostgreSQL connection settings for the directory and task store.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings for sessions, dedup and notifications.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// SessionConfig holds conversation state lifetimes.
type SessionConfig struct {
	PendingTTL time.Duration
	DedupTTL   time.Duration
	Timezone   string
}

// LLMConfig holds the Gemini model settings used for classification, extraction
// and the continuity guard.
type LLMConfig struct {
	APIKey  string //nolint:gosec // G117: API key config
	Model   string
	Timeout time.Duration
}

// WebhookConfig holds the generic JSON webhook settings.
type WebhookConfig struct {
	Token       string //nolint:gosec // G117: webhook bearer token
	CallbackURL string
	Timeout     time.Duration
}

// SlackConfig holds Slack integration settings.
type SlackConfig struct {
	BotToken      string
	SigningSecret string
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	BotToken string
}

// JWTConfig holds the admin API token settings.
type JWTConfig struct {
	Secret string //nolint:gosec // G117: JWT signing secret config
}

// DispatcherConfig bounds concurrent message processing for async transports.
type DispatcherConfig struct {
	MaxConcurrent int
}

// NotifyConfig selects where assignee/assigner notifications are delivered.
type NotifyConfig struct {
	Platform string
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production,
// sensitive values (JWT secret, DB password, LLM key) must be set explicitly.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("TASKBOT_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("TASKBOT_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("TASKBOT_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("TASKBOT_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("TASKBOT_SERVER_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	pendingTTL, err := getEnvDuration("TASKBOT_PENDING_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dedupTTL, err := getEnvDuration("TASKBOT_DEDUP_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	llmTimeout, err := getEnvDuration("TASKBOT_LLM_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	webhookTimeout, err := getEnvDuration("TASKBOT_WEBHOOK_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maxConcurrent, err := getEnvInt("TASKBOT_DISPATCH_MAX_CONCURRENT", 32)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	selfHosted, err := getEnvBool("TASKBOT_SELF_HOSTED", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	corsOrigins := getEnvList("TASKBOT_CORS_ORIGINS", []string{"http://localhost:5173"})

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("TASKBOT_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("TASKBOT_DB_USER", "taskbot"),
			Password: getEnv("TASKBOT_DB_PASSWORD", ""),
			DBName:   getEnv("TASKBOT_DB_NAME", "taskbot_dev"),
			SSLMode:  getEnv("TASKBOT_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("TASKBOT_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("TASKBOT_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Server: ServerConfig{
			Addr:         getEnv("TASKBOT_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  corsOrigins,
		},
		Session: SessionConfig{
			PendingTTL: pendingTTL,
			DedupTTL:   dedupTTL,
			Timezone:   getEnv("TASKBOT_TIMEZONE", "Asia/Kolkata"),
		},
		LLM: LLMConfig{
			APIKey:  getEnv("TASKBOT_LLM_API_KEY", ""),
			Model:   getEnv("TASKBOT_LLM_MODEL", "gemini-2.5-flash"),
			Timeout: llmTimeout,
		},
		Webhook: WebhookConfig{
			Token:       getEnv("TASKBOT_WEBHOOK_TOKEN", ""),
			CallbackURL: getEnv("TASKBOT_WEBHOOK_CALLBACK_URL", ""),
			Timeout:     webhookTimeout,
		},
		Slack: SlackConfig{
			BotToken:      getEnv("TASKBOT_SLACK_BOT_TOKEN", ""),
			SigningSecret: getEnv("TASKBOT_SLACK_SIGNING_SECRET", ""),
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("TASKBOT_TELEGRAM_BOT_TOKEN", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("TASKBOT_JWT_SECRET", ""),
		},
		Dispatcher: DispatcherConfig{
			MaxConcurrent: maxConcurrent,
		},
		Notify: NotifyConfig{
			Platform: getEnv("TASKBOT_NOTIFY_PLATFORM", "webhook"),
		},
		SelfHosted: selfHosted,
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	// JWT secret is required (no insecure default).
	if c.JWT.Secret == "" {
		return errors.New("TASKBOT_JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("TASKBOT_JWT_SECRET must be at least 32 characters")
	}

	if c.LLM.APIKey == "" {
		return errors.New("TASKBOT_LLM_API_KEY is required")
	}
	if c.LLM.Model == "" {
		return errors.New("TASKBOT_LLM_MODEL must not be empty")
	}

	// DB SSL mode warning for non-self-hosted deployments.
	if c.Database.SSLMode == "disable" && !c.SelfHosted {
		log.Warn().Msg("TASKBOT_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	// Bounds checks.
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("TASKBOT_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("TASKBOT_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("TASKBOT_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("TASKBOT_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Session.PendingTTL <= 0 {
		return fmt.Errorf("TASKBOT_PENDING_TTL must be positive, got %s", c.Session.PendingTTL)
	}
	if c.Session.DedupTTL <= 0 {
		return fmt.Errorf("TASKBOT_DEDUP_TTL must be positive, got %s", c.Session.DedupTTL)
	}
	if _, err := time.LoadLocation(c.Session.Timezone); err != nil {
		return fmt.Errorf("TASKBOT_TIMEZONE %q: %w", c.Session.Timezone, err)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("TASKBOT_LLM_TIMEOUT must be positive, got %s", c.LLM.Timeout)
	}
	if c.Webhook.Timeout <= 0 {
		return fmt.Errorf("TASKBOT_WEBHOOK_TIMEOUT must be positive, got %s", c.Webhook.Timeout)
	}
	if c.Dispatcher.MaxConcurrent < 1 {
		return fmt.Errorf("TASKBOT_DISPATCH_MAX_CONCURRENT must be >= 1, got %d", c.Dispatcher.MaxConcurrent)
	}
	switch c.Notify.Platform {
	case "webhook", "slack", "telegram", "none":
	default:
		return fmt.Errorf("TASKBOT_NOTIFY_PLATFORM must be one of webhook, slack, telegram, none; got %q", c.Notify.Platform)
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Location returns the fixed zone used for history timestamps.
// validate guarantees the zone name loads.
func (c *SessionConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
