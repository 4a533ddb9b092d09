package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Telegram
	BotToken    string
	BotUsername string
	GroupID     int64
	AdminIDs    map[int64]bool

	// Database
	DBDriver string
	DBDSN    string

	// Payment
	WalletAddress   string
	PaymentNetwork  string
	PaymentAsset    string
	PaymentDecimals int32

	// Block explorers
	TronscanBaseURL string
	TonAPIBaseURL   string
	TonAPIKey       string
	ExplorerRPS     float64
	ExplorerTimeout time.Duration

	// Sessions
	SessionBackend string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	SessionTTL     time.Duration

	// Webhook
	WebhookURL    string
	WebhookSecret string
	HTTPPort      int

	// Retention
	MessageRetention  time.Duration
	RetentionSchedule string

	// Logging
	LogLevel string
	LogFile  string
}

func Load() *Config {
	cfg := &Config{
		// Telegram
		BotToken:    getEnv("BOT_TOKEN", ""),
		BotUsername: getEnv("BOT_USERNAME", "@tiergate_bot"),
		GroupID:     getEnvInt64("GROUP_ID", 0),
		AdminIDs:    parseIDs(getEnv("ADMIN_IDS", "")),

		// Database
		DBDriver: getEnv("DB_DRIVER", "sqlite3"),
		DBDSN:    getEnv("DB_DSN", "./tiergate.db"),

		// Payment
		WalletAddress:   getEnv("WALLET_ADDRESS", ""),
		PaymentNetwork:  strings.ToLower(getEnv("PAYMENT_NETWORK", "tron")),
		PaymentAsset:    getEnv("PAYMENT_ASSET", "USDT"),
		PaymentDecimals: int32(getEnvInt("PAYMENT_DECIMALS", 6)),

		// Block explorers
		TronscanBaseURL: strings.TrimSuffix(getEnv("TRONSCAN_BASE_URL", "https://apilist.tronscan.org"), "/"),
		TonAPIBaseURL:   strings.TrimSuffix(getEnv("TONAPI_BASE_URL", "https://tonapi.io/v2"), "/"),
		TonAPIKey:       getEnv("TONAPI_API_KEY", ""),
		ExplorerRPS:     getEnvFloat("EXPLORER_RPS", 4),
		ExplorerTimeout: getEnvDuration("EXPLORER_TIMEOUT", 15*time.Second),

		// Sessions
		SessionBackend: strings.ToLower(getEnv("SESSION_BACKEND", "memory")),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		SessionTTL:     getEnvDuration("SESSION_TTL", 24*time.Hour),

		// Webhook
		WebhookURL:    getEnv("WEBHOOK_URL", ""),
		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
		HTTPPort:      getEnvInt("HTTP_PORT", 8080),

		// Retention (disabled unless set)
		MessageRetention:  getEnvDuration("MESSAGE_RETENTION", 0),
		RetentionSchedule: getEnv("RETENTION_SCHEDULE", "@hourly"),

		// Logging
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFile:  getEnv("LOG_FILE", ""),
	}

	return cfg
}

// Validate reports missing or inconsistent settings.
func (c *Config) Validate() error {
	var errs []error

	if c.BotToken == "" {
		errs = append(errs, errors.New("BOT_TOKEN is required"))
	}
	if c.GroupID == 0 {
		errs = append(errs, errors.New("GROUP_ID is required"))
	}
	if c.WalletAddress == "" {
		errs = append(errs, errors.New("WALLET_ADDRESS is required"))
	}

	switch c.DBDriver {
	case "sqlite3", "pgx":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver))
	}

	switch c.PaymentNetwork {
	case "tron", "ton":
	default:
		errs = append(errs, fmt.Errorf("unsupported PAYMENT_NETWORK %q", c.PaymentNetwork))
	}

	switch c.SessionBackend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unsupported SESSION_BACKEND %q", c.SessionBackend))
	}

	if c.PaymentDecimals < 0 {
		errs = append(errs, errors.New("PAYMENT_DECIMALS must not be negative"))
	}

	// The quota window looks back one hour.
	if c.MessageRetention > 0 && c.MessageRetention < time.Hour {
		errs = append(errs, errors.New("MESSAGE_RETENTION must be at least 1h"))
	}

	return errors.Join(errs...)
}

// IsAdmin reports whether userID may use the admin actions.
func (c *Config) IsAdmin(userID int64) bool {
	return c.AdminIDs[userID]
}

func parseIDs(raw string) map[int64]bool {
	ids := make(map[int64]bool)
	for _, idStr := range strings.Split(raw, ",") {
		idStr = strings.TrimSpace(idStr)
		if id, err := strconv.ParseInt(idStr, 10, 64); err == nil {
			ids[id] = true
		}
	}
	return ids
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
