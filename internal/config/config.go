package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DatabaseURL  string
	HTTPPort     string
	LogLevel     string
	LogFormat    string
	BaseCurrency string
	CORSOrigins  []string
	AdminAPIKey  string

	QuoteAPIURL         string
	QuoteAPIKey         string
	QuoteAPIHost        string
	QuoteRegion         string
	QuoteTimeout        time.Duration
	QuoteRetryMax       int
	QuoteRetryDelay     time.Duration
	QuoteBatchSize      int
	QuoteRateLimit      float64
	QuoteStaleThreshold time.Duration
	QuoteWorkerInterval time.Duration

	BinanceEnabled bool
	BinanceAPIKey  string
	BinanceSecret  string

	CoinGeckoEnabled  bool
	CoinGeckoURL      string
	CoinGeckoCurrency string

	SnapshotSchedule string

	MinStockQuantity decimal.Decimal
	MaxPositionValue decimal.Decimal

	GoogleSheetsID        string
	GoogleCredentialsJSON string
}

// Load reads configuration from environment variables with sensible defaults.
// Variables from a .env file in the working directory are applied first; real
// environment variables take precedence.
func Load() Config {
	loadDotEnv()

	return Config{
		DatabaseURL:  envOrDefaultWarn("DATABASE_URL", ""),
		HTTPPort:     envOrDefault("HTTP_PORT", "8080"),
		LogLevel:     envOrDefault("LOG_LEVEL", "info"),
		LogFormat:    envOrDefault("LOG_FORMAT", "text"),
		BaseCurrency: strings.ToUpper(envOrDefault("BASE_CURRENCY", "EUR")),
		CORSOrigins:  envOrDefaultList("CORS_ORIGINS", []string{"*"}),
		AdminAPIKey:  envOrDefault("ADMIN_API_KEY", ""),

		QuoteAPIURL:         envOrDefault("QUOTE_API_URL", ""),
		QuoteAPIKey:         envOrDefault("QUOTE_API_KEY", ""),
		QuoteAPIHost:        envOrDefault("QUOTE_API_HOST", "apidojo-yahoo-finance-v1.p.rapidapi.com"),
		QuoteRegion:         envOrDefault("QUOTE_REGION", "US"),
		QuoteTimeout:        envOrDefaultDuration("QUOTE_TIMEOUT", 30*time.Second),
		QuoteRetryMax:       envOrDefaultInt("QUOTE_RETRY_MAX", 3),
		QuoteRetryDelay:     envOrDefaultDuration("QUOTE_RETRY_DELAY", 2*time.Second),
		QuoteBatchSize:      envOrDefaultInt("QUOTE_BATCH_SIZE", 50),
		QuoteRateLimit:      envOrDefaultFloat("QUOTE_RATE_LIMIT", 2),
		QuoteStaleThreshold: envOrDefaultDuration("QUOTE_STALE_THRESHOLD", 4*time.Hour),
		QuoteWorkerInterval: envOrDefaultDuration("QUOTE_WORKER_INTERVAL", 1*time.Hour),

		BinanceEnabled: envOrDefaultBool("BINANCE_ENABLED", false),
		BinanceAPIKey:  envOrDefault("BINANCE_API_KEY", ""),
		BinanceSecret:  envOrDefault("BINANCE_SECRET", ""),

		CoinGeckoEnabled:  envOrDefaultBool("COINGECKO_ENABLED", false),
		CoinGeckoURL:      envOrDefault("COINGECKO_URL", "https://api.coingecko.com/api/v3"),
		CoinGeckoCurrency: strings.ToUpper(envOrDefault("COINGECKO_CURRENCY", "USD")),

		SnapshotSchedule: envOrDefault("SNAPSHOT_SCHEDULE", "5 0 * * *"),

		MinStockQuantity: envOrDefaultDecimal("MIN_STOCK_QUANTITY", decimal.RequireFromString("0.001")),
		MaxPositionValue: envOrDefaultDecimal("MAX_POSITION_VALUE", decimal.NewFromInt(1_000_000)),

		GoogleSheetsID:        envOrDefault("GOOGLE_SHEETS_ID", ""),
		GoogleCredentialsJSON: envOrDefault("GOOGLE_CREDENTIALS_JSON", ""),
	}
}

// SheetsEnabled reports whether Google Sheets export is configured.
func (c Config) SheetsEnabled() bool {
	return c.GoogleSheetsID != "" && c.GoogleCredentialsJSON != ""
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultWarn(key, defaultVal string) string {
	v := envOrDefault(key, defaultVal)
	if v == "" {
		slog.Warn("required env var not set", "key", key)
	}
	return v
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			slog.Warn("invalid number env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return f
	}
	return defaultVal
}

func envOrDefaultBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("invalid boolean env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return b
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}

func envOrDefaultDecimal(key string, defaultVal decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil || d.IsNegative() {
			slog.Warn("invalid decimal env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}

func envOrDefaultList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
