package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBBOT_* and legacy environment variable
// overrides, and returns the final Config. An empty path skips the file. The
// returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known environment variables and overwrites the
// corresponding Config fields when a variable is set (i.e. not empty). The
// legacy unprefixed names are applied first so the ARBBOT_* form wins when
// both are present.
func applyEnvOverrides(cfg *Config) {
	applyLegacyEnv(cfg)

	// ── Polymarket ──
	setStr(&cfg.Polymarket.BaseURL, "ARBBOT_POLYMARKET_BASE_URL")
	setStr(&cfg.Polymarket.APIKey, "ARBBOT_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.APISecret, "ARBBOT_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.Passphrase, "ARBBOT_POLYMARKET_PASSPHRASE")
	setStr(&cfg.Polymarket.PrivateKey, "ARBBOT_POLYMARKET_PRIVATE_KEY")
	setStr(&cfg.Polymarket.WalletAddress, "ARBBOT_POLYMARKET_WALLET_ADDRESS")
	setStr(&cfg.Polymarket.EncryptedKeyPath, "ARBBOT_POLYMARKET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Polymarket.KeyPassword, "ARBBOT_POLYMARKET_KEY_PASSWORD")
	setInt(&cfg.Polymarket.ChainID, "ARBBOT_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.MarketLimit, "ARBBOT_POLYMARKET_MARKET_LIMIT")

	// ── Kalshi ──
	setStr(&cfg.Kalshi.BaseURL, "ARBBOT_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.APIKey, "ARBBOT_KALSHI_API_KEY")
	setStr(&cfg.Kalshi.APISecret, "ARBBOT_KALSHI_API_SECRET")
	setStr(&cfg.Kalshi.PrivateKeyPath, "ARBBOT_KALSHI_PRIVATE_KEY_PATH")
	setInt(&cfg.Kalshi.PageLimit, "ARBBOT_KALSHI_PAGE_LIMIT")
	setInt(&cfg.Kalshi.MaxPages, "ARBBOT_KALSHI_MAX_PAGES")

	// ── Bot ──
	setFloat64(&cfg.Bot.MinProfitPercentage, "ARBBOT_BOT_MIN_PROFIT_PERCENTAGE")
	setFloat64(&cfg.Bot.MaxPositionSize, "ARBBOT_BOT_MAX_POSITION_SIZE")
	setDuration(&cfg.Bot.CheckInterval, "ARBBOT_BOT_CHECK_INTERVAL")
	setBool(&cfg.Bot.EnableExecution, "ARBBOT_BOT_ENABLE_EXECUTION")
	setDuration(&cfg.Bot.ExecutionCooldown, "ARBBOT_BOT_EXECUTION_COOLDOWN")

	// ── Matching ──
	setStr(&cfg.Matching.Strategy, "ARBBOT_MATCHING_STRATEGY")
	setFloat64(&cfg.Matching.Threshold, "ARBBOT_MATCHING_THRESHOLD")
	setFloat64(&cfg.Matching.EmbeddingThreshold, "ARBBOT_MATCHING_EMBEDDING_THRESHOLD")
	setInt(&cfg.Matching.EmbeddingDims, "ARBBOT_MATCHING_EMBEDDING_DIMS")

	// ── Database ──
	setStr(&cfg.Database.Driver, "ARBBOT_DATABASE_DRIVER")
	setStr(&cfg.Database.DSN, "ARBBOT_DATABASE_DSN")
	setStr(&cfg.Database.Host, "ARBBOT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "ARBBOT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "ARBBOT_DATABASE_NAME")
	setStr(&cfg.Database.User, "ARBBOT_DATABASE_USER")
	setStr(&cfg.Database.Password, "ARBBOT_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "ARBBOT_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "ARBBOT_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "ARBBOT_DATABASE_POOL_MIN_CONNS")
	setDuration(&cfg.Database.ConnTimeout, "ARBBOT_DATABASE_CONNECT_TIMEOUT")
	setDuration(&cfg.Database.StatementTimeout, "ARBBOT_DATABASE_STATEMENT_TIMEOUT")
	setBool(&cfg.Database.RunMigrations, "ARBBOT_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ARBBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBBOT_REDIS_TLS_ENABLED")
	setInt64(&cfg.Redis.StreamLen, "ARBBOT_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ARBBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBBOT_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "ARBBOT_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "ARBBOT_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.LookbackDays, "ARBBOT_ARCHIVE_LOOKBACK_DAYS")

	// ── Risk ──
	setBool(&cfg.Risk.Enabled, "ARBBOT_RISK_ENABLED")
	setInt(&cfg.Risk.MaxOpenPositions, "ARBBOT_RISK_MAX_OPEN_POSITIONS")
	setFloat64(&cfg.Risk.MaxDailyLoss, "ARBBOT_RISK_MAX_DAILY_LOSS")
	setFloat64(&cfg.Risk.PositionSizePercentage, "ARBBOT_RISK_POSITION_SIZE_PERCENTAGE")
	setFloat64(&cfg.Risk.Bankroll, "ARBBOT_RISK_BANKROLL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ARBBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "ARBBOT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "ARBBOT_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBBOT_MODE")
	setStr(&cfg.LogLevel, "ARBBOT_LOG_LEVEL")
}

// applyLegacyEnv honours the variable names used by earlier deployments of
// the bot.
func applyLegacyEnv(cfg *Config) {
	setStr(&cfg.Polymarket.APIKey, "POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.PrivateKey, "POLYMARKET_PRIVATE_KEY")
	setStr(&cfg.Polymarket.WalletAddress, "POLYMARKET_WALLET_ADDRESS")
	setStr(&cfg.Kalshi.APIKey, "KALSHI_API_KEY")
	setStr(&cfg.Kalshi.APISecret, "KALSHI_API_SECRET")
	setFloat64(&cfg.Bot.MinProfitPercentage, "MIN_PROFIT_PERCENTAGE")
	setStr(&cfg.Database.DSN, "DATABASE_URL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
