// Package config defines the top-level configuration for the arbitrage bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBBOT_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Bot        BotConfig        `toml:"bot"`
	Matching   MatchingConfig   `toml:"matching"`
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Archive    ArchiveConfig    `toml:"archive"`
	Risk       RiskConfig       `toml:"risk"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds Polymarket API credentials and wallet material.
type PolymarketConfig struct {
	BaseURL          string `toml:"base_url"`
	APIKey           string `toml:"api_key"`
	APISecret        string `toml:"api_secret"`
	Passphrase       string `toml:"passphrase"`
	PrivateKey       string `toml:"private_key"`
	WalletAddress    string `toml:"wallet_address"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	ChainID          int    `toml:"chain_id"`
	MarketLimit      int    `toml:"market_limit"`
}

// KalshiConfig holds Kalshi exchange API credentials.
type KalshiConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	APISecret      string `toml:"api_secret"`
	PrivateKeyPath string `toml:"private_key_path"`
	PageLimit      int    `toml:"page_limit"`
	MaxPages       int    `toml:"max_pages"`
}

// BotConfig holds the detection loop parameters.
type BotConfig struct {
	// MinProfitPercentage is a percentage: 2.0 means 2%.
	MinProfitPercentage float64  `toml:"min_profit_percentage"`
	MaxPositionSize     float64  `toml:"max_position_size"`
	CheckInterval       duration `toml:"check_interval"`
	EnableExecution     bool     `toml:"enable_execution"`
	ExecutionCooldown   duration `toml:"execution_cooldown"`
}

// MatchingConfig selects and tunes the market matching strategy.
type MatchingConfig struct {
	Strategy           string            `toml:"strategy"`
	Threshold          float64           `toml:"threshold"`
	EmbeddingThreshold float64           `toml:"embedding_threshold"`
	EmbeddingDims      int               `toml:"embedding_dims"`
	Links              map[string]string `toml:"links"`
}

// DatabaseConfig holds the store driver and PostgreSQL connection
// parameters.
type DatabaseConfig struct {
	Driver        string   `toml:"driver"`
	DSN           string   `toml:"dsn"`
	Host          string   `toml:"host"`
	Port          int      `toml:"port"`
	Database      string   `toml:"database"`
	User          string   `toml:"user"`
	Password      string   `toml:"password"`
	SSLMode       string   `toml:"ssl_mode"`
	PoolMaxConns  int      `toml:"pool_max_conns"`
	PoolMinConns  int      `toml:"pool_min_conns"`
	ConnTimeout   duration `toml:"connect_timeout"`
	RunMigrations bool     `toml:"run_migrations"`

	// StatementTimeout is sent to the server as statement_timeout; zero
	// leaves the server default.
	StatementTimeout duration `toml:"statement_timeout"`
}

// RedisConfig holds Redis connection parameters. An empty Addr disables
// every Redis-backed component.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	StreamLen  int64  `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the daily JSONL export to S3.
type ArchiveConfig struct {
	Enabled      bool     `toml:"enabled"`
	Interval     duration `toml:"interval"`
	LookbackDays int      `toml:"lookback_days"`
}

// RiskConfig holds the pre-trade risk rules. Each limit is skipped when 0.
type RiskConfig struct {
	Enabled                bool    `toml:"enabled"`
	MaxOpenPositions       int     `toml:"max_open_positions"`
	MaxDailyLoss           float64 `toml:"max_daily_loss"`
	PositionSizePercentage float64 `toml:"position_size_percentage"`
	Bankroll               float64 `toml:"bankroll"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			BaseURL:     "https://clob.polymarket.com",
			ChainID:     137,
			MarketLimit: 100,
		},
		Kalshi: KalshiConfig{
			BaseURL:   "https://api.elections.kalshi.com",
			PageLimit: 200,
			MaxPages:  10,
		},
		Bot: BotConfig{
			MinProfitPercentage: 2.0,
			MaxPositionSize:     100,
			CheckInterval:       duration{60 * time.Second},
			EnableExecution:     false,
		},
		Matching: MatchingConfig{
			Strategy:           "token",
			Threshold:          0.7,
			EmbeddingThreshold: 0.8,
			EmbeddingDims:      256,
			Links:              map[string]string{},
		},
		Database: DatabaseConfig{
			Driver:        "postgres",
			Host:          "localhost",
			Port:          5432,
			Database:      "arbbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			ConnTimeout:   duration{10 * time.Second},

			StatementTimeout: duration{30 * time.Second},
			RunMigrations:    true,
		},
		Redis: RedisConfig{
			PoolSize:   20,
			MaxRetries: 3,
			StreamLen:  10000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbbot-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:      false,
			Interval:     duration{6 * time.Hour},
			LookbackDays: 1,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity_detected", "execution_completed", "execution_failed", "unreconciled_exposure"},
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// MinProfitFraction converts bot.min_profit_percentage to the fraction the
// calculator compares against (2.0 becomes 0.02).
func (c *Config) MinProfitFraction() decimal.Decimal {
	return decimal.NewFromFloat(c.Bot.MinProfitPercentage).Div(decimal.NewFromInt(100))
}

// MaxPositionSize returns bot.max_position_size as a decimal.
func (c *Config) MaxPositionSize() decimal.Decimal {
	return decimal.NewFromFloat(c.Bot.MaxPositionSize)
}

// SetMode switches between monitor and execute, forcing
// bot.enable_execution to match.
func (c *Config) SetMode(mode string) {
	c.Mode = strings.ToLower(strings.TrimSpace(mode))
	switch c.Mode {
	case "execute":
		c.Bot.EnableExecution = true
	case "monitor":
		c.Bot.EnableExecution = false
	}
}

// ExecutionEnabled reports whether detected opportunities are traded. The
// legacy bot.enable_execution switch also turns it on.
func (c *Config) ExecutionEnabled() bool {
	return strings.EqualFold(c.Mode, "execute") || c.Bot.EnableExecution
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"execute": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validStrategies = map[string]bool{
	"token":     true,
	"embedding": true,
	"canonical": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, execute)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Polymarket
	if c.Polymarket.BaseURL == "" {
		errs = append(errs, "polymarket: base_url must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.EncryptedKeyPath != "" && c.Polymarket.KeyPassword == "" {
		errs = append(errs, "polymarket: key_password is required when encrypted_key_path is set")
	}
	if c.Polymarket.APISecret != "" && (c.Polymarket.APIKey == "" || c.Polymarket.Passphrase == "") {
		errs = append(errs, "polymarket: api_key and passphrase must be set together with api_secret")
	}

	// Kalshi
	if c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}
	if c.Kalshi.PageLimit < 0 || c.Kalshi.MaxPages < 0 {
		errs = append(errs, "kalshi: page_limit and max_pages must be >= 0")
	}

	// Bot
	if c.Bot.MinProfitPercentage < 0 {
		errs = append(errs, "bot: min_profit_percentage must be >= 0")
	}
	if c.Bot.MaxPositionSize <= 0 {
		errs = append(errs, "bot: max_position_size must be > 0")
	}
	switch d := c.Bot.CheckInterval.Duration; {
	case d <= 0:
		errs = append(errs, "bot: check_interval must be > 0")
	case d < time.Second || d%time.Second != 0:
		errs = append(errs, fmt.Sprintf("bot: check_interval must be a whole number of seconds, got %s", d))
	}
	if c.Bot.ExecutionCooldown.Duration < 0 {
		errs = append(errs, "bot: execution_cooldown must be >= 0")
	}
	if c.ExecutionEnabled() {
		if c.Polymarket.APIKey == "" {
			errs = append(errs, "polymarket: api_key is required when execution is enabled")
		}
		if c.Kalshi.APIKey == "" {
			errs = append(errs, "kalshi: api_key is required when execution is enabled")
		}
	}

	// Matching
	if !validStrategies[strings.ToLower(c.Matching.Strategy)] {
		errs = append(errs, fmt.Sprintf("matching: unknown strategy %q (valid: token, embedding, canonical)", c.Matching.Strategy))
	}
	if c.Matching.Threshold < 0 || c.Matching.Threshold > 1 {
		errs = append(errs, "matching: threshold must be within [0, 1]")
	}
	if c.Matching.EmbeddingThreshold < 0 || c.Matching.EmbeddingThreshold > 1 {
		errs = append(errs, "matching: embedding_threshold must be within [0, 1]")
	}
	if strings.EqualFold(c.Matching.Strategy, "canonical") && len(c.Matching.Links) == 0 {
		errs = append(errs, "matching: links must not be empty for the canonical strategy")
	}

	// Database
	switch strings.ToLower(c.Database.Driver) {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			if c.Database.Host == "" {
				errs = append(errs, "database: host must not be empty (or set database.dsn)")
			}
			if c.Database.Port <= 0 || c.Database.Port > 65535 {
				errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
			}
			if c.Database.Database == "" {
				errs = append(errs, "database: database must not be empty")
			}
		}
		if c.Database.PoolMaxConns < 1 {
			errs = append(errs, "database: pool_max_conns must be >= 1")
		}
		if c.Database.PoolMinConns < 0 {
			errs = append(errs, "database: pool_min_conns must be >= 0")
		}
		if c.Database.StatementTimeout.Duration < 0 {
			errs = append(errs, "database: statement_timeout must be >= 0")
		}
		if c.Database.PoolMinConns > c.Database.PoolMaxConns {
			errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("database: unknown driver %q (valid: postgres, memory)", c.Database.Driver))
	}

	// Redis
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 and archive
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
		if c.Archive.LookbackDays < 1 {
			errs = append(errs, "archive: lookback_days must be >= 1")
		}
	}

	// Risk
	if c.Risk.Enabled {
		if c.Risk.MaxOpenPositions < 0 || c.Risk.MaxDailyLoss < 0 {
			errs = append(errs, "risk: limits must be >= 0")
		}
		if c.Risk.PositionSizePercentage < 0 || c.Risk.PositionSizePercentage > 100 {
			errs = append(errs, "risk: position_size_percentage must be within [0, 100]")
		}
		if c.Risk.PositionSizePercentage > 0 && c.Risk.Bankroll <= 0 {
			errs = append(errs, "risk: bankroll must be > 0 when position_size_percentage is set")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be > 0 when rate_limit is set")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
