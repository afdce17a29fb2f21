package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/arbitrage"
	s3blob "github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/blob/s3"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/cache/redis"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/config"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/crypto"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/matching"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/notify"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/platform/kalshi"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/platform/polymarket"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/risk"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/server/handler"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/store/memory"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	Opportunities domain.OpportunityStore
	Legs          domain.LegStore
	Audit         domain.AuditStore

	// Redis-backed; nil when redis.addr is empty.
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Nil unless archive.enabled.
	Archiver domain.Archiver

	Notifier *notify.Notifier

	// Venues
	Polymarket *polymarket.Venue
	Kalshi     *kalshi.Venue

	Matcher    matching.Strategy
	Calculator *arbitrage.Calculator
	Governor   *risk.Governor

	// HealthChecks probe the wired infrastructure for GET /api/health.
	HealthChecks map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources. An unreachable store is fatal.
// Redis and the S3 archive are off unless configured; once configured, a
// failure to reach them is fatal too, since the cycle lock would otherwise be
// silently lost. Notification senders degrade with a warning.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{HealthChecks: make(map[string]handler.HealthCheck)}

	// --- Stores ---
	switch strings.ToLower(cfg.Database.Driver) {
	case "memory":
		logger.WarnContext(ctx, "wire: using in-memory store, nothing will survive a restart")
		deps.Opportunities = memory.NewOpportunityStore()
		deps.Legs = memory.NewLegStore()
		deps.Audit = memory.NewAuditStore()
	default:
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:            cfg.Database.DSN,
			Host:           cfg.Database.Host,
			Port:           cfg.Database.Port,
			Database:       cfg.Database.Database,
			User:           cfg.Database.User,
			Password:       cfg.Database.Password,
			SSLMode:        cfg.Database.SSLMode,
			MaxConns:       cfg.Database.PoolMaxConns,
			MinConns:       cfg.Database.PoolMinConns,
			ConnectTimeout: cfg.Database.ConnTimeout.Duration,

			StatementTimeout: cfg.Database.StatementTimeout.Duration,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		deps.Opportunities = postgres.NewOpportunityStore(pool)
		deps.Legs = postgres.NewLegStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.HealthChecks["postgres"] = pgClient.Ping
	}

	// --- Redis ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBusWithMaxLen(redisClient, cfg.Redis.StreamLen)
		deps.HealthChecks["redis"] = redisClient.Ping
	} else {
		logger.InfoContext(ctx, "wire: redis disabled, running without lock, bus, rate limiter or live feed")
	}

	// --- S3 archive ---
	if cfg.Archive.Enabled {
		archiver, health, err := wireArchive(ctx, cfg, deps)
		if err != nil {
			return fail(err)
		}
		deps.Archiver = archiver
		deps.HealthChecks["s3"] = health
	}

	// --- Notifications ---
	deps.Notifier = wireNotifier(ctx, cfg, logger)

	// --- Venues ---
	pmVenue, err := wirePolymarket(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	deps.Polymarket = pmVenue

	kVenue, err := wireKalshi(cfg, logger)
	if err != nil {
		return fail(err)
	}
	deps.Kalshi = kVenue

	// --- Detection and risk ---
	registry := matching.NewRegistry(matching.Options{
		Threshold:          cfg.Matching.Threshold,
		EmbeddingThreshold: cfg.Matching.EmbeddingThreshold,
		EmbeddingDims:      cfg.Matching.EmbeddingDims,
		Links:              cfg.Matching.Links,
	})
	matcher, err := registry.Get(strings.ToLower(cfg.Matching.Strategy))
	if err != nil {
		return fail(fmt.Errorf("wire: %w (available: %s)", err, strings.Join(registry.List(), ", ")))
	}
	deps.Matcher = matcher

	deps.Calculator = arbitrage.NewCalculator(
		cfg.MinProfitFraction(),
		arbitrage.FlatSizer{Amount: cfg.MaxPositionSize()},
	)

	deps.Governor = risk.NewGovernor(risk.Config{
		Enabled:          cfg.Risk.Enabled,
		MaxOpenPositions: cfg.Risk.MaxOpenPositions,
		MaxDailyLoss:     decimal.NewFromFloat(cfg.Risk.MaxDailyLoss),
		PositionSizePct:  decimal.NewFromFloat(cfg.Risk.PositionSizePercentage),
		Bankroll:         decimal.NewFromFloat(cfg.Risk.Bankroll),
	}, deps.Legs, logger)
	logger.InfoContext(ctx, "risk governance", slog.Bool("enabled", deps.Governor.Enabled()))

	return deps, cleanup, nil
}

func wireArchive(ctx context.Context, cfg *config.Config, deps *Dependencies) (domain.Archiver, handler.HealthCheck, error) {
	s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		UseSSL:         cfg.S3.UseSSL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: s3: %w", err)
	}

	archiver := s3blob.NewArchiver(
		s3blob.NewWriter(s3Client),
		s3blob.NewReader(s3Client),
		deps.Opportunities,
		deps.Legs,
		deps.Audit,
	)
	return archiver, s3Client.Health, nil
}

func wireNotifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		tg, err := notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		if err != nil {
			logger.WarnContext(ctx, "wire: telegram disabled",
				slog.String("error", err.Error()),
			)
		} else {
			senders = append(senders, tg)
		}
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	return notify.NewNotifier(senders, cfg.Notify.Events, logger)
}

func wirePolymarket(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*polymarket.Venue, error) {
	pm := cfg.Polymarket
	var opts []polymarket.ClientOption

	key, err := crypto.LoadWalletKey(crypto.WalletKeySource{
		RawKey:        pm.PrivateKey,
		EncryptedPath: pm.EncryptedKeyPath,
		Password:      pm.KeyPassword,
	})
	switch {
	case errors.Is(err, crypto.ErrNoWalletKey):
		logger.InfoContext(ctx, "wire: no polymarket wallet key, orders will be sent unsigned")
	case err != nil:
		return nil, fmt.Errorf("wire: polymarket wallet key: %w", err)
	default:
		signer, err := crypto.NewSigner(key, pm.ChainID)
		if err != nil {
			return nil, fmt.Errorf("wire: polymarket signer: %w", err)
		}
		if pm.WalletAddress != "" && !strings.EqualFold(pm.WalletAddress, signer.Address().Hex()) {
			logger.WarnContext(ctx, "wire: polymarket wallet_address does not match the signing key",
				slog.String("configured", pm.WalletAddress),
				slog.String("derived", signer.Address().Hex()),
			)
		}
		opts = append(opts, polymarket.WithSigner(signer))
	}

	if pm.APISecret != "" {
		opts = append(opts, polymarket.WithHMAC(&crypto.HMACAuth{
			Key:        pm.APIKey,
			Secret:     pm.APISecret,
			Passphrase: pm.Passphrase,
		}))
	}

	client := polymarket.NewClient(pm.BaseURL, pm.APIKey, opts...)
	return polymarket.NewVenue(client, pm.MarketLimit, logger), nil
}

func wireKalshi(cfg *config.Config, logger *slog.Logger) (*kalshi.Venue, error) {
	k := cfg.Kalshi
	client := kalshi.NewClient(k.BaseURL, k.APIKey)
	if k.PrivateKeyPath != "" {
		pemBytes, err := os.ReadFile(k.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("wire: kalshi private key: %w", err)
		}
		if err := client.SetRSAPrivateKey(pemBytes); err != nil {
			return nil, fmt.Errorf("wire: kalshi private key: %w", err)
		}
	}
	return kalshi.NewVenue(client, k.PageLimit, k.MaxPages, logger), nil
}
