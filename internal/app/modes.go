package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/engine"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/executor"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/notify"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/pipeline"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/server"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/server/handler"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/server/ws"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/service"
)

// MonitorMode detects and records opportunities without placing orders.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	return a.runBot(ctx, deps, false)
}

// ExecuteMode detects opportunities and trades each one buy leg first.
func (a *App) ExecuteMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting execute mode")
	return a.runBot(ctx, deps, true)
}

// runBot starts the notification queue, the engine, the HTTP server and the
// archive loop under one errgroup. The first goroutine to fail cancels the
// rest.
func (a *App) runBot(ctx context.Context, deps *Dependencies, execute bool) error {
	g, ctx := errgroup.WithContext(ctx)

	// Notifications leave the cycle path through the queue.
	alerts := notify.NewQueue(deps.Notifier, 0, 0, a.logger)

	oppSvc := service.NewOpportunityService(
		deps.Opportunities, deps.Legs, deps.SignalBus, deps.Audit, alerts, a.logger,
	)

	engCfg := engine.Config{
		Polymarket:       deps.Polymarket,
		Kalshi:           deps.Kalshi,
		Matcher:          deps.Matcher,
		Calculator:       deps.Calculator,
		Recorder:         oppSvc,
		ExecutionEnabled: execute,
		Interval:         a.cfg.Bot.CheckInterval.Duration,
		Lock:             deps.LockManager,
		Logger:           a.logger,
	}
	if execute {
		exec, err := a.buildExecutor(deps, oppSvc, alerts)
		if err != nil {
			return err
		}
		engCfg.Executor = exec
	}

	eng, err := engine.New(engCfg)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	g.Go(func() error {
		return alerts.Run(ctx)
	})
	g.Go(func() error {
		return eng.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, oppSvc, eng)
	}

	if deps.Archiver != nil {
		archiver := pipeline.NewArchiver(
			deps.Archiver,
			a.cfg.Archive.Interval.Duration,
			a.cfg.Archive.LookbackDays,
			a.logger,
		)
		g.Go(func() error {
			return archiver.RunLoop(ctx)
		})
	}

	return g.Wait()
}

func (a *App) buildExecutor(deps *Dependencies, oppSvc *service.OpportunityService, alerts executor.Alerter) (*executor.Executor, error) {
	exec, err := executor.New(executor.Config{
		Venues:        []domain.OrderPlacer{deps.Polymarket, deps.Kalshi},
		Legs:          deps.Legs,
		Opportunities: oppSvc,
		Risk:          deps.Governor,
		Alerts:        alerts,
		Audit:         deps.Audit,
		Cooldown:      a.cfg.Bot.ExecutionCooldown.Duration,
		Logger:        a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("app: build executor: %w", err)
	}
	return exec, nil
}

// startHTTPServer adds the HTTP server goroutine, and the WebSocket hub when
// a signal bus is wired, to the given errgroup. The server is shut down
// gracefully when the context is cancelled.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	oppSvc *service.OpportunityService,
	eng *engine.Engine,
) {
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.mode(), deps.HealthChecks, func() string {
			return string(eng.State())
		}, a.logger),
		Opportunities: handler.NewOpportunityHandler(oppSvc, a.logger),
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Channel:   service.OpportunityChannel,
			Stream:    service.OpportunityStream,
			Mode:      a.mode(),
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	} else {
		a.logger.InfoContext(ctx, "HTTP server: /ws disabled (no signal bus)")
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	a.logger.InfoContext(ctx, "HTTP server configured",
		slog.Int("port", a.cfg.Server.Port),
		slog.Bool("auth", a.cfg.Server.APIKey != ""),
		slog.Bool("rate_limit", deps.RateLimiter != nil && a.cfg.Server.RateLimit > 0),
	)
	g.Go(func() error {
		return srv.Run(ctx)
	})
}
