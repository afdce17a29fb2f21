// Package engine runs the polling loop: fetch both venues, match, price,
// persist, and optionally execute.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/arbitrage"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/matching"
)

const (
	cycleLockKey    = "engine:cycle"
	minCycleLockTTL = 30 * time.Second

	// DefaultCallTimeout bounds each persistence call made by a cycle.
	DefaultCallTimeout = 30 * time.Second
)

// Recorder persists an accepted opportunity and returns it with its ID.
type Recorder interface {
	Record(ctx context.Context, opp domain.ArbitrageOpportunity) (domain.ArbitrageOpportunity, error)
}

// Executor places the legs of a persisted opportunity.
type Executor interface {
	Execute(ctx context.Context, opp domain.ArbitrageOpportunity) error
}

// Config wires an Engine. Executor may be nil when execution is disabled;
// Lock is optional. A zero CallTimeout uses DefaultCallTimeout.
type Config struct {
	Polymarket       domain.MarketProvider
	Kalshi           domain.MarketProvider
	Matcher          matching.Strategy
	Calculator       *arbitrage.Calculator
	Recorder         Recorder
	Executor         Executor
	ExecutionEnabled bool
	Interval         time.Duration
	Lock             domain.LockManager
	CallTimeout      time.Duration
	Logger           *slog.Logger
}

// State is the engine's coarse lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
)

// Engine is the single writer of opportunities.
type Engine struct {
	poly     domain.MarketProvider
	kalshi   domain.MarketProvider
	matcher  matching.Strategy
	calc     *arbitrage.Calculator
	recorder Recorder
	executor Executor
	execute  bool
	interval time.Duration
	lock     domain.LockManager
	lockTTL  time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	processing atomic.Bool
	cycles     atomic.Int64
}

// New validates cfg and returns an Engine.
func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Polymarket == nil || cfg.Kalshi == nil:
		return nil, errors.New("engine: both market providers are required")
	case cfg.Matcher == nil || cfg.Calculator == nil || cfg.Recorder == nil:
		return nil, errors.New("engine: matcher, calculator and recorder are required")
	case cfg.ExecutionEnabled && cfg.Executor == nil:
		return nil, errors.New("engine: execution enabled without an executor")
	case cfg.Interval <= 0:
		return nil, fmt.Errorf("engine: invalid interval %s", cfg.Interval)
	}

	ttl := 2 * cfg.Interval
	if ttl < minCycleLockTTL {
		ttl = minCycleLockTTL
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Engine{
		poly:     cfg.Polymarket,
		kalshi:   cfg.Kalshi,
		matcher:  cfg.Matcher,
		calc:     cfg.Calculator,
		recorder: cfg.Recorder,
		executor: cfg.Executor,
		execute:  cfg.ExecutionEnabled,
		interval: cfg.Interval,
		lock:     cfg.Lock,
		lockTTL:  ttl,
		timeout:  timeout,
		logger:   cfg.Logger.With(slog.String("component", "engine")),
	}, nil
}

// State reports whether a cycle is in flight.
func (e *Engine) State() State {
	if e.processing.Load() {
		return StateProcessing
	}
	return StateIdle
}

// Cycles returns the number of completed cycles.
func (e *Engine) Cycles() int64 { return e.cycles.Load() }

// Run executes a cycle immediately and then one per interval until ctx is
// cancelled. Cancellation is only observed between cycles: an in-flight
// cycle runs on a context detached from ctx and always finishes.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.InfoContext(ctx, "engine started",
		slog.Duration("interval", e.interval),
		slog.String("matcher", e.matcher.Name()),
		slog.String("min_profit", arbitrage.FormatPercentage(e.calc.MinProfit())),
		slog.Bool("execution_enabled", e.execute),
	)
	defer e.logger.Info("engine stopped")

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.RunCycle(context.WithoutCancel(ctx))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle performs one full fetch/match/price/persist/execute pass. No
// per-cycle failure is fatal; everything is reported and logged.
func (e *Engine) RunCycle(ctx context.Context) (report CycleReport) {
	e.processing.Store(true)
	defer e.processing.Store(false)

	report = CycleReport{Started: time.Now().UTC()}
	defer func() {
		report.Duration = time.Since(report.Started)
		e.cycles.Add(1)
		e.logReport(ctx, report)
	}()

	if e.lock != nil {
		unlock, err := e.lock.Acquire(ctx, cycleLockKey, e.lockTTL)
		if err != nil {
			report.LockSkipped = true
			if errors.Is(err, domain.ErrLockHeld) {
				e.logger.WarnContext(ctx, "another instance holds the cycle lock, skipping cycle")
			} else {
				e.logger.ErrorContext(ctx, "cycle lock unavailable, skipping cycle", slog.String("error", err.Error()))
			}
			return report
		}
		defer unlock()
	}

	poly, kalshi := e.fetch(ctx, &report)

	pairs := e.matcher.Match(poly, kalshi)
	report.Pairs = len(pairs)

	for _, pair := range pairs {
		opp, ok := e.calc.Evaluate(pair.Polymarket, pair.Kalshi)
		if !ok {
			continue
		}
		report.Opportunities++

		saved, err := e.record(ctx, opp)
		if err != nil {
			report.PersistFailed++
			e.logger.ErrorContext(ctx, "persist opportunity failed",
				slog.String("polymarket_market_id", opp.PolymarketMarketID),
				slog.String("kalshi_market_id", opp.KalshiMarketID),
				slog.String("error", err.Error()),
			)
			continue
		}
		report.Persisted++

		e.logger.InfoContext(ctx, "arbitrage opportunity",
			slog.String("opportunity_id", saved.ID),
			slog.String("question", pair.Polymarket.Question),
			slog.String("buy_platform", saved.BuyPlatform.String()),
			slog.String("buy_price", saved.BuyPrice.String()),
			slog.String("sell_platform", saved.SellPlatform.String()),
			slog.String("sell_price", saved.SellPrice.String()),
			slog.String("profit", arbitrage.FormatPercentage(saved.ProfitPercentage)),
			slog.String("estimated_profit", arbitrage.FormatCurrency(saved.EstimatedProfit)),
		)

		if !e.execute {
			continue
		}
		if err := e.executor.Execute(ctx, saved); err != nil {
			switch {
			case errors.Is(err, domain.ErrRiskLimit), errors.Is(err, domain.ErrDuplicate):
				report.ExecSkipped++
			case errors.Is(err, domain.ErrUnreconciledExposure):
				report.ExecFailed++
				report.Unreconciled++
			default:
				report.ExecFailed++
			}
			e.logger.ErrorContext(ctx, "execution failed",
				slog.String("opportunity_id", saved.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		report.Executed++
	}
	return report
}

// record persists opp under the per-call timeout. The cycle context itself
// is never cancelled, so this is what bounds a stuck store.
func (e *Engine) record(ctx context.Context, opp domain.ArbitrageOpportunity) (domain.ArbitrageOpportunity, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.recorder.Record(ctx, opp)
}

// fetch queries both venues concurrently. A failing venue contributes no
// markets and never blocks or cancels the other.
func (e *Engine) fetch(ctx context.Context, report *CycleReport) (poly, kalshi []domain.Market) {
	var polyErr, kalshiErr error
	var g errgroup.Group
	g.Go(func() error {
		poly, polyErr = e.poly.FetchMarkets(ctx)
		return nil
	})
	g.Go(func() error {
		kalshi, kalshiErr = e.kalshi.FetchMarkets(ctx)
		return nil
	})
	_ = g.Wait()

	if polyErr != nil {
		report.PolymarketErr = asFetchError(domain.PlatformPolymarket, polyErr)
		e.logger.WarnContext(ctx, "market fetch failed, skipping venue this cycle",
			slog.String("platform", domain.PlatformPolymarket.String()),
			slog.String("error", polyErr.Error()),
		)
		poly = nil
	}
	if kalshiErr != nil {
		report.KalshiErr = asFetchError(domain.PlatformKalshi, kalshiErr)
		e.logger.WarnContext(ctx, "market fetch failed, skipping venue this cycle",
			slog.String("platform", domain.PlatformKalshi.String()),
			slog.String("error", kalshiErr.Error()),
		)
		kalshi = nil
	}
	report.PolymarketMarkets = len(poly)
	report.KalshiMarkets = len(kalshi)
	return poly, kalshi
}

func asFetchError(p domain.Platform, err error) error {
	var fe *domain.FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &domain.FetchError{Platform: p, Err: err}
}

func (e *Engine) logReport(ctx context.Context, r CycleReport) {
	attrs := []any{
		slog.Int("polymarket_markets", r.PolymarketMarkets),
		slog.Int("kalshi_markets", r.KalshiMarkets),
		slog.Int("pairs", r.Pairs),
		slog.Int("opportunities", r.Opportunities),
		slog.Int("persisted", r.Persisted),
		slog.Duration("duration", r.Duration),
	}
	if e.execute {
		attrs = append(attrs,
			slog.Int("executed", r.Executed),
			slog.Int("exec_failed", r.ExecFailed),
			slog.Int("exec_skipped", r.ExecSkipped),
		)
	}
	if r.PersistFailed > 0 {
		attrs = append(attrs, slog.Int("persist_failed", r.PersistFailed))
	}
	if r.LockSkipped {
		attrs = append(attrs, slog.Bool("lock_skipped", true))
	}
	e.logger.InfoContext(ctx, "cycle complete", attrs...)
}
