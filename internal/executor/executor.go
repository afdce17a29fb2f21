// Package executor places the two legs of an accepted opportunity on their
// venues and records the outcome of each leg.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/arbitrage"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
)

// Notification events emitted by the executor.
const (
	EventExecutionCompleted   = "execution_completed"
	EventExecutionFailed      = "execution_failed"
	EventUnreconciledExposure = "unreconciled_exposure"
)

const notAttemptedReason = "not attempted: buy leg failed"

// DefaultStoreTimeout bounds each leg, audit and risk lookup call.
const DefaultStoreTimeout = 30 * time.Second

// RiskChecker validates an opportunity against pre-trade limits.
type RiskChecker interface {
	Check(ctx context.Context, opp domain.ArbitrageOpportunity) error
}

// ExecutionMarker flips an opportunity's executed flag.
type ExecutionMarker interface {
	MarkExecuted(ctx context.Context, id string) error
}

// Alerter delivers operator notifications.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config wires an Executor. Risk, Alerts and Audit are optional.
type Config struct {
	Venues        []domain.OrderPlacer
	Legs          domain.LegStore
	Opportunities ExecutionMarker
	Risk          RiskChecker
	Alerts        Alerter
	Audit         domain.AuditStore
	// Cooldown suppresses re-execution of the same market pair. Zero
	// disables it.
	Cooldown time.Duration

	// StoreTimeout bounds each store call; zero uses DefaultStoreTimeout.
	StoreTimeout time.Duration
	Logger       *slog.Logger
}

// Executor runs the buy-then-sell flow for one opportunity at a time. It
// never retries and never sends a compensating order.
type Executor struct {
	venues map[domain.Platform]domain.OrderPlacer
	legs   domain.LegStore
	opps   ExecutionMarker
	risk   RiskChecker
	alerts Alerter
	audit  domain.AuditStore
	dedup  *Dedup

	// storeTimeout bounds every store call; venue calls carry their own
	// client timeout.
	storeTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// New builds an Executor. Both venues must be present.
func New(cfg Config) (*Executor, error) {
	venues := make(map[domain.Platform]domain.OrderPlacer, len(cfg.Venues))
	for _, v := range cfg.Venues {
		venues[v.Platform()] = v
	}
	for _, p := range []domain.Platform{domain.PlatformPolymarket, domain.PlatformKalshi} {
		if venues[p] == nil {
			return nil, fmt.Errorf("executor: no order placer for %s", p)
		}
	}
	if cfg.Legs == nil || cfg.Opportunities == nil {
		return nil, errors.New("executor: leg store and opportunity marker are required")
	}

	e := &Executor{
		venues: venues,
		legs:   cfg.Legs,
		opps:   cfg.Opportunities,
		risk:   cfg.Risk,
		alerts: cfg.Alerts,
		audit:  cfg.Audit,

		storeTimeout: cfg.StoreTimeout,
		now:          time.Now,
		logger:       cfg.Logger.With(slog.String("component", "executor")),
	}
	if e.storeTimeout <= 0 {
		e.storeTimeout = DefaultStoreTimeout
	}
	if cfg.Cooldown > 0 {
		e.dedup = NewDedup(cfg.Cooldown)
	}
	return e, nil
}

// Execute places the buy leg and, only if it succeeded, the sell leg.
//
//   - buy fails: the sell leg is not attempted; an *ExecutionLegError is
//     returned.
//   - buy placed, sell fails: an *UnreconciledExposureError is returned
//     and operators are alerted.
//   - both placed: the opportunity is marked executed.
//
// Both legs are persisted as pending before any order is sent, and each
// status transition is written as it happens.
func (e *Executor) Execute(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	log := e.logger.With(
		slog.String("opportunity_id", opp.ID),
		slog.String("buy_platform", opp.BuyPlatform.String()),
		slog.String("sell_platform", opp.SellPlatform.String()),
	)

	if e.risk != nil {
		if err := e.checkRisk(ctx, opp); err != nil {
			log.WarnContext(ctx, "risk check failed, skipping", slog.String("error", err.Error()))
			return fmt.Errorf("executor: %w", err)
		}
	}
	if e.dedup != nil && e.dedup.IsDuplicate(opp.PairKey()) {
		log.InfoContext(ctx, "pair executed recently, skipping", slog.String("pair", opp.PairKey()))
		return fmt.Errorf("executor: pair %s: %w", opp.PairKey(), domain.ErrDuplicate)
	}

	now := e.now().UTC()
	buy := e.newLeg(opp, domain.OrderSideBuy, opp.BuyPlatform, opp.BuyPrice, now)
	sell := e.newLeg(opp, domain.OrderSideSell, opp.SellPlatform, opp.SellPrice, now)
	if err := e.createLegs(ctx, buy, sell); err != nil {
		log.ErrorContext(ctx, "persist pending legs failed, not trading", slog.String("error", err.Error()))
		return &domain.PersistenceError{Op: "create legs " + opp.ID, Err: err}
	}

	buy, buyErr := e.placeLeg(ctx, buy)
	if buyErr != nil {
		sell.Status = domain.LegStatusFailed
		sell.Error = notAttemptedReason
		sell.UpdatedAt = e.now().UTC()
		e.updateLeg(ctx, log, sell)

		log.ErrorContext(ctx, "buy leg failed, sell leg not attempted", slog.String("error", buyErr.Error()))
		e.alert(ctx, log, EventExecutionFailed, "Execution failed",
			fmt.Sprintf("Buy leg on %s %s failed: %v", buy.Platform, buy.MarketID, buyErr))
		return buyErr
	}

	sell, sellErr := e.placeLeg(ctx, sell)
	if sellErr != nil {
		exposure := &domain.UnreconciledExposureError{Buy: buy, Sell: sellErr}
		log.ErrorContext(ctx, "sell leg failed after buy was placed",
			slog.String("buy_order_id", buy.OrderID),
			slog.String("notional", buy.Notional().String()),
			slog.String("error", sellErr.Error()),
		)
		e.auditLog(ctx, log, "execution.unreconciled", map[string]any{
			"opportunity_id": opp.ID,
			"buy_leg_id":     buy.ID,
			"buy_order_id":   buy.OrderID,
			"platform":       buy.Platform.String(),
			"market_id":      buy.MarketID,
			"notional":       buy.Notional().String(),
			"error":          sellErr.Error(),
		})
		e.alert(ctx, log, EventUnreconciledExposure, "Unreconciled exposure",
			fmt.Sprintf("Bought %s on %s at %s (order %s) but the %s sell leg failed: %v. Notional at risk: %s.",
				buy.MarketID, buy.Platform, buy.Price.String(), buy.OrderID,
				sell.Platform, sellErr.Err, arbitrage.FormatCurrency(buy.Notional())))
		return exposure
	}

	if err := e.markExecuted(ctx, opp.ID); err != nil {
		log.ErrorContext(ctx, "mark executed failed", slog.String("error", err.Error()))
		return &domain.PersistenceError{Op: "mark executed " + opp.ID, Err: err}
	}

	log.InfoContext(ctx, "opportunity executed",
		slog.String("buy_order_id", buy.OrderID),
		slog.String("sell_order_id", sell.OrderID),
		slog.String("profit", arbitrage.FormatPercentage(opp.ProfitPercentage)),
	)
	e.auditLog(ctx, log, "execution.completed", map[string]any{
		"opportunity_id": opp.ID,
		"buy_order_id":   buy.OrderID,
		"sell_order_id":  sell.OrderID,
	})
	e.alert(ctx, log, EventExecutionCompleted, "Arbitrage executed",
		fmt.Sprintf("Bought %s on %s at %s, sold %s on %s at %s. Size %s, expected profit %s (%s).",
			buy.MarketID, buy.Platform, buy.Price.String(),
			sell.MarketID, sell.Platform, sell.Price.String(),
			opp.PositionSize.String(), arbitrage.FormatCurrency(opp.EstimatedProfit),
			arbitrage.FormatPercentage(opp.ProfitPercentage)))
	return nil
}

func (e *Executor) newLeg(opp domain.ArbitrageOpportunity, side domain.OrderSide, p domain.Platform, price decimal.Decimal, now time.Time) domain.ExecutionLeg {
	return domain.ExecutionLeg{
		ID:            uuid.New().String(),
		OpportunityID: opp.ID,
		Side:          side,
		Platform:      p,
		MarketID:      opp.MarketIDOn(p),
		Price:         price,
		Size:          opp.PositionSize,
		Status:        domain.LegStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// placeLeg sends one order and records the resulting status. The returned
// leg reflects the new status.
func (e *Executor) placeLeg(ctx context.Context, leg domain.ExecutionLeg) (domain.ExecutionLeg, *domain.ExecutionLegError) {
	log := e.logger.With(
		slog.String("opportunity_id", leg.OpportunityID),
		slog.String("leg", string(leg.Side)),
		slog.String("platform", leg.Platform.String()),
		slog.String("market_id", leg.MarketID),
	)

	orderID, err := e.venues[leg.Platform].PlaceOrder(ctx, domain.OrderRequest{
		MarketID: leg.MarketID,
		Side:     leg.Side,
		Price:    leg.Price,
		Size:     leg.Size,
	})
	leg.UpdatedAt = e.now().UTC()
	if err != nil {
		leg.Status = domain.LegStatusFailed
		leg.Error = err.Error()
		e.updateLeg(ctx, log, leg)
		log.ErrorContext(ctx, "order placement failed", slog.String("error", err.Error()))
		return leg, &domain.ExecutionLegError{
			OpportunityID: leg.OpportunityID,
			Side:          leg.Side,
			Platform:      leg.Platform,
			MarketID:      leg.MarketID,
			Err:           err,
		}
	}

	leg.Status = domain.LegStatusPlaced
	leg.OrderID = orderID
	e.updateLeg(ctx, log, leg)
	log.InfoContext(ctx, "order placed", slog.String("order_id", orderID))
	return leg, nil
}

func (e *Executor) checkRisk(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	return e.risk.Check(ctx, opp)
}

func (e *Executor) createLegs(ctx context.Context, legs ...domain.ExecutionLeg) error {
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	return e.legs.CreateLegs(ctx, legs)
}

func (e *Executor) markExecuted(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	return e.opps.MarkExecuted(ctx, id)
}

func (e *Executor) updateLeg(ctx context.Context, log *slog.Logger, leg domain.ExecutionLeg) {
	storeCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	if err := e.legs.UpdateLeg(storeCtx, leg); err != nil {
		log.ErrorContext(ctx, "leg status update failed",
			slog.String("leg_id", leg.ID),
			slog.String("status", string(leg.Status)),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Executor) alert(ctx context.Context, log *slog.Logger, event, title, msg string) {
	if e.alerts == nil {
		return
	}
	if err := e.alerts.Notify(ctx, event, title, msg); err != nil {
		log.WarnContext(ctx, "notification failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

func (e *Executor) auditLog(ctx context.Context, log *slog.Logger, event string, detail map[string]any) {
	if e.audit == nil {
		return
	}
	storeCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	if err := e.audit.Log(storeCtx, event, detail); err != nil {
		log.WarnContext(ctx, "audit log failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}
