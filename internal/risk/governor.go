// Package risk enforces the pre-trade limits configured under [risk]. The
// governor is consulted before any leg is placed; a violation means no
// order is sent for that opportunity.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
)

// Config holds the tunable limits. A zero limit disables its rule.
type Config struct {
	Enabled          bool
	MaxOpenPositions int
	MaxDailyLoss     decimal.Decimal
	// PositionSizePct caps position_size at Bankroll * PositionSizePct / 100.
	PositionSizePct decimal.Decimal
	Bankroll        decimal.Decimal
}

// ExposureReader reports the legs placed since a cutoff.
type ExposureReader interface {
	ExposureSince(ctx context.Context, since time.Time) (domain.ExposureSummary, error)
}

// Governor checks opportunities against the configured limits.
type Governor struct {
	cfg      Config
	exposure ExposureReader
	now      func() time.Time
	logger   *slog.Logger
}

// NewGovernor creates a Governor. exposure may be nil when neither
// MaxOpenPositions nor MaxDailyLoss is set.
func NewGovernor(cfg Config, exposure ExposureReader, logger *slog.Logger) *Governor {
	return &Governor{
		cfg:      cfg,
		exposure: exposure,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "risk")),
	}
}

// Enabled reports whether any checks run at all.
func (g *Governor) Enabled() bool { return g.cfg.Enabled }

// Check returns an error wrapping domain.ErrRiskLimit when opp would breach
// a limit, or nil when it may be executed.
//
// Checks performed, in order:
//  1. position size against bankroll * position_size_percentage
//  2. open positions started today (UTC) against max_open_positions
//  3. today's unreconciled notional plus this buy leg against max_daily_loss
//
// Settlement is not tracked, so a position counts as open for the UTC day
// it was opened, and the worst-case loss on a naked leg is its notional.
func (g *Governor) Check(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	if !g.cfg.Enabled {
		return nil
	}

	if g.cfg.PositionSizePct.IsPositive() && g.cfg.Bankroll.IsPositive() {
		limit := g.cfg.Bankroll.Mul(g.cfg.PositionSizePct).Div(decimal.NewFromInt(100))
		if opp.PositionSize.GreaterThan(limit) {
			g.logger.WarnContext(ctx, "risk: position size exceeds bankroll share",
				slog.String("opportunity_id", opp.ID),
				slog.String("size", opp.PositionSize.String()),
				slog.String("max", limit.String()),
			)
			return fmt.Errorf("risk: position size %s exceeds max %s: %w",
				opp.PositionSize.String(), limit.String(), domain.ErrRiskLimit)
		}
	}

	if g.cfg.MaxOpenPositions <= 0 && !g.cfg.MaxDailyLoss.IsPositive() {
		return nil
	}
	if g.exposure == nil {
		return fmt.Errorf("risk: no exposure source configured")
	}

	now := g.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	exp, err := g.exposure.ExposureSince(ctx, dayStart)
	if err != nil {
		return fmt.Errorf("risk: read exposure: %w", err)
	}

	if g.cfg.MaxOpenPositions > 0 && exp.OpenPositions >= g.cfg.MaxOpenPositions {
		g.logger.WarnContext(ctx, "risk: max open positions reached",
			slog.String("opportunity_id", opp.ID),
			slog.Int("open", exp.OpenPositions),
			slog.Int("max", g.cfg.MaxOpenPositions),
		)
		return fmt.Errorf("risk: max open positions reached (%d/%d): %w",
			exp.OpenPositions, g.cfg.MaxOpenPositions, domain.ErrRiskLimit)
	}

	if g.cfg.MaxDailyLoss.IsPositive() {
		worst := exp.UnreconciledNotional.Add(opp.BuyPrice.Mul(opp.PositionSize))
		if worst.GreaterThan(g.cfg.MaxDailyLoss) {
			g.logger.WarnContext(ctx, "risk: daily loss budget exceeded",
				slog.String("opportunity_id", opp.ID),
				slog.String("unreconciled", exp.UnreconciledNotional.String()),
				slog.String("worst_case", worst.String()),
				slog.String("max", g.cfg.MaxDailyLoss.String()),
			)
			return fmt.Errorf("risk: worst-case daily loss %s exceeds max %s: %w",
				worst.String(), g.cfg.MaxDailyLoss.String(), domain.ErrRiskLimit)
		}
	}

	return nil
}
