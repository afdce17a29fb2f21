// Package pipeline runs the background jobs that sit beside the engine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
)

const defaultArchiveInterval = 6 * time.Hour

// Archiver copies finished UTC days to cold storage on a fixed interval.
// Each run covers the lookbackDays days before today, so days missed while
// the bot was down are filled in; days already archived are skipped.
type Archiver struct {
	blobArchiver domain.Archiver
	interval     time.Duration
	lookbackDays int
	now          func() time.Time
	logger       *slog.Logger
}

// NewArchiver creates an Archiver. A non-positive interval uses six hours
// and a non-positive lookback archives yesterday only.
func NewArchiver(blobArchiver domain.Archiver, interval time.Duration, lookbackDays int, logger *slog.Logger) *Archiver {
	if interval <= 0 {
		interval = defaultArchiveInterval
	}
	if lookbackDays <= 0 {
		lookbackDays = 1
	}
	return &Archiver{
		blobArchiver: blobArchiver,
		interval:     interval,
		lookbackDays: lookbackDays,
		now:          time.Now,
		logger:       logger.With(slog.String("component", "archiver")),
	}
}

// Run executes a single archive pass, oldest day first. It stops at the
// first failing day so a later day is never archived before an earlier one
// is retried.
func (a *Archiver) Run(ctx context.Context) error {
	today := a.now().UTC().Truncate(24 * time.Hour)

	for i := a.lookbackDays; i >= 1; i-- {
		day := today.AddDate(0, 0, -i)
		res, err := a.blobArchiver.ArchiveDay(ctx, day)
		if err != nil {
			return fmt.Errorf("archiving %s: %w", day.Format(time.DateOnly), err)
		}
		if res.Skipped {
			a.logger.DebugContext(ctx, "archive day already present",
				slog.String("day", day.Format(time.DateOnly)),
			)
			continue
		}
		a.logger.InfoContext(ctx, "archived day",
			slog.String("day", day.Format(time.DateOnly)),
			slog.Int64("opportunities", res.Opportunities),
			slog.Int64("legs", res.Legs),
		)
	}
	return nil
}

// RunLoop runs immediately and then every interval until ctx is done. A
// failed pass is logged and retried on the next tick.
func (a *Archiver) RunLoop(ctx context.Context) error {
	a.logger.InfoContext(ctx, "archiver started",
		slog.Duration("interval", a.interval),
		slog.Int("lookback_days", a.lookbackDays),
	)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			a.logger.InfoContext(ctx, "archiver stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
