// Package service holds the application services that sit between the
// engine/executor and the stores, bus and notifier.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/arbitrage"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
)

// Bus channel and stream carrying detected opportunities.
const (
	OpportunityChannel = "arb:opportunities"
	OpportunityStream  = "stream:arb:opportunities"
)

// EventOpportunityDetected is the notification event for a new opportunity.
const EventOpportunityDetected = "opportunity_detected"

// Notifier delivers operator notifications.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// OpportunityEvent is the JSON payload published for each recorded
// opportunity.
type OpportunityEvent struct {
	Event       string                      `json:"event"`
	Opportunity domain.ArbitrageOpportunity `json:"opportunity"`
}

// OpportunityService records opportunities and exposes their history. The
// bus, audit log and notifier are optional; their failures never fail a
// Record call.
type OpportunityService struct {
	opps     domain.OpportunityStore
	legs     domain.LegStore
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier Notifier
	logger   *slog.Logger
}

// NewOpportunityService creates an OpportunityService. bus, audit and
// notifier may be nil.
func NewOpportunityService(
	opps domain.OpportunityStore,
	legs domain.LegStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	notifier Notifier,
	logger *slog.Logger,
) *OpportunityService {
	return &OpportunityService{
		opps:     opps,
		legs:     legs,
		bus:      bus,
		audit:    audit,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "opportunity_service")),
	}
}

// Record persists opp and fans it out. The returned copy carries the ID
// assigned by the store.
func (s *OpportunityService) Record(ctx context.Context, opp domain.ArbitrageOpportunity) (domain.ArbitrageOpportunity, error) {
	id, err := s.opps.Save(ctx, opp)
	if err != nil {
		return opp, &domain.PersistenceError{Op: "save opportunity", Err: err}
	}
	opp.ID = id

	if s.bus != nil {
		evt, err := json.Marshal(OpportunityEvent{Event: EventOpportunityDetected, Opportunity: opp})
		if err != nil {
			s.logger.WarnContext(ctx, "opportunity_service: marshal event failed",
				slog.String("opportunity_id", opp.ID),
				slog.String("error", err.Error()),
			)
		} else {
			if pubErr := s.bus.Publish(ctx, OpportunityChannel, evt); pubErr != nil {
				s.logger.WarnContext(ctx, "opportunity_service: publish event failed",
					slog.String("opportunity_id", opp.ID),
					slog.String("error", pubErr.Error()),
				)
			}
			if streamErr := s.bus.StreamAppend(ctx, OpportunityStream, evt); streamErr != nil {
				s.logger.WarnContext(ctx, "opportunity_service: stream append failed",
					slog.String("opportunity_id", opp.ID),
					slog.String("error", streamErr.Error()),
				)
			}
		}
	}

	if s.audit != nil {
		if auditErr := s.audit.Log(ctx, "opportunity.recorded", map[string]any{
			"opportunity_id":    opp.ID,
			"buy_platform":      opp.BuyPlatform.String(),
			"sell_platform":     opp.SellPlatform.String(),
			"buy_price":         opp.BuyPrice.String(),
			"sell_price":        opp.SellPrice.String(),
			"profit_percentage": opp.ProfitPercentage.String(),
		}); auditErr != nil {
			s.logger.WarnContext(ctx, "opportunity_service: audit log failed",
				slog.String("opportunity_id", opp.ID),
				slog.String("error", auditErr.Error()),
			)
		}
	}

	if s.notifier != nil {
		msg := fmt.Sprintf("Buy %s on %s at %s, sell %s on %s at %s.\nProfit %s, estimated %s on %s.",
			opp.MarketIDOn(opp.BuyPlatform), opp.BuyPlatform, opp.BuyPrice.String(),
			opp.MarketIDOn(opp.SellPlatform), opp.SellPlatform, opp.SellPrice.String(),
			arbitrage.FormatPercentage(opp.ProfitPercentage),
			arbitrage.FormatCurrency(opp.EstimatedProfit),
			arbitrage.FormatCurrency(opp.PositionSize),
		)
		if nErr := s.notifier.Notify(ctx, EventOpportunityDetected, "Arbitrage opportunity", msg); nErr != nil {
			s.logger.WarnContext(ctx, "opportunity_service: notify failed",
				slog.String("opportunity_id", opp.ID),
				slog.String("error", nErr.Error()),
			)
		}
	}

	s.logger.DebugContext(ctx, "opportunity_service: opportunity recorded",
		slog.String("opportunity_id", opp.ID),
	)
	return opp, nil
}

// MarkExecuted flags an opportunity as executed.
func (s *OpportunityService) MarkExecuted(ctx context.Context, id string) error {
	if err := s.opps.MarkExecuted(ctx, id); err != nil {
		return fmt.Errorf("opportunity_service: mark executed %q: %w", id, err)
	}
	s.logger.InfoContext(ctx, "opportunity_service: opportunity marked executed",
		slog.String("opportunity_id", id),
	)
	return nil
}

// ListRecent returns the most recent opportunities, newest first.
func (s *OpportunityService) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	opps, err := s.opps.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("opportunity_service: list recent: %w", err)
	}
	return opps, nil
}

// OpportunityDetail is an opportunity together with its execution legs.
type OpportunityDetail struct {
	Opportunity domain.ArbitrageOpportunity
	Legs        []domain.ExecutionLeg
}

// Get returns one opportunity and its legs.
func (s *OpportunityService) Get(ctx context.Context, id string) (OpportunityDetail, error) {
	opp, err := s.opps.Get(ctx, id)
	if err != nil {
		return OpportunityDetail{}, fmt.Errorf("opportunity_service: get %q: %w", id, err)
	}
	legs, err := s.legs.ListByOpportunity(ctx, id)
	if err != nil {
		return OpportunityDetail{}, fmt.Errorf("opportunity_service: legs of %q: %w", id, err)
	}
	return OpportunityDetail{Opportunity: opp, Legs: legs}, nil
}

// ListUnreconciled returns placed buy legs whose sell leg failed.
func (s *OpportunityService) ListUnreconciled(ctx context.Context, limit int) ([]domain.ExecutionLeg, error) {
	legs, err := s.legs.ListUnreconciled(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("opportunity_service: list unreconciled: %w", err)
	}
	return legs, nil
}
