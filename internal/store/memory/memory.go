// Package memory provides mutex-guarded in-memory stores. They back dry
// runs (database.driver = "memory") and tests; nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore.
type OpportunityStore struct {
	mu    sync.RWMutex
	byID  map[string]domain.ArbitrageOpportunity
	order []string
}

// NewOpportunityStore returns an empty store.
func NewOpportunityStore() *OpportunityStore {
	return &OpportunityStore{byID: make(map[string]domain.ArbitrageOpportunity)}
}

// Save stores opp, assigning a UUID when opp.ID is empty.
func (s *OpportunityStore) Save(_ context.Context, opp domain.ArbitrageOpportunity) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opp.ID == "" {
		opp.ID = uuid.New().String()
	}
	if _, ok := s.byID[opp.ID]; ok {
		return "", fmt.Errorf("memory: opportunity %s: %w", opp.ID, domain.ErrAlreadyExists)
	}
	s.byID[opp.ID] = opp
	s.order = append(s.order, opp.ID)
	return opp.ID, nil
}

func (s *OpportunityStore) Get(_ context.Context, id string) (domain.ArbitrageOpportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	opp, ok := s.byID[id]
	if !ok {
		return domain.ArbitrageOpportunity{}, fmt.Errorf("memory: opportunity %s: %w", id, domain.ErrNotFound)
	}
	return opp, nil
}

func (s *OpportunityStore) MarkExecuted(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	opp, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("memory: mark executed %s: %w", id, domain.ErrNotFound)
	}
	opp.Executed = true
	s.byID[id] = opp
	return nil
}

// ListRecent returns up to limit opportunities, newest first. A
// non-positive limit returns everything.
func (s *OpportunityStore) ListRecent(_ context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ArbitrageOpportunity, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.byID[s.order[i]])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *OpportunityStore) ListBetween(_ context.Context, from, to time.Time) ([]domain.ArbitrageOpportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ArbitrageOpportunity
	for _, id := range s.order {
		opp := s.byID[id]
		if !opp.DetectedAt.Before(from) && opp.DetectedAt.Before(to) {
			out = append(out, opp)
		}
	}
	return out, nil
}

// LegStore implements domain.LegStore.
type LegStore struct {
	mu    sync.RWMutex
	byID  map[string]domain.ExecutionLeg
	order []string
}

// NewLegStore returns an empty store.
func NewLegStore() *LegStore {
	return &LegStore{byID: make(map[string]domain.ExecutionLeg)}
}

// CreateLegs inserts all legs or none.
func (s *LegStore) CreateLegs(_ context.Context, legs []domain.ExecutionLeg) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range legs {
		if l.ID == "" {
			return fmt.Errorf("memory: create leg: empty id")
		}
		if _, ok := s.byID[l.ID]; ok {
			return fmt.Errorf("memory: leg %s: %w", l.ID, domain.ErrAlreadyExists)
		}
	}
	for _, l := range legs {
		s.byID[l.ID] = l
		s.order = append(s.order, l.ID)
	}
	return nil
}

func (s *LegStore) UpdateLeg(_ context.Context, leg domain.ExecutionLeg) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[leg.ID]; !ok {
		return fmt.Errorf("memory: update leg %s: %w", leg.ID, domain.ErrNotFound)
	}
	s.byID[leg.ID] = leg
	return nil
}

func (s *LegStore) ListByOpportunity(_ context.Context, opportunityID string) ([]domain.ExecutionLeg, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ExecutionLeg
	for _, id := range s.order {
		if l := s.byID[id]; l.OpportunityID == opportunityID {
			out = append(out, l)
		}
	}
	return out, nil
}

// unreconciled returns placed buy legs whose sibling sell leg failed, in
// insertion order. Callers hold the lock.
func (s *LegStore) unreconciled() []domain.ExecutionLeg {
	failedSell := make(map[string]bool)
	for _, l := range s.byID {
		if l.Side == domain.OrderSideSell && l.Status == domain.LegStatusFailed {
			failedSell[l.OpportunityID] = true
		}
	}
	var out []domain.ExecutionLeg
	for _, id := range s.order {
		l := s.byID[id]
		if l.Side == domain.OrderSideBuy && l.Status == domain.LegStatusPlaced && failedSell[l.OpportunityID] {
			out = append(out, l)
		}
	}
	return out
}

func (s *LegStore) ListUnreconciled(_ context.Context, limit int) ([]domain.ExecutionLeg, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	legs := s.unreconciled()
	out := make([]domain.ExecutionLeg, 0, len(legs))
	for i := len(legs) - 1; i >= 0; i-- {
		out = append(out, legs[i])
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *LegStore) ExposureSince(_ context.Context, since time.Time) (domain.ExposureSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	open := make(map[string]struct{})
	for _, l := range s.byID {
		if l.Status == domain.LegStatusPlaced && !l.CreatedAt.Before(since) {
			open[l.OpportunityID] = struct{}{}
		}
	}
	notional := decimal.Zero
	for _, l := range s.unreconciled() {
		if !l.CreatedAt.Before(since) {
			notional = notional.Add(l.Notional())
		}
	}
	return domain.ExposureSummary{OpenPositions: len(open), UnreconciledNotional: notional}, nil
}

func (s *LegStore) ListBetween(_ context.Context, from, to time.Time) ([]domain.ExecutionLeg, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ExecutionLeg
	for _, id := range s.order {
		l := s.byID[id]
		if !l.CreatedAt.Before(from) && l.CreatedAt.Before(to) {
			out = append(out, l)
		}
	}
	return out, nil
}

// AuditStore implements domain.AuditStore.
type AuditStore struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
	now     func() time.Time
}

// NewAuditStore returns an empty audit log.
func NewAuditStore() *AuditStore {
	return &AuditStore{now: time.Now}
}

func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, domain.AuditEntry{
		ID:        int64(len(s.entries) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: s.now().UTC(),
	})
	return nil
}

// List returns entries newest first, honouring Since/Until/Offset/Limit.
func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.AuditEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && !e.CreatedAt.Before(*opts.Until) {
			continue
		}
		out = append(out, e)
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

var (
	_ domain.OpportunityStore = (*OpportunityStore)(nil)
	_ domain.LegStore         = (*LegStore)(nil)
	_ domain.AuditStore       = (*AuditStore)(nil)
)
