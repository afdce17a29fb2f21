package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OpportunityStore persists detected opportunities. History is
// append-only: nothing is ever deleted.
type OpportunityStore interface {
	Save(ctx context.Context, opp ArbitrageOpportunity) (string, error)
	Get(ctx context.Context, id string) (ArbitrageOpportunity, error)
	MarkExecuted(ctx context.Context, id string) error
	// ListRecent returns the newest opportunities first.
	ListRecent(ctx context.Context, limit int) ([]ArbitrageOpportunity, error)
	// ListBetween returns opportunities with from <= detected_at < to.
	ListBetween(ctx context.Context, from, to time.Time) ([]ArbitrageOpportunity, error)
}

// LegStore persists per-leg execution status.
type LegStore interface {
	CreateLegs(ctx context.Context, legs []ExecutionLeg) error
	UpdateLeg(ctx context.Context, leg ExecutionLeg) error
	ListByOpportunity(ctx context.Context, opportunityID string) ([]ExecutionLeg, error)
	// ListUnreconciled returns placed buy legs whose sell leg failed,
	// newest first.
	ListUnreconciled(ctx context.Context, limit int) ([]ExecutionLeg, error)
	ExposureSince(ctx context.Context, since time.Time) (ExposureSummary, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]ExecutionLeg, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
