package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
)

// LegStore implements domain.LegStore using PostgreSQL.
type LegStore struct {
	pool *pgxpool.Pool
}

var _ domain.LegStore = (*LegStore)(nil)

// NewLegStore creates a new LegStore.
func NewLegStore(pool *pgxpool.Pool) *LegStore {
	return &LegStore{pool: pool}
}

const legSelectCols = `l.id, l.opportunity_id, l.side, l.platform, l.market_id,
	l.price::text, l.size::text, l.status, l.order_id, l.error,
	l.created_at, l.updated_at`

// unreconciledWhere selects placed buy legs whose sibling sell leg failed.
const unreconciledWhere = `l.side = 'buy' AND l.status = 'placed' AND EXISTS (
	SELECT 1 FROM execution_legs s
	WHERE s.opportunity_id = l.opportunity_id AND s.side = 'sell' AND s.status = 'failed')`

// CreateLegs inserts all legs in one transaction.
func (s *LegStore) CreateLegs(ctx context.Context, legs []domain.ExecutionLeg) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const query = `
		INSERT INTO execution_legs (
			id, opportunity_id, side, platform, market_id,
			price, size, status, order_id, error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9, $10, $11, $12)`

	for _, leg := range legs {
		_, err = tx.Exec(ctx, query,
			leg.ID, leg.OpportunityID, string(leg.Side), leg.Platform.String(), leg.MarketID,
			leg.Price.String(), leg.Size.String(), string(leg.Status), leg.OrderID, leg.Error,
			leg.CreatedAt.UTC(), leg.UpdatedAt.UTC(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("postgres: insert leg %s: %w", leg.ID, domain.ErrAlreadyExists)
			}
			return fmt.Errorf("postgres: insert leg %s: %w", leg.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit legs: %w", err)
	}
	return nil
}

// UpdateLeg persists a leg's status, order id and error.
func (s *LegStore) UpdateLeg(ctx context.Context, leg domain.ExecutionLeg) error {
	const query = `
		UPDATE execution_legs SET
			status     = $2,
			order_id   = $3,
			error      = $4,
			updated_at = $5
		WHERE id = $1`

	updated := leg.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	tag, err := s.pool.Exec(ctx, query, leg.ID, string(leg.Status), leg.OrderID, leg.Error, updated.UTC())
	if err != nil {
		return fmt.Errorf("postgres: update leg %s: %w", leg.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: leg %s: %w", leg.ID, domain.ErrNotFound)
	}
	return nil
}

// ListByOpportunity returns the legs of one opportunity, buy leg first.
func (s *LegStore) ListByOpportunity(ctx context.Context, opportunityID string) ([]domain.ExecutionLeg, error) {
	query := `SELECT ` + legSelectCols + ` FROM execution_legs l
		WHERE l.opportunity_id = $1
		ORDER BY l.side`
	return s.list(ctx, "list by opportunity", query, opportunityID)
}

// ListUnreconciled returns unreconciled buy legs, newest first.
func (s *LegStore) ListUnreconciled(ctx context.Context, limit int) ([]domain.ExecutionLeg, error) {
	query := `SELECT ` + legSelectCols + ` FROM execution_legs l
		WHERE ` + unreconciledWhere + `
		ORDER BY l.created_at DESC, l.id
		LIMIT $1`
	return s.list(ctx, "list unreconciled", query, limitArg(limit))
}

// ExposureSince counts opportunities with a placed leg created at or after
// since and sums the notional of unreconciled buy legs in the same window.
func (s *LegStore) ExposureSince(ctx context.Context, since time.Time) (domain.ExposureSummary, error) {
	const openQuery = `
		SELECT COUNT(DISTINCT opportunity_id) FROM execution_legs
		WHERE status = 'placed' AND created_at >= $1`
	notionalQuery := `
		SELECT COALESCE(SUM(l.price * l.size), 0)::text FROM execution_legs l
		WHERE ` + unreconciledWhere + ` AND l.created_at >= $1`

	var (
		open     int64
		notional string
	)
	if err := s.pool.QueryRow(ctx, openQuery, since.UTC()).Scan(&open); err != nil {
		return domain.ExposureSummary{}, fmt.Errorf("postgres: count open positions: %w", err)
	}
	if err := s.pool.QueryRow(ctx, notionalQuery, since.UTC()).Scan(&notional); err != nil {
		return domain.ExposureSummary{}, fmt.Errorf("postgres: sum unreconciled notional: %w", err)
	}

	sum, err := decimal.NewFromString(notional)
	if err != nil {
		return domain.ExposureSummary{}, fmt.Errorf("postgres: parse notional %q: %w", notional, err)
	}
	return domain.ExposureSummary{OpenPositions: int(open), UnreconciledNotional: sum}, nil
}

// ListBetween returns legs with from <= created_at < to, oldest first.
func (s *LegStore) ListBetween(ctx context.Context, from, to time.Time) ([]domain.ExecutionLeg, error) {
	query := `SELECT ` + legSelectCols + ` FROM execution_legs l
		WHERE l.created_at >= $1 AND l.created_at < $2
		ORDER BY l.created_at, l.id`
	return s.list(ctx, "list between", query, from.UTC(), to.UTC())
}

func (s *LegStore) list(ctx context.Context, op, query string, args ...any) ([]domain.ExecutionLeg, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s legs: %w", op, err)
	}
	defer rows.Close()

	var legs []domain.ExecutionLeg
	for rows.Next() {
		leg, err := scanLeg(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan leg: %w", err)
		}
		legs = append(legs, leg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s legs rows: %w", op, err)
	}
	return legs, nil
}

func scanLeg(row pgx.Row) (domain.ExecutionLeg, error) {
	var (
		leg                    domain.ExecutionLeg
		side, platform, status string
		price, size            string
	)
	if err := row.Scan(
		&leg.ID, &leg.OpportunityID, &side, &platform, &leg.MarketID,
		&price, &size, &status, &leg.OrderID, &leg.Error,
		&leg.CreatedAt, &leg.UpdatedAt,
	); err != nil {
		return domain.ExecutionLeg{}, err
	}

	p, err := domain.ParsePlatform(platform)
	if err != nil {
		return domain.ExecutionLeg{}, err
	}
	leg.Platform = p
	leg.Side = domain.OrderSide(side)
	leg.Status = domain.LegStatus(status)
	if err := parseNumerics(map[*decimal.Decimal]string{&leg.Price: price, &leg.Size: size}); err != nil {
		return domain.ExecutionLeg{}, err
	}
	leg.CreatedAt = leg.CreatedAt.UTC()
	leg.UpdatedAt = leg.UpdatedAt.UTC()
	return leg, nil
}
