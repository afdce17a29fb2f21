package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)

// NewOpportunityStore creates a new OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunitySelectCols = `id, polymarket_market_id, kalshi_market_id,
	buy_platform, sell_platform,
	buy_price::text, sell_price::text, profit_percentage::text,
	position_size::text, estimated_profit::text,
	detected_at, executed`

// Save inserts opp, assigning a UUID when it has no ID, and returns the ID.
func (s *OpportunityStore) Save(ctx context.Context, opp domain.ArbitrageOpportunity) (string, error) {
	if opp.ID == "" {
		opp.ID = uuid.NewString()
	}

	const query = `
		INSERT INTO opportunities (
			id, polymarket_market_id, kalshi_market_id,
			buy_platform, sell_platform,
			buy_price, sell_price, profit_percentage,
			position_size, estimated_profit,
			detected_at, executed
		) VALUES (
			$1, $2, $3,
			$4, $5,
			$6::numeric, $7::numeric, $8::numeric,
			$9::numeric, $10::numeric,
			$11, $12
		)`

	_, err := s.pool.Exec(ctx, query,
		opp.ID, opp.PolymarketMarketID, opp.KalshiMarketID,
		opp.BuyPlatform.String(), opp.SellPlatform.String(),
		opp.BuyPrice.String(), opp.SellPrice.String(), opp.ProfitPercentage.String(),
		opp.PositionSize.String(), opp.EstimatedProfit.String(),
		opp.DetectedAt.UTC(), opp.Executed,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, domain.ErrAlreadyExists)
		}
		return "", fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return opp.ID, nil
}

// Get returns one opportunity by ID.
func (s *OpportunityStore) Get(ctx context.Context, id string) (domain.ArbitrageOpportunity, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+opportunitySelectCols+` FROM opportunities WHERE id = $1`, id)
	opp, err := scanOpportunity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ArbitrageOpportunity{}, fmt.Errorf("postgres: opportunity %s: %w", id, domain.ErrNotFound)
		}
		return domain.ArbitrageOpportunity{}, fmt.Errorf("postgres: get opportunity %s: %w", id, err)
	}
	return opp, nil
}

// MarkExecuted sets the executed flag and executed_at timestamp.
func (s *OpportunityStore) MarkExecuted(ctx context.Context, id string) error {
	const query = `
		UPDATE opportunities SET
			executed    = TRUE,
			executed_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("postgres: mark opportunity executed %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: opportunity %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListRecent returns the most recent opportunities ordered by detection
// time. A non-positive limit returns all rows.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM opportunities ORDER BY detected_at DESC, id LIMIT $1`
	return s.list(ctx, "list recent", query, limitArg(limit))
}

// ListBetween returns opportunities with from <= detected_at < to, oldest
// first.
func (s *OpportunityStore) ListBetween(ctx context.Context, from, to time.Time) ([]domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM opportunities
		WHERE detected_at >= $1 AND detected_at < $2
		ORDER BY detected_at, id`
	return s.list(ctx, "list between", query, from.UTC(), to.UTC())
}

func (s *OpportunityStore) list(ctx context.Context, op, query string, args ...any) ([]domain.ArbitrageOpportunity, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s opportunities: %w", op, err)
	}
	defer rows.Close()

	var opps []domain.ArbitrageOpportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s opportunities rows: %w", op, err)
	}
	return opps, nil
}

func scanOpportunity(row pgx.Row) (domain.ArbitrageOpportunity, error) {
	var (
		opp                                      domain.ArbitrageOpportunity
		buyPlatform, sellPlatform                string
		buy, sell, profit, size, estimatedProfit string
	)
	if err := row.Scan(
		&opp.ID, &opp.PolymarketMarketID, &opp.KalshiMarketID,
		&buyPlatform, &sellPlatform,
		&buy, &sell, &profit,
		&size, &estimatedProfit,
		&opp.DetectedAt, &opp.Executed,
	); err != nil {
		return domain.ArbitrageOpportunity{}, err
	}

	var err error
	if opp.BuyPlatform, err = domain.ParsePlatform(buyPlatform); err != nil {
		return domain.ArbitrageOpportunity{}, err
	}
	if opp.SellPlatform, err = domain.ParsePlatform(sellPlatform); err != nil {
		return domain.ArbitrageOpportunity{}, err
	}
	if err := parseNumerics(map[*decimal.Decimal]string{
		&opp.BuyPrice:         buy,
		&opp.SellPrice:        sell,
		&opp.ProfitPercentage: profit,
		&opp.PositionSize:     size,
		&opp.EstimatedProfit:  estimatedProfit,
	}); err != nil {
		return domain.ArbitrageOpportunity{}, err
	}
	opp.DetectedAt = opp.DetectedAt.UTC()
	return opp, nil
}
