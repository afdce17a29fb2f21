package engine

import "time"

// CycleReport summarises one engine cycle.
type CycleReport struct {
	Started  time.Time
	Duration time.Duration

	PolymarketMarkets int
	KalshiMarkets     int
	// PolymarketErr and KalshiErr hold a *domain.FetchError when that
	// venue's fetch failed.
	PolymarketErr error
	KalshiErr     error

	Pairs         int
	Opportunities int
	Persisted     int
	PersistFailed int

	Executed     int
	ExecFailed   int
	ExecSkipped  int
	Unreconciled int

	LockSkipped bool
}
