package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/arbitrage"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/matching"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/store/memory"
)

type fakeProvider struct {
	platform domain.Platform
	markets  []domain.Market
	err      error
	// started, when set, is closed on the first fetch; the fetch then
	// blocks until release is closed.
	started chan struct{}
	release chan struct{}
	once    sync.Once

	mu      sync.Mutex
	calls   int
	lastCtx context.Context
}

func (f *fakeProvider) Platform() domain.Platform { return f.platform }

func (f *fakeProvider) FetchMarkets(ctx context.Context) ([]domain.Market, error) {
	f.mu.Lock()
	f.calls++
	f.lastCtx = ctx
	f.mu.Unlock()
	if f.started != nil {
		f.once.Do(func() { close(f.started) })
		<-f.release
	}
	return f.markets, f.err
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type storeRecorder struct {
	store *memory.OpportunityStore
	err   error
}

func (r *storeRecorder) Record(ctx context.Context, opp domain.ArbitrageOpportunity) (domain.ArbitrageOpportunity, error) {
	if r.err != nil {
		return opp, r.err
	}
	id, err := r.store.Save(ctx, opp)
	if err != nil {
		return opp, err
	}
	opp.ID = id
	return opp, nil
}

type fakeExecutor struct {
	mu    sync.Mutex
	seen  []string
	errFn func(n int) error
}

func (f *fakeExecutor) Execute(_ context.Context, opp domain.ArbitrageOpportunity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, opp.ID)
	if f.errFn != nil {
		return f.errFn(len(f.seen))
	}
	return nil
}

type heldLock struct{}

func (heldLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, fmt.Errorf("redis: lock engine:cycle: %w", domain.ErrLockHeld)
}

func mkt(p domain.Platform, id, q, yes string) domain.Market {
	return domain.Market{ID: id, Platform: p, Question: q, YesPrice: decimal.RequireFromString(yes)}
}

// Two matchable pairs, both profitable; a third polymarket market that
// matches nothing.
func venues() (*fakeProvider, *fakeProvider) {
	poly := &fakeProvider{platform: domain.PlatformPolymarket, markets: []domain.Market{
		mkt(domain.PlatformPolymarket, "pm-1", "Will it rain in NYC on Friday", "0.45"),
		mkt(domain.PlatformPolymarket, "pm-2", "Will BTC close above 100k this year", "0.70"),
		mkt(domain.PlatformPolymarket, "pm-3", "Who wins the Super Bowl", "0.30"),
	}}
	kalshi := &fakeProvider{platform: domain.PlatformKalshi, markets: []domain.Market{
		mkt(domain.PlatformKalshi, "KX-RAIN", "will it rain in nyc on friday", "0.55"),
		mkt(domain.PlatformKalshi, "KX-BTC", "will btc close above 100k this year", "0.60"),
	}}
	return poly, kalshi
}

func newEngine(t *testing.T, poly, kalshi domain.MarketProvider, exec Executor, enabled bool, rec Recorder) *Engine {
	t.Helper()
	e, err := New(Config{
		Polymarket:       poly,
		Kalshi:           kalshi,
		Matcher:          matching.TokenSimilarity{Threshold: matching.DefaultThreshold},
		Calculator:       arbitrage.NewCalculator(decimal.RequireFromString("0.02"), arbitrage.FlatSizer{Amount: decimal.NewFromInt(100)}),
		Recorder:         rec,
		Executor:         exec,
		ExecutionEnabled: enabled,
		Interval:         10 * time.Millisecond,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestRunCyclePersistsWithoutExecution(t *testing.T) {
	poly, kalshi := venues()
	store := memory.NewOpportunityStore()
	exec := &fakeExecutor{}
	e := newEngine(t, poly, kalshi, exec, false, &storeRecorder{store: store})

	r := e.RunCycle(context.Background())

	if r.Pairs != 2 || r.Opportunities != 2 || r.Persisted != 2 {
		t.Fatalf("report = %+v", r)
	}
	if len(exec.seen) != 0 {
		t.Fatalf("executor must not be called when execution is disabled")
	}
	saved, _ := store.ListRecent(context.Background(), 10)
	if len(saved) != 2 {
		t.Fatalf("expected 2 persisted opportunities, got %d", len(saved))
	}
	for _, o := range saved {
		if o.Executed {
			t.Errorf("opportunity %s must not be executed", o.ID)
		}
	}
}

func TestRunCycleVenueFailureIsIsolated(t *testing.T) {
	poly, kalshi := venues()
	kalshi.err = errors.New("connection refused")
	store := memory.NewOpportunityStore()
	e := newEngine(t, poly, kalshi, nil, false, &storeRecorder{store: store})

	r := e.RunCycle(context.Background())

	var fe *domain.FetchError
	if !errors.As(r.KalshiErr, &fe) || fe.Platform != domain.PlatformKalshi {
		t.Fatalf("KalshiErr = %v, want *domain.FetchError for kalshi", r.KalshiErr)
	}
	if r.PolymarketErr != nil {
		t.Errorf("PolymarketErr = %v", r.PolymarketErr)
	}
	if r.PolymarketMarkets != 3 || r.KalshiMarkets != 0 || r.Pairs != 0 {
		t.Errorf("report = %+v", r)
	}
	if poly.Calls() != 1 {
		t.Errorf("polymarket should still be fetched")
	}

	// The next cycle recovers once the venue does.
	kalshi.err = nil
	if r := e.RunCycle(context.Background()); r.Persisted != 2 {
		t.Errorf("recovered cycle persisted %d, want 2", r.Persisted)
	}
}

func TestRunCycleExecutorErrorContinues(t *testing.T) {
	poly, kalshi := venues()
	exec := &fakeExecutor{errFn: func(n int) error {
		if n == 1 {
			return &domain.UnreconciledExposureError{Sell: &domain.ExecutionLegError{Err: domain.ErrOrderRejected}}
		}
		return nil
	}}
	e := newEngine(t, poly, kalshi, exec, true, &storeRecorder{store: memory.NewOpportunityStore()})

	r := e.RunCycle(context.Background())

	if len(exec.seen) != 2 {
		t.Fatalf("executor saw %d opportunities, want 2", len(exec.seen))
	}
	for _, id := range exec.seen {
		if id == "" {
			t.Errorf("executor received an opportunity without an id")
		}
	}
	if r.Executed != 1 || r.ExecFailed != 1 || r.Unreconciled != 1 {
		t.Errorf("report = %+v", r)
	}
}

func TestRunCyclePersistFailureSkipsExecution(t *testing.T) {
	poly, kalshi := venues()
	exec := &fakeExecutor{}
	e := newEngine(t, poly, kalshi, exec, true, &storeRecorder{err: errors.New("db down")})

	r := e.RunCycle(context.Background())
	if r.PersistFailed != 2 || r.Persisted != 0 {
		t.Errorf("report = %+v", r)
	}
	if len(exec.seen) != 0 {
		t.Errorf("unpersisted opportunities must not be executed")
	}
}

// stuckRecorder blocks until its context ends, like a write waiting on a
// row lock or a dead connection.
type stuckRecorder struct{}

func (stuckRecorder) Record(ctx context.Context, opp domain.ArbitrageOpportunity) (domain.ArbitrageOpportunity, error) {
	<-ctx.Done()
	return opp, ctx.Err()
}

func TestRunCycleBoundsStuckStore(t *testing.T) {
	poly, kalshi := venues()
	exec := &fakeExecutor{}
	e := newEngine(t, poly, kalshi, exec, true, stuckRecorder{})
	e.timeout = 50 * time.Millisecond

	start := time.Now()
	r := e.RunCycle(context.WithoutCancel(context.Background()))
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("cycle took %s with a stuck store", elapsed)
	}
	if r.PersistFailed != 2 || r.Persisted != 0 {
		t.Errorf("report = %+v", r)
	}
	if len(exec.seen) != 0 {
		t.Error("unpersisted opportunities must not be executed")
	}
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	poly, kalshi := venues()
	e := newEngine(t, poly, kalshi, nil, false, &storeRecorder{store: memory.NewOpportunityStore()})
	e.lock = heldLock{}

	r := e.RunCycle(context.Background())
	if !r.LockSkipped {
		t.Fatalf("expected cycle to be skipped")
	}
	if poly.Calls()+kalshi.Calls() != 0 {
		t.Errorf("no venue may be fetched without the cycle lock")
	}
}

func TestRunStopsOnlyBetweenCycles(t *testing.T) {
	poly, kalshi := venues()
	poly.started = make(chan struct{})
	poly.release = make(chan struct{})
	store := memory.NewOpportunityStore()
	e := newEngine(t, poly, kalshi, nil, false, &storeRecorder{store: store})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	select {
	case <-poly.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle did not start immediately")
	}
	if e.State() != StateProcessing {
		t.Errorf("State = %s during a cycle", e.State())
	}

	cancel()
	select {
	case err := <-done:
		t.Fatalf("Run returned %v before the in-flight cycle finished", err)
	case <-time.After(50 * time.Millisecond):
	}

	poly.mu.Lock()
	fetchCtx := poly.lastCtx
	poly.mu.Unlock()
	if fetchCtx.Err() != nil {
		t.Errorf("in-flight cycle context was cancelled: %v", fetchCtx.Err())
	}

	close(poly.release)
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after the cycle finished")
	}

	if e.Cycles() != 1 {
		t.Errorf("Cycles = %d, want 1", e.Cycles())
	}
	saved, _ := store.ListRecent(context.Background(), 10)
	if len(saved) != 2 {
		t.Errorf("in-flight cycle should have persisted 2 opportunities, got %d", len(saved))
	}
}

func TestNewValidation(t *testing.T) {
	poly, kalshi := venues()
	_, err := New(Config{
		Polymarket:       poly,
		Kalshi:           kalshi,
		Matcher:          matching.TokenSimilarity{Threshold: 0.7},
		Calculator:       arbitrage.NewCalculator(decimal.Zero, arbitrage.FlatSizer{}),
		Recorder:         &storeRecorder{},
		ExecutionEnabled: true,
		Interval:         time.Second,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err == nil {
		t.Fatalf("expected error when execution is enabled without an executor")
	}

	e := newEngine(t, poly, kalshi, nil, false, &storeRecorder{})
	if e.timeout != DefaultCallTimeout {
		t.Errorf("call timeout = %s, want %s", e.timeout, DefaultCallTimeout)
	}
}
