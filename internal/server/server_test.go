package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/server/handler"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/server/ws"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/service"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	svc  *service.OpportunityService
	legs *memory.LegStore
	opp  domain.ArbitrageOpportunity
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	opps := memory.NewOpportunityStore()
	legs := memory.NewLegStore()
	svc := service.NewOpportunityService(opps, legs, nil, nil, nil, discardLogger())

	now := time.Now().UTC()
	opp, err := svc.Record(ctx, domain.ArbitrageOpportunity{
		PolymarketMarketID: "pm-1", KalshiMarketID: "KX-1",
		BuyPlatform: domain.PlatformPolymarket, SellPlatform: domain.PlatformKalshi,
		BuyPrice: decimal.RequireFromString("0.40"), SellPrice: decimal.RequireFromString("0.50"),
		ProfitPercentage: decimal.RequireFromString("0.25"), PositionSize: decimal.NewFromInt(100),
		EstimatedProfit: decimal.NewFromInt(25), DetectedAt: now,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	buy := domain.ExecutionLeg{
		ID: "leg-buy", OpportunityID: opp.ID, Side: domain.OrderSideBuy, Platform: domain.PlatformPolymarket,
		MarketID: "pm-1", Price: opp.BuyPrice, Size: opp.PositionSize, Status: domain.LegStatusPlaced,
		OrderID: "o-1", CreatedAt: now, UpdatedAt: now,
	}
	sell := buy
	sell.ID, sell.Side, sell.Platform, sell.MarketID, sell.Status, sell.OrderID = "leg-sell", domain.OrderSideSell, domain.PlatformKalshi, "KX-1", domain.LegStatusFailed, ""
	if err := legs.CreateLegs(ctx, []domain.ExecutionLeg{buy, sell}); err != nil {
		t.Fatalf("CreateLegs: %v", err)
	}
	return fixture{svc: svc, legs: legs, opp: opp}
}

func newTestRouter(t *testing.T, cfg Config, checks map[string]handler.HealthCheck, limiter domain.RateLimiter) (http.Handler, fixture) {
	t.Helper()
	f := newFixture(t)
	h := Handlers{
		Health:        handler.NewHealthHandler("monitor", checks, func() string { return "idle" }, discardLogger()),
		Opportunities: handler.NewOpportunityHandler(f.svc, discardLogger()),
	}
	return NewRouter(cfg, h, nil, limiter, discardLogger()), f
}

func do(t *testing.T, h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	router, f := newTestRouter(t, Config{}, nil, nil)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"health", "/api/health", http.StatusOK, `"engine_state":"idle"`},
		{"recent", "/api/opportunities/recent?limit=5", http.StatusOK, f.opp.ID},
		{"get", "/api/opportunities/" + f.opp.ID, http.StatusOK, `"legs":[`},
		{"get missing", "/api/opportunities/nope", http.StatusNotFound, "opportunity not found"},
		{"unreconciled", "/api/legs/unreconciled", http.StatusOK, "leg-buy"},
		{"unknown route", "/api/markets", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, tt.path, nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body %s does not contain %q", rec.Body, tt.wantBody)
			}
		})
	}
}

func TestGetOpportunityPayload(t *testing.T) {
	router, f := newTestRouter(t, Config{}, nil, nil)
	rec := do(t, router, "/api/opportunities/"+f.opp.ID, nil)

	var body struct {
		Opportunity domain.ArbitrageOpportunity `json:"opportunity"`
		Legs        []domain.ExecutionLeg       `json:"legs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Opportunity.ID != f.opp.ID || !body.Opportunity.BuyPrice.Equal(f.opp.BuyPrice) {
		t.Errorf("opportunity = %+v", body.Opportunity)
	}
	if len(body.Legs) != 2 || body.Legs[0].Side != domain.OrderSideBuy {
		t.Errorf("legs = %+v", body.Legs)
	}
}

func TestAuth(t *testing.T) {
	router, _ := newTestRouter(t, Config{APIKey: "s3cret"}, nil, nil)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"health is open", "/api/health", nil, http.StatusOK},
		{"missing token", "/api/opportunities/recent", nil, http.StatusUnauthorized},
		{"wrong token", "/api/opportunities/recent", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"bearer", "/api/opportunities/recent", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
		{"x-api-key", "/api/legs/unreconciled", map[string]string{"X-API-Key": "s3cret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, router, tt.path, tt.header); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHealthDegraded(t *testing.T) {
	checks := map[string]handler.HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("down") },
	}
	router, _ := newTestRouter(t, Config{}, checks, nil)

	rec := do(t, router, "/api/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	checksOut, _ := body["checks"].(map[string]any)
	if body["status"] != "degraded" || checksOut["redis"] != "error" || checksOut["postgres"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

type countingLimiter struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[key]++
	return l.calls[key] <= limit, nil
}

func TestRateLimit(t *testing.T) {
	limiter := &countingLimiter{calls: map[string]int{}}
	router, _ := newTestRouter(t, Config{RateLimit: 2, RateLimitWindow: time.Minute}, nil, limiter)

	hdr := map[string]string{"X-Real-IP": "203.0.113.7"}
	for i := 0; i < 2; i++ {
		if rec := do(t, router, "/api/health", hdr); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := do(t, router, "/api/health", hdr)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if limiter.calls["api:203.0.113.7"] != 3 {
		t.Errorf("limiter keys = %v", limiter.calls)
	}

	// Limiter failures fail open.
	limiter.err = errors.New("redis down")
	if rec := do(t, router, "/api/health", hdr); rec.Code != http.StatusOK {
		t.Errorf("status with failing limiter = %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	router, _ := newTestRouter(t, Config{CORSOrigins: []string{"https://dash.example.com"}}, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/opportunities/recent", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

// chanBus is a SignalBus whose subscription is a plain channel.
type chanBus struct {
	ch     chan []byte
	stream []domain.StreamMessage
}

func (b *chanBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.ch <- payload
	return nil
}

func (b *chanBus) Subscribe(context.Context, string) (<-chan []byte, error) { return b.ch, nil }

func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *chanBus) StreamRead(_ context.Context, _ string, lastID string, _ int) ([]domain.StreamMessage, error) {
	var out []domain.StreamMessage
	for _, m := range b.stream {
		if m.ID > lastID {
			out = append(out, m)
		}
	}
	return out, nil
}

func TestWebSocketFeed(t *testing.T) {
	bus := &chanBus{
		ch:     make(chan []byte, 4),
		stream: []domain.StreamMessage{{ID: "1-0", Payload: []byte(`{"old":1}`)}, {ID: "2-0", Payload: []byte(`{"old":2}`)}},
	}
	hub := ws.NewHub(bus, discardLogger(), ws.Config{Channel: "arb:opportunities", Stream: "stream:arb:opportunities", Mode: "monitor"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	f := newFixture(t)
	h := Handlers{
		Health:        handler.NewHealthHandler("monitor", nil, nil, discardLogger()),
		Opportunities: handler.NewOpportunityHandler(f.svc, discardLogger()),
	}
	srv := httptest.NewServer(NewRouter(Config{}, h, hub, nil, discardLogger()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?since=1-0"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	read := func() string {
		t.Helper()
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		return string(msg)
	}

	if got := read(); !strings.Contains(got, `"bot_status"`) {
		t.Errorf("first frame = %s", got)
	}
	if got := read(); got != `{"old":2}` {
		t.Errorf("replayed frame = %s", got)
	}

	// Wait for registration before publishing.
	for i := 0; hub.ClientCount() == 0 && i < 100; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	_ = bus.Publish(ctx, "arb:opportunities", []byte(`{"event":"opportunity_detected"}`))
	if got := read(); got != `{"event":"opportunity_detected"}` {
		t.Errorf("live frame = %s", got)
	}
}
