package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/store/memory"
)

// fakeBucket is an in-memory BlobWriter and BlobReader.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}, types: map[string]string{}}
}

func (b *fakeBucket) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if b.putErr != nil {
		return b.putErr
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[path] = buf
	b.types[path] = contentType
	return nil
}

func (b *fakeBucket) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return b.Put(ctx, path, data, "multipart")
}

func (b *fakeBucket) Exists(_ context.Context, path string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[path]
	return ok, nil
}

func TestArchiveDay(t *testing.T) {
	ctx := context.Background()
	opps := memory.NewOpportunityStore()
	legs := memory.NewLegStore()
	audit := memory.NewAuditStore()
	bucket := newFakeBucket()

	day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	in := domain.ArbitrageOpportunity{
		PolymarketMarketID: "pm-1", KalshiMarketID: "KX-1",
		BuyPlatform: domain.PlatformPolymarket, SellPlatform: domain.PlatformKalshi,
		BuyPrice: decimal.RequireFromString("0.40"), SellPrice: decimal.RequireFromString("0.50"),
		ProfitPercentage: decimal.RequireFromString("0.25"), PositionSize: decimal.NewFromInt(100),
		EstimatedProfit: decimal.NewFromInt(25), DetectedAt: day.Add(13 * time.Hour),
	}
	id, err := opps.Save(ctx, in)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	outside := in
	outside.DetectedAt = day.Add(24 * time.Hour)
	if _, err := opps.Save(ctx, outside); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := legs.CreateLegs(ctx, []domain.ExecutionLeg{{
		ID: "leg-1", OpportunityID: id, Side: domain.OrderSideBuy, Platform: domain.PlatformPolymarket,
		MarketID: "pm-1", Price: in.BuyPrice, Size: in.PositionSize, Status: domain.LegStatusPlaced,
		CreatedAt: day.Add(13 * time.Hour), UpdatedAt: day.Add(13 * time.Hour),
	}}); err != nil {
		t.Fatalf("CreateLegs: %v", err)
	}

	a := NewArchiver(bucket, bucket, opps, legs, audit)

	// Any instant within the day selects the whole UTC day.
	res, err := a.ArchiveDay(ctx, day.Add(20*time.Hour))
	if err != nil {
		t.Fatalf("ArchiveDay: %v", err)
	}
	if res.Skipped || res.Opportunities != 1 || res.Legs != 1 || !res.Day.Equal(day) {
		t.Errorf("result = %+v", res)
	}

	data := bucket.objects["archive/opportunities/2025-03-14.jsonl"]
	sc := bufio.NewScanner(bytes.NewReader(data))
	lines := 0
	for sc.Scan() {
		var got domain.ArbitrageOpportunity
		if err := json.Unmarshal(sc.Bytes(), &got); err != nil {
			t.Fatalf("line %d: %v", lines, err)
		}
		if got.ID != id || !got.BuyPrice.Equal(in.BuyPrice) {
			t.Errorf("archived %+v", got)
		}
		lines++
	}
	if lines != 1 {
		t.Errorf("archived %d opportunity lines, want 1", lines)
	}
	if bucket.types["archive/legs/2025-03-14.jsonl"] != jsonlContentType {
		t.Errorf("legs content type = %q", bucket.types["archive/legs/2025-03-14.jsonl"])
	}

	entries, _ := audit.List(ctx, domain.ListOpts{})
	if len(entries) != 1 || entries[0].Event != "archive.day" {
		t.Errorf("audit entries = %+v", entries)
	}

	// Source rows stay; a second run is skipped.
	if all, _ := opps.ListRecent(ctx, 0); len(all) != 2 {
		t.Errorf("source rows = %d, want 2", len(all))
	}
	again, err := a.ArchiveDay(ctx, day)
	if err != nil || !again.Skipped {
		t.Errorf("second run = %+v, %v; want skipped", again, err)
	}
}

func TestArchiveDayUploadError(t *testing.T) {
	bucket := newFakeBucket()
	bucket.putErr = errors.New("denied")
	a := NewArchiver(bucket, nil, memory.NewOpportunityStore(), memory.NewLegStore(), nil)

	if _, err := a.ArchiveDay(context.Background(), time.Now()); !errors.Is(err, bucket.putErr) {
		t.Errorf("err = %v, want wrapped upload error", err)
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		useSSL bool
		want   string
	}{
		{"https://s3.example.com", false, "https://s3.example.com"},
		{"minio:9000", false, "http://minio:9000"},
		{"r2.example.com", true, "https://r2.example.com"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.in, tt.useSSL); got != tt.want {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tt.in, tt.useSSL, got, tt.want)
		}
	}
}

func TestArchivePath(t *testing.T) {
	day := time.Date(2025, 1, 31, 23, 59, 0, 0, time.UTC)
	if got := archivePath("legs", startOfDay(day)); got != "archive/legs/2025-01-31.jsonl" {
		t.Errorf("archivePath = %q", got)
	}
	local := time.Date(2025, 2, 1, 1, 0, 0, 0, time.FixedZone("UTC+3", 3*3600))
	if got := startOfDay(local); !got.Equal(time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("startOfDay = %v", got)
	}
}
