package matching

import (
	"math"
	"testing"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
)

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "Will BTC close above 100k", "will btc close above 100k", 1},
		{"disjoint", "rain in london", "fed cuts rates", 0},
		{"both empty", "", "   ", 0},
		{"one empty", "", "fed cuts rates", 0},
		{"half", "a b", "b c", 1.0 / 3.0},
		{"duplicates collapse", "yes yes no", "yes no", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Jaccard(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Jaccard(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if rev := Jaccard(tt.b, tt.a); rev != got {
				t.Errorf("Jaccard not symmetric: %v vs %v", got, rev)
			}
			if got < 0 || got > 1 {
				t.Errorf("Jaccard out of bounds: %v", got)
			}
		})
	}
}

func mk(p domain.Platform, id, q string) domain.Market {
	return domain.Market{ID: id, Platform: p, Question: q}
}

func TestTokenSimilarityStrictThreshold(t *testing.T) {
	// 7 shared tokens, union of 10: similarity is exactly 0.7.
	poly := []domain.Market{mk(domain.PlatformPolymarket, "pm", "a b c d e f g x y")}
	kalshi := []domain.Market{mk(domain.PlatformKalshi, "kx", "a b c d e f g z")}

	if got := Jaccard(poly[0].Question, kalshi[0].Question); got != 0.7 {
		t.Fatalf("setup: similarity = %v, want 0.7", got)
	}
	if pairs := (TokenSimilarity{Threshold: 0.7}).Match(poly, kalshi); len(pairs) != 0 {
		t.Errorf("similarity equal to threshold must not match, got %d pairs", len(pairs))
	}
	if pairs := (TokenSimilarity{Threshold: 0.69}).Match(poly, kalshi); len(pairs) != 1 {
		t.Errorf("expected one pair below threshold, got %d", len(pairs))
	}
}

func TestTokenSimilarityManyToMany(t *testing.T) {
	poly := []domain.Market{
		mk(domain.PlatformPolymarket, "pm-1", "Will the Fed cut rates in March"),
		mk(domain.PlatformPolymarket, "pm-2", "will the fed cut rates in march"),
		mk(domain.PlatformPolymarket, "pm-3", ""),
	}
	kalshi := []domain.Market{
		mk(domain.PlatformKalshi, "KX-1", "Will the Fed cut rates in March"),
		mk(domain.PlatformKalshi, "KX-2", "Who wins the Super Bowl"),
		mk(domain.PlatformKalshi, "KX-3", ""),
	}
	pairs := TokenSimilarity{Threshold: DefaultThreshold}.Match(poly, kalshi)
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d: %+v", len(pairs), pairs)
	}
	for _, p := range pairs {
		if p.Kalshi.ID != "KX-1" {
			t.Errorf("unexpected kalshi match %s", p.Kalshi.ID)
		}
		if p.Polymarket.ID == "pm-3" {
			t.Errorf("empty question must never match")
		}
	}
}

func TestThresholdMonotonic(t *testing.T) {
	poly := []domain.Market{
		mk(domain.PlatformPolymarket, "1", "will btc hit 100k by june"),
		mk(domain.PlatformPolymarket, "2", "will eth hit 5k by june"),
		mk(domain.PlatformPolymarket, "3", "trump wins 2028 election"),
	}
	kalshi := []domain.Market{
		mk(domain.PlatformKalshi, "a", "will btc hit 100k by july"),
		mk(domain.PlatformKalshi, "b", "will eth hit 5k by june"),
		mk(domain.PlatformKalshi, "c", "who wins 2028 election"),
	}
	prev := math.MaxInt
	for _, th := range []float64{0, 0.2, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1} {
		n := len(TokenSimilarity{Threshold: th}.Match(poly, kalshi))
		if n > prev {
			t.Fatalf("threshold %v matched %d pairs, more than %d at a lower threshold", th, n, prev)
		}
		prev = n
	}
	if prev != 0 {
		t.Errorf("threshold 1 should match nothing, got %d", prev)
	}
}

func TestEmbeddingSimilarity(t *testing.T) {
	s := EmbeddingSimilarity{Embedder: HashingEmbedder{}, Threshold: 0.8}
	poly := []domain.Market{
		mk(domain.PlatformPolymarket, "pm-1", "Will it rain in London tomorrow"),
		mk(domain.PlatformPolymarket, "pm-2", ""),
	}
	kalshi := []domain.Market{
		mk(domain.PlatformKalshi, "KX-1", "will it rain in london tomorrow"),
		mk(domain.PlatformKalshi, "KX-2", ""),
	}
	pairs := s.Match(poly, kalshi)
	if len(pairs) != 1 || pairs[0].Polymarket.ID != "pm-1" || pairs[0].Kalshi.ID != "KX-1" {
		t.Fatalf("unexpected pairs: %+v", pairs)
	}

	v := HashingEmbedder{Dims: 64}.Embed("a b c")
	if got := Cosine(v, v); math.Abs(got-1) > 1e-9 {
		t.Errorf("Cosine(v, v) = %v, want 1", got)
	}
	if got := Cosine(v, make([]float64, 64)); got != 0 {
		t.Errorf("Cosine with zero vector = %v, want 0", got)
	}
}

func TestCanonicalJoin(t *testing.T) {
	s := CanonicalJoin{Links: map[string]string{"pm-1": "KX-1", "pm-9": "KX-9"}}
	poly := []domain.Market{
		mk(domain.PlatformPolymarket, "pm-1", "anything"),
		mk(domain.PlatformPolymarket, "pm-2", "anything"),
	}
	kalshi := []domain.Market{
		mk(domain.PlatformKalshi, "KX-1", "completely different wording"),
		mk(domain.PlatformKalshi, "KX-2", "anything"),
	}
	pairs := s.Match(poly, kalshi)
	if len(pairs) != 1 || pairs[0].Polymarket.ID != "pm-1" || pairs[0].Kalshi.ID != "KX-1" {
		t.Fatalf("unexpected pairs: %+v", pairs)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(Options{Threshold: DefaultThreshold, EmbeddingThreshold: 0.9})
	names := r.List()
	want := []string{"canonical", "embedding", "token"}
	if len(names) != len(want) {
		t.Fatalf("List() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("List() = %v, want %v", names, want)
		}
	}
	s, err := r.Get("token")
	if err != nil {
		t.Fatalf("Get(token): %v", err)
	}
	if ts, ok := s.(TokenSimilarity); !ok || ts.Threshold != DefaultThreshold {
		t.Errorf("Get(token) = %#v", s)
	}
	if _, err := r.Get("fuzzy"); err == nil {
		t.Errorf("expected error for unknown strategy")
	}
}
