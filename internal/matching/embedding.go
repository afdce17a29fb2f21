package matching

import (
	"hash/fnv"
	"math"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
)

// Embedder maps a question to a fixed-length vector.
type Embedder interface {
	Embed(text string) []float64
}

// HashingEmbedder is a feature-hashed bag of lower-cased tokens. It needs
// no model and gives the same vector for the same token set.
type HashingEmbedder struct {
	Dims int
}

const defaultEmbeddingDims = 256

func (h HashingEmbedder) Embed(text string) []float64 {
	dims := h.Dims
	if dims <= 0 {
		dims = defaultEmbeddingDims
	}
	vec := make([]float64, dims)
	for tok := range tokens(text) {
		f := fnv.New32a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum32()
		sign := 1.0
		if sum&0x80000000 != 0 {
			sign = -1.0
		}
		vec[int(sum%uint32(dims))] += sign
	}
	return vec
}

// Cosine returns the cosine similarity of a and b, or 0 if either is a
// zero vector or the lengths differ.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// EmbeddingSimilarity matches questions whose embeddings have cosine
// similarity strictly above Threshold.
type EmbeddingSimilarity struct {
	Embedder  Embedder
	Threshold float64
}

func (EmbeddingSimilarity) Name() string { return "embedding" }

func (s EmbeddingSimilarity) Match(poly, kalshi []domain.Market) []Pair {
	kv := make([][]float64, len(kalshi))
	for i, k := range kalshi {
		kv[i] = s.Embedder.Embed(k.Question)
	}
	var out []Pair
	for _, p := range poly {
		pv := s.Embedder.Embed(p.Question)
		for i, k := range kalshi {
			if Cosine(pv, kv[i]) > s.Threshold {
				out = append(out, Pair{Polymarket: p, Kalshi: k})
			}
		}
	}
	return out
}
