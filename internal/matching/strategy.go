// Package matching pairs Polymarket and Kalshi markets that ask the same
// real-world question.
package matching

import (
	"strings"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
)

// DefaultThreshold is the similarity a pair must strictly exceed.
const DefaultThreshold = 0.7

// Pair is one matched market from each venue.
type Pair struct {
	Polymarket domain.Market
	Kalshi     domain.Market
}

// Strategy decides which cross-venue market pairs are equivalent. A market
// may appear in several pairs; strategies never deduplicate.
type Strategy interface {
	Name() string
	Match(poly, kalshi []domain.Market) []Pair
}

// tokens lower-cases q and splits it on whitespace into a set.
func tokens(q string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(q))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// pairwise runs fn over the full cross product and keeps the pairs it
// accepts.
func pairwise(poly, kalshi []domain.Market, fn func(p, k domain.Market) bool) []Pair {
	var out []Pair
	for _, p := range poly {
		for _, k := range kalshi {
			if fn(p, k) {
				out = append(out, Pair{Polymarket: p, Kalshi: k})
			}
		}
	}
	return out
}
