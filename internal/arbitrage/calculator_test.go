package arbitrage

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func market(p domain.Platform, id, yes string) domain.Market {
	return domain.Market{ID: id, Platform: p, Question: "q", YesPrice: d(yes)}
}

func TestDirectionalProfit(t *testing.T) {
	tests := []struct {
		name      string
		buy, sell string
		want      string
	}{
		{"spread", "0.50", "0.51", "0.02"},
		{"negative floored", "0.55", "0.45", "0"},
		{"flat", "0.40", "0.40", "0"},
		{"zero buy", "0", "0.50", "0"},
		{"negative buy", "-0.10", "0.50", "0"},
		{"double", "0.25", "0.50", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DirectionalProfit(d(tt.buy), d(tt.sell))
			if !got.Equal(d(tt.want)) {
				t.Errorf("DirectionalProfit(%s, %s) = %s, want %s", tt.buy, tt.sell, got, tt.want)
			}
			if got.IsNegative() {
				t.Errorf("profit must never be negative, got %s", got)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	detected := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	calc := NewCalculator(d("0.02"), FlatSizer{Amount: d("100")}, WithClock(func() time.Time { return detected }))

	tests := []struct {
		name          string
		polyYes       string
		kalshiYes     string
		wantOK        bool
		wantBuy       domain.Platform
		wantProfit4dp string
	}{
		{"polymarket cheaper", "0.45", "0.55", true, domain.PlatformPolymarket, "0.2222"},
		{"kalshi cheaper", "0.55", "0.45", true, domain.PlatformKalshi, "0.2222"},
		{"profit equals minimum", "0.50", "0.51", false, "", ""},
		{"below minimum", "0.500", "0.505", false, "", ""},
		{"equal prices", "0.60", "0.60", false, "", ""},
		{"zero prices", "0", "0", false, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			poly := market(domain.PlatformPolymarket, "pm-1", tt.polyYes)
			kalshi := market(domain.PlatformKalshi, "KX-1", tt.kalshiYes)

			opp, ok := calc.Evaluate(poly, kalshi)
			if ok != tt.wantOK {
				t.Fatalf("Evaluate ok = %v, want %v (profit %s)", ok, tt.wantOK, opp.ProfitPercentage)
			}
			if !ok {
				return
			}
			if opp.BuyPlatform != tt.wantBuy {
				t.Errorf("BuyPlatform = %s, want %s", opp.BuyPlatform, tt.wantBuy)
			}
			if opp.BuyPlatform == opp.SellPlatform {
				t.Errorf("buy and sell platform must differ")
			}
			if !opp.SellPrice.GreaterThan(opp.BuyPrice) {
				t.Errorf("sell %s must exceed buy %s", opp.SellPrice, opp.BuyPrice)
			}
			if got := opp.ProfitPercentage.Round(4); !got.Equal(d(tt.wantProfit4dp)) {
				t.Errorf("ProfitPercentage = %s, want ~%s", opp.ProfitPercentage, tt.wantProfit4dp)
			}
			if !opp.EstimatedProfit.Equal(opp.PositionSize.Mul(opp.ProfitPercentage)) {
				t.Errorf("EstimatedProfit %s != size*profit", opp.EstimatedProfit)
			}
			if !opp.PositionSize.Equal(d("100")) {
				t.Errorf("PositionSize = %s, want 100", opp.PositionSize)
			}
			if opp.PolymarketMarketID != "pm-1" || opp.KalshiMarketID != "KX-1" {
				t.Errorf("market ids not carried: %+v", opp)
			}
			if !opp.DetectedAt.Equal(detected) {
				t.Errorf("DetectedAt = %v, want %v", opp.DetectedAt, detected)
			}
			if opp.Executed {
				t.Errorf("new opportunity must not be executed")
			}
		})
	}
}

func TestEvaluatePicksLargerDirection(t *testing.T) {
	calc := NewCalculator(decimal.Zero, FlatSizer{Amount: d("10")})
	// Only one direction can be positive for a pair; the larger one must win.
	for _, prices := range [][2]string{{"0.10", "0.90"}, {"0.90", "0.10"}, {"0.33", "0.34"}} {
		poly := market(domain.PlatformPolymarket, "pm", prices[0])
		kalshi := market(domain.PlatformKalshi, "kx", prices[1])
		opp, ok := calc.Evaluate(poly, kalshi)
		if !ok {
			t.Fatalf("expected opportunity for %v", prices)
		}
		p1 := DirectionalProfit(poly.YesPrice, kalshi.YesPrice)
		p2 := DirectionalProfit(kalshi.YesPrice, poly.YesPrice)
		if !opp.ProfitPercentage.Equal(decimal.Max(p1, p2)) {
			t.Errorf("%v: profit %s, want max(%s, %s)", prices, opp.ProfitPercentage, p1, p2)
		}
	}
}

func TestEvaluateTiePrefersPolymarketBuy(t *testing.T) {
	calc := NewCalculator(d("-1"), FlatSizer{Amount: d("10")})
	opp, ok := calc.Evaluate(
		market(domain.PlatformPolymarket, "pm", "0.40"),
		market(domain.PlatformKalshi, "kx", "0.40"),
	)
	if !ok {
		t.Fatalf("expected acceptance with negative minimum")
	}
	if opp.BuyPlatform != domain.PlatformPolymarket {
		t.Errorf("tie should prefer buying on polymarket, got %s", opp.BuyPlatform)
	}
}

func TestFormatting(t *testing.T) {
	if got := FormatPercentage(d("0.05")); got != "5.00%" {
		t.Errorf("FormatPercentage = %q", got)
	}
	if got := FormatPercentage(d("0.2222222222")); got != "22.22%" {
		t.Errorf("FormatPercentage = %q", got)
	}
	if got := FormatCurrency(d("123.45")); got != "$123.45" {
		t.Errorf("FormatCurrency = %q", got)
	}
	if got := FormatCurrency(d("7")); got != "$7.00" {
		t.Errorf("FormatCurrency = %q", got)
	}
	if got := ROI(d("5"), d("100")); !got.Equal(d("5")) {
		t.Errorf("ROI = %s, want 5", got)
	}
	if got := ROI(d("5"), decimal.Zero); !got.IsZero() {
		t.Errorf("ROI with zero investment = %s, want 0", got)
	}
}
