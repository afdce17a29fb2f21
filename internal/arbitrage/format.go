package arbitrage

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// FormatPercentage renders a fraction as a percentage: 0.05 -> "5.00%".
func FormatPercentage(v decimal.Decimal) string {
	return v.Mul(hundred).StringFixed(2) + "%"
}

// FormatCurrency renders a dollar amount: 123.456 -> "$123.46".
func FormatCurrency(v decimal.Decimal) string {
	return "$" + v.StringFixed(2)
}

// ROI returns profit as a percentage of investment, or zero when nothing
// was invested.
func ROI(profit, investment decimal.Decimal) decimal.Decimal {
	if investment.IsZero() {
		return decimal.Zero
	}
	return profit.Div(investment).Mul(hundred)
}
