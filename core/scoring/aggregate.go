package scoring

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// TotalScore sums the awarded points of all results, rounded to 2 places.
// Rounding is half away from zero, so 0.125 becomes 0.13.
func TotalScore(results []ScoreResult) decimal.Decimal {
	total := decimal.Zero
	for _, r := range results {
		total = total.Add(r.AwardedPoints)
	}
	return total.Round(Places)
}

// MaxScore sums the maximum points of all questions, rounded to 2 places.
func MaxScore(specs []QuestionSpec) decimal.Decimal {
	total := decimal.Zero
	for _, s := range specs {
		total = total.Add(s.MaxPoints())
	}
	return total.Round(Places)
}

// Percentage returns total/max*100 rounded to 2 places, or 0 when max is 0.
func Percentage(total, max decimal.Decimal) decimal.Decimal {
	if max.IsZero() {
		return decimal.Zero
	}
	return total.Div(max).Mul(hundred).Round(Places)
}
