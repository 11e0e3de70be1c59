// README: Tax-aware invoice computation. German VAT: 7% for food lines, 19%
// otherwise; the delivery fee is always 19%. Stored prices are gross, so
// net = gross / (1 + rate), rounded half-up at 2 decimals, and the tax is the
// exact remainder so net + tax always reconciles to the gross total.
package invoice

import (
	"fmt"

	"github.com/shopspring/decimal"

	"spaeti/internal/types"
)

var (
	RateFood     = decimal.RequireFromString("0.07")
	RateStandard = decimal.RequireFromString("0.19")

	one = decimal.NewFromInt(1)
)

const CategoryFood = "food"

// LineInput is one gross position to be split into net and tax.
type LineInput struct {
	Gross    types.Money
	Category string
	// Override replaces the category-derived rate when set.
	Override *types.Money
}

// Totals is the per-rate-bucket breakdown of an invoice.
type Totals struct {
	Net7  types.Money
	Tax7  types.Money
	Net19 types.Money
	Tax19 types.Money
	Gross types.Money
}

// lineRate resolves the applicable tax rate for a line.
func lineRate(l LineInput) types.Money {
	if l.Override != nil {
		return *l.Override
	}
	if l.Category == CategoryFood {
		return RateFood
	}
	return RateStandard
}

// Compute splits every line plus the delivery fee into net and tax and
// accumulates the two rate buckets. A rate outside the two legal buckets is
// an integrity violation and fails the computation.
func Compute(lines []LineInput, deliveryFee types.Money) (Totals, error) {
	var t Totals
	all := make([]LineInput, 0, len(lines)+1)
	all = append(all, lines...)
	all = append(all, LineInput{Gross: deliveryFee, Override: &RateStandard})

	for _, l := range all {
		rate := lineRate(l)
		net := l.Gross.DivRound(one.Add(rate), 2)
		tax := l.Gross.Sub(net)
		switch {
		case rate.Equal(RateFood):
			t.Net7 = t.Net7.Add(net)
			t.Tax7 = t.Tax7.Add(tax)
		case rate.Equal(RateStandard):
			t.Net19 = t.Net19.Add(net)
			t.Tax19 = t.Tax19.Add(tax)
		default:
			return Totals{}, fmt.Errorf("unsupported tax rate %s", rate)
		}
		t.Gross = t.Gross.Add(l.Gross)
	}
	return t, nil
}
