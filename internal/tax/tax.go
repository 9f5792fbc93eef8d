// Package tax supplies the sales-tax policy injected into the service.
// The transaction engine itself never hardcodes a rate; swapping the
// policy changes every subsequent sale without touching the engine.
package tax

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Policy yields the tax rate applied to a sale's subtotal, in percent.
type Policy interface {
	RatePercent() decimal.Decimal
}

// FlatRate taxes every sale at the same percentage.
type FlatRate struct {
	rate decimal.Decimal
}

func NewFlatRate(ratePercent decimal.Decimal) (FlatRate, error) {
	if ratePercent.IsNegative() || ratePercent.GreaterThan(decimal.NewFromInt(100)) {
		return FlatRate{}, fmt.Errorf("tax rate %s%% out of range [0, 100]", ratePercent)
	}
	return FlatRate{rate: ratePercent}, nil
}

func (f FlatRate) RatePercent() decimal.Decimal {
	return f.rate
}
