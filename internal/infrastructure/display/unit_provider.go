package display

import (
	"context"
	"fmt"

	"github.com/ArkLabsHQ/subswap/internal/core/domain"
	"github.com/ArkLabsHQ/subswap/internal/core/ports"
	"github.com/shopspring/decimal"
)

type staticUnitProvider struct {
	unit     domain.Unit
	currency string
	rate     decimal.Decimal
}

// NewStaticUnitProvider presents amounts in a fixed unit. For fiat, rate is
// the configured price of 1 BTC in currency.
func NewStaticUnitProvider(unit, currency, rate string) (ports.UnitProvider, error) {
	u, err := domain.ParseUnit(unit)
	if err != nil {
		return nil, err
	}

	var fiatRate decimal.Decimal
	if rate != "" {
		fiatRate, err = decimal.NewFromString(rate)
		if err != nil {
			return nil, fmt.Errorf("invalid fiat rate %q: %w", rate, err)
		}
	}
	if u == domain.UnitFiat && (currency == "" || !fiatRate.IsPositive()) {
		return nil, fmt.Errorf("fiat unit requires a currency and a positive rate")
	}

	return &staticUnitProvider{unit: u, currency: currency, rate: fiatRate}, nil
}

func (p *staticUnitProvider) Unit() domain.Unit {
	return p.unit
}

func (p *staticUnitProvider) FiatCurrency() string {
	return p.currency
}

func (p *staticUnitProvider) FiatRate(_ context.Context) (decimal.Decimal, error) {
	if !p.rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("fiat rate not configured")
	}
	return p.rate, nil
}
