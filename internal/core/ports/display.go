package ports

import (
	"context"

	"github.com/ArkLabsHQ/subswap/internal/core/domain"
	"github.com/shopspring/decimal"
)

// UnitProvider gives the unit amounts are presented in.
type UnitProvider interface {
	Unit() domain.Unit
	FiatCurrency() string
	// FiatRate is the price of 1 BTC in FiatCurrency.
	FiatRate(ctx context.Context) (decimal.Decimal, error)
}

// Navigator is triggered with the final receive amount once a swap is
// configured.
type Navigator interface {
	NavigateToReceive(ctx context.Context, request domain.ReceiveRequest) error
}
