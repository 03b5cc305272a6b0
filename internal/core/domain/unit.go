package domain

import (
	"fmt"
	"strings"

	"github.com/ArkLabsHQ/subswap/pkg/swap"
	"github.com/shopspring/decimal"
)

// Unit is the display unit of amounts. It never affects computation.
type Unit string

const (
	UnitSat  Unit = "sat"
	UnitBtc  Unit = "btc"
	UnitFiat Unit = "fiat"
)

var satsPerBtc = decimal.NewFromInt(100_000_000)

func ParseUnit(unit string) (Unit, error) {
	switch u := Unit(strings.ToLower(strings.TrimSpace(unit))); u {
	case UnitSat, UnitBtc, UnitFiat:
		return u, nil
	case "sats":
		return UnitSat, nil
	default:
		return "", fmt.Errorf("unknown unit %q, must be one of sat, btc, fiat", unit)
	}
}

// FormatAmount renders sats in unit. rate is the price of 1 BTC in currency
// and is only used for UnitFiat.
func FormatAmount(sats int64, unit Unit, rate decimal.Decimal, currency string) string {
	amount := decimal.NewFromInt(sats)
	switch unit {
	case UnitBtc:
		return amount.Div(satsPerBtc).StringFixed(8) + " BTC"
	case UnitFiat:
		return amount.Div(satsPerBtc).Mul(rate).StringFixed(2) + " " + strings.ToUpper(currency)
	default:
		return amount.String() + " sats"
	}
}

// ReceiveRequest is handed to the navigator once a swap is configured.
type ReceiveRequest struct {
	Direction swap.Direction
	Send      int64
	Receive   int64
	Fee       int64
	Display   string
}
