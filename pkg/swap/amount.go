package swap

import (
	"errors"
	"fmt"
	"math"

	"github.com/ccoveille/go-safecast"
	"github.com/shopspring/decimal"
)

const divisionPrecision = 32

var (
	ErrInvalidFeeSchedule = errors.New("invalid fee schedule")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrOutOfRangeAmount   = errors.New("amount out of range")

	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
	maxSats = decimal.NewFromInt(math.MaxInt64)
)

// AmountRangeError reports the send-denominated bounds an amount falls out of.
type AmountRangeError struct {
	Amount int64
	Min    int64
	Max    int64
}

func (e *AmountRangeError) Error() string {
	return fmt.Sprintf("amount %d must be between %d and %d", e.Amount, e.Min, e.Max)
}

func (e *AmountRangeError) Unwrap() error {
	return ErrOutOfRangeAmount
}

// FeeSchedule is the service fee of a swap pair: a percentage of the amount
// plus a fixed miner fee in sats.
type FeeSchedule struct {
	Percentage decimal.Decimal
	MinerFee   decimal.Decimal
}

func NewFeeSchedule(percentage, minerFee decimal.Decimal) (FeeSchedule, error) {
	if percentage.IsNegative() || percentage.GreaterThanOrEqual(hundred) {
		return FeeSchedule{}, fmt.Errorf(
			"%w: percentage %s must be in [0, 100)", ErrInvalidFeeSchedule, percentage,
		)
	}
	if minerFee.IsNegative() {
		return FeeSchedule{}, fmt.Errorf(
			"%w: negative miner fee %s", ErrInvalidFeeSchedule, minerFee,
		)
	}
	return FeeSchedule{Percentage: percentage, MinerFee: minerFee}, nil
}

func (f FeeSchedule) rate() decimal.Decimal {
	return f.Percentage.DivRound(hundred, divisionPrecision)
}

// SwapLimits are the bounds advertised by the service, receive-denominated
// for forward swaps.
type SwapLimits struct {
	Minimal uint64
	Maximal uint64
}

// Calculator converts between the amount sent into a swap and the amount
// received out of it. All results are whole, non negative sats: fees round
// up, received amounts round down.
type Calculator struct {
	Direction Direction
	Fees      FeeSchedule
}

func NewCalculator(direction Direction, fees FeeSchedule) Calculator {
	return Calculator{Direction: direction, Fees: fees}
}

func (c Calculator) ReceiveAmount(send int64) int64 {
	s := decimal.NewFromInt(send)
	m := c.Fees.MinerFee

	var receive decimal.Decimal
	switch c.Direction {
	case Reverse:
		receive = s.Sub(s.Mul(c.Fees.rate()).Ceil()).Sub(m)
	default:
		receive = s.Sub(m).DivRound(one.Add(c.Fees.rate()), divisionPrecision)
	}
	return clamp(receive.Floor())
}

// ServiceFee is the percentage fee charged on the given send amount.
func (c Calculator) ServiceFee(send int64) int64 {
	s := decimal.NewFromInt(send)
	m := c.Fees.MinerFee

	switch c.Direction {
	case Reverse:
		return clamp(s.Mul(c.Fees.rate()).Ceil())
	default:
		if s.LessThan(m) {
			return 0
		}
		receive := decimal.NewFromInt(c.ReceiveAmount(send))
		return clamp(s.Sub(receive).Sub(m).Ceil())
	}
}

func (c Calculator) SendAmount(receive int64) int64 {
	r := decimal.NewFromInt(receive)
	m := c.Fees.MinerFee

	switch c.Direction {
	case Reverse:
		return clamp(r.Add(m).DivRound(one.Sub(c.Fees.rate()), divisionPrecision).Ceil())
	default:
		return clamp(r.Add(r.Mul(c.Fees.rate()).Ceil()).Add(m).Floor())
	}
}

// ProjectedLimit expresses a service limit in send terms.
func (c Calculator) ProjectedLimit(limit uint64) int64 {
	l, err := safecast.ToInt64(limit)
	if err != nil {
		l = math.MaxInt64
	}
	if c.Direction == Forward {
		return c.SendAmount(l)
	}
	return l
}

func (c Calculator) SendLimits(limits SwapLimits) (int64, int64) {
	return c.ProjectedLimit(limits.Minimal), c.ProjectedLimit(limits.Maximal)
}

// ValidateSend checks the send amount against the projected limits. Zero is
// accepted as "no amount entered yet".
func (c Calculator) ValidateSend(send int64, limits SwapLimits) error {
	minimal, maximal := c.SendLimits(limits)
	if (send != 0 && send < minimal) || send > maximal {
		return &AmountRangeError{Amount: send, Min: minimal, Max: maximal}
	}
	return nil
}

func (c Calculator) ValidateReceive(receive int64) error {
	if receive < 0 {
		return fmt.Errorf("%w: negative receive amount %d", ErrInvalidAmount, receive)
	}
	return nil
}

// Sats converts a non negative amount to the unsigned form used on the wire.
func Sats(amount int64) (uint64, error) {
	sats, err := safecast.ToUint64(amount)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}
	return sats, nil
}

// clamp saturates d into [0, MaxInt64].
func clamp(d decimal.Decimal) int64 {
	if d.IsNegative() {
		return 0
	}
	if d.GreaterThan(maxSats) {
		return math.MaxInt64
	}
	return d.IntPart()
}
