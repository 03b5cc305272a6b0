package domain

import (
	"time"

	"github.com/ArkLabsHQ/subswap/pkg/swap"
)

// Quote is the fee schedule and limits of a swap pair, as advertised by the
// swap service.
type Quote struct {
	Direction swap.Direction
	Fees      swap.FeeSchedule
	Limits    swap.SwapLimits
	PairHash  string
	FetchedAt time.Time
}

func (q Quote) Calculator() swap.Calculator {
	return swap.NewCalculator(q.Direction, q.Fees)
}

// Estimate is a quote applied to an amount.
type Estimate struct {
	Direction  swap.Direction
	Send       int64
	Receive    int64
	ServiceFee int64
	MinerFee   int64
	MinSend    int64
	MaxSend    int64
	OutOfRange bool

	DisplaySend    string
	DisplayReceive string
	DisplayFee     string
}
