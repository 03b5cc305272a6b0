package swap

import (
	"fmt"
	"strings"
)

// Direction of a swap, fixed for the whole life of a session.
type Direction int

const (
	// Forward swaps on-chain funds for a Lightning payment (submarine swap).
	Forward Direction = iota
	// Reverse swaps a Lightning payment for on-chain funds.
	Reverse
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return "unknown"
	}
}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "forward", "submarine":
		return Forward, nil
	case "reverse":
		return Reverse, nil
	default:
		return 0, fmt.Errorf("unknown swap direction %q", s)
	}
}

type SwapStatus int

const (
	Created SwapStatus = iota
	InvoiceSet
	ClaimPending
	Claimed
	Failed
)

func (s SwapStatus) String() string {
	switch s {
	case Created:
		return "created"
	case InvoiceSet:
		return "invoice_set"
	case ClaimPending:
		return "claim_pending"
	case Claimed:
		return "claimed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s SwapStatus) IsTerminal() bool {
	return s == Claimed || s == Failed
}

// SwapEvent is emitted to the session callback on every status change.
type SwapEvent struct {
	SwapId string
	Status SwapStatus
	// ServiceStatus is the raw status reported by the swap service that
	// caused the transition, empty for local transitions.
	ServiceStatus string
	ClaimTxId     string
	Err           error
}

type EventCallback func(SwapEvent)
