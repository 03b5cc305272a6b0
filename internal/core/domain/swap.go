package domain

import (
	"context"
	"errors"
	"time"

	"github.com/ArkLabsHQ/subswap/pkg/swap"
)

var ErrSwapNotFound = errors.New("swap not found")

// Swap is the persisted record of a swap session. It never holds keys,
// preimages or nonces.
type Swap struct {
	Id             string
	Direction      swap.Direction
	Status         swap.SwapStatus
	Invoice        string
	LockupAddress  string
	Destination    string
	ExpectedAmount uint64
	OnchainAmount  uint64
	ClaimTxId      string
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (s Swap) IsTerminal() bool {
	return s.Status.IsTerminal()
}

// SwapRepository stores the swaps initiated by the daemon
type SwapRepository interface {
	GetAll(ctx context.Context) ([]Swap, error)
	Get(ctx context.Context, swapId string) (*Swap, error)
	Add(ctx context.Context, swap Swap) error
	Update(ctx context.Context, swap Swap) error
	Close()
}
