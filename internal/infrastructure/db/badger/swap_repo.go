package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/ArkLabsHQ/subswap/internal/core/domain"
	"github.com/ArkLabsHQ/subswap/pkg/swap"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const (
	swapDir = "swap"
)

type swapRepository struct {
	store *badgerhold.Store
}

func NewSwapRepository(baseDir string, logger badger.Logger) (domain.SwapRepository, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, swapDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open swap store: %s", err)
	}
	return &swapRepository{store}, nil
}

// GetAll returns the swaps sorted by creation time, most recent first.
func (r *swapRepository) GetAll(ctx context.Context) ([]domain.Swap, error) {
	var swapDataList []swapData
	if err := r.store.Find(&swapDataList, nil); err != nil {
		return nil, fmt.Errorf("failed to get all swaps: %w", err)
	}

	swaps := make([]domain.Swap, 0, len(swapDataList))
	for _, s := range swapDataList {
		swaps = append(swaps, s.toSwap())
	}
	sort.SliceStable(swaps, func(i, j int) bool {
		return swaps[i].CreatedAt.After(swaps[j].CreatedAt)
	})
	return swaps, nil
}

func (r *swapRepository) Get(ctx context.Context, swapId string) (*domain.Swap, error) {
	var data swapData
	err := r.store.Get(swapId, &data)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSwapNotFound, swapId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get swap: %w", err)
	}

	swap := data.toSwap()
	return &swap, nil
}

// Add stores a new swap in the database
func (r *swapRepository) Add(ctx context.Context, swap domain.Swap) error {
	if err := r.store.Insert(swap.Id, toSwapData(swap)); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("swap %s already exists", swap.Id)
		}
		return fmt.Errorf("failed to add swap: %w", err)
	}
	return nil
}

func (r *swapRepository) Update(ctx context.Context, swap domain.Swap) error {
	if swap.UpdatedAt.IsZero() {
		swap.UpdatedAt = time.Now()
	}
	err := r.store.Update(swap.Id, toSwapData(swap))
	if errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrSwapNotFound, swap.Id)
	}
	return err
}

func (r *swapRepository) Close() {
	// nolint:all
	r.store.Close()
}

type swapData struct {
	Id             string
	Direction      int
	Status         int
	Invoice        string
	LockupAddress  string
	Destination    string
	ExpectedAmount uint64
	OnchainAmount  uint64
	ClaimTxId      string
	FailureReason  string
	CreatedAt      int64
	UpdatedAt      int64
}

func toSwapData(swap domain.Swap) swapData {
	return swapData{
		Id:             swap.Id,
		Direction:      int(swap.Direction),
		Status:         int(swap.Status),
		Invoice:        swap.Invoice,
		LockupAddress:  swap.LockupAddress,
		Destination:    swap.Destination,
		ExpectedAmount: swap.ExpectedAmount,
		OnchainAmount:  swap.OnchainAmount,
		ClaimTxId:      swap.ClaimTxId,
		FailureReason:  swap.FailureReason,
		CreatedAt:      swap.CreatedAt.UnixNano(),
		UpdatedAt:      swap.UpdatedAt.UnixNano(),
	}
}

func (s swapData) toSwap() domain.Swap {
	return domain.Swap{
		Id:             s.Id,
		Direction:      swap.Direction(s.Direction),
		Status:         swap.SwapStatus(s.Status),
		Invoice:        s.Invoice,
		LockupAddress:  s.LockupAddress,
		Destination:    s.Destination,
		ExpectedAmount: s.ExpectedAmount,
		OnchainAmount:  s.OnchainAmount,
		ClaimTxId:      s.ClaimTxId,
		FailureReason:  s.FailureReason,
		CreatedAt:      time.Unix(0, s.CreatedAt),
		UpdatedAt:      time.Unix(0, s.UpdatedAt),
	}
}
