package swap

import (
	"errors"
	"fmt"
)

var (
	// ErrPreimageMismatch is returned when a preimage doesn't hash to the
	// payment hash of the swap invoice. The session is aborted.
	ErrPreimageMismatch = errors.New("preimage does not match payment hash")
	// ErrInvoiceMismatch is returned when the invoice of a reverse swap
	// doesn't commit to our preimage hash or amount.
	ErrInvoiceMismatch = errors.New("invoice does not match the swap request")
	// ErrLockupMismatch is returned when the lockup address returned by the
	// service is not the one derived from the swap tree and keys.
	ErrLockupMismatch = errors.New("lockup address does not match swap tree")
	// ErrChannelClosed is returned when the status channel dropped and
	// couldn't be restored.
	ErrChannelClosed = errors.New("swap status channel closed")
	// ErrSwapFailed is returned when the service reports the swap as failed.
	ErrSwapFailed = errors.New("swap failed")

	ErrInvalidInvoice = errors.New("invalid invoice")
	ErrInvalidAddress = errors.New("invalid destination address")

	ErrNoncesNotAggregated     = errors.New("nonces not aggregated")
	ErrNoncesAlreadyAggregated = errors.New("nonces already aggregated")
	ErrSessionAlreadySigned    = errors.New("signing session already used")
	ErrInvalidSignature        = errors.New("invalid signature")
)

// ClaimError wraps any failure of a cooperative claim.
type ClaimError struct {
	SwapId string
	Err    error
}

func (e *ClaimError) Error() string {
	return fmt.Sprintf("claim of swap %s failed: %v", e.SwapId, e.Err)
}

func (e *ClaimError) Unwrap() error {
	return e.Err
}
