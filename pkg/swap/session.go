package swap

import (
	"context"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/lntypes"
	log "github.com/sirupsen/logrus"
)

// Session is a single swap driven by the status channel of the service.
// The exported fields are set at creation and never change.
type Session struct {
	Id                 string
	Direction          Direction
	Invoice            string
	PaymentHash        lntypes.Hash
	LockupAddress      string
	ExpectedAmount     uint64
	OnchainAmount      uint64
	TimeoutBlockHeight uint32
	CreatedAt          time.Time

	keys        *KeyMaterial
	signer      *SigningSession
	preimage    lntypes.Preimage
	destination string
	callback    EventCallback

	mu             sync.RWMutex
	status         SwapStatus
	claimAttempted bool
	claimTxId      string
	err            error

	cancel context.CancelFunc
	done   chan struct{}
}

func (s *Session) Status() SwapStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Err is the reason the session failed or was abandoned.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Session) ClaimTxId() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.claimTxId
}

// Done is closed once the session stopped processing status updates.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session stops or ctx is done.
func (s *Session) Wait(ctx context.Context) (SwapStatus, error) {
	select {
	case <-s.done:
		return s.Status(), s.Err()
	case <-ctx.Done():
		return s.Status(), ctx.Err()
	}
}

// Close abandons the session. Once it returns, no more events are emitted
// and no more calls are made to the service on behalf of this swap.
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

// startClaim reports whether the caller is the first to attempt the claim.
func (s *Session) startClaim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.claimAttempted || s.status.IsTerminal() {
		return false
	}
	s.claimAttempted = true
	return true
}

func (s *Session) transition(status SwapStatus, serviceStatus, claimTxId string) bool {
	s.mu.Lock()
	if s.status.IsTerminal() || s.status == status {
		s.mu.Unlock()
		return false
	}
	s.status = status
	if claimTxId != "" {
		s.claimTxId = claimTxId
	}
	claimTxId = s.claimTxId
	s.mu.Unlock()

	log.WithField("swap", s.Id).Infof("swap status changed to %s", status)
	s.emit(SwapEvent{
		SwapId:        s.Id,
		Status:        status,
		ServiceStatus: serviceStatus,
		ClaimTxId:     claimTxId,
	})
	return true
}

func (s *Session) fail(err error, serviceStatus string) {
	s.mu.Lock()
	if s.status.IsTerminal() {
		s.mu.Unlock()
		return
	}
	s.status = Failed
	s.err = err
	s.mu.Unlock()

	log.WithField("swap", s.Id).WithError(err).Warn("swap failed")
	s.emit(SwapEvent{
		SwapId:        s.Id,
		Status:        Failed,
		ServiceStatus: serviceStatus,
		Err:           err,
	})
}

// failOrAbandon fails the session unless the failure is due to the session
// being closed.
func (s *Session) failOrAbandon(ctx context.Context, err error, serviceStatus string) {
	if ctx.Err() != nil {
		s.abandon(ctx.Err())
		return
	}
	s.fail(err, serviceStatus)
}

func (s *Session) abandon(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil && !s.status.IsTerminal() {
		s.err = err
	}
}

func (s *Session) emit(event SwapEvent) {
	if s.callback != nil {
		s.callback(event)
	}
}
