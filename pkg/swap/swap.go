package swap

import (
	"context"
	"fmt"
	"time"

	"github.com/ArkLabsHQ/subswap/pkg/boltz"
	"github.com/btcsuite/btcd/chaincfg"
	log "github.com/sirupsen/logrus"
)

const (
	defaultSubscribeTimeout  = 5 * time.Second
	defaultReconnectAttempts = 3
	defaultReconnectBackoff  = 2 * time.Second
	defaultClaimFeeRate      = 2
)

// ReconnectPolicy bounds how many times a dropped status channel is
// re-established before the swap is failed. Zero attempts disables it.
type ReconnectPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

type HandlerConfig struct {
	Network          *chaincfg.Params
	SubscribeTimeout time.Duration
	Reconnect        ReconnectPolicy
	// ClaimFeeRate in sat/vB, used for reverse swap claims.
	ClaimFeeRate uint64
}

type SwapHandler struct {
	boltzSvc *boltz.Api
	config   HandlerConfig
}

func NewSwapHandler(boltzSvc *boltz.Api, config HandlerConfig) *SwapHandler {
	if config.Network == nil {
		config.Network = &chaincfg.MainNetParams
	}
	if config.SubscribeTimeout <= 0 {
		config.SubscribeTimeout = defaultSubscribeTimeout
	}
	if config.Reconnect.MaxAttempts < 0 {
		config.Reconnect.MaxAttempts = 0
	}
	if config.Reconnect.Backoff < 0 {
		config.Reconnect.Backoff = 0
	}
	if config.ClaimFeeRate == 0 {
		config.ClaimFeeRate = defaultClaimFeeRate
	}
	return &SwapHandler{boltzSvc: boltzSvc, config: config}
}

// DefaultReconnectPolicy is the policy used when none is configured.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts: defaultReconnectAttempts,
		Backoff:     defaultReconnectBackoff,
	}
}

// swapEventHandler reacts to the status updates of a single swap, returning
// true once the swap reached a terminal state.
type swapEventHandler interface {
	handleUpdate(ctx context.Context, update boltz.SwapUpdate) bool
}

// start opens the status channel of a freshly created session and spawns its
// dispatch loop. ctx bounds the whole life of the session.
func (h *SwapHandler) start(
	ctx context.Context, session *Session, handler swapEventHandler,
) error {
	ws := h.boltzSvc.NewWebsocket()
	if err := ws.ConnectAndSubscribe(
		ctx, []string{session.Id}, h.config.SubscribeTimeout,
	); err != nil {
		session.keys.Zero()
		return fmt.Errorf("failed to subscribe to swap %s: %w", session.Id, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	session.cancel = cancel
	session.done = make(chan struct{})

	session.emit(SwapEvent{SwapId: session.Id, Status: Created})

	go h.monitorSwap(ctx, session, ws, handler)
	return nil
}

// monitorSwap is the dispatch loop of a session. Updates are handled one at
// a time, to completion, in arrival order.
func (h *SwapHandler) monitorSwap(
	ctx context.Context, session *Session, ws *boltz.Websocket, handler swapEventHandler,
) {
	logger := log.WithField("swap", session.Id)
	logger.Infof("monitoring %s swap", session.Direction)

	defer close(session.done)
	defer session.keys.Zero()
	defer func() {
		_ = ws.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("stopped monitoring swap")
			session.abandon(ctx.Err())
			return
		case update, ok := <-ws.Updates:
			if !ok {
				if ctx.Err() != nil {
					session.abandon(ctx.Err())
					return
				}
				next, err := h.reconnect(ctx, session.Id, ws.Err())
				if err != nil {
					if ctx.Err() != nil {
						session.abandon(ctx.Err())
						return
					}
					session.fail(err, "")
					return
				}
				ws = next
				continue
			}

			logger.Debugf("received status %s", update.Status)
			if done := handler.handleUpdate(ctx, update); done {
				return
			}
		}
	}
}

func (h *SwapHandler) reconnect(
	ctx context.Context, swapId string, cause error,
) (*boltz.Websocket, error) {
	logger := log.WithField("swap", swapId)
	policy := h.config.Reconnect

	lastErr := cause
	if lastErr == nil {
		lastErr = fmt.Errorf("connection closed by peer")
	}
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(policy.Backoff):
		}

		ws := h.boltzSvc.NewWebsocket()
		err := ws.ConnectAndSubscribe(ctx, []string{swapId}, h.config.SubscribeTimeout)
		if err == nil {
			logger.Infof("status channel restored after %d attempt(s)", attempt)
			if status, err := h.boltzSvc.GetSwapStatus(ctx, swapId); err == nil {
				logger.Debugf("service reports status %s after reconnect", status.Status)
			}
			return ws, nil
		}
		lastErr = err
		logger.WithError(err).Warnf(
			"failed to restore status channel (attempt %d/%d)", attempt, policy.MaxAttempts,
		)
	}

	return nil, fmt.Errorf("%w: %w", ErrChannelClosed, lastErr)
}

func serviceFailure(update boltz.SwapUpdate) error {
	if update.FailureReason != "" {
		return fmt.Errorf("%w: %s (%s)", ErrSwapFailed, update.Status, update.FailureReason)
	}
	return fmt.Errorf("%w: %s", ErrSwapFailed, update.Status)
}
