package swap

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ArkLabsHQ/subswap/internal/test/mockboltz"
	"github.com/ArkLabsHQ/subswap/pkg/boltz"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
)

const eventTimeout = 5 * time.Second

type eventRecorder struct {
	mu     sync.Mutex
	events []SwapEvent
	ch     chan SwapEvent
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{ch: make(chan SwapEvent, 64)}
}

func (r *eventRecorder) callback(event SwapEvent) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	r.ch <- event
}

func (r *eventRecorder) waitFor(t *testing.T, status SwapStatus) SwapEvent {
	t.Helper()

	timeout := time.After(eventTimeout)
	for {
		select {
		case event := <-r.ch:
			if event.Status == status {
				return event
			}
		case <-timeout:
			t.Fatalf("timed out waiting for status %s, got %v", status, r.statuses())
		}
	}
}

func (r *eventRecorder) statuses() []SwapStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	statuses := make([]SwapStatus, 0, len(r.events))
	for _, event := range r.events {
		statuses = append(statuses, event.Status)
	}
	return statuses
}

func newTestHandler(t *testing.T) (*mockboltz.Server, *SwapHandler) {
	t.Helper()

	srv, err := mockboltz.New(mockboltz.Config{})
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		_ = srv.Stop()
	})

	handler := NewSwapHandler(&boltz.Api{URL: srv.URL()}, HandlerConfig{
		Network:          srv.Network(),
		SubscribeTimeout: 2 * time.Second,
		Reconnect:        ReconnectPolicy{MaxAttempts: 2, Backoff: 50 * time.Millisecond},
	})
	return srv, handler
}

func startSubmarineSwap(
	t *testing.T, srv *mockboltz.Server, handler *SwapHandler,
) (*Session, *eventRecorder) {
	t.Helper()

	invoice, _, err := srv.NewInvoice(50_000)
	require.NoError(t, err)

	recorder := newEventRecorder()
	session, err := handler.StartSubmarineSwap(context.Background(), invoice, recorder.callback)
	require.NoError(t, err)
	t.Cleanup(session.Close)

	recorder.waitFor(t, InvoiceSet)
	return session, recorder
}

func TestSubmarineSwap(t *testing.T) {
	t.Run("cooperative claim", func(t *testing.T) {
		srv, handler := newTestHandler(t)
		session, recorder := startSubmarineSwap(t, srv, handler)

		require.Equal(t, Forward, session.Direction)
		require.NotEmpty(t, session.LockupAddress)
		require.Equal(t, uint64(50_640), session.ExpectedAmount)

		require.NoError(t, srv.PushUpdate(session.Id, "transaction.claim.pending", "", ""))
		event := recorder.waitFor(t, ClaimPending)
		require.Equal(t, "transaction.claim.pending", event.ServiceStatus)
		require.True(t, srv.ClaimVerified(session.Id))

		require.NoError(t, srv.PushUpdate(session.Id, "transaction.claimed", "", ""))
		recorder.waitFor(t, Claimed)

		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		status, err := session.Wait(ctx)
		require.NoError(t, err)
		require.Equal(t, Claimed, status)
		require.Equal(t, []SwapStatus{Created, InvoiceSet, ClaimPending, Claimed}, recorder.statuses())
		require.Equal(t, 1, srv.ClaimRequests(session.Id))
	})

	t.Run("preimage mismatch", func(t *testing.T) {
		srv, handler := newTestHandler(t)
		session, recorder := startSubmarineSwap(t, srv, handler)

		srv.SetBehavior(mockboltz.Behavior{WrongPreimage: true})
		require.NoError(t, srv.PushUpdate(session.Id, "transaction.claim.pending", "", ""))

		event := recorder.waitFor(t, Failed)
		require.ErrorIs(t, event.Err, ErrPreimageMismatch)
		require.ErrorIs(t, session.Err(), ErrPreimageMismatch)
		require.Zero(t, srv.ClaimRequests(session.Id))
		require.NotContains(t, recorder.statuses(), ClaimPending)
	})

	t.Run("duplicate claim request", func(t *testing.T) {
		srv, handler := newTestHandler(t)
		session, recorder := startSubmarineSwap(t, srv, handler)

		require.NoError(t, srv.PushUpdate(session.Id, "transaction.claim.pending", "", ""))
		recorder.waitFor(t, ClaimPending)
		require.NoError(t, srv.PushUpdate(session.Id, "transaction.claim.pending", "", ""))
		require.NoError(t, srv.PushUpdate(session.Id, "transaction.claimed", "", ""))
		recorder.waitFor(t, Claimed)

		require.Equal(t, 1, srv.ClaimRequests(session.Id))
		require.Equal(t, []SwapStatus{Created, InvoiceSet, ClaimPending, Claimed}, recorder.statuses())
	})

	t.Run("malformed and unknown messages are ignored", func(t *testing.T) {
		srv, handler := newTestHandler(t)
		session, recorder := startSubmarineSwap(t, srv, handler)

		srv.PushRaw([]byte("{not json"))
		srv.PushRaw([]byte(`{"event":"update","channel":"swap.update","args":[{"status":"invoice.set"}]}`))
		srv.PushRaw([]byte(`{"event":"update","channel":"swap.update","args":["garbage"]}`))
		require.NoError(t, srv.PushUpdate(session.Id, "some.future.status", "", ""))
		require.NoError(t, srv.PushUpdate(session.Id, "transaction.claim.pending", "", ""))

		recorder.waitFor(t, ClaimPending)
		require.Equal(t, []SwapStatus{Created, InvoiceSet, ClaimPending}, recorder.statuses())
	})

	t.Run("claim submission fails", func(t *testing.T) {
		srv, handler := newTestHandler(t)
		session, recorder := startSubmarineSwap(t, srv, handler)

		srv.SetBehavior(mockboltz.Behavior{FailClaims: true})
		require.NoError(t, srv.PushUpdate(session.Id, "transaction.claim.pending", "", ""))

		event := recorder.waitFor(t, Failed)
		var claimErr *ClaimError
		require.True(t, errors.As(event.Err, &claimErr))
		require.Equal(t, session.Id, claimErr.SwapId)

		var httpErr *boltz.HTTPError
		require.True(t, errors.As(event.Err, &httpErr))
		require.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
		require.Equal(t, 1, srv.ClaimRequests(session.Id))
	})

	t.Run("service failure", func(t *testing.T) {
		srv, handler := newTestHandler(t)
		session, recorder := startSubmarineSwap(t, srv, handler)

		require.NoError(t, srv.PushUpdate(session.Id, "invoice.failedToPay", "", ""))
		event := recorder.waitFor(t, Failed)
		require.ErrorIs(t, event.Err, ErrSwapFailed)
		require.Equal(t, "invoice.failedToPay", event.ServiceStatus)
	})

	t.Run("claimed without claim request", func(t *testing.T) {
		srv, handler := newTestHandler(t)
		session, recorder := startSubmarineSwap(t, srv, handler)

		require.NoError(t, srv.PushUpdate(session.Id, "transaction.claimed", "", ""))
		recorder.waitFor(t, Claimed)
		require.Zero(t, srv.ClaimRequests(session.Id))
	})

	t.Run("status channel is restored", func(t *testing.T) {
		srv, handler := newTestHandler(t)
		session, recorder := startSubmarineSwap(t, srv, handler)

		srv.DropConnections()
		require.NoError(t, srv.PushUpdate(session.Id, "transaction.claim.pending", "", ""))

		recorder.waitFor(t, ClaimPending)
		require.Equal(t, 1, srv.ClaimRequests(session.Id))
	})

	t.Run("status channel can't be restored", func(t *testing.T) {
		srv, handler := newTestHandler(t)
		session, recorder := startSubmarineSwap(t, srv, handler)

		srv.SetBehavior(mockboltz.Behavior{RejectWebsocket: true})
		srv.DropConnections()

		event := recorder.waitFor(t, Failed)
		require.ErrorIs(t, event.Err, ErrChannelClosed)
		require.ErrorIs(t, event.Err, boltz.ErrServiceUnavailable)
		require.Equal(t, Failed, session.Status())
	})

	t.Run("closed session emits nothing", func(t *testing.T) {
		srv, handler := newTestHandler(t)
		session, recorder := startSubmarineSwap(t, srv, handler)

		session.Close()
		before := recorder.statuses()

		require.NoError(t, srv.PushUpdate(session.Id, "transaction.claim.pending", "", ""))
		time.Sleep(200 * time.Millisecond)

		require.Equal(t, before, recorder.statuses())
		require.Zero(t, srv.ClaimRequests(session.Id))
		require.Equal(t, InvoiceSet, session.Status())
		require.ErrorIs(t, session.Err(), context.Canceled)
	})

	t.Run("lockup address mismatch", func(t *testing.T) {
		srv, handler := newTestHandler(t)
		srv.SetBehavior(mockboltz.Behavior{TamperLockup: true})

		invoice, _, err := srv.NewInvoice(50_000)
		require.NoError(t, err)

		_, err = handler.StartSubmarineSwap(context.Background(), invoice, nil)
		require.ErrorIs(t, err, ErrLockupMismatch)
	})

	t.Run("status channel unavailable", func(t *testing.T) {
		srv, handler := newTestHandler(t)
		srv.SetBehavior(mockboltz.Behavior{RejectWebsocket: true})

		invoice, _, err := srv.NewInvoice(50_000)
		require.NoError(t, err)

		_, err = handler.StartSubmarineSwap(context.Background(), invoice, nil)
		require.ErrorIs(t, err, boltz.ErrServiceUnavailable)
	})

	t.Run("invalid invoice", func(t *testing.T) {
		_, handler := newTestHandler(t)

		_, err := handler.StartSubmarineSwap(context.Background(), "", nil)
		require.ErrorIs(t, err, ErrInvalidInvoice)
		_, err = handler.StartSubmarineSwap(context.Background(), "lntb1notaninvoice", nil)
		require.ErrorIs(t, err, ErrInvalidInvoice)
	})
}

func TestPayInvoice(t *testing.T) {
	srv, handler := newTestHandler(t)

	invoice, _, err := srv.NewInvoice(20_000)
	require.NoError(t, err)

	recorder := newEventRecorder()
	go func() {
		event := <-recorder.ch
		for event.Status != InvoiceSet {
			event = <-recorder.ch
		}
		_ = srv.PushUpdate(event.SwapId, "transaction.claim.pending", "", "")
		for event.Status != ClaimPending {
			event = <-recorder.ch
		}
		_ = srv.PushUpdate(event.SwapId, "transaction.claimed", "", "")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	session, err := handler.PayInvoice(ctx, invoice, recorder.callback)
	require.NoError(t, err)
	require.Equal(t, Claimed, session.Status())
	require.True(t, srv.ClaimVerified(session.Id))
}

func TestReverseSwap(t *testing.T) {
	newDestination := func(t *testing.T, srv *mockboltz.Server) string {
		key, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		addr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(key.PubKey()), srv.Network())
		require.NoError(t, err)
		return addr.EncodeAddress()
	}

	t.Run("cooperative claim", func(t *testing.T) {
		srv, handler := newTestHandler(t)
		destination := newDestination(t, srv)

		recorder := newEventRecorder()
		session, err := handler.StartReverseSwap(context.Background(), ReverseSwapRequest{
			InvoiceAmount: 100_000,
			Address:       destination,
		}, recorder.callback)
		require.NoError(t, err)
		t.Cleanup(session.Close)

		require.Equal(t, Reverse, session.Direction)
		require.Equal(t, uint64(99_150), session.OnchainAmount)
		require.NotEmpty(t, session.Invoice)

		_, err = srv.LockupReverse(session.Id)
		require.NoError(t, err)

		event := recorder.waitFor(t, ClaimPending)
		require.NotEmpty(t, event.ClaimTxId)

		claimTx := srv.BroadcastTx(session.Id)
		require.NotNil(t, claimTx)
		require.Equal(t, claimTx.TxHash().String(), event.ClaimTxId)
		require.Len(t, claimTx.TxOut, 1)

		addr, err := btcutil.DecodeAddress(destination, srv.Network())
		require.NoError(t, err)
		script, err := txscript.PayToAddrScript(addr)
		require.NoError(t, err)
		require.True(t, bytes.Equal(script, claimTx.TxOut[0].PkScript))
		require.Less(t, claimTx.TxOut[0].Value, int64(session.OnchainAmount))
		require.Greater(t, claimTx.TxOut[0].Value, int64(dustLimit))

		require.NoError(t, srv.PushUpdate(session.Id, "invoice.settled", "", ""))
		recorder.waitFor(t, Claimed)
		require.Equal(t, []SwapStatus{Created, ClaimPending, Claimed}, recorder.statuses())
		require.Equal(t, event.ClaimTxId, session.ClaimTxId())
	})

	t.Run("invoice doesn't commit to our preimage", func(t *testing.T) {
		srv, handler := newTestHandler(t)
		srv.SetBehavior(mockboltz.Behavior{TamperInvoice: true})

		_, err := handler.StartReverseSwap(context.Background(), ReverseSwapRequest{
			InvoiceAmount: 100_000,
			Address:       newDestination(t, srv),
		}, nil)
		require.ErrorIs(t, err, ErrInvoiceMismatch)
	})

	t.Run("claim rejected by the service", func(t *testing.T) {
		srv, handler := newTestHandler(t)

		recorder := newEventRecorder()
		session, err := handler.StartReverseSwap(context.Background(), ReverseSwapRequest{
			InvoiceAmount: 100_000,
			Address:       newDestination(t, srv),
		}, recorder.callback)
		require.NoError(t, err)
		t.Cleanup(session.Close)

		srv.SetBehavior(mockboltz.Behavior{FailClaims: true})
		_, err = srv.LockupReverse(session.Id)
		require.NoError(t, err)

		event := recorder.waitFor(t, Failed)
		var claimErr *ClaimError
		require.True(t, errors.As(event.Err, &claimErr))
		require.Nil(t, srv.BroadcastTx(session.Id))
	})

	t.Run("swap expired", func(t *testing.T) {
		srv, handler := newTestHandler(t)

		recorder := newEventRecorder()
		session, err := handler.StartReverseSwap(context.Background(), ReverseSwapRequest{
			InvoiceAmount: 100_000,
			Address:       newDestination(t, srv),
		}, recorder.callback)
		require.NoError(t, err)
		t.Cleanup(session.Close)

		require.NoError(t, srv.PushUpdate(session.Id, "swap.expired", "", ""))
		event := recorder.waitFor(t, Failed)
		require.ErrorIs(t, event.Err, ErrSwapFailed)
	})

	t.Run("invalid request", func(t *testing.T) {
		srv, handler := newTestHandler(t)

		_, err := handler.StartReverseSwap(context.Background(), ReverseSwapRequest{
			Address: newDestination(t, srv),
		}, nil)
		require.ErrorIs(t, err, ErrInvalidAmount)

		_, err = handler.StartReverseSwap(context.Background(), ReverseSwapRequest{
			InvoiceAmount: 100_000,
			Address:       "bc1qnotanaddress",
		}, nil)
		require.ErrorIs(t, err, ErrInvalidAddress)
	})

	t.Run("amount out of limits", func(t *testing.T) {
		srv, handler := newTestHandler(t)

		_, err := handler.StartReverseSwap(context.Background(), ReverseSwapRequest{
			InvoiceAmount: 10,
			Address:       newDestination(t, srv),
		}, nil)
		require.ErrorIs(t, err, boltz.ErrInvalidRequest)
	})
}
