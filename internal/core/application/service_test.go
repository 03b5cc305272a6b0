package application_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/ArkLabsHQ/subswap/internal/core/application"
	"github.com/ArkLabsHQ/subswap/internal/core/domain"
	"github.com/ArkLabsHQ/subswap/internal/infrastructure/db"
	"github.com/ArkLabsHQ/subswap/internal/infrastructure/display"
	"github.com/ArkLabsHQ/subswap/internal/test/mockboltz"
	"github.com/ArkLabsHQ/subswap/pkg/boltz"
	"github.com/ArkLabsHQ/subswap/pkg/swap"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

const (
	waitFor = 5 * time.Second
	tick    = 20 * time.Millisecond
)

func newTestService(t *testing.T) (*application.Service, *mockboltz.Server, *display.LogNavigator) {
	t.Helper()

	srv, err := mockboltz.New(mockboltz.Config{})
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		_ = srv.Stop()
	})

	repoManager, err := db.NewService(db.ServiceConfig{
		DbType:   "badger",
		DbConfig: []any{"", nil},
	})
	require.NoError(t, err)

	units, err := display.NewStaticUnitProvider("sat", "", "")
	require.NoError(t, err)
	navigator := display.NewLogNavigator()

	boltzSvc := &boltz.Api{URL: srv.URL()}
	handler := swap.NewSwapHandler(boltzSvc, swap.HandlerConfig{
		Network:          srv.Network(),
		SubscribeTimeout: 2 * time.Second,
		Reconnect:        swap.ReconnectPolicy{MaxAttempts: 1, Backoff: 50 * time.Millisecond},
	})

	svc := application.NewService(
		application.BuildInfo{Version: "test"}, boltzSvc, handler, repoManager, units, navigator, time.Minute,
	)
	t.Cleanup(svc.Stop)

	return svc, srv, navigator
}

func requireStatus(t *testing.T, svc *application.Service, id string, status swap.SwapStatus) *domain.Swap {
	t.Helper()

	var record *domain.Swap
	require.Eventually(t, func() bool {
		got, err := svc.GetSwap(ctx, id)
		if err != nil {
			return false
		}
		record = got
		return got.Status == status
	}, waitFor, tick)
	return record
}

func TestQuotes(t *testing.T) {
	svc, srv, _ := newTestService(t)

	quote, err := svc.GetQuote(ctx, swap.Forward)
	require.NoError(t, err)
	require.Equal(t, swap.Forward, quote.Direction)
	require.Equal(t, "140", quote.Fees.MinerFee.String())
	require.Equal(t, uint64(1000), quote.Limits.Minimal)

	_, err = svc.GetQuote(ctx, swap.Forward)
	require.NoError(t, err)
	require.Equal(t, int64(1), srv.PairRequests())

	reverse, err := svc.GetQuote(ctx, swap.Reverse)
	require.NoError(t, err)
	require.Equal(t, "350", reverse.Fees.MinerFee.String())
	require.Equal(t, int64(2), srv.PairRequests())

	// switching direction drops the cached quote
	_, err = svc.GetQuote(ctx, swap.Forward)
	require.NoError(t, err)
	require.Equal(t, int64(3), srv.PairRequests())

	svc.ResetQuotes()
	_, err = svc.GetQuote(ctx, swap.Forward)
	require.NoError(t, err)
	require.Equal(t, int64(4), srv.PairRequests())
}

func TestEstimate(t *testing.T) {
	svc, _, _ := newTestService(t)

	t.Run("forward from receive amount", func(t *testing.T) {
		estimate, err := svc.Estimate(ctx, swap.Forward, 0, 50_000)
		require.NoError(t, err)
		require.Equal(t, int64(50_640), estimate.Send)
		require.Equal(t, int64(50_000), estimate.Receive)
		require.Equal(t, int64(500), estimate.ServiceFee)
		require.Equal(t, int64(140), estimate.MinerFee)
		require.Equal(t, int64(1_150), estimate.MinSend)
		require.False(t, estimate.OutOfRange)
		require.Equal(t, "50640 sats", estimate.DisplaySend)
		require.Equal(t, "640 sats", estimate.DisplayFee)
	})

	t.Run("reverse from send amount", func(t *testing.T) {
		estimate, err := svc.Estimate(ctx, swap.Reverse, 100_000, 0)
		require.NoError(t, err)
		require.Equal(t, int64(99_150), estimate.Receive)
		require.Equal(t, int64(500), estimate.ServiceFee)
		require.Equal(t, int64(1_000), estimate.MinSend)
		require.Equal(t, int64(25_000_000), estimate.MaxSend)
	})

	t.Run("receive amount is kept", func(t *testing.T) {
		for _, direction := range []swap.Direction{swap.Forward, swap.Reverse} {
			for receive := int64(1_000); receive <= 200_000; receive += 997 {
				estimate, err := svc.Estimate(ctx, direction, 0, receive)
				require.NoError(t, err)
				require.Equal(t, receive, estimate.Receive, "%s receive %d", direction, receive)
				require.GreaterOrEqual(t, estimate.Send, receive)
			}
		}
	})

	t.Run("huge receive amount", func(t *testing.T) {
		estimate, err := svc.Estimate(ctx, swap.Forward, 0, math.MaxInt64)
		require.NoError(t, err)
		require.Equal(t, int64(math.MaxInt64), estimate.Send)
		require.True(t, estimate.OutOfRange)
	})

	t.Run("out of range", func(t *testing.T) {
		estimate, err := svc.Estimate(ctx, swap.Forward, 0, 500)
		require.NoError(t, err)
		require.True(t, estimate.OutOfRange)

		estimate, err = svc.Estimate(ctx, swap.Reverse, 0, 0)
		require.NoError(t, err)
		require.False(t, estimate.OutOfRange)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := svc.Estimate(ctx, swap.Forward, -1, 0)
		require.ErrorIs(t, err, swap.ErrInvalidAmount)

		_, err = svc.Estimate(ctx, swap.Direction(7), 1000, 0)
		require.Error(t, err)
	})
}

func TestConfigureSwap(t *testing.T) {
	svc, _, navigator := newTestService(t)

	estimate, err := svc.ConfigureSwap(ctx, swap.Reverse, 99_150)
	require.NoError(t, err)
	require.Equal(t, int64(100_000), estimate.Send)

	request, ok := navigator.LastRequest()
	require.True(t, ok)
	require.Equal(t, swap.Reverse, request.Direction)
	require.Equal(t, int64(99_150), request.Receive)
	require.Equal(t, int64(850), request.Fee)
	require.Equal(t, "99150 sats", request.Display)

	_, err = svc.ConfigureSwap(ctx, swap.Forward, 100)
	require.ErrorIs(t, err, swap.ErrOutOfRangeAmount)

	_, err = svc.ConfigureSwap(ctx, swap.Forward, 0)
	require.ErrorIs(t, err, swap.ErrInvalidAmount)

	// rejected configurations don't navigate
	request, ok = navigator.LastRequest()
	require.True(t, ok)
	require.Equal(t, swap.Reverse, request.Direction)
}

func TestPayInvoice(t *testing.T) {
	svc, srv, _ := newTestService(t)

	invoice, _, err := srv.NewInvoice(50_000)
	require.NoError(t, err)

	record, err := svc.PayInvoice(ctx, invoice)
	require.NoError(t, err)
	require.Equal(t, swap.Forward, record.Direction)
	require.Equal(t, invoice, record.Invoice)
	require.Equal(t, uint64(50_640), record.ExpectedAmount)
	require.NotEmpty(t, record.LockupAddress)

	requireStatus(t, svc, record.Id, swap.InvoiceSet)

	require.NoError(t, srv.PushUpdate(record.Id, "transaction.claim.pending", "", ""))
	requireStatus(t, svc, record.Id, swap.ClaimPending)
	require.True(t, srv.ClaimVerified(record.Id))

	require.NoError(t, srv.PushUpdate(record.Id, "transaction.claimed", "", ""))
	requireStatus(t, svc, record.Id, swap.Claimed)

	swaps, err := svc.ListSwaps(ctx)
	require.NoError(t, err)
	require.Len(t, swaps, 1)

	t.Run("out of range", func(t *testing.T) {
		invoice, _, err := srv.NewInvoice(500)
		require.NoError(t, err)

		_, err = svc.PayInvoice(ctx, invoice)
		require.ErrorIs(t, err, swap.ErrOutOfRangeAmount)
	})

	t.Run("invalid invoice", func(t *testing.T) {
		_, err := svc.PayInvoice(ctx, "not an invoice")
		require.ErrorIs(t, err, swap.ErrInvalidInvoice)
	})
}

func TestReceiveOnchain(t *testing.T) {
	svc, srv, _ := newTestService(t)

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	addr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(key.PubKey()), srv.Network())
	require.NoError(t, err)

	record, err := svc.ReceiveOnchain(ctx, 100_000, addr.EncodeAddress())
	require.NoError(t, err)
	require.Equal(t, swap.Reverse, record.Direction)
	require.Equal(t, addr.EncodeAddress(), record.Destination)
	require.Equal(t, uint64(99_150), record.OnchainAmount)
	require.NotEmpty(t, record.Invoice)

	_, err = srv.LockupReverse(record.Id)
	require.NoError(t, err)

	claimed := requireStatus(t, svc, record.Id, swap.ClaimPending)
	require.NotEmpty(t, claimed.ClaimTxId)

	require.NoError(t, srv.PushUpdate(record.Id, "invoice.settled", "", ""))
	requireStatus(t, svc, record.Id, swap.Claimed)

	t.Run("failure reason is stored", func(t *testing.T) {
		record, err := svc.ReceiveOnchain(ctx, 100_000, addr.EncodeAddress())
		require.NoError(t, err)

		require.NoError(t, srv.PushUpdate(record.Id, "swap.expired", "", ""))
		failed := requireStatus(t, svc, record.Id, swap.Failed)
		require.Contains(t, failed.FailureReason, "swap.expired")
	})

	t.Run("out of range", func(t *testing.T) {
		_, err := svc.ReceiveOnchain(ctx, 100, addr.EncodeAddress())
		require.ErrorIs(t, err, swap.ErrOutOfRangeAmount)
	})
}

func TestGetSwapNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.GetSwap(ctx, "unknown")
	require.ErrorIs(t, err, domain.ErrSwapNotFound)
}
