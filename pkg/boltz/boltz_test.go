package boltz

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestApi(t *testing.T, handler http.HandlerFunc) *Api {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Api{URL: srv.URL}
}

func TestCreateSwap(t *testing.T) {
	t.Run("valid response", func(t *testing.T) {
		api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/v2/swap/submarine", r.URL.Path)
			require.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var req CreateSwapRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, CurrencyBtc, req.From)
			require.Equal(t, "lnbc1", req.Invoice)

			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{
				"id": "swap1",
				"address": "bc1p",
				"expectedAmount": 50640,
				"claimPublicKey": "02aa",
				"swapTree": {
					"claimLeaf": {"version": 192, "output": "aa"},
					"refundLeaf": {"version": 192, "output": "bb"}
				}
			}`))
		})

		resp, err := api.CreateSwap(context.Background(), CreateSwapRequest{
			From: CurrencyBtc, To: CurrencyBtc, Invoice: "lnbc1", RefundPublicKey: "03bb",
		})
		require.NoError(t, err)
		require.Equal(t, "swap1", resp.Id)
		require.Equal(t, uint64(50640), resp.ExpectedAmount)
		require.Equal(t, uint8(0xc0), resp.SwapTree.ClaimLeaf.Version)
		require.Equal(t, "bb", resp.SwapTree.RefundLeaf.Output)
	})

	t.Run("rejected request", func(t *testing.T) {
		api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid invoice"}`))
		})

		_, err := api.CreateSwap(context.Background(), CreateSwapRequest{})
		require.ErrorIs(t, err, ErrInvalidRequest)

		var httpErr *HTTPError
		require.True(t, errors.As(err, &httpErr))
		require.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
		require.Equal(t, "invalid invoice", httpErr.Message)
	})

	t.Run("missing id", func(t *testing.T) {
		api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"address":"bc1p"}`))
		})

		_, err := api.CreateSwap(context.Background(), CreateSwapRequest{})
		require.ErrorIs(t, err, ErrProtocol)
	})
}

func TestCallApiErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"undecodable body", http.StatusOK, "<html>oops</html>", ErrProtocol},
		{"server error without message", http.StatusBadGateway, "bad gateway", ErrServiceUnavailable},
		{"client error without message", http.StatusNotFound, "not found", ErrProtocol},
		{"server error with message", http.StatusInternalServerError, `{"error":"db down"}`, ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := api.GetSwapClaimDetails(context.Background(), "swap1")
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("unreachable service", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		api := &Api{URL: url}
		_, err := api.GetSubmarinePairs(context.Background())
		require.ErrorIs(t, err, ErrServiceUnavailable)
	})

	t.Run("context deadline is honored", func(t *testing.T) {
		api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := api.GetReversePairs(ctx)
		require.ErrorIs(t, err, ErrServiceUnavailable)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestGetPairs(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/swap/submarine":
			_, _ = w.Write([]byte(`{"BTC":{"BTC":{
				"hash":"h1","rate":1,
				"limits":{"minimal":1000,"maximal":25000000},
				"fees":{"percentage":0.1,"minerFees":140}}}}`))
		case "/v2/swap/reverse":
			_, _ = w.Write([]byte(`{"BTC":{"BTC":{
				"hash":"h2","rate":1,
				"limits":{"minimal":1000,"maximal":25000000},
				"fees":{"percentage":0.5,"minerFees":{"claim":150,"lockup":200}}}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	submarine, err := api.GetSubmarinePairs(context.Background())
	require.NoError(t, err)
	pair := submarine[CurrencyBtc][CurrencyBtc]
	require.Equal(t, "h1", pair.Hash)
	require.Equal(t, "0.1", pair.Fees.Percentage.String())
	require.Equal(t, "140", pair.Fees.MinerFees.String())
	require.Equal(t, uint64(1000), pair.Limits.Minimal)

	reverse, err := api.GetReversePairs(context.Background())
	require.NoError(t, err)
	rpair := reverse[CurrencyBtc][CurrencyBtc]
	require.Equal(t, "0.5", rpair.Fees.Percentage.String())
	require.Equal(t, "350", rpair.Fees.MinerFees.Claim.Add(rpair.Fees.MinerFees.Lockup).String())
}

func TestSubmitSwapClaim(t *testing.T) {
	var got PartialSignature
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/swap/submarine/swap1/claim", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	})

	err := api.SubmitSwapClaim(context.Background(), "swap1", PartialSignature{
		PubNonce: "aa", PartialSignature: "bb",
	})
	require.NoError(t, err)
	require.Equal(t, "aa", got.PubNonce)
	require.Equal(t, "bb", got.PartialSignature)
}

func TestParseEvent(t *testing.T) {
	require.Equal(t, TransactionClaimPending, ParseEvent("transaction.claim.pending"))
	require.Equal(t, InvoiceSet, ParseEvent("invoice.set"))
	require.Equal(t, UnknownEvent, ParseEvent("transaction.zeroconf.rejected"))
	require.Equal(t, "transaction.claimed", TransactionClaimed.String())
}

func TestWsURL(t *testing.T) {
	require.Equal(t, "wss://api.boltz.exchange/v2/ws", (&Api{URL: "https://api.boltz.exchange"}).wsURL())
	require.Equal(t, "ws://localhost:9001/v2/ws", (&Api{URL: "http://localhost:9001/"}).wsURL())
	require.Equal(t, "ws://custom/ws", (&Api{URL: "http://x", WSURL: "ws://custom/ws"}).wsURL())
}
