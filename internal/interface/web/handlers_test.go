package web_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ArkLabsHQ/subswap/internal/core/application"
	"github.com/ArkLabsHQ/subswap/internal/infrastructure/db"
	"github.com/ArkLabsHQ/subswap/internal/infrastructure/display"
	"github.com/ArkLabsHQ/subswap/internal/interface/web"
	"github.com/ArkLabsHQ/subswap/internal/interface/web/types"
	"github.com/ArkLabsHQ/subswap/internal/test/mockboltz"
	"github.com/ArkLabsHQ/subswap/pkg/boltz"
	"github.com/ArkLabsHQ/subswap/pkg/swap"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t *testing.T) (http.Handler, *mockboltz.Server, *display.LogNavigator) {
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

	units, err := display.NewStaticUnitProvider("btc", "", "")
	require.NoError(t, err)
	navigator := display.NewLogNavigator()

	boltzSvc := &boltz.Api{URL: srv.URL()}
	handler := swap.NewSwapHandler(boltzSvc, swap.HandlerConfig{
		Network:          srv.Network(),
		SubscribeTimeout: 2 * time.Second,
	})
	svc := application.NewService(
		application.BuildInfo{}, boltzSvc, handler, repoManager, units, navigator, time.Minute,
	)
	t.Cleanup(svc.Stop)

	return web.NewService(svc), srv, navigator
}

func doRequest(t *testing.T, api http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}
	req := httptest.NewRequest(method, path, &reqBody)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestQuote(t *testing.T) {
	api, _, _ := newTestAPI(t)

	t.Run("valid", func(t *testing.T) {
		rec := doRequest(t, api, http.MethodGet, "/v1/quote?direction=forward&receive=50000", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		quote := decode[types.Quote](t, rec)
		require.Equal(t, "forward", quote.Direction)
		require.Equal(t, int64(50_640), quote.Send)
		require.Equal(t, int64(50_000), quote.Receive)
		require.Equal(t, "0.00050640 BTC", quote.DisplaySend)
		require.False(t, quote.OutOfRange)

		rec = doRequest(t, api, http.MethodGet, "/v1/quote?direction=reverse&send=100000", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		quote = decode[types.Quote](t, rec)
		require.Equal(t, int64(99_150), quote.Receive)
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := []struct {
			name string
			path string
		}{
			{"unknown direction", "/v1/quote?direction=sideways&send=1000"},
			{"invalid send", "/v1/quote?direction=forward&send=abc"},
			{"negative receive", "/v1/quote?direction=forward&receive=-1"},
		}
		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				rec := doRequest(t, api, http.MethodGet, f.path, nil)
				require.Equal(t, http.StatusBadRequest, rec.Code)
				require.NotEmpty(t, decode[types.Error](t, rec).Error)
			})
		}
	})
}

func TestConfigureSwap(t *testing.T) {
	api, _, navigator := newTestAPI(t)

	rec := doRequest(t, api, http.MethodPost, "/v1/swap/configure", types.ConfigureSwapRequest{
		Direction: "reverse", Receive: 99_150,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	request, ok := navigator.LastRequest()
	require.True(t, ok)
	require.Equal(t, int64(100_000), request.Send)

	rec = doRequest(t, api, http.MethodPost, "/v1/swap/configure", types.ConfigureSwapRequest{
		Direction: "forward", Receive: 100,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	apiErr := decode[types.Error](t, rec)
	require.Equal(t, int64(1_150), apiErr.MinSend)
	require.Equal(t, int64(25_250_140), apiErr.MaxSend)

	rec = doRequest(t, api, http.MethodPost, "/v1/swap/configure", map[string]any{"direction": "forward"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSwaps(t *testing.T) {
	api, srv, _ := newTestAPI(t)

	invoice, _, err := srv.NewInvoice(50_000)
	require.NoError(t, err)

	rec := doRequest(t, api, http.MethodPost, "/v1/swap/submarine", types.SubmarineSwapRequest{
		Invoice: invoice,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	submarine := decode[types.Swap](t, rec)
	require.Equal(t, "forward", submarine.Direction)
	require.Equal(t, uint64(50_640), submarine.ExpectedAmount)

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	addr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(key.PubKey()), srv.Network())
	require.NoError(t, err)

	rec = doRequest(t, api, http.MethodPost, "/v1/swap/reverse", types.ReverseSwapRequest{
		Amount: 100_000, Address: addr.EncodeAddress(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	reverse := decode[types.Swap](t, rec)
	require.Equal(t, "reverse", reverse.Direction)
	require.NotEmpty(t, reverse.Invoice)
	require.Equal(t, uint64(99_150), reverse.OnchainAmount)

	rec = doRequest(t, api, http.MethodGet, "/v1/swaps", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[types.Swaps](t, rec).Swaps, 2)

	rec = doRequest(t, api, http.MethodGet, "/v1/swaps/"+reverse.Id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, reverse.Id, decode[types.Swap](t, rec).Id)

	t.Run("not found", func(t *testing.T) {
		rec := doRequest(t, api, http.MethodGet, "/v1/swaps/unknown", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid requests", func(t *testing.T) {
		rec := doRequest(t, api, http.MethodPost, "/v1/swap/submarine", types.SubmarineSwapRequest{
			Invoice: "lntb1notaninvoice",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)

		rec = doRequest(t, api, http.MethodPost, "/v1/swap/reverse", types.ReverseSwapRequest{
			Amount: 100_000, Address: "bc1qnotanaddress",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)

		rec = doRequest(t, api, http.MethodPost, "/v1/swap/reverse", types.ReverseSwapRequest{
			Amount: 10, Address: addr.EncodeAddress(),
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	api, srv, _ := newTestAPI(t)

	rec := doRequest(t, api, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())

	require.NoError(t, srv.Stop())
	rec = doRequest(t, api, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
