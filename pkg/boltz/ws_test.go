package boltz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type wsTestServer struct {
	*httptest.Server
	url   string
	conns chan *websocket.Conn
	ack   bool
}

func newWsTestServer(t *testing.T, ack bool) *wsTestServer {
	t.Helper()

	s := &wsTestServer{conns: make(chan *websocket.Conn, 4), ack: ack}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			_ = conn.Close()
			return
		}
		if s.ack && req.Op == "subscribe" {
			_ = conn.WriteJSON(map[string]any{
				"event": "subscribe", "channel": req.Channel, "args": req.Args,
			})
		}
		s.conns <- conn
	}))

	s.Server = srv
	s.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return s
}

func (s *wsTestServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-s.conns:
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no websocket connection")
		return nil
	}
}

func nextUpdate(t *testing.T, ws *Websocket) SwapUpdate {
	t.Helper()
	select {
	case update, ok := <-ws.Updates:
		require.True(t, ok, "updates channel closed")
		return update
	case <-time.After(2 * time.Second):
		t.Fatal("no update received")
		return SwapUpdate{}
	}
}

func TestWebsocket(t *testing.T) {
	t.Run("dispatches updates of subscribed swaps", func(t *testing.T) {
		defer leaktest.Check(t)()

		srv := newWsTestServer(t, true)
		defer srv.Close()
		ws := (&Api{WSURL: srv.url}).NewWebsocket()
		require.NoError(t, ws.ConnectAndSubscribe(context.Background(), []string{"swap1"}, time.Second))
		conn := srv.accept(t)

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{
			"event":"update","channel":"swap.update",
			"args":[{"id":"other","status":"invoice.set"}]}`)))
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{
			"event":"update","channel":"swap.update",
			"args":[{"id":"swap1","status":"transaction.mempool",
				"transaction":{"id":"abcd","hex":"0200"}}]}`)))

		update := nextUpdate(t, ws)
		require.Equal(t, "swap1", update.Id)
		require.Equal(t, TransactionMempool, update.Event())
		require.NotNil(t, update.Transaction)
		require.Equal(t, "0200", update.Transaction.Hex)

		require.NoError(t, ws.Close())
		_, ok := <-ws.Updates
		require.False(t, ok)
		require.NoError(t, ws.Err())
	})

	t.Run("drops malformed messages", func(t *testing.T) {
		defer leaktest.Check(t)()

		srv := newWsTestServer(t, true)
		defer srv.Close()
		ws := (&Api{WSURL: srv.url}).NewWebsocket()
		require.NoError(t, ws.ConnectAndSubscribe(context.Background(), []string{"swap1"}, time.Second))
		conn := srv.accept(t)

		for _, msg := range []string{
			`not json`,
			`{"event":"update","args":["nope"]}`,
			`{"event":"update","args":[{"id":"swap1"}]}`,
			`{"event":"update","args":[{"id":"swap1","status":42}]}`,
			`{"event":"pong"}`,
			`{"event":"update","args":[{"id":"swap1","status":"invoice.set"}]}`,
		} {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
		}

		update := nextUpdate(t, ws)
		require.Equal(t, InvoiceSet, update.Event())
		require.NoError(t, ws.Close())
	})

	t.Run("reports transport failures", func(t *testing.T) {
		defer leaktest.Check(t)()

		srv := newWsTestServer(t, true)
		defer srv.Close()
		ws := (&Api{WSURL: srv.url}).NewWebsocket()
		require.NoError(t, ws.ConnectAndSubscribe(context.Background(), []string{"swap1"}, time.Second))
		conn := srv.accept(t)
		require.NoError(t, conn.Close())

		select {
		case _, ok := <-ws.Updates:
			require.False(t, ok)
		case <-time.After(2 * time.Second):
			t.Fatal("updates channel not closed")
		}
		require.ErrorIs(t, ws.Err(), ErrServiceUnavailable)
		require.NoError(t, ws.Close())
	})

	t.Run("fails without subscription ack", func(t *testing.T) {
		defer leaktest.Check(t)()

		srv := newWsTestServer(t, false)
		defer srv.Close()
		ws := (&Api{WSURL: srv.url}).NewWebsocket()
		err := ws.ConnectAndSubscribe(context.Background(), []string{"swap1"}, 100*time.Millisecond)
		require.ErrorIs(t, err, ErrServiceUnavailable)
		srv.accept(t)
	})
}
