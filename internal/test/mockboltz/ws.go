package mockboltz

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ArkLabsHQ/subswap/pkg/boltz"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

type wsRequest struct {
	Op      string   `json:"op"`
	Channel string   `json:"channel"`
	Args    []string `json:"args"`
}

type wsMessage struct {
	Event   string `json:"event"`
	Channel string `json:"channel,omitempty"`
	Args    any    `json:"args,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.getBehavior().RejectWebsocket {
		writeError(w, http.StatusServiceUnavailable, "websocket disabled by mock config")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("failed to upgrade websocket")
		return
	}
	client := &wsClient{subs: make(map[string]struct{})}

	s.wsMu.Lock()
	s.wsClients[conn] = client
	s.wsMu.Unlock()

	defer func() {
		s.wsMu.Lock()
		delete(s.wsClients, conn)
		s.wsMu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var req wsRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			_ = s.writeToClient(conn, client, wsMessage{Event: "error", Error: "invalid message"})
			continue
		}
		if req.Op != "subscribe" || req.Channel != "swap.update" {
			_ = s.writeToClient(conn, client, wsMessage{Event: "error", Error: "unsupported operation"})
			continue
		}

		client.mu.Lock()
		for _, id := range req.Args {
			client.subs[id] = struct{}{}
		}
		client.mu.Unlock()

		if err := s.writeToClient(conn, client, wsMessage{
			Event: "subscribe", Channel: "swap.update", Args: req.Args,
		}); err != nil {
			return
		}

		// replay the current status, as the real service does on subscribe
		for _, id := range req.Args {
			st, ok := s.getSwap(id)
			if !ok {
				continue
			}
			_ = s.writeToClient(conn, client, updateMessage(boltz.SwapUpdate{
				Id: id, Status: st.LastStatus, Transaction: st.LastTx,
			}))
		}
	}
}

// PushUpdate records the new status of a swap and sends it to every
// subscriber. txId and txHex are optional.
func (s *Server) PushUpdate(id, status, txId, txHex string) error {
	update := boltz.SwapUpdate{Id: id, Status: status}
	if txId != "" || txHex != "" {
		update.Transaction = &boltz.TransactionDetails{Id: txId, Hex: txHex}
	}

	s.mu.Lock()
	st, ok := s.swaps[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("swap %s not found", id)
	}
	st.LastStatus = status
	st.LastTx = update.Transaction
	s.mu.Unlock()

	s.broadcast(id, updateMessage(update))
	return nil
}

// PushRaw sends msg verbatim to every connected client.
func (s *Server) PushRaw(msg []byte) {
	s.wsMu.RLock()
	defer s.wsMu.RUnlock()

	for conn, client := range s.wsClients {
		client.mu.Lock()
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.WithError(err).Debug("failed to push raw message")
		}
		client.mu.Unlock()
	}
}

// DropConnections closes every websocket connection without a close
// handshake, like a network failure would.
func (s *Server) DropConnections() {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()

	for conn := range s.wsClients {
		_ = conn.Close()
		delete(s.wsClients, conn)
	}
}

func (s *Server) broadcast(id string, msg wsMessage) {
	s.wsMu.RLock()
	defer s.wsMu.RUnlock()

	for conn, client := range s.wsClients {
		client.mu.Lock()
		_, subscribed := client.subs[id]
		client.mu.Unlock()
		if !subscribed {
			continue
		}
		if err := s.writeToClient(conn, client, msg); err != nil {
			log.WithError(err).Debugf("failed to push update for swap %s", id)
		}
	}
}

func (s *Server) writeToClient(conn *websocket.Conn, client *wsClient, msg wsMessage) error {
	client.mu.Lock()
	defer client.mu.Unlock()
	return conn.WriteJSON(msg)
}

func updateMessage(update boltz.SwapUpdate) wsMessage {
	return wsMessage{
		Event:   "update",
		Channel: "swap.update",
		Args:    []boltz.SwapUpdate{update},
	}
}
