package boltz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mitchellh/mapstructure"
	log "github.com/sirupsen/logrus"
)

const (
	swapUpdateChannel = "swap.update"

	pingInterval  = 30 * time.Second
	writeTimeout  = 10 * time.Second
	updatesBuffer = 16
)

type wsRequest struct {
	Op      string   `json:"op"`
	Channel string   `json:"channel"`
	Args    []string `json:"args"`
}

type wsResponse struct {
	Event   string `json:"event"`
	Error   string `json:"error"`
	Channel string `json:"channel"`
	Args    []any  `json:"args"`
}

// Websocket is a status channel bound to a fixed set of swap ids.
// Updates is closed once the connection is gone, either because Close was
// called or because the transport failed, in which case Err is non nil.
type Websocket struct {
	Updates chan SwapUpdate

	apiUrl        string
	conn          *websocket.Conn
	swapIds       map[string]struct{}
	subscriptions chan struct{}
	closing       chan struct{}
	done          chan struct{}
	closeOnce     sync.Once
	writeMu       sync.Mutex

	mu  sync.Mutex
	err error
}

func (boltz *Api) NewWebsocket() *Websocket {
	return &Websocket{
		Updates:       make(chan SwapUpdate, updatesBuffer),
		apiUrl:        boltz.wsURL(),
		swapIds:       make(map[string]struct{}),
		subscriptions: make(chan struct{}, 1),
		closing:       make(chan struct{}),
		done:          make(chan struct{}),
	}
}

func (boltz *Api) wsURL() string {
	if boltz.WSURL != "" {
		return boltz.WSURL
	}
	url := strings.TrimSuffix(boltz.URL, "/")
	url = strings.Replace(url, "http", "ws", 1)
	return url + "/v2/ws"
}

// ConnectAndSubscribe dials the service and subscribes to the updates of the
// given swaps, waiting at most timeout for the subscription to be acked.
func (ws *Websocket) ConnectAndSubscribe(
	ctx context.Context, swapIds []string, timeout time.Duration,
) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ws.apiUrl, nil)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", ErrServiceUnavailable, ws.apiUrl, err)
	}
	ws.conn = conn
	for _, id := range swapIds {
		ws.swapIds[id] = struct{}{}
	}

	go ws.readLoop()

	if err := ws.write(wsRequest{
		Op:      "subscribe",
		Channel: swapUpdateChannel,
		Args:    swapIds,
	}); err != nil {
		_ = ws.Close()
		return fmt.Errorf("%w: subscribe: %w", ErrServiceUnavailable, err)
	}

	select {
	case <-ws.subscriptions:
	case <-ws.done:
		if err := ws.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w: connection closed before subscription", ErrServiceUnavailable)
	case <-ctx.Done():
		_ = ws.Close()
		return fmt.Errorf("%w: subscription not acknowledged within %s", ErrServiceUnavailable, timeout)
	}

	go ws.pingLoop()
	return nil
}

// Err returns the transport error that terminated the connection, if any.
func (ws *Websocket) Err() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.err
}

func (ws *Websocket) Close() error {
	var err error
	ws.closeOnce.Do(func() {
		close(ws.closing)
		if ws.conn == nil {
			return
		}
		ws.writeMu.Lock()
		_ = ws.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		ws.writeMu.Unlock()
		if cerr := ws.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	})
	return err
}

func (ws *Websocket) write(req wsRequest) error {
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	if err := ws.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return ws.conn.WriteJSON(req)
}

func (ws *Websocket) readLoop() {
	defer close(ws.done)
	defer close(ws.Updates)

	for {
		_, msg, err := ws.conn.ReadMessage()
		if err != nil {
			select {
			case <-ws.closing:
			default:
				ws.mu.Lock()
				ws.err = fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
				ws.mu.Unlock()
				log.WithError(err).Warn("swap status channel disconnected")
				_ = ws.conn.Close()
			}
			return
		}

		for _, update := range ws.handleMessage(msg) {
			select {
			case ws.Updates <- update:
			case <-ws.closing:
				return
			}
		}
	}
}

func (ws *Websocket) handleMessage(msg []byte) []SwapUpdate {
	var resp wsResponse
	if err := json.Unmarshal(msg, &resp); err != nil {
		log.WithError(fmt.Errorf("%w: %w", ErrMalformedMessage, err)).Warn("dropping status message")
		return nil
	}

	switch resp.Event {
	case "subscribe":
		select {
		case ws.subscriptions <- struct{}{}:
		default:
		}
		return nil
	case "error":
		log.Warnf("swap status channel error: %s", resp.Error)
		return nil
	case "update":
	default:
		return nil
	}

	if resp.Channel != "" && resp.Channel != swapUpdateChannel {
		return nil
	}

	updates := make([]SwapUpdate, 0, len(resp.Args))
	for _, arg := range resp.Args {
		var update SwapUpdate
		if err := mapstructure.Decode(arg, &update); err != nil {
			log.WithError(fmt.Errorf("%w: %w", ErrMalformedMessage, err)).Warn("dropping status update")
			continue
		}
		if update.Id == "" || update.Status == "" {
			log.WithError(ErrMalformedMessage).Warn("dropping status update without id or status")
			continue
		}
		if _, ok := ws.swapIds[update.Id]; !ok {
			continue
		}
		updates = append(updates, update)
	}
	return updates
}

func (ws *Websocket) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ws.writeMu.Lock()
			err := ws.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			ws.writeMu.Unlock()
			if err != nil {
				log.WithError(err).Debug("failed to ping swap status channel")
			}
		case <-ws.done:
			return
		}
	}
}
