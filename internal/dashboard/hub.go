package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"loanwatch/internal/metrics"
	"loanwatch/internal/refresher"
	"loanwatch/logger"
)

const (
	clientBuffer = 16
	writeWait    = 5 * time.Second
	pingPeriod   = 30 * time.Second
)

// hub fans refresher results out to websocket clients. A client whose
// buffer is full is disconnected so the refresher never blocks on it.
type hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool

	log *logger.Log
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newHub(log *logger.Log) *hub {
	return &hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
		log:     log,
	}
}

// Observe implements refresher.Observer.
func (h *hub) Observe(_ context.Context, res refresher.Result) {
	payload, err := json.Marshal(resultView(res))
	if err != nil {
		h.log.WithComponent("dashboard_ws").WithError(err).Warn("failed to marshal result")
		return
	}
	h.broadcast(payload, res.Address)
}

func (h *hub) broadcast(payload []byte, address string) {
	var slow []*wsClient
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		metrics.ReportDrop(h.log, metrics.DropMetricWebsocket, address)
		h.log.WithComponent("dashboard_ws").Warn("dropping slow websocket client")
		h.remove(c)
	}
}

func (h *hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *hub) serve(w http.ResponseWriter, r *http.Request, initial []byte) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithComponent("dashboard_ws").WithError(err).Debug("websocket upgrade failed")
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, clientBuffer)}
	if initial != nil {
		c.send <- initial
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop discards client messages and unregisters the client once the
// connection is gone.
func (h *hub) readLoop(c *wsClient) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *hub) writeLoop(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *hub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
