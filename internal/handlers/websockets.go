package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"repair_tracker"
	"repair_tracker/internal/metrics"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 64 << 10 // 64 KiB

	errRateLimited = "rate limit exceeded, command dropped"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsTransport adapts a websocket connection to registry.Transport. Send is
// only called by the registry's writer goroutine; pings go through
// WriteControl, which gorilla allows concurrently.
type wsTransport struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func (t *wsTransport) Send(msg repair_tracker.Message) error {
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteJSON(msg)
}

func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func (h *Handler) wsConnect(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	id := h.registry.Connect(&wsTransport{conn: conn})
	defer h.registry.Disconnect(id)

	if h.log != nil {
		h.log.Infow("ws_connected", "websocket_id", id, "remote", c.ClientIP())
	}
	if err := h.registry.Deliver(id, repair_tracker.ConnectedMessage(id)); err != nil {
		return
	}

	done := make(chan struct{})
	defer close(done)
	go h.keepAlive(id, conn, done)

	h.readLoop(c, id, conn)
}

// keepAlive pings the client until done is closed or a ping fails.
func (h *Handler) keepAlive(id string, conn *websocket.Conn, done <-chan struct{}) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "websocket_id", id, "err", err)
				}
				h.registry.Disconnect(id)
				return
			}
		}
	}
}

// readLoop handles client commands until the connection is closed. Commands
// beyond the per-connection budget are answered with a private error.
func (h *Handler) readLoop(c *gin.Context, id string, conn *websocket.Conn) {
	limiter := rate.NewLimiter(h.opts.CommandRate, h.opts.CommandBurst)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if h.log != nil {
				h.log.Infow("ws_read_closed", "websocket_id", id, "err", err)
			}
			return
		}
		if !limiter.Allow() {
			metrics.RecordCommand("rate_limited", false)
			h.registry.SendError(id, errRateLimited)
			continue
		}
		h.handleCommand(c.Request.Context(), id, raw)
	}
}
