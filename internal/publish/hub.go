// Package publish delivers matured scheduled posts to whatever actually
// posts them: the browser extension over a WebSocket, or a webhook.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// ErrNoClients is returned by Hub.Publish when no extension received the post.
var ErrNoClients = errors.New("no extension connected")

const (
	writeTimeout    = 10 * time.Second
	maxInboundBytes = 4096
)

// Message is the frame pushed to extensions.
type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Hub holds the WebSocket connections of running extension instances.
type Hub struct {
	originPatterns []string
	logger         *slog.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewHub creates a Hub. originPatterns is passed to websocket.Accept; the
// extension connects from a chrome-extension:// or moz-extension:// origin.
func NewHub(originPatterns []string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if len(originPatterns) == 0 {
		originPatterns = []string{"chrome-extension://*", "moz-extension://*"}
	}
	return &Hub{
		originPatterns: originPatterns,
		logger:         logger,
		conns:          make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the connection until the client
// leaves or the request context ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(maxInboundBytes)

	h.add(conn)
	defer h.remove(conn)
	h.logger.Info("extension connected", "remote", r.RemoteAddr, "clients", h.Clients())

	// The extension never sends anything we act on; reading only detects
	// close frames and answers pings.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				h.logger.Debug("extension read ended", "remote", r.RemoteAddr, "error", err)
			}
			break
		}
	}
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	h.logger.Info("extension disconnected", "remote", r.RemoteAddr)
}

// Publish broadcasts content to every connected extension. It succeeds if
// at least one write succeeds.
func (h *Hub) Publish(ctx context.Context, content string) error {
	msg, err := json.Marshal(Message{Type: "publish", Content: content})
	if err != nil {
		return fmt.Errorf("encoding publish message: %w", err)
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	if len(conns) == 0 {
		return ErrNoClients
	}

	delivered := 0
	var lastErr error
	for _, c := range conns {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := c.Write(wctx, websocket.MessageText, msg)
		cancel()
		if err != nil {
			lastErr = err
			h.logger.Warn("websocket write failed", "error", err)
			h.remove(c)
			_ = c.Close(websocket.StatusInternalError, "write failed")
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return fmt.Errorf("%w: %v", ErrNoClients, lastErr)
	}
	return nil
}

// Clients reports the number of connected extensions.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()

	for c := range conns {
		_ = c.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) add(c *websocket.Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}
