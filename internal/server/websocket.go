package server

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oszuidwest/zwfm-meter/internal/types"
)

// statusInterval is how often connected clients receive a status update.
const statusInterval = 3000 * time.Millisecond

// WebSocketConn is the part of a WebSocket connection the handler uses.
type WebSocketConn interface {
	io.Closer
	WriteJSON(v any) error
	ReadJSON(v any) error
}

var upgrader = websocket.Upgrader{
	CheckOrigin: checkOrigin,
}

// checkOrigin reports whether the WebSocket connection origin is allowed.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Same-origin requests omit the Origin header
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		slog.Warn("rejected WebSocket connection: invalid origin URL", "origin", origin)
		return false
	}

	host := u.Hostname()
	if host == "localhost" {
		return true
	}

	requestHost := r.Host
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if host == requestHost {
		return true
	}

	// Meters are usually viewed from studio machines on the local network.
	ip := net.ParseIP(host)
	if ip != nil && (ip.IsLoopback() || ip.IsPrivate()) {
		return true
	}

	slog.Warn("rejected WebSocket connection", "origin", origin, "host", host)
	return false
}

// UpgradeConnection upgrades an HTTP connection to WebSocket.
func UpgradeConnection(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return upgrader.Upgrade(w, r, nil)
}

// handleWebSocket pushes every published snapshot to the client, plus periodic status.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// The send channel is never closed: observers may still hold it after unsubscribing.
	send := make(chan any, 16)
	done := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)

	unsubscribe, err := h.meter.Subscribe(func(levels types.AudioLevels) {
		select {
		case send <- types.WSLevelsResponse{Type: "levels", Levels: levels}:
		default:
			// Slow client; the next snapshot supersedes this one.
		}
	})
	if err != nil {
		slog.Warn("meter unavailable for WebSocket client", "error", err)
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
		return
	}
	defer unsubscribe()

	go h.runWebSocketReader(conn, send, done, statusUpdate)
	h.runWebSocketWriter(conn, send, done, statusUpdate)
}

// runWebSocketReader reads commands from the connection and dispatches them.
func (h *Handler) runWebSocketReader(conn WebSocketConn, send chan<- any, done, statusUpdate chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		h.commands.Handle(cmd, send, func() {
			select {
			case statusUpdate <- struct{}{}:
			default:
			}
		})
	}
}

// runWebSocketWriter is the sole writer to the connection. It returns when the
// client goes away or a write fails.
func (h *Handler) runWebSocketWriter(conn WebSocketConn, send <-chan any, done, statusUpdate <-chan struct{}) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()

	statusTicker := time.NewTicker(statusInterval)
	defer statusTicker.Stop()

	write := func(msg any) bool {
		return conn.WriteJSON(msg) == nil
	}

	if !write(h.buildWSStatus()) || !write(types.WSLevelsResponse{Type: "levels", Levels: h.meter.Current()}) {
		return
	}

	for {
		select {
		case <-done:
			return
		case msg := <-send:
			if !write(msg) {
				return
			}
		case <-statusUpdate:
			if !write(h.buildWSStatus()) {
				return
			}
		case <-statusTicker.C:
			if !write(h.buildWSStatus()) {
				return
			}
		}
	}
}
