package assistant

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vakosile/living-case-study/internal/identity"
)

// wsMessage is a client-to-server WebSocket frame.
type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// wsEvent is a server-to-client WebSocket frame.
type wsEvent struct {
	Type     string    `json:"type"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// HandleWebSocket handles GET /ws/assistant. The server pushes a snapshot on
// connect and after every change; the client sends open, close and submit frames.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	widget, visitorID, ok := h.widgetFor(w, r)
	if !ok {
		return
	}
	sessionID := identity.SessionIDFromContext(r.Context())

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.cfg.IsDev,
		OriginPatterns:     h.originPatterns(),
	})
	if err != nil {
		slog.Warn("Failed to accept WebSocket", "error", err, "visitor_id", visitorID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "visitor_id", visitorID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates := newLatestSnapshot()
	unsubscribe := widget.Subscribe(updates.offer)
	defer unsubscribe()

	slog.Info("Assistant WebSocket connected", "visitor_id", visitorID, "session_id", sessionID)

	go func() {
		defer cancel()
		h.writeLoop(ctx, ws, widget, updates, visitorID)
	}()

	h.readLoop(ctx, ws, widget, r, visitorID)
	slog.Info("Assistant WebSocket closed", "visitor_id", visitorID, "session_id", sessionID)
}

func (h *Handler) originPatterns() []string {
	if h.cfg.AllowedOrigin == "" || h.cfg.AllowedOrigin == "*" {
		return nil
	}
	u, err := url.Parse(h.cfg.AllowedOrigin)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}

func (h *Handler) writeLoop(ctx context.Context, ws *websocket.Conn, widget *Widget, updates *latestSnapshot, visitorID string) {
	initial := widget.Snapshot()
	if err := wsjson.Write(ctx, ws, wsEvent{Type: "snapshot", Snapshot: &initial}); err != nil {
		slog.Debug("Failed to send initial snapshot", "error", err, "visitor_id", visitorID)
		return
	}
	lastSent := initial.Version

	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-updates.C():
			if snap.Version <= lastSent {
				continue
			}
			if err := wsjson.Write(ctx, ws, wsEvent{Type: "snapshot", Snapshot: &snap}); err != nil {
				if ctx.Err() == nil {
					slog.Debug("WebSocket write error", "error", err, "visitor_id", visitorID)
				}
				return
			}
			lastSent = snap.Version
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, widget *Widget, r *http.Request, visitorID string) {
	for {
		var msg wsMessage
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			switch {
			case websocket.CloseStatus(err) != -1, errors.Is(err, context.Canceled):
				slog.Debug("WebSocket closed", "visitor_id", visitorID)
			default:
				slog.Warn("WebSocket read error", "error", err, "visitor_id", visitorID)
			}
			return
		}

		switch msg.Type {
		case "open":
			widget.Open()
		case "close":
			widget.Close()
		case "submit":
			// The request cycle outlives this connection if the visitor
			// disconnects; the reply lands in the transcript either way.
			go func(text string) {
				if _, status, err := h.submit(r, widget, visitorID, text); err != nil {
					slog.Debug("WebSocket submit rejected", "status", status, "error", err, "visitor_id", visitorID)
					h.writeError(ctx, ws, err)
				}
			}(msg.Content)
		case "ping":
			if err := wsjson.Write(ctx, ws, wsEvent{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		default:
			h.writeError(ctx, ws, errors.New("unknown message type"))
		}
	}
}

func (h *Handler) writeError(ctx context.Context, ws *websocket.Conn, err error) {
	if ctx.Err() != nil {
		return
	}
	if writeErr := wsjson.Write(ctx, ws, wsEvent{Type: "error", Error: err.Error()}); writeErr != nil {
		slog.Debug("Failed to send error frame", "error", writeErr)
	}
}
