package assistant

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/vakosile/living-case-study/internal/api"
	"github.com/vakosile/living-case-study/internal/domain"
	"github.com/vakosile/living-case-study/internal/identity"
)

const (
	defaultMaxRequestBodySize = 1 << 16
	defaultKeepaliveInterval  = 10 * time.Second
	defaultRetryDelay         = 5 * time.Second
)

// HandlerConfig tunes the HTTP surface.
type HandlerConfig struct {
	MaxBodySize       int64
	KeepaliveInterval time.Duration
	RetryDelay        time.Duration
	AllowedOrigin     string // Empty = same-origin WebSocket upgrades only
	IsDev             bool
}

// Limiter throttles submissions per visitor.
type Limiter interface {
	Allow(key string) bool
	Refund(key string)
}

// Handler serves the assistant widget over HTTP, SSE and WebSocket.
type Handler struct {
	registry *Registry
	limiter  Limiter
	cfg      HandlerConfig
}

// SubmitRequest is the body of POST /api/assistant/messages.
type SubmitRequest struct {
	Message string `json:"message"`
}

// SubmitResponse carries the reply and the transcript after it was appended.
type SubmitResponse struct {
	Reply      domain.ChatMessage `json:"reply"`
	Transcript Snapshot           `json:"transcript"`
}

// NewHandler creates an assistant handler. limiter may be nil.
func NewHandler(registry *Registry, limiter Limiter, cfg HandlerConfig) *Handler {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxRequestBodySize
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = defaultKeepaliveInterval
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	return &Handler{
		registry: registry,
		limiter:  limiter,
		cfg:      cfg,
	}
}

// RegisterRoutes registers assistant routes. They rely on the identity middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/assistant", func(r chi.Router) {
		r.Get("/", h.HandleSnapshot)
		r.Post("/open", h.HandleOpen)
		r.Post("/close", h.HandleClose)
		r.Post("/messages", h.HandleSubmit)
		r.Get("/stream", h.HandleStream)
	})
	r.Get("/ws/assistant", h.HandleWebSocket)
}

// widgetFor resolves the caller's widget, writing 401 when the request carries no identity.
func (h *Handler) widgetFor(w http.ResponseWriter, r *http.Request) (*Widget, string, bool) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	if visitorID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return nil, "", false
	}
	sessionID := identity.SessionIDFromContext(r.Context())
	return h.registry.Get(visitorID, sessionID), visitorID, true
}

// HandleSnapshot handles GET /api/assistant.
func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	widget, _, ok := h.widgetFor(w, r)
	if !ok {
		return
	}
	api.JSON(w, http.StatusOK, widget.Snapshot())
}

// HandleOpen handles POST /api/assistant/open.
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	widget, visitorID, ok := h.widgetFor(w, r)
	if !ok {
		return
	}
	snap := widget.Open()
	slog.Debug("Assistant opened", "visitor_id", visitorID, "session_id", identity.SessionIDFromContext(r.Context()))
	api.JSON(w, http.StatusOK, snap)
}

// HandleClose handles POST /api/assistant/close.
func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	widget, _, ok := h.widgetFor(w, r)
	if !ok {
		return
	}
	widget.Close()
	w.WriteHeader(http.StatusNoContent)
}

// HandleSubmit handles POST /api/assistant/messages. It blocks until the
// reply (or its fallback) has been appended.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	widget, visitorID, ok := h.widgetFor(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, status, err := h.submit(r, widget, visitorID, req.Message)
	if err != nil {
		api.Error(w, status, err.Error())
		return
	}

	api.JSON(w, http.StatusOK, SubmitResponse{
		Reply:      reply,
		Transcript: widget.Snapshot(),
	})
}

// submit applies the gates shared by the HTTP and WebSocket surfaces and
// runs the request cycle. The returned status is meaningful only with an error.
func (h *Handler) submit(r *http.Request, widget *Widget, visitorID, message string) (domain.ChatMessage, int, error) {
	snap := widget.Snapshot()
	switch {
	case strings.TrimSpace(message) == "":
		return domain.ChatMessage{}, http.StatusBadRequest, ErrEmptyQuestion
	case !snap.Open:
		return domain.ChatMessage{}, http.StatusConflict, ErrClosed
	case snap.Pending():
		return domain.ChatMessage{}, http.StatusConflict, ErrBusy
	}

	if h.limiter != nil && !h.limiter.Allow(visitorID) {
		return domain.ChatMessage{}, http.StatusTooManyRequests, errRateLimited
	}

	slog.Info("Assistant question",
		"visitor_id", visitorID,
		"session_id", identity.SessionIDFromContext(r.Context()),
		"request_id", chiMiddleware.GetReqID(r.Context()),
		"message_length", len(message),
		"do_not_track", identity.DoNotTrackFromContext(r.Context()),
	)

	reply, err := widget.Submit(r.Context(), message)
	if err != nil && h.limiter != nil {
		// Lost the race for the Idle gate after taking a slot.
		h.limiter.Refund(visitorID)
	}
	switch {
	case errors.Is(err, ErrEmptyQuestion):
		return reply, http.StatusBadRequest, err
	case errors.Is(err, ErrBusy), errors.Is(err, ErrClosed):
		return reply, http.StatusConflict, err
	case err != nil:
		return reply, http.StatusInternalServerError, err
	}
	return reply, http.StatusOK, nil
}

var errRateLimited = errors.New("rate limit exceeded")

// HandleStream handles GET /api/assistant/stream. It pushes a snapshot event
// on connect and after every change, with keepalive pings in between.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	widget, visitorID, ok := h.widgetFor(w, r)
	if !ok {
		return
	}
	sessionID := identity.SessionIDFromContext(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if _, err := fmt.Fprintf(w, "retry: %d\n\n", h.cfg.RetryDelay.Milliseconds()); err != nil {
		slog.Warn("failed to write SSE retry header", "error", err, "visitor_id", visitorID)
		return
	}
	flusher.Flush()

	updates := newLatestSnapshot()
	cancel := widget.Subscribe(updates.offer)
	defer cancel()

	slog.Info("Assistant stream connected", "visitor_id", visitorID, "session_id", sessionID)
	defer slog.Info("Assistant stream closed", "visitor_id", visitorID, "session_id", sessionID)

	initial := widget.Snapshot()
	if err := writeSnapshotEvent(w, initial); err != nil {
		slog.Warn("failed to write initial SSE snapshot", "error", err, "visitor_id", visitorID)
		return
	}
	flusher.Flush()
	lastSent := initial.Version

	keepalive := time.NewTicker(h.cfg.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap := <-updates.C():
			if snap.Version <= lastSent {
				continue
			}
			if err := writeSnapshotEvent(w, snap); err != nil {
				slog.Warn("failed to write SSE snapshot", "error", err, "visitor_id", visitorID)
				return
			}
			flusher.Flush()
			lastSent = snap.Version
		case <-keepalive.C:
			if err := writeSSE(w, "ping", `{"status":"alive"}`); err != nil {
				slog.Warn("failed to write SSE keepalive ping", "error", err, "visitor_id", visitorID)
				return
			}
			flusher.Flush()
		}
	}
}

// latestSnapshot is a one-slot mailbox that always holds the newest
// snapshot. Snapshots carry the full state, so older ones can be dropped.
type latestSnapshot struct {
	ch chan Snapshot
}

func newLatestSnapshot() *latestSnapshot {
	return &latestSnapshot{ch: make(chan Snapshot, 1)}
}

func (l *latestSnapshot) offer(s Snapshot) {
	for {
		select {
		case l.ch <- s:
			return
		default:
		}
		select {
		case old := <-l.ch:
			if old.Version > s.Version {
				s = old
			}
		default:
		}
	}
}

func (l *latestSnapshot) C() <-chan Snapshot {
	return l.ch
}

func writeSnapshotEvent(w io.Writer, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return writeSSEWithID(w, snap.Version, "snapshot", string(data))
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeSSEWithID(w io.Writer, id uint64, event, data string) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}
