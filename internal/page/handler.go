package page

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vakosile/living-case-study/internal/api"
	"github.com/vakosile/living-case-study/internal/content"
)

// ViewRecorder records rendered pages.
type ViewRecorder interface {
	RecordPageView(r *http.Request, execName string)
}

// Handler serves the page and its fragments.
type Handler struct {
	doc      *content.Document
	renderer *Renderer
	recorder ViewRecorder
	now      func() time.Time
}

// NewHandler creates a page handler. recorder may be nil.
func NewHandler(doc *content.Document, renderer *Renderer, recorder ViewRecorder) *Handler {
	return &Handler{
		doc:      doc,
		renderer: renderer,
		recorder: recorder,
		now:      time.Now,
	}
}

// RegisterRoutes registers the page and fragment routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleIndex)
	r.Route("/fragments/banner", func(r chi.Router) {
		r.Get("/", h.HandleBanner)
		r.Delete("/", h.HandleDismissBanner)
	})
}

// HandleIndex handles GET /. The exec parameter is read once per render.
func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	execName := ExecName(r.URL.Query().Get("exec"))
	view := NewView(h.doc, execName, h.now())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := h.renderer.Render(w, view); err != nil {
		slog.Error("Failed to render page", "error", err)
		api.Error(w, http.StatusInternalServerError, "failed to render page")
		return
	}

	if h.recorder != nil {
		h.recorder.RecordPageView(r, execName)
	}
}

// HandleBanner handles GET /fragments/banner?exec=. It renders nothing when
// exec is absent.
func (h *Handler) HandleBanner(w http.ResponseWriter, r *http.Request) {
	execName := ExecName(r.URL.Query().Get("exec"))
	view := View{Doc: h.doc}
	if execName != "" {
		view.Personalization = NewPersonalization(h.doc.Personalization, execName)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.renderer.RenderBanner(w, view); err != nil {
		slog.Error("Failed to render banner", "error", err)
		http.Error(w, "", http.StatusInternalServerError)
	}
}

// HandleDismissBanner handles DELETE /fragments/banner. The caller swaps the
// banner for the empty response; the personalized section is unaffected.
func (h *Handler) HandleDismissBanner(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
}
