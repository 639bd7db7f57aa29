package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vakosile/living-case-study/internal/domain"
)

// StatsSource aggregates visit analytics.
type StatsSource interface {
	Stats(ctx context.Context, now time.Time) (*domain.Stats, error)
}

// AdminHandler serves analytics to the site owner.
type AdminHandler struct {
	stats StatsSource
	token string
	now   func() time.Time
}

// NewAdminHandler creates an admin handler guarded by a bearer token.
func NewAdminHandler(stats StatsSource, token string) *AdminHandler {
	return &AdminHandler{stats: stats, token: token, now: time.Now}
}

// RegisterRoutes registers admin routes. Nothing is registered when no token
// is configured.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	if h.token == "" {
		slog.Info("Admin routes disabled: ADMIN_TOKEN not set")
		return
	}
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(h.requireToken)
		r.Get("/stats", h.Stats)
	})
}

// Stats handles GET /api/admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats(r.Context(), h.now())
	if err != nil {
		slog.Error("Failed to load stats", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	JSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
