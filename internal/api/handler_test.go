//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vakosile/living-case-study/internal/domain"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusConflict, "busy")

	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
	var got map[string]string
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["error"] != "busy" {
		t.Errorf("Expected error=busy, got %v", got)
	}
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name      string
		pingErr   error
		aiEnabled bool
		wantCode  int
		wantDB    string
		wantAI    string
	}{
		{name: "healthy", aiEnabled: true, wantCode: http.StatusOK, wantDB: "ok", wantAI: "ok"},
		{name: "ai disabled", wantCode: http.StatusOK, wantDB: "ok", wantAI: "disabled"},
		{name: "db down", pingErr: errors.New("closed"), aiEnabled: true, wantCode: http.StatusServiceUnavailable, wantDB: "unreachable", wantAI: "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(fakePinger{err: tt.pingErr}, tt.aiEnabled)
			w := httptest.NewRecorder()
			h.Health(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Checks["database"] != tt.wantDB {
				t.Errorf("database = %q, want %q", body.Checks["database"], tt.wantDB)
			}
			if body.Checks["assistant"] != tt.wantAI {
				t.Errorf("assistant = %q, want %q", body.Checks["assistant"], tt.wantAI)
			}
		})
	}
}

type fakeStats struct {
	stats *domain.Stats
	err   error
}

func (f fakeStats) Stats(context.Context, time.Time) (*domain.Stats, error) {
	return f.stats, f.err
}

func TestAdminStats(t *testing.T) {
	src := fakeStats{stats: &domain.Stats{
		TotalViews:        12,
		PersonalizedViews: 3,
		TopExecNames:      []domain.NameCount{{Name: "Dana", Views: 3}},
		Exchanges:         map[domain.ExchangeOutcome]int64{domain.OutcomeSuccess: 4},
	}}
	r := chi.NewRouter()
	NewAdminHandler(src, "s3cret").RegisterRoutes(r)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing token", want: http.StatusUnauthorized},
		{name: "wrong token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic s3cret", want: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer s3cret", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want != http.StatusOK {
				return
			}
			var got domain.Stats
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.TotalViews != 12 || got.Exchanges[domain.OutcomeSuccess] != 4 {
				t.Errorf("unexpected stats: %+v", got)
			}
		})
	}
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	r := chi.NewRouter()
	NewAdminHandler(fakeStats{}, "").RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestAdminStatsError(t *testing.T) {
	r := chi.NewRouter()
	NewAdminHandler(fakeStats{err: errors.New("db")}, "tok").RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
