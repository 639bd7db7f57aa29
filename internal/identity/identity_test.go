package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeToucher struct {
	mu      sync.Mutex
	touched []string
}

func (f *fakeToucher) TouchVisitor(_ context.Context, visitorID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, visitorID)
	return nil
}

func TestMiddlewareIssuesVisitorCookie(t *testing.T) {
	toucher := &fakeToucher{}
	var gotVisitor, gotSession string
	h := Middleware(toucher, true, true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotVisitor = VisitorIDFromContext(r.Context())
		gotSession = SessionIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if !isValidVisitorID(gotVisitor) {
		t.Fatalf("expected generated visitor id, got %q", gotVisitor)
	}
	if gotSession != DefaultSessionIDValue {
		t.Errorf("expected default session, got %q", gotSession)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != VisitorCookieName || cookies[0].Value != gotVisitor {
		t.Fatalf("expected visitor cookie, got %+v", cookies)
	}
	if len(toucher.touched) != 1 || toucher.touched[0] != gotVisitor {
		t.Errorf("expected visitor to be touched, got %v", toucher.touched)
	}
}

func TestMiddlewareSkipsOptedOutVisitors(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		tracking bool
	}{
		{name: "DNT header", header: "DNT", tracking: true},
		{name: "GPC header", header: "Sec-GPC", tracking: true},
		{name: "tracking disabled", tracking: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toucher := &fakeToucher{}
			var gotVisitor string
			var gotOptOut bool
			h := Middleware(toucher, true, tt.tracking)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				gotVisitor = VisitorIDFromContext(r.Context())
				gotOptOut = DoNotTrackFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, "1")
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if !isValidVisitorID(gotVisitor) {
				t.Fatalf("expected a visitor id for session scoping, got %q", gotVisitor)
			}
			if len(toucher.touched) != 0 {
				t.Errorf("expected no visitor bookkeeping, got %v", toucher.touched)
			}
			if !gotOptOut {
				t.Error("expected do-not-track flag in context")
			}
		})
	}
}

func TestMiddlewareTracksByDefault(t *testing.T) {
	var gotOptOut bool
	h := Middleware(nil, true, true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotOptOut = DoNotTrackFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("DNT", "0")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if gotOptOut {
		t.Error("DNT: 0 must not opt out")
	}
}

func TestMiddlewareReusesValidCookie(t *testing.T) {
	existing := "v_" + strings.Repeat("ab", 16)
	var gotVisitor, gotSession string
	h := Middleware(nil, true, true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotVisitor = VisitorIDFromContext(r.Context())
		gotSession = SessionIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: VisitorCookieName, Value: existing})
	req.Header.Set(SessionHeaderName, "tab-7")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if gotVisitor != existing {
		t.Errorf("expected %q, got %q", existing, gotVisitor)
	}
	if gotSession != "tab-7" {
		t.Errorf("expected session tab-7, got %q", gotSession)
	}
}

func TestMiddlewareRejectsForgedCookie(t *testing.T) {
	var gotVisitor string
	h := Middleware(nil, true, true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotVisitor = VisitorIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: VisitorCookieName, Value: "admin"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	if gotVisitor == "admin" || !isValidVisitorID(gotVisitor) {
		t.Errorf("expected a fresh visitor id, got %q", gotVisitor)
	}
}

func TestSanitizeSessionID(t *testing.T) {
	tests := map[string]string{
		"":              DefaultSessionIDValue,
		"   ":           DefaultSessionIDValue,
		"tab-1":         "tab-1",
		"bad id!":       DefaultSessionIDValue,
		" padded.id:1 ": "padded.id:1",
	}
	for in, want := range tests {
		if got := sanitizeSessionID(in); got != want {
			t.Errorf("sanitizeSessionID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIPHasher(t *testing.T) {
	h, err := NewIPHasher()
	if err != nil {
		t.Fatalf("NewIPHasher failed: %v", err)
	}
	a := h.Hash("203.0.113.7")
	if a != h.Hash("203.0.113.7") {
		t.Error("expected stable hash for the same ip")
	}
	if a == h.Hash("203.0.113.8") {
		t.Error("expected different hashes for different ips")
	}
	if len(a) != 16 || strings.Contains(a, "203") {
		t.Errorf("unexpected hash %q", a)
	}
}
