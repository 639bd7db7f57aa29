package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vakosile/living-case-study/internal/domain"
)

func TestCounters(t *testing.T) {
	m := New()

	m.PageViewed(true)
	m.PageViewed(false)
	m.PageViewed(false)
	m.ExchangeCompleted(domain.OutcomeSuccess, 1200*time.Millisecond)
	m.ExchangeCompleted(domain.OutcomeTransportFailure, 30*time.Second)

	if got := testutil.ToFloat64(m.pageViews.WithLabelValues("false")); got != 2 {
		t.Errorf("unpersonalized views = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.exchanges.WithLabelValues("success")); got != 1 {
		t.Errorf("successful exchanges = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.exchangeLatency); got != 2 {
		t.Errorf("latency series = %d, want 2", got)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/fragments/{name}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, path := range []string{"/fragments/banner", "/fragments/other"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	got := testutil.ToFloat64(m.httpRequests.WithLabelValues("/fragments/{name}", http.MethodGet, "418"))
	if got != 2 {
		t.Errorf("requests for pattern = %v, want 2", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RegisterGaugeFunc("assistant_sessions", "Tracked widgets.", func() float64 { return 3 })
	m.PageViewed(true)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`casestudy_page_views_total{personalized="true"} 1`,
		`casestudy_assistant_sessions 3`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
