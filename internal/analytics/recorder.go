// Package analytics records page views and assistant exchanges to the store,
// Prometheus and NATS.
package analytics

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/vakosile/living-case-study/internal/domain"
	"github.com/vakosile/living-case-study/internal/events"
	"github.com/vakosile/living-case-study/internal/identity"
	"github.com/vakosile/living-case-study/internal/metrics"
	"github.com/vakosile/living-case-study/internal/shared"
)

const (
	writeTimeout     = 5 * time.Second
	writeAttempts    = 3
	writeBaseDelay   = 50 * time.Millisecond
	defaultPruneGap  = time.Hour
	maxUserAgentSize = 256
)

// Writer is the subset of the store the recorder needs.
type Writer interface {
	RecordPageView(ctx context.Context, view *domain.PageView) error
	RecordExchange(ctx context.Context, exchange *domain.Exchange) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (domain.PruneResult, error)
}

// Options configures a Recorder. Store, Metrics and Publisher may be nil.
type Options struct {
	Store     Writer
	Metrics   *metrics.Metrics
	Publisher events.Publisher
	Hasher    *identity.IPHasher
	Enabled   bool          // false = count in metrics only, persist and publish nothing
	Retention time.Duration // rows older than this are pruned
	Logger    *slog.Logger
}

// Recorder writes analytics in the background so request handling never
// waits on the database.
type Recorder struct {
	opts Options
	now  func() time.Time

	wg sync.WaitGroup

	pruneMu   sync.Mutex
	lastPrune time.Time
	pruneGap  time.Duration
}

// NewRecorder creates a recorder.
func NewRecorder(opts Options) *Recorder {
	if opts.Publisher == nil {
		opts.Publisher = events.Noop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Recorder{
		opts:     opts,
		now:      time.Now,
		pruneGap: defaultPruneGap,
	}
}

// RecordPageView records one render of the page at r. execName is the
// trimmed personalization name, empty when absent.
func (rec *Recorder) RecordPageView(r *http.Request, execName string) {
	view := &domain.PageView{
		VisitorID: identity.VisitorIDFromContext(r.Context()),
		Path:      r.URL.Path,
		ExecName:  execName,
		UserAgent: truncate(r.UserAgent(), maxUserAgentSize),
		ViewedAt:  rec.now().UTC(),
	}
	if rec.opts.Hasher != nil {
		view.HashedIP = rec.opts.Hasher.Hash(identity.IPFromRequest(r))
	}

	if rec.opts.Metrics != nil {
		rec.opts.Metrics.PageViewed(view.Personalized())
	}
	if !rec.opts.Enabled || identity.DoNotTrack(r) || identity.DoNotTrackFromContext(r.Context()) {
		return
	}

	rec.background(func(ctx context.Context) {
		if rec.opts.Store != nil {
			err := shared.RetryOnConflict(ctx, "record page view", writeAttempts, writeBaseDelay, func(ctx context.Context) error {
				return rec.opts.Store.RecordPageView(ctx, view)
			})
			if err != nil {
				rec.writeFailed("Failed to record page view", err, view.VisitorID)
			}
		}
		rec.publish(events.SubjectPageViewed, events.PageViewed{
			VisitorID:    view.VisitorID,
			Path:         view.Path,
			Personalized: view.Personalized(),
			ViewedAt:     view.ViewedAt,
		})
	})
}

// RecordExchange records the outcome of one assistant request cycle.
func (rec *Recorder) RecordExchange(ex domain.Exchange) {
	if ex.At.IsZero() {
		ex.At = rec.now().UTC()
	}
	if rec.opts.Metrics != nil {
		rec.opts.Metrics.ExchangeCompleted(ex.Outcome, ex.Latency)
	}
	if !rec.opts.Enabled || ex.DoNotTrack {
		return
	}

	rec.background(func(ctx context.Context) {
		if rec.opts.Store != nil {
			err := shared.RetryOnConflict(ctx, "record exchange", writeAttempts, writeBaseDelay, func(ctx context.Context) error {
				return rec.opts.Store.RecordExchange(ctx, &ex)
			})
			if err != nil {
				rec.writeFailed("Failed to record assistant exchange", err, ex.VisitorID)
			}
		}
		rec.publish(events.SubjectExchange, events.ExchangeCompleted{
			VisitorID: ex.VisitorID,
			SessionID: ex.SessionID,
			Outcome:   string(ex.Outcome),
			LatencyMs: ex.Latency.Milliseconds(),
			At:        ex.At,
		})
	})
}

// Prune deletes rows older than the retention window. It runs at most once
// per hour no matter how often it is called, which lets it ride on a
// faster ticker.
func (rec *Recorder) Prune(ctx context.Context, now time.Time) {
	if rec.opts.Store == nil || rec.opts.Retention <= 0 {
		return
	}

	rec.pruneMu.Lock()
	if !rec.lastPrune.IsZero() && now.Sub(rec.lastPrune) < rec.pruneGap {
		rec.pruneMu.Unlock()
		return
	}
	rec.lastPrune = now
	rec.pruneMu.Unlock()

	cutoff := now.Add(-rec.opts.Retention)
	res, err := rec.opts.Store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		rec.opts.Logger.Error("Failed to prune analytics", "error", err, "cutoff", cutoff)
		return
	}
	if res.PageViews > 0 || res.Exchanges > 0 || res.Visitors > 0 {
		rec.opts.Logger.Info("Pruned analytics",
			"page_views", res.PageViews,
			"exchanges", res.Exchanges,
			"visitors", res.Visitors,
			"cutoff", cutoff,
		)
	}
}

// Wait blocks until all background writes have finished.
func (rec *Recorder) Wait() {
	rec.wg.Wait()
}

func (rec *Recorder) background(fn func(ctx context.Context)) {
	rec.wg.Add(1)
	go func() {
		defer rec.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (rec *Recorder) publish(subject string, data any) {
	if err := rec.opts.Publisher.Publish(subject, data); err != nil {
		rec.opts.Logger.Warn("Failed to publish event", "subject", subject, "error", err)
	}
}

func (rec *Recorder) writeFailed(msg string, err error, visitorID string) {
	rec.opts.Logger.Warn(msg, "error", err, "visitor_id", visitorID)
	if rec.opts.Metrics != nil {
		rec.opts.Metrics.RecordingFailed()
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
