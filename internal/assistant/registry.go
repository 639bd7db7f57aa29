package assistant

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vakosile/living-case-study/internal/domain"
	"github.com/vakosile/living-case-study/internal/identity"
)

// ExchangeRecorder receives a record of every completed request cycle.
type ExchangeRecorder interface {
	RecordExchange(ex domain.Exchange)
}

type registryEntry struct {
	widget    *Widget
	visitorID string
	sessionID string
}

// Registry holds one widget per browser session.
type Registry struct {
	gen      Generator
	texts    Texts
	recorder ExchangeRecorder
	logger   *slog.Logger

	mu      sync.RWMutex
	widgets map[string]*registryEntry // visitorID:sessionID -> widget
}

// NewRegistry creates an empty registry. recorder may be nil.
func NewRegistry(gen Generator, texts Texts, recorder ExchangeRecorder, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		gen:      gen,
		texts:    texts,
		recorder: recorder,
		logger:   logger,
		widgets:  make(map[string]*registryEntry),
	}
}

// Get returns the widget for a browser session, creating a closed one on first use.
func (r *Registry) Get(visitorID, sessionID string) *Widget {
	key := identity.SessionKey(visitorID, sessionID)

	r.mu.RLock()
	entry, ok := r.widgets[key]
	r.mu.RUnlock()
	if ok {
		return entry.widget
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.widgets[key]; ok {
		return entry.widget
	}

	logger := r.logger.With("visitor_id", visitorID, "session_id", sessionID)
	opts := []WidgetOption{WithLogger(logger)}
	if r.recorder != nil {
		recorder := r.recorder
		opts = append(opts, WithExchangeHook(func(res ExchangeResult) {
			recorder.RecordExchange(domain.Exchange{
				VisitorID:  visitorID,
				SessionID:  sessionID,
				Outcome:    res.Outcome,
				Latency:    res.Latency,
				At:         time.Now().UTC(),
				DoNotTrack: res.DoNotTrack,
			})
		}))
	}

	w := NewWidget(r.gen, r.texts, opts...)
	r.widgets[key] = &registryEntry{widget: w, visitorID: visitorID, sessionID: sessionID}
	return w
}

// Lookup returns the widget for a browser session without creating one.
func (r *Registry) Lookup(visitorID, sessionID string) (*Widget, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.widgets[identity.SessionKey(visitorID, sessionID)]
	if !ok {
		return nil, false
	}
	return entry.widget, true
}

// Len returns the number of tracked widgets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.widgets)
}

// Sweep drops widgets idle for longer than ttl. Widgets with a pending
// request or a connected observer are kept.
func (r *Registry) Sweep(now time.Time, ttl time.Duration) int {
	r.mu.RLock()
	var expired []string
	for key, entry := range r.widgets {
		if entry.widget.IdleFor(now) > ttl && !entry.widget.Pending() && entry.widget.Observers() == 0 {
			expired = append(expired, key)
		}
	}
	r.mu.RUnlock()

	if len(expired) == 0 {
		return 0
	}

	removed := 0
	r.mu.Lock()
	for _, key := range expired {
		entry, ok := r.widgets[key]
		if !ok {
			continue
		}
		// Re-check under the write lock; a request may have started since.
		if entry.widget.IdleFor(now) <= ttl || entry.widget.Pending() || entry.widget.Observers() > 0 {
			continue
		}
		delete(r.widgets, key)
		removed++
	}
	r.mu.Unlock()
	return removed
}

// CleanupCallback runs after every sweep tick.
type CleanupCallback func(ctx context.Context, now time.Time)

// StartSweeper runs a background goroutine that periodically drops idle
// widgets until ctx is cancelled.
func StartSweeper(ctx context.Context, reg *Registry, interval, ttl time.Duration, onTick CleanupCallback) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		reg.logger.Info("Assistant sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case now := <-ticker.C:
				if removed := reg.Sweep(now, ttl); removed > 0 {
					reg.logger.Info("Assistant sweeper dropped idle sessions", "count", removed, "remaining", reg.Len())
				}
				if onTick != nil {
					onTick(ctx, now)
				}
			case <-ctx.Done():
				reg.logger.Info("Assistant sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
