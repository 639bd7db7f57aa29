package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vakosile/living-case-study/internal/domain"
	"github.com/vakosile/living-case-study/internal/identity"
)

// Widget owns one transcript and its request lifecycle. A widget is closed
// until Open is called; every Open starts a fresh transcript.
type Widget struct {
	gen    Generator
	texts  Texts
	hook   ExchangeHook
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	open       bool
	epoch      uint64 // bumped on Open and Close so late replies are dropped
	version    uint64
	state      domain.RequestState
	messages   []domain.ChatMessage
	observers  map[int]func(Snapshot)
	nextObsID  int
	lastActive time.Time
}

// WidgetOption configures a Widget.
type WidgetOption func(*Widget)

// WithExchangeHook registers a hook told about every completed request cycle.
func WithExchangeHook(hook ExchangeHook) WidgetOption {
	return func(w *Widget) {
		w.hook = hook
	}
}

// WithLogger sets the logger used for request-cycle diagnostics.
func WithLogger(logger *slog.Logger) WidgetOption {
	return func(w *Widget) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) WidgetOption {
	return func(w *Widget) {
		if now != nil {
			w.now = now
		}
	}
}

// NewWidget creates a closed widget.
func NewWidget(gen Generator, texts Texts, opts ...WidgetOption) *Widget {
	w := &Widget{
		gen:       gen,
		texts:     texts,
		logger:    slog.Default(),
		now:       time.Now,
		state:     domain.RequestIdle,
		observers: make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.lastActive = w.now()
	return w
}

// Open resets the transcript to the greeting and makes the widget ready for
// questions. A reply still in flight from an earlier opening is discarded.
func (w *Widget) Open() Snapshot {
	w.mu.Lock()
	w.open = true
	w.epoch++
	w.state = domain.RequestIdle
	w.messages = []domain.ChatMessage{domain.NewChatMessage(domain.SpeakerAssistant, w.texts.Greeting)}
	w.lastActive = w.now()
	snap := w.changedLocked()
	w.mu.Unlock()

	w.notify(snap)
	return snap
}

// Close destroys the transcript.
func (w *Widget) Close() {
	w.mu.Lock()
	if !w.open {
		w.mu.Unlock()
		return
	}
	w.open = false
	w.epoch++
	w.state = domain.RequestIdle
	w.messages = nil
	w.lastActive = w.now()
	snap := w.changedLocked()
	w.mu.Unlock()

	w.notify(snap)
}

// Submit runs one request cycle for question and returns the appended reply.
// Request failures are converted to fallback replies, so the only errors are
// the no-op rejections ErrEmptyQuestion, ErrBusy and ErrClosed.
//
// The outbound call ignores cancellation of ctx; once sent, a question always
// receives its reply.
func (w *Widget) Submit(ctx context.Context, question string) (domain.ChatMessage, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.ChatMessage{}, ErrEmptyQuestion
	}

	w.mu.Lock()
	if !w.open {
		w.mu.Unlock()
		return domain.ChatMessage{}, ErrClosed
	}
	if w.state == domain.RequestPending {
		w.mu.Unlock()
		return domain.ChatMessage{}, ErrBusy
	}
	w.messages = append(w.messages, domain.NewChatMessage(domain.SpeakerVisitor, question))
	w.state = domain.RequestPending
	w.lastActive = w.now()
	epoch := w.epoch
	prompt := BuildPrompt(w.texts.Context, question)
	snap := w.changedLocked()
	w.mu.Unlock()

	w.notify(snap)

	start := w.now()
	text, outcome, err := w.generate(context.WithoutCancel(ctx), prompt)
	latency := w.now().Sub(start)
	if err != nil {
		w.logger.Warn("Assistant request failed",
			"outcome", outcome,
			"latency", latency,
			"error", err,
		)
	}

	reply := w.finish(epoch, text)

	if w.hook != nil {
		w.hook(ExchangeResult{
			Outcome:    outcome,
			Latency:    latency,
			Err:        err,
			DoNotTrack: identity.DoNotTrackFromContext(ctx),
		})
	}
	return reply, nil
}

// generate performs the single outbound call and maps its result to the text
// that should be shown. A panicking generator counts as a transport failure.
func (w *Widget) generate(ctx context.Context, prompt string) (text string, outcome domain.ExchangeOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewTransportFailure(fmt.Errorf("generator panic: %v", r))
		}
		switch {
		case err == nil:
			outcome = domain.OutcomeSuccess
		case IsResponseShapeFailure(err):
			outcome = domain.OutcomeResponseShapeFailure
			text = w.texts.Unprocessable
		default:
			if !IsTransportFailure(err) {
				err = NewTransportFailure(err)
			}
			outcome = domain.OutcomeTransportFailure
			text = w.texts.Unavailable
		}
	}()

	if w.gen == nil {
		return "", "", NewTransportFailure(errors.New("no generator configured"))
	}
	text, err = w.gen.Generate(ctx, prompt)
	if err == nil && strings.TrimSpace(text) == "" {
		err = NewResponseShapeFailure(errors.New("empty candidate text"))
	}
	return text, "", err
}

// finish appends the reply and releases the Pending state. If the widget was
// closed or reopened while the request was in flight, the reply is dropped
// and the newer state is left untouched.
func (w *Widget) finish(epoch uint64, text string) domain.ChatMessage {
	reply := domain.NewChatMessage(domain.SpeakerAssistant, text)

	w.mu.Lock()
	if w.epoch != epoch {
		w.mu.Unlock()
		w.logger.Debug("Discarding reply for a previous opening")
		return reply
	}
	w.messages = append(w.messages, reply)
	w.state = domain.RequestIdle
	w.lastActive = w.now()
	snap := w.changedLocked()
	w.mu.Unlock()

	w.notify(snap)
	return reply
}

// Snapshot returns the current observable state.
func (w *Widget) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// Subscribe registers fn to receive a snapshot after every change. fn is
// called without the widget lock held and must not block for long. The
// returned function cancels the subscription.
func (w *Widget) Subscribe(fn func(Snapshot)) func() {
	w.mu.Lock()
	id := w.nextObsID
	w.nextObsID++
	w.observers[id] = fn
	w.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.observers, id)
			w.mu.Unlock()
		})
	}
}

// Pending reports whether a reply is awaited.
func (w *Widget) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == domain.RequestPending
}

// Observers returns the number of active subscriptions.
func (w *Widget) Observers() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.observers)
}

// IdleFor returns how long the widget has gone without activity.
func (w *Widget) IdleFor(now time.Time) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return now.Sub(w.lastActive)
}

func (w *Widget) changedLocked() Snapshot {
	w.version++
	return w.snapshotLocked()
}

func (w *Widget) snapshotLocked() Snapshot {
	msgs := make([]domain.ChatMessage, len(w.messages))
	copy(msgs, w.messages)
	return Snapshot{
		Open:     w.open,
		State:    w.state,
		Version:  w.version,
		Messages: msgs,
	}
}

func (w *Widget) notify(snap Snapshot) {
	w.mu.Lock()
	fns := make([]func(Snapshot), 0, len(w.observers))
	for _, fn := range w.observers {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
