package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vakosile/living-case-study/internal/content"
	"github.com/vakosile/living-case-study/internal/domain"
)

var testTexts = Texts{
	Greeting:      "Hi! Ask me about Vic.",
	Context:       "Vic is a program architect.",
	Unprocessable: "I'm sorry, I couldn't process that.",
	Unavailable:   "Apologies, I'm having trouble connecting.",
}

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
	started chan struct{}
	release chan struct{}
	ctxErrs []error
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	return f.reply, f.err
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func newBlockingGenerator(reply string) *fakeGenerator {
	return &fakeGenerator{
		reply:   reply,
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func speakers(msgs []domain.ChatMessage) []domain.Speaker {
	out := make([]domain.Speaker, len(msgs))
	for i, m := range msgs {
		out[i] = m.Speaker
	}
	return out
}

func texts(msgs []domain.ChatMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func TestWidget_OpenStartsWithGreeting(t *testing.T) {
	w := NewWidget(&fakeGenerator{}, testTexts)

	assert.False(t, w.Snapshot().Open)

	snap := w.Open()
	assert.True(t, snap.Open)
	assert.Equal(t, domain.RequestIdle, snap.State)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, domain.SpeakerAssistant, snap.Messages[0].Speaker)
	assert.Equal(t, testTexts.Greeting, snap.Messages[0].Text)
}

func TestWidget_SubmitSuccess(t *testing.T) {
	gen := &fakeGenerator{reply: "Vic designs executive programs."}
	w := NewWidget(gen, testTexts)
	w.Open()

	reply, err := w.Submit(context.Background(), "  What does Vic do?  ")
	require.NoError(t, err)
	assert.Equal(t, "Vic designs executive programs.", reply.Text)

	snap := w.Snapshot()
	assert.Equal(t, domain.RequestIdle, snap.State)
	assert.Equal(t,
		[]domain.Speaker{domain.SpeakerAssistant, domain.SpeakerVisitor, domain.SpeakerAssistant},
		speakers(snap.Messages))
	assert.Equal(t,
		[]string{testTexts.Greeting, "What does Vic do?", "Vic designs executive programs."},
		texts(snap.Messages))

	require.Equal(t, 1, gen.calls())
	assert.Equal(t,
		"Vic is a program architect.\n\nQuestion: What does Vic do?\n\nAnswer:",
		gen.prompts[0])
}

func TestWidget_EmptyQuestionIsNoOp(t *testing.T) {
	gen := &fakeGenerator{reply: "unused"}
	w := NewWidget(gen, testTexts)
	before := w.Open()

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := w.Submit(context.Background(), q)
		assert.ErrorIs(t, err, ErrEmptyQuestion)
	}

	after := w.Snapshot()
	assert.Equal(t, 0, gen.calls())
	assert.Equal(t, before.Version, after.Version)
	assert.Len(t, after.Messages, 1)
}

func TestWidget_SubmitWhileClosed(t *testing.T) {
	gen := &fakeGenerator{reply: "unused"}
	w := NewWidget(gen, testTexts)

	_, err := w.Submit(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 0, gen.calls())
}

func TestWidget_SubmitWhilePendingIsRejected(t *testing.T) {
	gen := newBlockingGenerator("first answer")
	w := NewWidget(gen, testTexts)
	w.Open()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := w.Submit(context.Background(), "first")
		assert.NoError(t, err)
	}()
	<-gen.started

	assert.True(t, w.Pending())
	_, err := w.Submit(context.Background(), "second")
	assert.ErrorIs(t, err, ErrBusy)

	close(gen.release)
	<-done

	snap := w.Snapshot()
	assert.Equal(t, domain.RequestIdle, snap.State)
	assert.Equal(t, []string{testTexts.Greeting, "first", "first answer"}, texts(snap.Messages))
	assert.Equal(t, 1, gen.calls())
}

func TestWidget_FailuresBecomeFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		err     error
		want    string
		outcome domain.ExchangeOutcome
	}{
		{
			name:    "transport failure",
			err:     NewTransportFailure(errors.New("connection refused")),
			want:    testTexts.Unavailable,
			outcome: domain.OutcomeTransportFailure,
		},
		{
			name:    "untyped error counts as transport",
			err:     errors.New("boom"),
			want:    testTexts.Unavailable,
			outcome: domain.OutcomeTransportFailure,
		},
		{
			name:    "response shape failure",
			err:     NewResponseShapeFailure(errors.New("no candidates")),
			want:    testTexts.Unprocessable,
			outcome: domain.OutcomeResponseShapeFailure,
		},
		{
			name:    "blank text",
			reply:   "   ",
			want:    testTexts.Unprocessable,
			outcome: domain.OutcomeResponseShapeFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got ExchangeResult
			gen := &fakeGenerator{reply: tt.reply, err: tt.err}
			w := NewWidget(gen, testTexts, WithExchangeHook(func(r ExchangeResult) { got = r }))
			w.Open()

			reply, err := w.Submit(context.Background(), "question")
			require.NoError(t, err)
			assert.Equal(t, tt.want, reply.Text)
			assert.Equal(t, domain.SpeakerAssistant, reply.Speaker)

			snap := w.Snapshot()
			assert.Equal(t, domain.RequestIdle, snap.State)
			require.Len(t, snap.Messages, 3)
			assert.Equal(t, tt.want, snap.Messages[2].Text)

			assert.Equal(t, tt.outcome, got.Outcome)
			assert.Error(t, got.Err)
		})
	}
}

func TestWidget_PanickingGeneratorReleasesPending(t *testing.T) {
	gen := GeneratorFunc(func(context.Context, string) (string, error) {
		panic("exploded")
	})
	w := NewWidget(gen, testTexts)
	w.Open()

	reply, err := w.Submit(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, testTexts.Unavailable, reply.Text)
	assert.False(t, w.Pending())
}

func TestWidget_CallerCancellationDoesNotAbortRequest(t *testing.T) {
	gen := &fakeGenerator{reply: "still answered"}
	w := NewWidget(gen, testTexts)
	w.Open()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reply, err := w.Submit(ctx, "question")
	require.NoError(t, err)
	assert.Equal(t, "still answered", reply.Text)
	require.Len(t, gen.ctxErrs, 1)
	assert.NoError(t, gen.ctxErrs[0])
}

func TestWidget_ReopenDropsLateReply(t *testing.T) {
	gen := newBlockingGenerator("late answer")
	w := NewWidget(gen, testTexts)
	w.Open()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = w.Submit(context.Background(), "first")
	}()
	<-gen.started

	w.Close()
	assert.False(t, w.Snapshot().Open)
	assert.Empty(t, w.Snapshot().Messages)

	reopened := w.Open()
	assert.Equal(t, domain.RequestIdle, reopened.State)
	assert.Len(t, reopened.Messages, 1)

	close(gen.release)
	<-done

	snap := w.Snapshot()
	assert.Equal(t, []string{testTexts.Greeting}, texts(snap.Messages))
	assert.Equal(t, domain.RequestIdle, snap.State)
}

func TestWidget_ObserversSeePendingThenIdle(t *testing.T) {
	gen := &fakeGenerator{reply: "answer"}
	w := NewWidget(gen, testTexts)
	w.Open()

	var mu sync.Mutex
	var seen []Snapshot
	cancel := w.Subscribe(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	_, err := w.Submit(context.Background(), "question")
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, seen, 2)
	assert.Equal(t, domain.RequestPending, seen[0].State)
	assert.Len(t, seen[0].Messages, 2)
	assert.Equal(t, domain.RequestIdle, seen[1].State)
	assert.Len(t, seen[1].Messages, 3)
	assert.Greater(t, seen[1].Version, seen[0].Version)
	mu.Unlock()

	cancel()
	cancel()
	assert.Equal(t, 0, w.Observers())

	w.Close()
	mu.Lock()
	assert.Len(t, seen, 2)
	mu.Unlock()
}

func TestWidget_SnapshotIsACopy(t *testing.T) {
	w := NewWidget(&fakeGenerator{}, testTexts)
	snap := w.Open()
	snap.Messages[0].Text = "mutated"

	assert.Equal(t, testTexts.Greeting, w.Snapshot().Messages[0].Text)
}

func TestWidget_IdleFor(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w := NewWidget(&fakeGenerator{}, testTexts, WithClock(func() time.Time { return now }))

	assert.Equal(t, 5*time.Minute, w.IdleFor(now.Add(5*time.Minute)))
}

func TestBuildPrompt(t *testing.T) {
	assert.Equal(t, "bio\n\nQuestion: q?\n\nAnswer:", BuildPrompt("bio", "q?"))
}

func TestTextsFromContentDefaults(t *testing.T) {
	got := TextsFromContent(content.Assistant{Greeting: "hello", Context: "bio"})
	assert.Equal(t, "hello", got.Greeting)
	assert.Equal(t, defaultUnprocessable, got.Unprocessable)
	assert.Equal(t, defaultUnavailable, got.Unavailable)
}

func TestErrorClassification(t *testing.T) {
	tf := NewTransportFailure(errors.New("dial"))
	sf := NewResponseShapeFailure(errors.New("empty"))

	assert.True(t, IsTransportFailure(tf))
	assert.False(t, IsResponseShapeFailure(tf))
	assert.True(t, IsResponseShapeFailure(sf))
	assert.True(t, IsTransportFailure(errors.Join(errors.New("ctx"), tf)))
	assert.False(t, IsTransportFailure(errors.New("plain")))
}
