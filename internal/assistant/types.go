// Package assistant implements the chat widget that forwards visitor
// questions to a text-generation service with a fixed biography as context.
package assistant

import (
	"context"
	"time"

	"github.com/vakosile/living-case-study/internal/content"
	"github.com/vakosile/living-case-study/internal/domain"
)

const (
	defaultUnprocessable = "I'm sorry, I couldn't process that."
	defaultUnavailable   = "Apologies, I'm having trouble connecting. Please try again later."
)

// Generator produces a completion for a single-turn prompt. It is the only
// outbound operation the widget performs.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Texts are the fixed strings a widget speaks with.
type Texts struct {
	Greeting      string
	Context       string
	Unprocessable string
	Unavailable   string
}

// TextsFromContent builds widget texts from the assistant content block.
// Missing fallbacks get generic defaults.
func TextsFromContent(a content.Assistant) Texts {
	t := Texts{
		Greeting:      a.Greeting,
		Context:       a.Context,
		Unprocessable: a.FallbackUnprocessable,
		Unavailable:   a.FallbackUnavailable,
	}
	if t.Unprocessable == "" {
		t.Unprocessable = defaultUnprocessable
	}
	if t.Unavailable == "" {
		t.Unavailable = defaultUnavailable
	}
	return t
}

// Snapshot is an immutable copy of a widget's observable state.
type Snapshot struct {
	Open     bool                 `json:"open"`
	State    domain.RequestState  `json:"state"`
	Version  uint64               `json:"version"`
	Messages []domain.ChatMessage `json:"messages"`
}

// Pending reports whether a reply is awaited.
func (s Snapshot) Pending() bool {
	return s.State == domain.RequestPending
}

// ExchangeResult describes how one request cycle ended.
type ExchangeResult struct {
	Outcome domain.ExchangeOutcome
	Latency time.Duration
	Err     error

	// DoNotTrack is set when the visitor opted out of tracking.
	DoNotTrack bool
}

// ExchangeHook is told about every completed request cycle.
type ExchangeHook func(ExchangeResult)
