// Package gemini implements the assistant's text generator on top of the
// Gemini generateContent API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/vakosile/living-case-study/internal/assistant"
)

// Config configures the client.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string // Empty = SDK default endpoint
	Timeout    time.Duration
	HTTPClient *http.Client // Optional; Timeout is applied when nil
}

// Client sends single-turn prompts to Gemini.
type Client struct {
	models *genai.Models
	model  string
}

var _ assistant.Generator = (*Client)(nil)

// New creates a Gemini client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("gemini: model is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &Client{models: client.Models, model: cfg.Model}, nil
}

// Generate performs exactly one generateContent call and returns the text of
// the first part of the first candidate. No retries are attempted.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			slog.Warn("Gemini returned an error status", "code", apiErr.Code, "status", apiErr.Status, "latency", time.Since(start))
		}
		return "", assistant.NewTransportFailure(fmt.Errorf("generate content: %w", err))
	}

	text, err := firstCandidateText(resp)
	if err != nil {
		return "", assistant.NewResponseShapeFailure(err)
	}

	slog.Debug("Gemini reply received", "model", c.model, "latency", time.Since(start), "reply_length", len(text))
	return text, nil
}

func firstCandidateText(resp *genai.GenerateContentResponse) (string, error) {
	switch {
	case resp == nil:
		return "", errors.New("empty response")
	case len(resp.Candidates) == 0 || resp.Candidates[0] == nil:
		return "", errors.New("no candidates")
	case resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0:
		return "", errors.New("candidate has no content parts")
	case resp.Candidates[0].Content.Parts[0] == nil:
		return "", errors.New("candidate part is empty")
	}

	text := resp.Candidates[0].Content.Parts[0].Text
	if strings.TrimSpace(text) == "" {
		return "", errors.New("candidate text is blank")
	}
	return text, nil
}

// Unavailable is the generator used when no API key is configured. Every call
// fails as a transport failure.
type Unavailable struct {
	Reason string
}

// Generate always fails.
func (u Unavailable) Generate(context.Context, string) (string, error) {
	reason := u.Reason
	if reason == "" {
		reason = "text generation is not configured"
	}
	return "", assistant.NewTransportFailure(errors.New(reason))
}
