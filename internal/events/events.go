// Package events publishes site activity to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// SubjectPageViewed carries one PageViewed per rendered page.
	SubjectPageViewed = "casestudy.page.viewed"
	// SubjectExchange carries one ExchangeCompleted per assistant request cycle.
	SubjectExchange = "casestudy.assistant.exchange"
)

// PageViewed is emitted after a page render. Only the presence of a
// personalization name is published, not the name itself.
type PageViewed struct {
	VisitorID    string    `json:"visitor_id"`
	Path         string    `json:"path"`
	Personalized bool      `json:"personalized"`
	ViewedAt     time.Time `json:"viewed_at"`
}

// ExchangeCompleted is emitted when an assistant request cycle ends.
type ExchangeCompleted struct {
	VisitorID string    `json:"visitor_id"`
	SessionID string    `json:"session_id"`
	Outcome   string    `json:"outcome"`
	LatencyMs int64     `json:"latency_ms"`
	At        time.Time `json:"at"`
}

// Publisher sends JSON events to a subject.
type Publisher interface {
	Publish(subject string, data any) error
	Close()
}

// Client publishes events over a NATS connection.
type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewClient connects to NATS. The connection keeps retrying in the background
// if the server is not reachable yet.
func NewClient(_ context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []nats.Option{
		nats.Name("living-case-study"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

// Publish marshals data as JSON and publishes it on subject.
func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

// Close drains pending messages and closes the connection.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		c.logger.Debug("nats drain failed", "error", err)
		c.conn.Close()
	}
}

// Noop discards every event. It is used when NATS is not configured.
type Noop struct{}

// Publish does nothing.
func (Noop) Publish(string, any) error { return nil }

// Close does nothing.
func (Noop) Close() {}

// Connect returns a NATS publisher when url is set and a Noop otherwise.
func Connect(ctx context.Context, url, token string, logger *slog.Logger) (Publisher, error) {
	if url == "" {
		return Noop{}, nil
	}
	return NewClient(ctx, url, token, logger)
}
