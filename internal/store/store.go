// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/vakosile/living-case-study/internal/domain"
)

// Repository defines the interface for persisting visit analytics.
type Repository interface {
	// GetVisitor retrieves a visitor by ID. Returns nil, nil when unknown.
	GetVisitor(ctx context.Context, visitorID string) (*domain.Visitor, error)

	// TouchVisitor creates the visitor on first sight and bumps last_seen_at.
	TouchVisitor(ctx context.Context, visitorID string, at time.Time) error

	// RecordPageView stores one page render.
	RecordPageView(ctx context.Context, view *domain.PageView) error

	// RecordExchange stores the outcome of one assistant request cycle.
	RecordExchange(ctx context.Context, exchange *domain.Exchange) error

	// Stats aggregates analytics as of now.
	Stats(ctx context.Context, now time.Time) (*domain.Stats, error)

	// DeleteOlderThan removes page views and exchanges recorded before cutoff,
	// and visitors not seen since.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (domain.PruneResult, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

var _ Repository = (*SQLiteStore)(nil)
