package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/vakosile/living-case-study/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode lets analytics writes proceed while stats are read.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS visitors (
		visitor_id TEXT PRIMARY KEY,
		first_seen INTEGER NOT NULL,
		last_seen_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS page_views (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		visitor_id TEXT NOT NULL,
		hashed_ip TEXT NOT NULL,
		path TEXT NOT NULL,
		exec_name TEXT,
		user_agent TEXT,
		viewed_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_page_views_viewed ON page_views(viewed_at);
	CREATE INDEX IF NOT EXISTS idx_page_views_exec ON page_views(exec_name) WHERE exec_name IS NOT NULL;

	CREATE TABLE IF NOT EXISTS assistant_exchanges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		visitor_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		latency_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exchanges_created ON assistant_exchanges(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetVisitor retrieves a visitor by ID.
func (s *SQLiteStore) GetVisitor(ctx context.Context, visitorID string) (*domain.Visitor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT visitor_id, first_seen, last_seen_at FROM visitors WHERE visitor_id = ?`, visitorID)

	var v domain.Visitor
	var firstSeen, lastSeen int64
	err := row.Scan(&v.VisitorID, &firstSeen, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan visitor row: %w", err)
	}

	v.FirstSeen = time.Unix(firstSeen, 0)
	v.LastSeenAt = time.Unix(lastSeen, 0)
	return &v, nil
}

// TouchVisitor creates the visitor on first sight and bumps last_seen_at.
func (s *SQLiteStore) TouchVisitor(ctx context.Context, visitorID string, at time.Time) error {
	query := `
	INSERT INTO visitors (visitor_id, first_seen, last_seen_at)
	VALUES (?, ?, ?)
	ON CONFLICT(visitor_id) DO UPDATE SET
		last_seen_at = MAX(visitors.last_seen_at, excluded.last_seen_at)`

	if _, err := s.db.ExecContext(ctx, query, visitorID, at.Unix(), at.Unix()); err != nil {
		return fmt.Errorf("touch visitor: %w", err)
	}
	return nil
}

// RecordPageView stores one page render.
func (s *SQLiteStore) RecordPageView(ctx context.Context, view *domain.PageView) error {
	var execName interface{}
	if view.ExecName != "" {
		execName = view.ExecName
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO page_views (visitor_id, hashed_ip, path, exec_name, user_agent, viewed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		view.VisitorID, view.HashedIP, view.Path, execName, view.UserAgent, view.ViewedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert page view: %w", err)
	}
	return nil
}

// RecordExchange stores the outcome of one assistant request cycle.
func (s *SQLiteStore) RecordExchange(ctx context.Context, exchange *domain.Exchange) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assistant_exchanges (visitor_id, session_id, outcome, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		exchange.VisitorID, exchange.SessionID, string(exchange.Outcome),
		exchange.Latency.Milliseconds(), exchange.At.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}
	return nil
}

// Stats aggregates analytics as of now.
func (s *SQLiteStore) Stats(ctx context.Context, now time.Time) (*domain.Stats, error) {
	stats := &domain.Stats{Exchanges: make(map[domain.ExchangeOutcome]int64)}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM page_views`).Scan(&stats.TotalViews); err != nil {
		return nil, fmt.Errorf("count page views: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT visitor_id) FROM page_views`).Scan(&stats.UniqueVisitors); err != nil {
		return nil, fmt.Errorf("count unique visitors: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM page_views WHERE exec_name IS NOT NULL`).Scan(&stats.PersonalizedViews); err != nil {
		return nil, fmt.Errorf("count personalized views: %w", err)
	}

	y, m, d := now.Date()
	startOfDay := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).Unix()
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM page_views WHERE viewed_at >= ?`, startOfDay).Scan(&stats.ViewsToday); err != nil {
		return nil, fmt.Errorf("count views today: %w", err)
	}

	names, err := s.topExecNames(ctx, 10)
	if err != nil {
		return nil, err
	}
	stats.TopExecNames = names

	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM assistant_exchanges GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close exchange rows", "error", closeErr)
		}
	}()
	for rows.Next() {
		var outcome string
		var count int64
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("scan exchange row: %w", err)
		}
		stats.Exchanges[domain.ExchangeOutcome(outcome)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchanges: %w", err)
	}

	return stats, nil
}

func (s *SQLiteStore) topExecNames(ctx context.Context, limit int) ([]domain.NameCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT exec_name, COUNT(*) AS views
		FROM page_views
		WHERE exec_name IS NOT NULL
		GROUP BY exec_name
		ORDER BY views DESC, exec_name ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query exec names: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close exec name rows", "error", closeErr)
		}
	}()

	var names []domain.NameCount
	for rows.Next() {
		var nc domain.NameCount
		if err := rows.Scan(&nc.Name, &nc.Views); err != nil {
			return nil, fmt.Errorf("scan exec name row: %w", err)
		}
		names = append(names, nc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exec names: %w", err)
	}
	return names, nil
}

// DeleteOlderThan removes page views and exchanges recorded before cutoff,
// and visitors not seen since.
func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (domain.PruneResult, error) {
	var res domain.PruneResult
	steps := []struct {
		what  string
		query string
		count *int64
	}{
		{"page views", `DELETE FROM page_views WHERE viewed_at < ?`, &res.PageViews},
		{"exchanges", `DELETE FROM assistant_exchanges WHERE created_at < ?`, &res.Exchanges},
		{"visitors", `DELETE FROM visitors WHERE last_seen_at < ?`, &res.Visitors},
	}

	for _, step := range steps {
		result, err := s.db.ExecContext(ctx, step.query, cutoff.Unix())
		if err != nil {
			return res, fmt.Errorf("delete old %s: %w", step.what, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return res, fmt.Errorf("%s rows affected: %w", step.what, err)
		}
		*step.count = n
	}

	return res, nil
}
