// Package identity provides anonymous per-browser identity primitives.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	VisitorCookieName     = "lcs_visitor"
	SessionHeaderName     = "X-LCS-Session-ID"
	DefaultSessionIDValue = "default"
	visitorCookieMaxAge   = 30 * 24 * time.Hour
)

type contextKey int

const (
	visitorIDKey contextKey = iota
	sessionIDKey
	doNotTrackKey
)

var (
	visitorIDPattern = regexp.MustCompile(`^v_[a-f0-9]{32}$`)
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// VisitorToucher records that a visitor was seen.
type VisitorToucher interface {
	TouchVisitor(ctx context.Context, visitorID string, at time.Time) error
}

// VisitorIDFromContext extracts the visitor ID from the request context.
func VisitorIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(visitorIDKey).(string); ok {
		return v
	}
	return ""
}

// SessionIDFromContext extracts the page session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return DefaultSessionIDValue
}

// WithIdentity returns a context carrying the given visitor and session IDs.
func WithIdentity(ctx context.Context, visitorID, sessionID string) context.Context {
	ctx = context.WithValue(ctx, visitorIDKey, visitorID)
	return context.WithValue(ctx, sessionIDKey, sanitizeSessionID(sessionID))
}

// WithDoNotTrack returns a context marking the visitor as opted out of tracking.
func WithDoNotTrack(ctx context.Context) context.Context {
	return context.WithValue(ctx, doNotTrackKey, true)
}

// DoNotTrackFromContext reports whether the request opted out of tracking.
func DoNotTrackFromContext(ctx context.Context) bool {
	v, _ := ctx.Value(doNotTrackKey).(bool)
	return v
}

// DoNotTrack reports whether the browser asked not to be tracked, via either
// the DNT header or Global Privacy Control.
func DoNotTrack(r *http.Request) bool {
	return r.Header.Get("DNT") == "1" || r.Header.Get("Sec-GPC") == "1"
}

// SessionKey joins visitor and session IDs into a single map key.
func SessionKey(visitorID, sessionID string) string {
	return visitorID + ":" + sessionID
}

func generateVisitorID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate visitor id: %w", err)
	}
	return "v_" + hex.EncodeToString(buf), nil
}

func isValidVisitorID(id string) bool {
	return visitorIDPattern.MatchString(id)
}

func sanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return DefaultSessionIDValue
	}
	return id
}

func setVisitorCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     VisitorCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(visitorCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(visitorCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateVisitorID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(VisitorCookieName); err == nil && isValidVisitorID(c.Value) {
		setVisitorCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateVisitorID()
	if err != nil {
		return "", err
	}
	setVisitorCookie(w, id, isDev)
	return id, nil
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get("session_id")
	}
	return sanitizeSessionID(sid)
}

// Middleware injects anonymous per-browser identity and per-request session ID.
// Visitors are recorded through toucher only when tracking is enabled and the
// request did not opt out; a nil toucher skips bookkeeping entirely.
func Middleware(toucher VisitorToucher, isDev, tracking bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			visitorID, err := getOrCreateVisitorID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish visitor identity"}`, http.StatusInternalServerError)
				return
			}

			optOut := DoNotTrack(r)
			if toucher != nil && tracking && !optOut {
				if err := toucher.TouchVisitor(r.Context(), visitorID, time.Now()); err != nil {
					// Analytics must never block the page.
					slog.Warn("failed to record visitor", "visitor_id", visitorID, "error", err)
				}
			}

			ctx := WithIdentity(r.Context(), visitorID, sessionIDFromRequest(r))
			if optOut || !tracking {
				ctx = WithDoNotTrack(ctx)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// IPHasher hashes client IPs with a per-process salt so raw addresses are
// never stored.
type IPHasher struct {
	salt string
}

// NewIPHasher creates a hasher with a random salt.
func NewIPHasher() (*IPHasher, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate ip salt: %w", err)
	}
	return &IPHasher{salt: hex.EncodeToString(buf)}, nil
}

// Hash returns a truncated salted SHA-256 of ip. Equal IPs hash equally for
// the lifetime of the hasher.
func (h *IPHasher) Hash(ip string) string {
	sum := sha256.Sum256([]byte(ip + h.salt))
	return hex.EncodeToString(sum[:])[:16]
}
