// Package domain contains core domain types for the case study site.
package domain

import (
	"time"
)

// Visitor is an anonymous browser identified by a long-lived cookie.
type Visitor struct {
	VisitorID  string    `json:"visitor_id"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// IdleFor returns how long the visitor has been inactive as of now.
func (v *Visitor) IdleFor(now time.Time) time.Duration {
	idle := now.Sub(v.LastSeenAt)
	if idle < 0 {
		return 0
	}
	return idle
}
