package domain

import "time"

// PageView is one render of the microsite.
type PageView struct {
	VisitorID string
	HashedIP  string
	Path      string
	ExecName  string // Personalization name from the exec query parameter, if any
	UserAgent string
	ViewedAt  time.Time
}

// Personalized reports whether the view was addressed to an executive.
func (p *PageView) Personalized() bool {
	return p.ExecName != ""
}

// ExchangeOutcome classifies how an assistant request cycle ended.
type ExchangeOutcome string

const (
	OutcomeSuccess              ExchangeOutcome = "success"
	OutcomeTransportFailure     ExchangeOutcome = "transport_failure"
	OutcomeResponseShapeFailure ExchangeOutcome = "response_shape_failure"
)

// Exchange records one assistant request cycle. Message text is never
// part of the record.
type Exchange struct {
	VisitorID string
	SessionID string
	Outcome   ExchangeOutcome
	Latency   time.Duration
	At        time.Time

	// DoNotTrack marks exchanges that are counted but never stored or published.
	DoNotTrack bool
}

// PruneResult counts rows removed by a retention sweep.
type PruneResult struct {
	PageViews int64
	Exchanges int64
	Visitors  int64
}

// NameCount pairs a personalization name with its view count.
type NameCount struct {
	Name  string `json:"name"`
	Views int64  `json:"views"`
}

// Stats aggregates visit analytics for the admin endpoint.
type Stats struct {
	TotalViews        int64                     `json:"total_views"`
	UniqueVisitors    int64                     `json:"unique_visitors"`
	PersonalizedViews int64                     `json:"personalized_views"`
	ViewsToday        int64                     `json:"views_today"`
	TopExecNames      []NameCount               `json:"top_exec_names"`
	Exchanges         map[ExchangeOutcome]int64 `json:"exchanges"`
}
