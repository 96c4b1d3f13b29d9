package models

import "time"

// DefaultScope is the portfolio scope that always exists and cannot be
// deleted.
const DefaultScope = "primary"

// Scope is a named portfolio grouping its own transactions, value
// snapshots, and cached insight.
type Scope struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// IsProtected reports whether the scope may never be deleted.
func (s *Scope) IsProtected() bool {
	return s.Name == DefaultScope
}
