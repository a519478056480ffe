// ABOUTME: Audit store interface and record types for compilation requests
// ABOUTME: Defines Compilation, CompilationStats and the filter used for aggregation

package store

import (
	"context"
	"time"
)

// Compilation is one audited compile or vars request.
type Compilation struct {
	ID         string
	Route      string
	Format     string
	Status     int
	Bytes      int64
	DurationMS int64
	Subject    string // token subject, empty when auth is disabled
	CreatedAt  time.Time
}

// Failed reports whether the request ended with an error status.
func (c *Compilation) Failed() bool {
	return c.Status >= 400
}

// CompilationFilter narrows aggregation. Nil fields match everything.
type CompilationFilter struct {
	Route *string
	Since *time.Time
	Until *time.Time
}

// CompilationStats aggregates audited requests.
type CompilationStats struct {
	Requests      int64            `json:"requests"`
	Failures      int64            `json:"failures"`
	TotalBytes    int64            `json:"total_bytes"`
	AvgDurationMS float64          `json:"avg_duration_ms"`
	ByFormat      map[string]int64 `json:"by_format"`
}

// CompilationStore records and aggregates compilation requests.
type CompilationStore interface {
	SaveCompilation(ctx context.Context, c *Compilation) error
	GetRecentCompilations(ctx context.Context, limit int) ([]*Compilation, error)
	GetCompilationStats(ctx context.Context, filter CompilationFilter) (*CompilationStats, error)
	Close() error
}
