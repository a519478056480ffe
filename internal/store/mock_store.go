// ABOUTME: In-memory implementation of CompilationStore for tests
// ABOUTME: Thread-safe; mirrors the SQLite aggregation rules

package store

import (
	"context"
	"sort"
	"sync"
)

// MockStore is an in-memory CompilationStore.
type MockStore struct {
	mu           sync.Mutex
	compilations []*Compilation
	closed       bool
}

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{}
}

// SaveCompilation stores a copy of c.
func (m *MockStore) SaveCompilation(ctx context.Context, c *Compilation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *c
	m.compilations = append(m.compilations, &cp)
	return nil
}

// GetRecentCompilations returns up to limit records, newest first.
func (m *MockStore) GetRecentCompilations(ctx context.Context, limit int) ([]*Compilation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Compilation, len(m.compilations))
	copy(out, m.compilations)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetCompilationStats aggregates the stored records.
func (m *MockStore) GetCompilationStats(ctx context.Context, filter CompilationFilter) (*CompilationStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &CompilationStats{ByFormat: map[string]int64{}}
	var totalDuration int64
	for _, c := range m.compilations {
		if filter.Route != nil && c.Route != *filter.Route {
			continue
		}
		if filter.Since != nil && c.CreatedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && !c.CreatedAt.Before(*filter.Until) {
			continue
		}
		stats.Requests++
		if c.Failed() {
			stats.Failures++
		}
		stats.TotalBytes += c.Bytes
		totalDuration += c.DurationMS
		if c.Format != "" {
			stats.ByFormat[c.Format]++
		}
	}
	if stats.Requests > 0 {
		stats.AvgDurationMS = float64(totalDuration) / float64(stats.Requests)
	}
	return stats, nil
}

// Close marks the store closed.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Compilations returns a snapshot of every stored record in insertion order.
func (m *MockStore) Compilations() []*Compilation {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Compilation, len(m.compilations))
	copy(out, m.compilations)
	return out
}

var _ CompilationStore = (*MockStore)(nil)
