// ABOUTME: SQLite implementation of the compilation audit log
// ABOUTME: Stores one row per request and aggregates them for /api/stats

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// timeFormat is fixed width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// SaveCompilation stores an audit record.
func (s *SQLiteStore) SaveCompilation(ctx context.Context, c *Compilation) error {
	query := `
		INSERT INTO compilations (id, route, format, status, bytes, duration_ms, subject, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		c.ID,
		c.Route,
		c.Format,
		c.Status,
		c.Bytes,
		c.DurationMS,
		nullString(c.Subject),
		c.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting compilation: %w", err)
	}

	s.logger.Debug("saved compilation",
		"id", c.ID,
		"route", c.Route,
		"status", c.Status,
		"bytes", c.Bytes,
	)
	return nil
}

// GetRecentCompilations returns up to limit records, newest first.
func (s *SQLiteStore) GetRecentCompilations(ctx context.Context, limit int) ([]*Compilation, error) {
	query := `
		SELECT id, route, format, status, bytes, duration_ms, subject, created_at
		FROM compilations
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying compilations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Compilation
	for rows.Next() {
		c, err := scanCompilation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating compilation rows: %w", err)
	}
	return out, nil
}

// GetCompilationStats returns aggregated statistics with optional filters.
func (s *SQLiteStore) GetCompilationStats(ctx context.Context, filter CompilationFilter) (*CompilationStats, error) {
	where := " WHERE 1=1"
	args := []any{}

	if filter.Route != nil {
		where += " AND route = ?"
		args = append(args, *filter.Route)
	}
	if filter.Since != nil {
		where += " AND created_at >= ?"
		args = append(args, filter.Since.UTC().Format(timeFormat))
	}
	if filter.Until != nil {
		where += " AND created_at < ?"
		args = append(args, filter.Until.UTC().Format(timeFormat))
	}

	query := `
		SELECT
			COUNT(*) as request_count,
			COALESCE(SUM(CASE WHEN status >= 400 THEN 1 ELSE 0 END), 0) as failures,
			COALESCE(SUM(bytes), 0) as total_bytes,
			COALESCE(AVG(duration_ms), 0) as avg_duration
		FROM compilations` + where

	stats := CompilationStats{ByFormat: map[string]int64{}}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.Requests,
		&stats.Failures,
		&stats.TotalBytes,
		&stats.AvgDurationMS,
	)
	if err != nil {
		return nil, fmt.Errorf("querying compilation stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT format, COUNT(*) FROM compilations`+where+` AND format != '' GROUP BY format`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying format breakdown: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var format string
		var count int64
		if err := rows.Scan(&format, &count); err != nil {
			return nil, fmt.Errorf("scanning format row: %w", err)
		}
		stats.ByFormat[format] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating format rows: %w", err)
	}

	return &stats, nil
}

// scanCompilation scans a single row into a Compilation.
func scanCompilation(rows *sql.Rows) (*Compilation, error) {
	var c Compilation
	var subject sql.NullString
	var createdAtStr string

	err := rows.Scan(
		&c.ID,
		&c.Route,
		&c.Format,
		&c.Status,
		&c.Bytes,
		&c.DurationMS,
		&subject,
		&createdAtStr,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning compilation row: %w", err)
	}

	if subject.Valid {
		c.Subject = subject.String
	}

	c.CreatedAt, err = time.ParseInLocation(timeFormat, createdAtStr, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &c, nil
}

// Ensure SQLiteStore implements CompilationStore interface.
var _ CompilationStore = (*SQLiteStore)(nil)
