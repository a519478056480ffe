// ABOUTME: Tests for the SQLite compilation audit log
// ABOUTME: Covers schema creation, migrations, SaveCompilation and aggregation

package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func newCompilation(route, format string, status int, bytes, ms int64, at time.Time) *Compilation {
	return &Compilation{
		ID:         uuid.New().String(),
		Route:      route,
		Format:     format,
		Status:     status,
		Bytes:      bytes,
		DurationMS: ms,
		CreatedAt:  at,
	}
}

func TestNewSQLiteStore_CreatesParentDirs(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "audit.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	assert.FileExists(t, dbPath)
}

func TestNewSQLiteStore_InMemory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveCompilation(ctx, newCompilation("POST /compile", "pdf", 200, 10, 5, time.Now())))

	stats, err := store.GetCompilationStats(ctx, CompilationFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Requests)
}

func TestMigrations_AddSubjectColumn(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "old.db")

	// A database created before the subject column existed.
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE compilations (
		id TEXT PRIMARY KEY,
		route TEXT NOT NULL,
		format TEXT NOT NULL DEFAULT '',
		status INTEGER NOT NULL,
		bytes INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	c := newCompilation("POST /vars", "", 200, 13, 2, time.Now())
	c.Subject = "ci-bot"
	require.NoError(t, store.SaveCompilation(context.Background(), c))

	recent, err := store.GetRecentCompilations(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "ci-bot", recent[0].Subject)

	// Reopening must not reapply the migration.
	require.NoError(t, store.Close())
	again, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestStore_SaveAndRecent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveCompilation(ctx, newCompilation("POST /compile", "pdf", 200, 100, 30, base)))
	require.NoError(t, store.SaveCompilation(ctx, newCompilation("POST /compile", "odt", 422, 20, 10, base.Add(500*time.Millisecond))))
	require.NoError(t, store.SaveCompilation(ctx, newCompilation("POST /vars", "", 200, 13, 5, base.Add(time.Second))))

	recent, err := store.GetRecentCompilations(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "POST /vars", recent[0].Route)
	assert.Equal(t, "odt", recent[1].Format)
	assert.Equal(t, 422, recent[1].Status)
	assert.True(t, recent[1].Failed())
	assert.Equal(t, base.Add(500*time.Millisecond), recent[1].CreatedAt)
	assert.Empty(t, recent[0].Subject)
}

func TestStore_DuplicateID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	c := newCompilation("POST /compile", "pdf", 200, 1, 1, time.Now())
	require.NoError(t, store.SaveCompilation(ctx, c))
	assert.Error(t, store.SaveCompilation(ctx, c))
}

func TestStore_GetCompilationStats(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []*Compilation{
		newCompilation("POST /compile", "pdf", 200, 1000, 40, base),
		newCompilation("POST /compile", "pdf", 200, 3000, 60, base.Add(time.Minute)),
		newCompilation("POST /compile", "docx", 503, 0, 20, base.Add(2*time.Minute)),
		newCompilation("POST /vars", "", 200, 13, 4, base.Add(3*time.Minute)),
	}
	for _, r := range records {
		require.NoError(t, store.SaveCompilation(ctx, r))
	}

	t.Run("all", func(t *testing.T) {
		stats, err := store.GetCompilationStats(ctx, CompilationFilter{})
		require.NoError(t, err)

		assert.Equal(t, int64(4), stats.Requests)
		assert.Equal(t, int64(1), stats.Failures)
		assert.Equal(t, int64(4013), stats.TotalBytes)
		assert.InDelta(t, 31.0, stats.AvgDurationMS, 0.001)
		assert.Equal(t, map[string]int64{"pdf": 2, "docx": 1}, stats.ByFormat)
	})

	t.Run("by route", func(t *testing.T) {
		route := "POST /vars"
		stats, err := store.GetCompilationStats(ctx, CompilationFilter{Route: &route})
		require.NoError(t, err)

		assert.Equal(t, int64(1), stats.Requests)
		assert.Empty(t, stats.ByFormat)
	})

	t.Run("time window", func(t *testing.T) {
		since := base.Add(time.Minute)
		until := base.Add(3 * time.Minute)
		stats, err := store.GetCompilationStats(ctx, CompilationFilter{Since: &since, Until: &until})
		require.NoError(t, err)

		assert.Equal(t, int64(2), stats.Requests)
		assert.Equal(t, int64(3000), stats.TotalBytes)
	})

	t.Run("empty", func(t *testing.T) {
		since := base.Add(time.Hour)
		stats, err := store.GetCompilationStats(ctx, CompilationFilter{Since: &since})
		require.NoError(t, err)

		assert.Zero(t, stats.Requests)
		assert.Zero(t, stats.AvgDurationMS)
		assert.NotNil(t, stats.ByFormat)
	})
}

func TestMockStore_MatchesSQLite(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []*Compilation{
		newCompilation("POST /compile", "pdf", 200, 1000, 40, base),
		newCompilation("POST /compile", "docx", 422, 0, 20, base.Add(time.Minute)),
		newCompilation("POST /vars", "", 200, 13, 4, base.Add(2*time.Minute)),
	}

	sqlite := setupTestStore(t)
	mock := NewMockStore()
	for _, r := range records {
		require.NoError(t, sqlite.SaveCompilation(ctx, r))
		require.NoError(t, mock.SaveCompilation(ctx, r))
	}

	want, err := sqlite.GetCompilationStats(ctx, CompilationFilter{})
	require.NoError(t, err)
	got, err := mock.GetCompilationStats(ctx, CompilationFilter{})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	recent, err := mock.GetRecentCompilations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "POST /vars", recent[0].Route)
	assert.Len(t, mock.Compilations(), 3)
}
