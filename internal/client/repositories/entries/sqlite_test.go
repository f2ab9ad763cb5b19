package entries

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/client/migrations"
	"github.com/dmitrijs2005/fieldlog/internal/client/models"
	"github.com/dmitrijs2005/fieldlog/internal/common"
	"github.com/dmitrijs2005/fieldlog/internal/geofence"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.Migrations)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.Up(db, "."))
	return db
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func newEntry(id string, captured time.Time) *models.LogEntry {
	lat, lon := 6.5244, 3.3792
	return &models.LogEntry{
		ClientID:    id,
		LogDate:     day(5),
		WeekNumber:  1,
		Description: "Shadowed the site engineer",
		Latitude:    &lat,
		Longitude:   &lon,
		CapturedAt:  captured,
		SyncState:   models.StatePending,
	}
}

func TestUpsert_InsertThenGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	captured := time.Date(2024, 3, 5, 9, 15, 0, 42, time.UTC)

	require.NoError(t, r.Upsert(ctx, newEntry("a", captured)))

	got, err := r.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, day(5), got.LogDate)
	assert.True(t, captured.Equal(got.CapturedAt))
	assert.Equal(t, models.StatePending, got.SyncState)
	require.NotNil(t, got.Latitude)
	assert.Equal(t, 6.5244, *got.Latitude)
	assert.Nil(t, got.SyncedAt)
	assert.Empty(t, got.ServerID)
	assert.Empty(t, got.Classification)
}

func TestGetByID_NotFound(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	_, err := r.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUpsert_OverwritesButKeepsFirstSyncedAt(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	e := newEntry("a", time.Now())
	require.NoError(t, r.Upsert(ctx, e))

	first := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	dist := 17.2
	e.SyncState = models.StateSynced
	e.SyncedAt = &first
	e.ServerID = "srv-1"
	e.Classification = geofence.Verified
	e.DistanceMeters = &dist
	require.NoError(t, r.Upsert(ctx, e))

	later := first.Add(24 * time.Hour)
	e.SyncedAt = &later
	require.NoError(t, r.Upsert(ctx, e))

	got, err := r.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.StateSynced, got.SyncState)
	require.NotNil(t, got.SyncedAt)
	assert.True(t, first.Equal(*got.SyncedAt))
	assert.Equal(t, "srv-1", got.ServerID)
	assert.Equal(t, geofence.Verified, got.Classification)
	require.NotNil(t, got.DistanceMeters)
	assert.Equal(t, 17.2, *got.DistanceMeters)

	all, err := r.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetByState_CreationOrder(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	base := time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)

	require.NoError(t, r.Upsert(ctx, newEntry("third", base.Add(2*time.Minute))))
	require.NoError(t, r.Upsert(ctx, newEntry("first", base)))
	require.NoError(t, r.Upsert(ctx, newEntry("second", base.Add(time.Minute))))

	failed := newEntry("failed", base.Add(-time.Minute))
	failed.SyncState = models.StateFailed
	require.NoError(t, r.Upsert(ctx, failed))

	pending, err := r.GetByState(ctx, models.StatePending)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "first", pending[0].ClientID)
	assert.Equal(t, "second", pending[1].ClientID)
	assert.Equal(t, "third", pending[2].ClientID)

	none, err := r.GetByState(ctx, models.StateSynced)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetByLogDateAndCounts(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	a := newEntry("a", time.Now())
	b := newEntry("b", time.Now())
	b.LogDate = day(6)
	b.SyncState = models.StateSyncing
	b.Latitude, b.Longitude = nil, nil
	require.NoError(t, r.Upsert(ctx, a))
	require.NoError(t, r.Upsert(ctx, b))

	on6, err := r.GetByLogDate(ctx, day(6))
	require.NoError(t, err)
	require.Len(t, on6, 1)
	assert.Equal(t, "b", on6[0].ClientID)
	assert.Nil(t, on6[0].Latitude)

	counts, err := r.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[models.SyncState]int{models.StatePending: 1, models.StateSyncing: 1}, counts)

	moved, err := r.MoveState(ctx, models.StateSyncing, models.StatePending)
	require.NoError(t, err)
	assert.Equal(t, int64(1), moved)

	counts, err = r.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[models.SyncState]int{models.StatePending: 2}, counts)
}

func TestSyncStateIndexExists(t *testing.T) {
	db := setupDB(t)

	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name IN ('idx_log_entries_sync_state','idx_log_entries_log_date')`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
