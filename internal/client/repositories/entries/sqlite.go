package entries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/client/models"
	"github.com/dmitrijs2005/fieldlog/internal/common"
	"github.com/dmitrijs2005/fieldlog/internal/dbx"
	"github.com/dmitrijs2005/fieldlog/internal/geofence"
	"github.com/dmitrijs2005/fieldlog/internal/timex"
)

// timestampLayout is fixed-width so that text ordering matches time ordering.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

const selectColumns = `client_id, log_date, week_number, description, latitude, longitude,
	captured_at, sync_state, synced_at, server_id, classification, distance_meters,
	fail_reason, attempts, last_error`

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, e *models.LogEntry) error {
	query := `INSERT INTO log_entries (` + selectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			log_date = excluded.log_date,
			week_number = excluded.week_number,
			description = excluded.description,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			sync_state = excluded.sync_state,
			synced_at = COALESCE(log_entries.synced_at, excluded.synced_at),
			server_id = COALESCE(excluded.server_id, log_entries.server_id),
			classification = excluded.classification,
			distance_meters = excluded.distance_meters,
			fail_reason = excluded.fail_reason,
			attempts = excluded.attempts,
			last_error = excluded.last_error`

	_, err := r.db.ExecContext(ctx, query,
		e.ClientID,
		timex.FormatDate(e.LogDate),
		e.WeekNumber,
		e.Description,
		nullFloat(e.Latitude),
		nullFloat(e.Longitude),
		formatTimestamp(e.CapturedAt),
		string(e.SyncState),
		nullTimestamp(e.SyncedAt),
		nullString(e.ServerID),
		nullString(string(e.Classification)),
		nullFloat(e.DistanceMeters),
		nullString(e.FailReason),
		e.Attempts,
		nullString(e.LastError),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert log entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, clientID string) (*models.LogEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM log_entries WHERE client_id = ?`, clientID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get log entry: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) GetByState(ctx context.Context, state models.SyncState) ([]*models.LogEntry, error) {
	return r.query(ctx, `SELECT `+selectColumns+` FROM log_entries
		WHERE sync_state = ? ORDER BY captured_at, rowid`, string(state))
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]*models.LogEntry, error) {
	return r.query(ctx, `SELECT `+selectColumns+` FROM log_entries ORDER BY captured_at, rowid`)
}

func (r *SQLiteRepository) GetByLogDate(ctx context.Context, date time.Time) ([]*models.LogEntry, error) {
	return r.query(ctx, `SELECT `+selectColumns+` FROM log_entries
		WHERE log_date = ? ORDER BY captured_at, rowid`, timex.FormatDate(date))
}

func (r *SQLiteRepository) CountByState(ctx context.Context) (map[models.SyncState]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT sync_state, COUNT(*) FROM log_entries GROUP BY sync_state`)
	if err != nil {
		return nil, fmt.Errorf("failed to count log entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.SyncState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[models.SyncState(state)] = n
	}
	return counts, rows.Err()
}

func (r *SQLiteRepository) MoveState(ctx context.Context, from, to models.SyncState) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE log_entries SET sync_state = ? WHERE sync_state = ?`, string(to), string(from))
	if err != nil {
		return 0, fmt.Errorf("failed to move log entries to %s: %w", to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]*models.LogEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select log entries: %w", err)
	}
	defer rows.Close()

	var result []*models.LogEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*models.LogEntry, error) {
	var (
		e                          models.LogEntry
		logDate, capturedAt, state string
		lat, lon, dist             sql.NullFloat64
		syncedAt, serverID, class  sql.NullString
		failReason, lastError      sql.NullString
	)
	err := s.Scan(&e.ClientID, &logDate, &e.WeekNumber, &e.Description, &lat, &lon,
		&capturedAt, &state, &syncedAt, &serverID, &class, &dist,
		&failReason, &e.Attempts, &lastError)
	if err != nil {
		return nil, err
	}

	if e.LogDate, err = timex.ParseDate(logDate); err != nil {
		return nil, fmt.Errorf("bad log_date %q: %w", logDate, err)
	}
	if e.CapturedAt, err = time.Parse(timestampLayout, capturedAt); err != nil {
		return nil, fmt.Errorf("bad captured_at %q: %w", capturedAt, err)
	}
	if syncedAt.Valid {
		t, err := time.Parse(timestampLayout, syncedAt.String)
		if err != nil {
			return nil, fmt.Errorf("bad synced_at %q: %w", syncedAt.String, err)
		}
		e.SyncedAt = &t
	}

	e.SyncState = models.SyncState(state)
	e.Latitude = floatPtr(lat)
	e.Longitude = floatPtr(lon)
	e.DistanceMeters = floatPtr(dist)
	e.ServerID = serverID.String
	e.Classification = geofence.Classification(class.String)
	e.FailReason = failReason.String
	e.LastError = lastError.String
	return &e, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func nullTimestamp(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTimestamp(*t), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
