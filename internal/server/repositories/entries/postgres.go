// Package entries provides the PostgreSQL repository for ingested log
// entries. Deduplication relies on the unique client_uuid constraint.
package entries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/common"
	"github.com/dmitrijs2005/fieldlog/internal/dbx"
	"github.com/dmitrijs2005/fieldlog/internal/geofence"
	"github.com/dmitrijs2005/fieldlog/internal/server/models"
)

const columns = `id, client_uuid, student_id, placement_id, log_date, week_number, description,
	latitude, longitude, distance_meters, classification, synced_at, created_at, reviewed_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindOrCreate relies on ON CONFLICT DO NOTHING: when a concurrent insert
// wins the race, RETURNING yields no row and the winner's row is read back.
func (r *PostgresRepository) FindOrCreate(ctx context.Context, e *models.LogEntry) (*models.LogEntry, bool, error) {
	query := `
		INSERT INTO log_entries (id, client_uuid, student_id, placement_id, log_date, week_number,
			description, latitude, longitude, distance_meters, classification, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (client_uuid) DO NOTHING
		RETURNING ` + columns

	row := r.db.QueryRowContext(ctx, query,
		e.ID, e.ClientUUID, e.StudentID, e.PlacementID, e.LogDate, e.WeekNumber,
		e.Description, e.Latitude, e.Longitude, e.DistanceMeters, string(e.Classification), e.SyncedAt)

	created, err := scanEntry(row)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("db error: %w", err)
	}

	existing, err := r.GetByClientUUID(ctx, e.ClientUUID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *PostgresRepository) GetByClientUUID(ctx context.Context, clientUUID string) (*models.LogEntry, error) {
	query := `SELECT ` + columns + ` FROM log_entries WHERE client_uuid = $1`

	e, err := scanEntry(r.db.QueryRowContext(ctx, query, clientUUID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) ListByPlacement(ctx context.Context, placementID string) ([]*models.LogEntry, error) {
	query := `SELECT ` + columns + ` FROM log_entries WHERE placement_id = $1 ORDER BY log_date, created_at`

	rows, err := r.db.QueryContext(ctx, query, placementID)
	if err != nil {
		return nil, fmt.Errorf("failed to select entries: %w", err)
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

func (r *PostgresRepository) UpdateClassification(ctx context.Context, id string, c geofence.Classification, distance *float64, reviewedAt time.Time) error {
	query := `UPDATE log_entries SET classification = $2, distance_meters = $3, reviewed_at = $4 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, string(c), distance, reviewedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) CountByWeek(ctx context.Context, placementID string) ([]models.WeekCount, error) {
	query := `SELECT week_number, COUNT(*) FROM log_entries WHERE placement_id = $1
		GROUP BY week_number ORDER BY week_number`

	rows, err := r.db.QueryContext(ctx, query, placementID)
	if err != nil {
		return nil, fmt.Errorf("failed to count entries: %w", err)
	}
	defer rows.Close()

	var result []models.WeekCount
	for rows.Next() {
		var wc models.WeekCount
		if err := rows.Scan(&wc.WeekNumber, &wc.Count); err != nil {
			return nil, err
		}
		result = append(result, wc)
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
		e              models.LogEntry
		lat, lon, dist sql.NullFloat64
		classification string
		reviewedAt     sql.NullTime
	)
	if err := s.Scan(&e.ID, &e.ClientUUID, &e.StudentID, &e.PlacementID, &e.LogDate, &e.WeekNumber,
		&e.Description, &lat, &lon, &dist, &classification, &e.SyncedAt, &e.CreatedAt, &reviewedAt); err != nil {
		return nil, err
	}
	e.Latitude = floatPtr(lat)
	e.Longitude = floatPtr(lon)
	e.DistanceMeters = floatPtr(dist)
	e.Classification = geofence.Classification(classification)
	if reviewedAt.Valid {
		t := reviewedAt.Time
		e.ReviewedAt = &t
	}
	return &e, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
