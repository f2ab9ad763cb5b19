// Package placements provides read-only PostgreSQL access to placements
// and their geofenced sites.
package placements

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/fieldlog/internal/common"
	"github.com/dmitrijs2005/fieldlog/internal/dbx"
	"github.com/dmitrijs2005/fieldlog/internal/geofence"
	"github.com/dmitrijs2005/fieldlog/internal/server/models"
)

const selectPlacement = `
	SELECT p.id, p.student_id, p.company_name, p.start_date, p.active,
		s.id, s.center_latitude, s.center_longitude, s.radius_meters
	FROM placements p
	LEFT JOIN sites s ON s.id = p.site_id`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetActiveByStudent(ctx context.Context, studentID string) (*models.Placement, error) {
	query := selectPlacement + ` WHERE p.student_id = $1 AND p.active ORDER BY p.start_date DESC LIMIT 1`
	return r.get(ctx, query, studentID)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Placement, error) {
	return r.get(ctx, selectPlacement+` WHERE p.id = $1`, id)
}

func (r *PostgresRepository) get(ctx context.Context, query string, arg string) (*models.Placement, error) {
	var (
		p        models.Placement
		siteID   sql.NullString
		lat, lon sql.NullFloat64
		radius   sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&p.ID, &p.StudentID, &p.CompanyName, &p.StartDate, &p.Active,
		&siteID, &lat, &lon, &radius)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get placement: %w", err)
	}

	if siteID.Valid {
		p.Site = &geofence.Site{
			ID:              siteID.String,
			CenterLatitude:  lat.Float64,
			CenterLongitude: lon.Float64,
			RadiusMeters:    radius.Float64,
		}
	}
	return &p, nil
}
