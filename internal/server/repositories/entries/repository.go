package entries

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/geofence"
	"github.com/dmitrijs2005/fieldlog/internal/server/models"
)

// Repository persists canonical log entries.
type Repository interface {
	// FindOrCreate inserts e unless a row with the same client UUID exists,
	// in which case that row is returned with created == false.
	FindOrCreate(ctx context.Context, e *models.LogEntry) (*models.LogEntry, bool, error)

	// GetByClientUUID returns common.ErrorNotFound when no row exists.
	GetByClientUUID(ctx context.Context, clientUUID string) (*models.LogEntry, error)

	ListByPlacement(ctx context.Context, placementID string) ([]*models.LogEntry, error)

	// UpdateClassification is the only write allowed on a stored entry.
	UpdateClassification(ctx context.Context, id string, c geofence.Classification, distance *float64, reviewedAt time.Time) error

	CountByWeek(ctx context.Context, placementID string) ([]models.WeekCount, error)
}
