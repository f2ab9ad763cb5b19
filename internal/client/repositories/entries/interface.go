package entries

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/client/models"
)

// Repository persists log entries on the device.
type Repository interface {
	// Upsert inserts e or overwrites the row with the same ClientID.
	// A synced_at already stored is never replaced.
	Upsert(ctx context.Context, e *models.LogEntry) error

	// GetByID returns common.ErrorNotFound when the entry does not exist.
	GetByID(ctx context.Context, clientID string) (*models.LogEntry, error)

	// GetByState returns entries in the given state in creation order.
	GetByState(ctx context.Context, state models.SyncState) ([]*models.LogEntry, error)

	// GetAll returns every entry in creation order.
	GetAll(ctx context.Context) ([]*models.LogEntry, error)

	// GetByLogDate returns entries logged for the given calendar date.
	GetByLogDate(ctx context.Context, date time.Time) ([]*models.LogEntry, error)

	// CountByState returns the number of entries per state.
	CountByState(ctx context.Context) (map[models.SyncState]int, error)

	// MoveState switches every entry in from to to and returns how many moved.
	MoveState(ctx context.Context, from, to models.SyncState) (int64, error)
}
