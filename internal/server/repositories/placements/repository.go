package placements

import (
	"context"

	"github.com/dmitrijs2005/fieldlog/internal/server/models"
)

// Repository reads placements and their registered sites. Placements are
// managed elsewhere; this server never writes them.
type Repository interface {
	// GetActiveByStudent returns common.ErrorNotFound when the student has
	// no active placement.
	GetActiveByStudent(ctx context.Context, studentID string) (*models.Placement, error)

	// GetByID returns common.ErrorNotFound for an unknown placement.
	GetByID(ctx context.Context, id string) (*models.Placement, error)
}
