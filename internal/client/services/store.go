// Package services contains the field client's application services: entry
// capture, the sync engine and token handling. Services receive the local
// store and the server client explicitly; nothing here owns a global handle.
package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/client/models"
	"github.com/dmitrijs2005/fieldlog/internal/client/repositories/metadata"
)

// EntryStore is the slice of the Local Durable Store the services rely on.
// *store.Store implements it.
type EntryStore interface {
	Put(ctx context.Context, e *models.LogEntry) (string, error)
	Get(ctx context.Context, clientID string) (*models.LogEntry, error)
	GetByStatus(ctx context.Context, state models.SyncState) ([]*models.LogEntry, error)
	GetAll(ctx context.Context) ([]*models.LogEntry, error)
	GetByLogDate(ctx context.Context, date time.Time) ([]*models.LogEntry, error)
	CountByStatus(ctx context.Context) (map[models.SyncState]int, error)
	Recover(ctx context.Context) (int, error)
	Metadata(ctx context.Context) (metadata.Repository, error)
}
