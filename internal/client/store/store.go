// Package store is the Local Durable Store: the device-side record of every
// log entry, pending or synced. A Store is constructed explicitly and handed
// to its consumers; it opens and migrates its database lazily on first use.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/client/models"
	"github.com/dmitrijs2005/fieldlog/internal/client/notify"
	"github.com/dmitrijs2005/fieldlog/internal/client/repositories/entries"
	"github.com/dmitrijs2005/fieldlog/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/fieldlog/internal/logging"
	"github.com/google/uuid"
)

// ErrUnavailable wraps failures to open or migrate the local database.
var ErrUnavailable = errors.New("local store unavailable")

// Store owns the SQLite handle and the repositories bound to it.
type Store struct {
	dsn       string
	publisher notify.Publisher
	logger    logging.Logger
	now       func() time.Time

	mu       sync.Mutex
	db       *sql.DB
	entries  entries.Repository
	metadata metadata.Repository
}

// New returns an uninitialized Store for dsn. publisher may be nil.
func New(dsn string, publisher notify.Publisher, logger logging.Logger) *Store {
	return &Store{
		dsn:       dsn,
		publisher: publisher,
		logger:    logger.With("module", "store"),
		now:       time.Now,
	}
}

// Init opens and migrates the database. Repeated and concurrent calls are
// safe; after a failure the next call tries again.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initLocked(ctx)
}

func (s *Store) initLocked(ctx context.Context) error {
	if s.db != nil {
		return nil
	}

	db, err := OpenDatabase(ctx, s.dsn)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	repo := entries.NewSQLiteRepository(db)

	// A run interrupted mid-flight leaves entries in syncing; nothing is in
	// flight now, so they go back to the queue.
	n, err := repo.MoveState(ctx, models.StateSyncing, models.StatePending)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if n > 0 {
		s.logger.Warn(ctx, "recovered interrupted entries", "count", n)
	}

	s.db = db
	s.entries = repo
	s.metadata = metadata.NewSQLiteRepository(db)
	s.logger.Info(ctx, "local store ready", "dsn", s.dsn)
	return nil
}

func (s *Store) entryRepo(ctx context.Context) (entries.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.initLocked(ctx); err != nil {
		return nil, err
	}
	return s.entries, nil
}

// Metadata returns the key/value settings repository.
func (s *Store) Metadata(ctx context.Context) (metadata.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.initLocked(ctx); err != nil {
		return nil, err
	}
	return s.metadata, nil
}

// Put upserts e keyed by its ClientID, generating one when empty, and
// returns the id. Every successful write publishes EntryPersisted.
func (s *Store) Put(ctx context.Context, e *models.LogEntry) (string, error) {
	repo, err := s.entryRepo(ctx)
	if err != nil {
		return "", err
	}

	if e.ClientID == "" {
		e.ClientID = uuid.NewString()
	}
	if e.CapturedAt.IsZero() {
		e.CapturedAt = s.now()
	}
	if e.SyncState == "" {
		e.SyncState = models.StatePending
	}

	if err := repo.Upsert(ctx, e); err != nil {
		return "", err
	}

	if s.publisher != nil {
		s.publisher.Publish(notify.Event{Type: notify.EntryPersisted, ClientID: e.ClientID})
	}
	return e.ClientID, nil
}

// Recover moves entries stuck in syncing back to pending and returns how
// many moved. Callers must ensure no submission is in flight.
func (s *Store) Recover(ctx context.Context) (int, error) {
	repo, err := s.entryRepo(ctx)
	if err != nil {
		return 0, err
	}
	n, err := repo.MoveState(ctx, models.StateSyncing, models.StatePending)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Warn(ctx, "recovered interrupted entries", "count", n)
	}
	return int(n), nil
}

// Get returns common.ErrorNotFound for unknown ids.
func (s *Store) Get(ctx context.Context, clientID string) (*models.LogEntry, error) {
	repo, err := s.entryRepo(ctx)
	if err != nil {
		return nil, err
	}
	return repo.GetByID(ctx, clientID)
}

// GetByStatus returns the entries in state, oldest first.
func (s *Store) GetByStatus(ctx context.Context, state models.SyncState) ([]*models.LogEntry, error) {
	repo, err := s.entryRepo(ctx)
	if err != nil {
		return nil, err
	}
	return repo.GetByState(ctx, state)
}

func (s *Store) GetAll(ctx context.Context) ([]*models.LogEntry, error) {
	repo, err := s.entryRepo(ctx)
	if err != nil {
		return nil, err
	}
	return repo.GetAll(ctx)
}

func (s *Store) GetByLogDate(ctx context.Context, date time.Time) ([]*models.LogEntry, error) {
	repo, err := s.entryRepo(ctx)
	if err != nil {
		return nil, err
	}
	return repo.GetByLogDate(ctx, date)
}

func (s *Store) CountByStatus(ctx context.Context) (map[models.SyncState]int, error) {
	repo, err := s.entryRepo(ctx)
	if err != nil {
		return nil, err
	}
	return repo.CountByState(ctx)
}

// Close releases the database. The Store can be initialized again afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db, s.entries, s.metadata = nil, nil, nil
	return err
}
