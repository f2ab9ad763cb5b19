package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/client/client"
	"github.com/dmitrijs2005/fieldlog/internal/client/models"
	"github.com/dmitrijs2005/fieldlog/internal/geofence"
	"github.com/dmitrijs2005/fieldlog/internal/logging"
	"github.com/google/uuid"
)

// ErrNotFailed is returned by Requeue for entries that were not rejected.
var ErrNotFailed = errors.New("entry is not in failed state")

// NewEntry is what the user captures.
type NewEntry struct {
	LogDate     time.Time
	WeekNumber  int
	Description string
	Latitude    *float64
	Longitude   *float64
}

// Correction holds the fields a user may change on a rejected entry. Nil
// fields are left as they are.
type Correction struct {
	LogDate     *time.Time
	WeekNumber  *int
	Description *string
}

// Status summarizes the local queue.
type Status struct {
	Counts   map[models.SyncState]int
	LastSync time.Time
}

// EntryService defines entry operations for the CLI.
//
// Contract:
//   - Add: validate, persist as pending and return the entry. When the local
//     store is unusable the entry is submitted straight to the server.
//   - List/ListByState/ListByDate/Get: read the local store.
//   - Requeue: correct a failed entry and put it back in the queue.
//   - Status: counts per sync state and the last successful sync time.
type EntryService interface {
	Add(ctx context.Context, in NewEntry) (*models.LogEntry, error)
	List(ctx context.Context) ([]*models.LogEntry, error)
	ListByState(ctx context.Context, state models.SyncState) ([]*models.LogEntry, error)
	ListByDate(ctx context.Context, date time.Time) ([]*models.LogEntry, error)
	Get(ctx context.Context, clientID string) (*models.LogEntry, error)
	Requeue(ctx context.Context, clientID string, fix Correction) (*models.LogEntry, error)
	Status(ctx context.Context) (Status, error)
}

type entryService struct {
	store        EntryStore
	client       client.Client
	sync         SyncService
	programWeeks int
	logger       logging.Logger
	now          func() time.Time
}

func NewEntryService(store EntryStore, c client.Client, sync SyncService, programWeeks int, logger logging.Logger) EntryService {
	return &entryService{
		store:        store,
		client:       c,
		sync:         sync,
		programWeeks: programWeeks,
		logger:       logger.With("module", "entries"),
		now:          time.Now,
	}
}

func (s *entryService) Add(ctx context.Context, in NewEntry) (*models.LogEntry, error) {
	e := &models.LogEntry{
		ClientID:    uuid.NewString(),
		LogDate:     in.LogDate,
		WeekNumber:  in.WeekNumber,
		Description: in.Description,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		CapturedAt:  s.now(),
		SyncState:   models.StatePending,
	}
	if err := validateEntry(e, s.programWeeks); err != nil {
		return nil, err
	}

	// Without a location the server can only answer unverifiable.
	if e.Location() == nil {
		e.Classification = geofence.Unverifiable
	}

	if _, err := s.store.Put(ctx, e); err != nil {
		s.logger.Warn(ctx, "local store unavailable, submitting online only",
			"client_id", e.ClientID, "error", err)
		return s.submitDirect(ctx, e)
	}
	return e, nil
}

// submitDirect is the degraded path used when nothing can be queued locally.
func (s *entryService) submitDirect(ctx context.Context, e *models.LogEntry) (*models.LogEntry, error) {
	ack, err := s.client.Submit(ctx, e.Payload())
	if err != nil {
		return nil, fmt.Errorf("%w: entry could not be saved locally or sent: %w", client.ErrLocalDataNotAvailable, err)
	}
	e.MarkSynced(ack, s.now())
	return e, nil
}

func (s *entryService) List(ctx context.Context) ([]*models.LogEntry, error) {
	rows, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("error retrieving entries: %w", err)
	}
	return rows, nil
}

func (s *entryService) ListByState(ctx context.Context, state models.SyncState) ([]*models.LogEntry, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("unknown sync state %q", state)
	}
	rows, err := s.store.GetByStatus(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("error retrieving entries: %w", err)
	}
	return rows, nil
}

func (s *entryService) ListByDate(ctx context.Context, date time.Time) ([]*models.LogEntry, error) {
	rows, err := s.store.GetByLogDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("error retrieving entries: %w", err)
	}
	return rows, nil
}

func (s *entryService) Get(ctx context.Context, clientID string) (*models.LogEntry, error) {
	e, err := s.store.Get(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("error retrieving entry: %w", err)
	}
	return e, nil
}

func (s *entryService) Requeue(ctx context.Context, clientID string, fix Correction) (*models.LogEntry, error) {
	e, err := s.store.Get(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("error retrieving entry: %w", err)
	}
	if e.SyncState != models.StateFailed {
		return nil, ErrNotFailed
	}

	if fix.LogDate != nil {
		e.LogDate = *fix.LogDate
	}
	if fix.WeekNumber != nil {
		e.WeekNumber = *fix.WeekNumber
	}
	if fix.Description != nil {
		e.Description = *fix.Description
	}
	if err := validateEntry(e, s.programWeeks); err != nil {
		return nil, err
	}

	e.SyncState = models.StatePending
	e.FailReason = ""
	e.Attempts = 0
	e.LastError = ""

	if _, err := s.store.Put(ctx, e); err != nil {
		return nil, fmt.Errorf("saving error: %w", err)
	}
	s.logger.Info(ctx, "entry requeued", "client_id", e.ClientID)
	return e, nil
}

func (s *entryService) Status(ctx context.Context) (Status, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("error counting entries: %w", err)
	}
	st := Status{Counts: counts}
	if s.sync != nil {
		if st.LastSync, err = s.sync.LastSync(ctx); err != nil {
			return Status{}, err
		}
	}
	return st, nil
}
