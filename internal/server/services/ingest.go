// Package services contains the server's business logic: idempotent ingest
// of log entries and the geofence review operations built on top of it.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/api"
	"github.com/dmitrijs2005/fieldlog/internal/common"
	"github.com/dmitrijs2005/fieldlog/internal/logging"
	"github.com/dmitrijs2005/fieldlog/internal/server/config"
	"github.com/dmitrijs2005/fieldlog/internal/server/metrics"
	"github.com/dmitrijs2005/fieldlog/internal/server/models"
	"github.com/dmitrijs2005/fieldlog/internal/server/notify"
	"github.com/dmitrijs2005/fieldlog/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/fieldlog/internal/timex"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// IngestService accepts log entries from field clients.
//
// Contract:
//   - Ingest: a client UUID already stored for the same student returns the
//     stored row with created == false, without validating or classifying
//     again. A UUID owned by another student is rejected with
//     common.ErrConflict.
//   - New entries are validated (*common.ValidationError), matched to the
//     student's active placement (common.ErrNoActivePlacement,
//     common.ErrBeforePlacement) and classified against its site.
//   - Storage failures are wrapped in common.ErrTransient.
//   - Get: the stored row for a UUID owned by studentID, or
//     common.ErrorNotFound.
type IngestService interface {
	Ingest(ctx context.Context, studentID string, req api.SyncRequest) (*models.LogEntry, bool, error)
	Get(ctx context.Context, studentID, clientUUID string) (*models.LogEntry, error)
}

type ingestService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	validate     *validator.Validate
	programWeeks int
	tolerance    float64
	publisher    notify.Publisher
	metrics      *metrics.Metrics
	logger       logging.Logger
	now          func() time.Time
}

func NewIngestService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config,
	publisher notify.Publisher, mt *metrics.Metrics, logger logging.Logger) IngestService {
	return &ingestService{
		db:           db,
		repomanager:  m,
		validate:     newValidator(),
		programWeeks: cfg.ProgramWeeks,
		tolerance:    cfg.GeofenceToleranceMeters,
		publisher:    publisher,
		metrics:      mt,
		logger:       logger.With("module", "ingest"),
		now:          time.Now,
	}
}

func (s *ingestService) Ingest(ctx context.Context, studentID string, req api.SyncRequest) (*models.LogEntry, bool, error) {
	e, created, err := s.ingest(ctx, studentID, req)
	switch {
	case err == nil && created:
		s.metrics.ObserveIngest(metrics.OutcomeCreated, e.Classification)
	case err == nil:
		s.metrics.ObserveIngest(metrics.OutcomeDuplicate, e.Classification)
	case common.IsPermanent(err):
		s.metrics.ObserveIngest(metrics.OutcomeRejected, "")
		s.logger.Info(ctx, "entry rejected", "student_id", studentID, "client_uuid", req.ClientUUID, "error", err)
	default:
		s.metrics.ObserveIngest(metrics.OutcomeError, "")
		s.logger.Error(ctx, "ingest failed", "student_id", studentID, "client_uuid", req.ClientUUID, "error", err)
	}
	return e, created, err
}

func (s *ingestService) ingest(ctx context.Context, studentID string, req api.SyncRequest) (*models.LogEntry, bool, error) {
	// The lookup needs a well-formed UUID; everything else is validated
	// only for entries not seen before.
	if _, err := uuid.Parse(req.ClientUUID); err != nil {
		ve := common.NewValidationError()
		ve.Add("client_uuid", errInvalidUUID.Error())
		return nil, false, ve
	}

	entryRepo := s.repomanager.Entries(s.db)

	existing, err := entryRepo.GetByClientUUID(ctx, req.ClientUUID)
	switch {
	case err == nil:
		if existing.StudentID != studentID {
			return nil, false, common.ErrConflict
		}
		return existing, false, nil
	case !errors.Is(err, common.ErrorNotFound):
		return nil, false, fmt.Errorf("%w: %w", common.ErrTransient, err)
	}

	logDate, err := validateRequest(s.validate, &req, s.programWeeks)
	if err != nil {
		return nil, false, err
	}

	placement, err := s.repomanager.Placements(s.db).GetActiveByStudent(ctx, studentID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, false, common.ErrNoActivePlacement
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", common.ErrTransient, err)
	}
	if logDate.Before(placement.StartDate) {
		return nil, false, fmt.Errorf("%w: placement started %s", common.ErrBeforePlacement, timex.FormatDate(placement.StartDate))
	}

	e := &models.LogEntry{
		ID:          uuid.NewString(),
		ClientUUID:  req.ClientUUID,
		StudentID:   studentID,
		PlacementID: placement.ID,
		LogDate:     logDate,
		WeekNumber:  req.WeekNumber,
		Description: req.ActivityDescription,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		SyncedAt:    s.now().UTC(),
	}
	res := evaluate(e.Location(), placement, s.tolerance)
	e.Classification = res.Classification
	e.DistanceMeters = res.Distance()

	stored, created, err := entryRepo.FindOrCreate(ctx, e)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", common.ErrTransient, err)
	}
	if stored.StudentID != studentID {
		return nil, false, common.ErrConflict
	}

	if created {
		s.notify(ctx, stored)
	}
	return stored, created, nil
}

func (s *ingestService) notify(ctx context.Context, e *models.LogEntry) {
	if s.publisher == nil {
		return
	}
	ev, err := api.NewEvent(api.EventEntrySynced, api.EntrySyncedData{
		ClientUUID:     e.ClientUUID,
		Classification: string(e.Classification),
	})
	if err != nil {
		s.logger.Warn(ctx, "failed to build event", "error", err)
		return
	}
	s.publisher.Publish(e.StudentID, ev)
}

func (s *ingestService) Get(ctx context.Context, studentID, clientUUID string) (*models.LogEntry, error) {
	if _, err := uuid.Parse(clientUUID); err != nil {
		return nil, common.ErrorNotFound
	}
	e, err := s.repomanager.Entries(s.db).GetByClientUUID(ctx, clientUUID)
	if err != nil {
		return nil, err
	}
	// Another student's entry is reported as absent.
	if e.StudentID != studentID {
		return nil, common.ErrorNotFound
	}
	return e, nil
}
