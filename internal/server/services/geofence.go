package services

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/dbx"
	"github.com/dmitrijs2005/fieldlog/internal/geofence"
	"github.com/dmitrijs2005/fieldlog/internal/logging"
	"github.com/dmitrijs2005/fieldlog/internal/server/config"
	"github.com/dmitrijs2005/fieldlog/internal/server/metrics"
	"github.com/dmitrijs2005/fieldlog/internal/server/models"
	"github.com/dmitrijs2005/fieldlog/internal/server/repositories/repomanager"
)

// Report summarizes geofence compliance for one placement.
type Report struct {
	PlacementID   string
	Total         int
	Verified      int
	Flagged       int
	Unverifiable  int
	ViolationRate float64
	FlaggedIDs    []string
}

// GeofenceService offers supervisor views over a placement's entries.
//
// Contract:
//   - Reclassify: re-evaluate every entry of the placement against its
//     current site, store rows whose classification or distance changed,
//     and return how many changed. Unknown placements yield
//     common.ErrorNotFound.
//   - Violations: counts per classification, the share of flagged entries
//     in percent and the client UUIDs of flagged entries.
//   - WeekSummary: entry counts per programme week.
type GeofenceService interface {
	Reclassify(ctx context.Context, placementID string) (int, error)
	Violations(ctx context.Context, placementID string) (*Report, error)
	WeekSummary(ctx context.Context, placementID string) ([]models.WeekCount, error)
}

type geofenceService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tolerance   float64
	metrics     *metrics.Metrics
	logger      logging.Logger
	now         func() time.Time
}

func NewGeofenceService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config,
	mt *metrics.Metrics, logger logging.Logger) GeofenceService {
	return &geofenceService{
		db:          db,
		repomanager: m,
		tolerance:   cfg.GeofenceToleranceMeters,
		metrics:     mt,
		logger:      logger.With("module", "geofence"),
		now:         time.Now,
	}
}

func (s *geofenceService) Reclassify(ctx context.Context, placementID string) (int, error) {
	placement, err := s.repomanager.Placements(s.db).GetByID(ctx, placementID)
	if err != nil {
		return 0, err
	}

	reviewedAt := s.now().UTC()
	changed, err := dbx.WithTxValue(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (int, error) {
		repo := s.repomanager.Entries(tx)

		rows, err := repo.ListByPlacement(ctx, placementID)
		if err != nil {
			return 0, err
		}

		n := 0
		for _, e := range rows {
			res := evaluate(e.Location(), placement, s.tolerance)
			if res.Classification == e.Classification && sameDistance(res.Distance(), e.DistanceMeters) {
				continue
			}
			if err := repo.UpdateClassification(ctx, e.ID, res.Classification, res.Distance(), reviewedAt); err != nil {
				return 0, err
			}
			n++
		}
		return n, nil
	})
	if err != nil {
		return 0, err
	}

	s.metrics.ObserveReclassified(changed)
	s.logger.Info(ctx, "placement reclassified", "placement_id", placementID, "changed", changed)
	return changed, nil
}

func (s *geofenceService) Violations(ctx context.Context, placementID string) (*Report, error) {
	if _, err := s.repomanager.Placements(s.db).GetByID(ctx, placementID); err != nil {
		return nil, err
	}

	rows, err := s.repomanager.Entries(s.db).ListByPlacement(ctx, placementID)
	if err != nil {
		return nil, err
	}

	r := &Report{PlacementID: placementID, Total: len(rows), FlaggedIDs: []string{}}
	for _, e := range rows {
		switch e.Classification {
		case geofence.Verified:
			r.Verified++
		case geofence.Flagged:
			r.Flagged++
			r.FlaggedIDs = append(r.FlaggedIDs, e.ClientUUID)
		default:
			r.Unverifiable++
		}
	}
	if r.Total > 0 {
		r.ViolationRate = math.Round(float64(r.Flagged)/float64(r.Total)*10000) / 100
	}
	return r, nil
}

func (s *geofenceService) WeekSummary(ctx context.Context, placementID string) ([]models.WeekCount, error) {
	if _, err := s.repomanager.Placements(s.db).GetByID(ctx, placementID); err != nil {
		return nil, err
	}
	return s.repomanager.Entries(s.db).CountByWeek(ctx, placementID)
}

func evaluate(p *geofence.Point, placement *models.Placement, tolerance float64) geofence.Result {
	if placement.Site == nil {
		return geofence.Evaluate(nil, geofence.Site{})
	}
	return geofence.Evaluate(p, placement.Site.WithTolerance(tolerance))
}

func sameDistance(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return math.Abs(*a-*b) < 1e-6
}
