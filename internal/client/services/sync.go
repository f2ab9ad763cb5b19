package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/client/client"
	"github.com/dmitrijs2005/fieldlog/internal/client/models"
	"github.com/dmitrijs2005/fieldlog/internal/client/notify"
	"github.com/dmitrijs2005/fieldlog/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/fieldlog/internal/common"
	"github.com/dmitrijs2005/fieldlog/internal/logging"
	"golang.org/x/sync/singleflight"
)

// SyncResult counts the outcomes of one sync run.
type SyncResult struct {
	Synced    int
	Retryable int
	Failed    int
}

// Clean reports whether nothing is left for a retry.
func (r SyncResult) Clean() bool {
	return r.Retryable == 0
}

// SyncService pushes pending entries to the server.
//
// Contract:
//   - Run: submit every pending entry once, in creation order, and report
//     per-outcome counts. Concurrent calls share the run in flight.
//   - SyncPending: Run, returning only the number synced.
//   - LastSync: time of the last run that synced at least one entry.
type SyncService interface {
	Run(ctx context.Context) (SyncResult, error)
	SyncPending(ctx context.Context) (int, error)
	LastSync(ctx context.Context) (time.Time, error)
}

type syncService struct {
	store     EntryStore
	client    client.Client
	publisher notify.Publisher
	logger    logging.Logger
	now       func() time.Time

	group singleflight.Group
}

// NewSyncService wires the sync engine. publisher may be nil.
func NewSyncService(store EntryStore, c client.Client, publisher notify.Publisher, logger logging.Logger) SyncService {
	return &syncService{
		store:     store,
		client:    c,
		publisher: publisher,
		logger:    logger.With("module", "sync"),
		now:       time.Now,
	}
}

func (s *syncService) SyncPending(ctx context.Context) (int, error) {
	res, err := s.Run(ctx)
	return res.Synced, err
}

// Run starts a run or joins the one in flight. The run itself ignores the
// caller's cancellation so it always completes over its snapshot; a
// cancelled caller stops waiting and gets ctx.Err().
func (s *syncService) Run(ctx context.Context) (SyncResult, error) {
	ch := s.group.DoChan("sync", func() (any, error) {
		return s.run(context.WithoutCancel(ctx))
	})

	select {
	case r := <-ch:
		res, _ := r.Val.(SyncResult)
		return res, r.Err
	case <-ctx.Done():
		return SyncResult{}, ctx.Err()
	}
}

func (s *syncService) run(ctx context.Context) (SyncResult, error) {
	var res SyncResult

	// Runs are serialized, so anything still syncing here was left behind
	// by a run whose final write failed.
	if _, err := s.store.Recover(ctx); err != nil {
		return res, fmt.Errorf("recover syncing entries: %w", err)
	}

	pending, err := s.store.GetByStatus(ctx, models.StatePending)
	if err != nil {
		return res, fmt.Errorf("load pending entries: %w", err)
	}
	if len(pending) == 0 {
		return res, nil
	}

	s.logger.Info(ctx, "sync started", "pending", len(pending))

	for _, e := range pending {
		switch s.syncOne(ctx, e) {
		case models.StateSynced:
			res.Synced++
		case models.StateFailed:
			res.Failed++
		default:
			res.Retryable++
		}
	}

	if res.Synced > 0 {
		if err := s.recordLastSync(ctx); err != nil {
			s.logger.Warn(ctx, "failed to record last sync time", "error", err)
		}
		if s.publisher != nil {
			s.publisher.Publish(notify.Event{Type: notify.SyncCompleted, Count: res.Synced})
		}
	}

	s.logger.Info(ctx, "sync finished",
		"synced", res.Synced, "retryable", res.Retryable, "failed", res.Failed)
	return res, nil
}

// syncOne submits a single entry and persists its new state. Errors never
// escape: the entry is left pending or failed instead.
func (s *syncService) syncOne(ctx context.Context, e *models.LogEntry) models.SyncState {
	e.SyncState = models.StateSyncing
	if _, err := s.store.Put(ctx, e); err != nil {
		s.logger.Error(ctx, "failed to mark entry syncing", "client_id", e.ClientID, "error", err)
		return models.StatePending
	}

	ack, err := s.client.Submit(ctx, e.Payload())
	switch {
	case err == nil:
		e.MarkSynced(ack, s.now())
		s.logger.Debug(ctx, "entry synced", "client_id", e.ClientID, "classification", e.Classification)
	case common.IsPermanent(err):
		e.MarkFailed(rejectionReason(err))
		s.logger.Warn(ctx, "entry rejected", "client_id", e.ClientID, "reason", e.FailReason)
	default:
		e.MarkRetry(err)
		s.logger.Warn(ctx, "entry sync deferred", "client_id", e.ClientID, "attempts", e.Attempts, "error", err)
	}

	if _, err := s.store.Put(ctx, e); err != nil {
		s.logger.Error(ctx, "failed to persist sync outcome", "client_id", e.ClientID, "error", err)
		s.requeue(ctx, e)
		return models.StatePending
	}
	return e.SyncState
}

// requeue makes one more attempt to put e back in the queue. If that fails
// too, the next run's Recover picks it up.
func (s *syncService) requeue(ctx context.Context, e *models.LogEntry) {
	e.SyncState = models.StatePending
	if _, err := s.store.Put(ctx, e); err != nil {
		s.logger.Warn(ctx, "entry left syncing until the next run", "client_id", e.ClientID, "error", err)
	}
}

func (s *syncService) recordLastSync(ctx context.Context) error {
	md, err := s.store.Metadata(ctx)
	if err != nil {
		return err
	}
	return md.SetTime(ctx, metadata.KeyLastSyncAt, s.now())
}

func (s *syncService) LastSync(ctx context.Context) (time.Time, error) {
	md, err := s.store.Metadata(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return md.GetTime(ctx, metadata.KeyLastSyncAt)
}

func rejectionReason(err error) string {
	var re *client.RejectedError
	if errors.As(err, &re) {
		if r := re.Reason(); r != "" {
			return r
		}
	}
	return err.Error()
}
