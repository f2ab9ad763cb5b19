package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/api"
	"github.com/dmitrijs2005/fieldlog/internal/client/client"
	"github.com/dmitrijs2005/fieldlog/internal/client/models"
	"github.com/dmitrijs2005/fieldlog/internal/client/notify"
	"github.com/dmitrijs2005/fieldlog/internal/client/store"
	"github.com/dmitrijs2005/fieldlog/internal/common"
	"github.com/dmitrijs2005/fieldlog/internal/logging"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, pub notify.Publisher) *store.Store {
	t.Helper()
	s := store.New(filepath.Join(t.TempDir(), "fieldlog.db"), pub, logging.Nop())
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func coords() (*float64, *float64) {
	lat, lon := 6.5244, 3.3792
	return &lat, &lon
}

func pendingEntry(t *testing.T, s *store.Store, desc string) *models.LogEntry {
	t.Helper()
	lat, lon := coords()
	e := &models.LogEntry{
		LogDate:     time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		WeekNumber:  1,
		Description: desc,
		Latitude:    lat,
		Longitude:   lon,
	}
	_, err := s.Put(context.Background(), e)
	require.NoError(t, err)
	return e
}

// fakeServer stands in for the ingest endpoint: it dedups by client id the
// way the real server does, and lets a test script failures per id.
type fakeServer struct {
	client.Client

	mu       sync.Mutex
	rows     map[string]*api.Entry
	calls    map[string]int
	created  int
	failures map[string][]error
	// lostReply stores the row but reports a transport failure.
	lostReply map[string]bool
	block     chan struct{}
	started   chan struct{}
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		rows:      map[string]*api.Entry{},
		calls:     map[string]int{},
		failures:  map[string][]error{},
		lostReply: map[string]bool{},
	}
}

func (f *fakeServer) failNext(id string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[id] = append(f.failures[id], errs...)
}

func (f *fakeServer) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeServer) Submit(ctx context.Context, req api.SyncRequest) (*api.Entry, error) {
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.ClientUUID]++

	if errs := f.failures[req.ClientUUID]; len(errs) > 0 {
		f.failures[req.ClientUUID] = errs[1:]
		return nil, errs[0]
	}

	row, ok := f.rows[req.ClientUUID]
	if !ok {
		f.created++
		row = &api.Entry{
			ServerID:            "srv-" + req.ClientUUID[:8],
			ClientUUID:          req.ClientUUID,
			LogDate:             req.LogDate,
			WeekNumber:          req.WeekNumber,
			ActivityDescription: req.ActivityDescription,
			Latitude:            req.Latitude,
			Longitude:           req.Longitude,
			Classification:      "verified",
			SyncedAt:            time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC),
		}
		f.rows[req.ClientUUID] = row
	}
	if f.lostReply[req.ClientUUID] {
		delete(f.lostReply, req.ClientUUID)
		return nil, client.ErrUnavailable
	}
	return row, nil
}

func (f *fakeServer) Ping(context.Context) error { return nil }

var errFlaky = common.ErrTransient

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Publish(e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofType(t notify.EventType) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
