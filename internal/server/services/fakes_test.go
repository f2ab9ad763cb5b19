package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/api"
	"github.com/dmitrijs2005/fieldlog/internal/common"
	"github.com/dmitrijs2005/fieldlog/internal/dbx"
	"github.com/dmitrijs2005/fieldlog/internal/geofence"
	"github.com/dmitrijs2005/fieldlog/internal/server/config"
	"github.com/dmitrijs2005/fieldlog/internal/server/models"
	"github.com/dmitrijs2005/fieldlog/internal/server/repositories/entries"
	"github.com/dmitrijs2005/fieldlog/internal/server/repositories/placements"
)

type fakeEntries struct {
	mu      sync.Mutex
	rows    map[string]*models.LogEntry
	getErr  error
	saveErr error
	// raced is returned by FindOrCreate as if another request stored it
	// between the lookup and the insert.
	raced   *models.LogEntry
	updates []string
}

func newFakeEntries() *fakeEntries {
	return &fakeEntries{rows: map[string]*models.LogEntry{}}
}

func (f *fakeEntries) FindOrCreate(_ context.Context, e *models.LogEntry) (*models.LogEntry, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return nil, false, f.saveErr
	}
	if f.raced != nil {
		f.rows[f.raced.ClientUUID] = f.raced
		return f.raced, false, nil
	}
	if existing, ok := f.rows[e.ClientUUID]; ok {
		return existing, false, nil
	}
	cp := *e
	f.rows[e.ClientUUID] = &cp
	return &cp, true, nil
}

func (f *fakeEntries) GetByClientUUID(_ context.Context, clientUUID string) (*models.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	e, ok := f.rows[clientUUID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return e, nil
}

func (f *fakeEntries) ListByPlacement(_ context.Context, placementID string) ([]*models.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.LogEntry
	for _, e := range f.rows {
		if e.PlacementID == placementID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientUUID < out[j].ClientUUID })
	return out, nil
}

func (f *fakeEntries) UpdateClassification(_ context.Context, id string, c geofence.Classification, distance *float64, reviewedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.rows {
		if e.ID == id {
			e.Classification = c
			e.DistanceMeters = distance
			e.ReviewedAt = &reviewedAt
			f.updates = append(f.updates, id)
			return nil
		}
	}
	return common.ErrorNotFound
}

func (f *fakeEntries) CountByWeek(_ context.Context, placementID string) ([]models.WeekCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[int]int{}
	for _, e := range f.rows {
		if e.PlacementID == placementID {
			counts[e.WeekNumber]++
		}
	}
	out := make([]models.WeekCount, 0, len(counts))
	for w, n := range counts {
		out = append(out, models.WeekCount{WeekNumber: w, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekNumber < out[j].WeekNumber })
	return out, nil
}

type fakePlacements struct {
	byID map[string]*models.Placement
	err  error
}

func (f *fakePlacements) GetActiveByStudent(_ context.Context, studentID string) (*models.Placement, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.byID {
		if p.StudentID == studentID && p.Active {
			return p, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakePlacements) GetByID(_ context.Context, id string) (*models.Placement, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return p, nil
}

type fakeManager struct {
	entries    *fakeEntries
	placements *fakePlacements
}

func (m *fakeManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeManager) Entries(dbx.DBTX) entries.Repository          { return m.entries }
func (m *fakeManager) Placements(dbx.DBTX) placements.Repository {
	return m.placements
}

type recordingPublisher struct {
	mu     sync.Mutex
	events map[string][]string
}

func (p *recordingPublisher) Publish(studentID string, ev api.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events == nil {
		p.events = map[string][]string{}
	}
	p.events[studentID] = append(p.events[studentID], ev.Type)
}

var lagosSite = &geofence.Site{ID: "site-1", CenterLatitude: 6.5244, CenterLongitude: 3.3792, RadiusMeters: 200}

func newManager() *fakeManager {
	return &fakeManager{
		entries: newFakeEntries(),
		placements: &fakePlacements{byID: map[string]*models.Placement{
			"p-1": {
				ID:          "p-1",
				StudentID:   "s-1",
				CompanyName: "Acme Foods",
				StartDate:   time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
				Active:      true,
				Site:        lagosSite,
			},
		}},
	}
}

func ptr(f float64) *float64 { return &f }

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	return cfg
}
