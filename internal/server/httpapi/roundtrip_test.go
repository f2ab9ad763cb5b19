package httpapi

import (
	"context"
	"database/sql"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/api"
	"github.com/dmitrijs2005/fieldlog/internal/client/client"
	"github.com/dmitrijs2005/fieldlog/internal/common"
	"github.com/dmitrijs2005/fieldlog/internal/dbx"
	"github.com/dmitrijs2005/fieldlog/internal/geofence"
	"github.com/dmitrijs2005/fieldlog/internal/logging"
	"github.com/dmitrijs2005/fieldlog/internal/server/auth"
	"github.com/dmitrijs2005/fieldlog/internal/server/config"
	"github.com/dmitrijs2005/fieldlog/internal/server/metrics"
	"github.com/dmitrijs2005/fieldlog/internal/server/models"
	"github.com/dmitrijs2005/fieldlog/internal/server/repositories/entries"
	"github.com/dmitrijs2005/fieldlog/internal/server/repositories/placements"
	"github.com/dmitrijs2005/fieldlog/internal/server/services"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memEntries keeps rows by client uuid, like the unique index in Postgres.
type memEntries struct {
	entries.Repository

	mu   sync.Mutex
	rows map[string]*models.LogEntry
}

func (m *memEntries) FindOrCreate(_ context.Context, e *models.LogEntry) (*models.LogEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.rows[e.ClientUUID]; ok {
		return existing, false, nil
	}
	cp := *e
	m.rows[e.ClientUUID] = &cp
	return &cp, true, nil
}

func (m *memEntries) GetByClientUUID(_ context.Context, clientUUID string) (*models.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[clientUUID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return e, nil
}

type memPlacements struct {
	placements.Repository
	placement *models.Placement
}

func (m *memPlacements) GetActiveByStudent(_ context.Context, studentID string) (*models.Placement, error) {
	if m.placement.StudentID != studentID {
		return nil, common.ErrorNotFound
	}
	return m.placement, nil
}

type memManager struct {
	entries    *memEntries
	placements *memPlacements
}

func (m *memManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *memManager) Entries(dbx.DBTX) entries.Repository          { return m.entries }
func (m *memManager) Placements(dbx.DBTX) placements.Repository    { return m.placements }

func newRoundTripClient(t *testing.T) *client.HTTPClient {
	t.Helper()

	manager := &memManager{
		entries: &memEntries{rows: map[string]*models.LogEntry{}},
		placements: &memPlacements{placement: &models.Placement{
			ID:        "p-1",
			StudentID: "s-1",
			StartDate: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
			Active:    true,
			Site: &geofence.Site{
				ID: "site-1", CenterLatitude: 6.5244, CenterLongitude: 3.3792, RadiusMeters: 200,
			},
		}},
	}

	cfg := &config.Config{}
	cfg.LoadDefaults()
	m := metrics.New(prometheus.NewRegistry())
	ingest := services.NewIngestService(nil, manager, cfg, nil, m, logging.Nop())

	h := New(ingest, &fakeGeofence{}, &fakeStream{}, m, logging.Nop(), secret, 1000)
	ts := httptest.NewServer(h.Routes())
	t.Cleanup(ts.Close)

	tok, err := auth.GenerateToken("s-1", auth.RoleStudent, []byte(secret), time.Hour)
	require.NoError(t, err)

	c, err := client.NewHTTPClient(ts.URL, 2*time.Second, client.StaticToken(tok),
		client.DefaultBreakerSettings(), logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRoundTrip_ClientAndServerAgree(t *testing.T) {
	c := newRoundTripClient(t)
	ctx := context.Background()
	lat, lon := 6.5250, 3.3795

	tests := []struct {
		name           string
		req            api.SyncRequest
		classification string
	}{
		{
			name: "with location",
			req: api.SyncRequest{
				ClientUUID:          uuid.NewString(),
				LogDate:             "2024-03-05",
				WeekNumber:          1,
				ActivityDescription: "Calibrated sensors",
				Latitude:            &lat,
				Longitude:           &lon,
			},
			classification: string(geofence.Verified),
		},
		{
			name: "without location",
			req: api.SyncRequest{
				ClientUUID:          uuid.NewString(),
				LogDate:             "2024-03-12",
				WeekNumber:          2,
				ActivityDescription: "Indoor safety briefing",
			},
			classification: string(geofence.Unverifiable),
		},
		{
			name: "multi-byte description",
			req: api.SyncRequest{
				ClientUUID:          uuid.NewString(),
				LogDate:             "2024-03-13",
				WeekNumber:          2,
				ActivityDescription: "Inspected the Ọjà stalls, labelled 日本語 crates ✓",
				Latitude:            &lat,
				Longitude:           &lon,
			},
			classification: string(geofence.Verified),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			submitted, err := c.Submit(ctx, tt.req)
			require.NoError(t, err)

			fetched, err := c.Get(ctx, tt.req.ClientUUID)
			require.NoError(t, err)

			for _, got := range []*api.Entry{submitted, fetched} {
				assert.Equal(t, tt.req.ClientUUID, got.ClientUUID)
				assert.Equal(t, tt.req.LogDate, got.LogDate)
				assert.Equal(t, tt.req.WeekNumber, got.WeekNumber)
				assert.Equal(t, tt.req.ActivityDescription, got.ActivityDescription)
				assert.Equal(t, tt.classification, got.Classification)
				assert.NotEmpty(t, got.ServerID)

				if tt.req.Latitude == nil {
					assert.Nil(t, got.Latitude)
					assert.Nil(t, got.Longitude)
					assert.Nil(t, got.DistanceMeters)
					continue
				}
				require.NotNil(t, got.Latitude)
				require.NotNil(t, got.Longitude)
				assert.InDelta(t, *tt.req.Latitude, *got.Latitude, 1e-9)
				assert.InDelta(t, *tt.req.Longitude, *got.Longitude, 1e-9)
			}
			assert.Equal(t, submitted.ServerID, fetched.ServerID)

			again, err := c.Submit(ctx, tt.req)
			require.NoError(t, err)
			assert.Equal(t, submitted.ServerID, again.ServerID)
		})
	}

	_, err := c.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, common.ErrorNotFound)
}
