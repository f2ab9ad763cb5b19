// Package httpapi exposes the ingest and review services over HTTP: the
// sync endpoint used by field clients, supervisor reports, the notification
// stream, health and metrics.
package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/api"
	"github.com/dmitrijs2005/fieldlog/internal/logging"
	"github.com/dmitrijs2005/fieldlog/internal/server/auth"
	"github.com/dmitrijs2005/fieldlog/internal/server/metrics"
	"github.com/dmitrijs2005/fieldlog/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxBodyBytes bounds a sync payload. A description is at most 500
// characters, so anything larger is not a log entry.
const maxBodyBytes = 64 << 10

// StreamServer upgrades a request to the notification stream.
type StreamServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, studentID string)
}

// Handler holds the dependencies of the HTTP routes.
type Handler struct {
	ingest     services.IngestService
	geofence   services.GeofenceService
	stream     StreamServer
	metrics    *metrics.Metrics
	logger     logging.Logger
	secretKey  []byte
	ratePerMin int
}

func New(ingest services.IngestService, geofence services.GeofenceService, stream StreamServer,
	m *metrics.Metrics, logger logging.Logger, secretKey string, ratePerMin int) *Handler {
	return &Handler{
		ingest:     ingest,
		geofence:   geofence,
		stream:     stream,
		metrics:    m,
		logger:     logger.With("module", "httpapi"),
		secretKey:  []byte(secretKey),
		ratePerMin: ratePerMin,
	}
}

// Routes builds the chi router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.instrument)

	r.Get(api.HealthPath, h.Healthz)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)
		r.Use(h.rateLimit(time.Minute))

		r.Group(func(r chi.Router) {
			r.Use(requireRole(auth.RoleStudent))
			r.Post(api.SyncPath, h.Sync)
			r.Get(api.EntryPath+"{clientUUID}", h.GetEntry)
			r.Get(api.StreamPath, h.Stream)
		})

		r.Route("/api/v1/placements/{placementID}", func(r chi.Router) {
			r.Use(requireRole(auth.RoleSupervisor))
			r.Get("/violations", h.Violations)
			r.Get("/weeks", h.WeekSummary)
			r.Post("/reclassify", h.Reclassify)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, &api.Error{Kind: api.ErrorPermanent, Code: api.CodeNotFound, Message: "route not found"})
	})

	return r
}
