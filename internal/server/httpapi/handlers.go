package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/fieldlog/internal/api"
	"github.com/dmitrijs2005/fieldlog/internal/server/models"
	"github.com/go-chi/chi/v5"
)

// ReportResponse is the body of the violations route.
type ReportResponse struct {
	PlacementID   string   `json:"placement_id"`
	Total         int      `json:"total"`
	Verified      int      `json:"verified"`
	Flagged       int      `json:"flagged"`
	Unverifiable  int      `json:"unverifiable"`
	ViolationRate float64  `json:"violation_rate"`
	FlaggedIDs    []string `json:"flagged_ids"`
}

// WeekResponse is one row of the weeks route.
type WeekResponse struct {
	WeekNumber int `json:"week_number"`
	Count      int `json:"count"`
}

// ReclassifyResponse is the body of the reclassify route.
type ReclassifyResponse struct {
	PlacementID string `json:"placement_id"`
	Changed     int    `json:"changed"`
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Sync ingests one entry: 201 when stored now, 200 when it already existed.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())

	var req api.SyncRequest
	if err := api.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes), &req); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		h.logger.Warn(r.Context(), "failed to decode sync payload", "error", err)
		writeError(w, status, &api.Error{Kind: api.ErrorPermanent, Code: api.CodeMalformed, Message: "invalid request payload"})
		return
	}

	e, created, err := h.ingest.Ingest(r.Context(), claims.StudentID, req)
	if err != nil {
		status, apiErr := classify(err)
		writeError(w, status, apiErr)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, api.SyncResponse{Success: true, Created: created, Entry: e.ToAPI()})
}

func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())

	e, err := h.ingest.Get(r.Context(), claims.StudentID, chi.URLParam(r, "clientUUID"))
	if err != nil {
		status, apiErr := classify(err)
		writeError(w, status, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, api.SyncResponse{Success: true, Entry: e.ToAPI()})
}

func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	h.stream.ServeWS(w, r, claims.StudentID)
}

func (h *Handler) Violations(w http.ResponseWriter, r *http.Request) {
	rep, err := h.geofence.Violations(r.Context(), chi.URLParam(r, "placementID"))
	if err != nil {
		status, apiErr := classify(err)
		writeError(w, status, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, ReportResponse{
		PlacementID:   rep.PlacementID,
		Total:         rep.Total,
		Verified:      rep.Verified,
		Flagged:       rep.Flagged,
		Unverifiable:  rep.Unverifiable,
		ViolationRate: rep.ViolationRate,
		FlaggedIDs:    rep.FlaggedIDs,
	})
}

func (h *Handler) WeekSummary(w http.ResponseWriter, r *http.Request) {
	weeks, err := h.geofence.WeekSummary(r.Context(), chi.URLParam(r, "placementID"))
	if err != nil {
		status, apiErr := classify(err)
		writeError(w, status, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, toWeekResponses(weeks))
}

func (h *Handler) Reclassify(w http.ResponseWriter, r *http.Request) {
	placementID := chi.URLParam(r, "placementID")
	n, err := h.geofence.Reclassify(r.Context(), placementID)
	if err != nil {
		status, apiErr := classify(err)
		writeError(w, status, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, ReclassifyResponse{PlacementID: placementID, Changed: n})
}

func toWeekResponses(weeks []models.WeekCount) []WeekResponse {
	out := make([]WeekResponse, 0, len(weeks))
	for _, w := range weeks {
		out = append(out, WeekResponse{WeekNumber: w.WeekNumber, Count: w.Count})
	}
	return out
}
