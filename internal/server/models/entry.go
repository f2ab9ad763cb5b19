// Package models holds the server-side records persisted in PostgreSQL.
package models

import (
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/api"
	"github.com/dmitrijs2005/fieldlog/internal/geofence"
	"github.com/dmitrijs2005/fieldlog/internal/timex"
)

// LogEntry is the canonical, deduplicated copy of a student's log entry.
type LogEntry struct {
	ID             string
	ClientUUID     string
	StudentID      string
	PlacementID    string
	LogDate        time.Time
	WeekNumber     int
	Description    string
	Latitude       *float64
	Longitude      *float64
	DistanceMeters *float64
	Classification geofence.Classification
	SyncedAt       time.Time
	CreatedAt      time.Time
	ReviewedAt     *time.Time
}

// Location returns the submitted point, or nil when none was captured.
func (e *LogEntry) Location() *geofence.Point {
	return geofence.PointFrom(e.Latitude, e.Longitude)
}

// ToAPI converts e to its wire representation.
func (e *LogEntry) ToAPI() *api.Entry {
	return &api.Entry{
		ServerID:            e.ID,
		ClientUUID:          e.ClientUUID,
		LogDate:             timex.FormatDate(e.LogDate),
		WeekNumber:          e.WeekNumber,
		ActivityDescription: e.Description,
		Latitude:            e.Latitude,
		Longitude:           e.Longitude,
		DistanceMeters:      e.DistanceMeters,
		Classification:      string(e.Classification),
		SyncedAt:            e.SyncedAt,
	}
}
