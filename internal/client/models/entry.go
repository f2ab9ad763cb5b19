// Package models defines the client-side log entry and its sync lifecycle.
package models

import (
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/api"
	"github.com/dmitrijs2005/fieldlog/internal/geofence"
	"github.com/dmitrijs2005/fieldlog/internal/timex"
)

// SyncState is the client-local delivery state of an entry. The server has
// no notion of it.
type SyncState string

const (
	StatePending SyncState = "pending"
	StateSyncing SyncState = "syncing"
	StateSynced  SyncState = "synced"
	StateFailed  SyncState = "failed"
)

// Valid reports whether s is a known state.
func (s SyncState) Valid() bool {
	switch s {
	case StatePending, StateSyncing, StateSynced, StateFailed:
		return true
	}
	return false
}

// LogEntry is one field log captured on the device.
type LogEntry struct {
	ClientID    string
	LogDate     time.Time
	WeekNumber  int
	Description string
	Latitude    *float64
	Longitude   *float64
	CapturedAt  time.Time

	SyncState SyncState
	SyncedAt  *time.Time
	ServerID  string

	// Classification is empty until the server has answered, except for
	// entries captured without a location, which are Unverifiable at once.
	Classification geofence.Classification
	DistanceMeters *float64

	FailReason string
	Attempts   int
	LastError  string
}

// Location returns the captured point, or nil when capture failed.
func (e *LogEntry) Location() *geofence.Point {
	return geofence.PointFrom(e.Latitude, e.Longitude)
}

// Badge is the status shown to the user: the classification once synced,
// otherwise the sync state. An entry captured without a location reads
// unverifiable while it waits, since no server answer can change that.
func (e *LogEntry) Badge() string {
	switch {
	case e.SyncState == StateSynced && e.Classification != "":
		return string(e.Classification)
	case e.SyncState == StateFailed:
		return string(e.SyncState)
	case e.Classification == geofence.Unverifiable && e.Location() == nil:
		return string(e.Classification)
	}
	return string(e.SyncState)
}

// Payload builds the minimal wire request for e.
func (e *LogEntry) Payload() api.SyncRequest {
	return api.SyncRequest{
		ClientUUID:          e.ClientID,
		LogDate:             timex.FormatDate(e.LogDate),
		WeekNumber:          e.WeekNumber,
		ActivityDescription: e.Description,
		Latitude:            e.Latitude,
		Longitude:           e.Longitude,
	}
}

// MarkSynced applies a server acknowledgment. SyncedAt is kept when it is
// already set.
func (e *LogEntry) MarkSynced(ack *api.Entry, now time.Time) {
	e.SyncState = StateSynced
	if e.SyncedAt == nil {
		t := now
		if ack != nil && !ack.SyncedAt.IsZero() {
			t = ack.SyncedAt
		}
		e.SyncedAt = &t
	}
	if ack != nil {
		e.ServerID = ack.ServerID
		if c := geofence.Classification(ack.Classification); c.Valid() {
			e.Classification = c
		}
		e.DistanceMeters = ack.DistanceMeters
	}
	e.FailReason = ""
	e.LastError = ""
}

// MarkFailed records a permanent rejection.
func (e *LogEntry) MarkFailed(reason string) {
	e.SyncState = StateFailed
	e.FailReason = reason
}

// MarkRetry puts e back in the queue after a transient failure.
func (e *LogEntry) MarkRetry(cause error) {
	e.SyncState = StatePending
	e.Attempts++
	if cause != nil {
		e.LastError = cause.Error()
	}
}
