// Package api defines the JSON wire contract between the field client and
// the ingest server: the sync payload, its response envelope, the
// structured error, and notification stream events.
package api

import (
	"io"
	"time"

	"github.com/goccy/go-json"
)

// SyncPath is the route that accepts a single log entry.
const SyncPath = "/api/v1/logs/sync"

// EntryPath is the route prefix for reading an entry by client id.
const EntryPath = "/api/v1/logs/"

// StreamPath is the websocket notification stream route.
const StreamPath = "/api/v1/notifications/stream"

// HealthPath is the plain HTTP liveness route.
const HealthPath = "/healthz"

// HealthService is the gRPC health service name reported by the server.
const HealthService = "fieldlog.Ingest"

// SyncRequest is the minimal payload a client submits per entry. Client-side
// bookkeeping (sync state, attempts, capture time) is never sent.
type SyncRequest struct {
	ClientUUID          string   `json:"client_uuid" validate:"required,uuid"`
	LogDate             string   `json:"log_date" validate:"required,datetime=2006-01-02"`
	WeekNumber          int      `json:"week_number" validate:"required,min=1"`
	ActivityDescription string   `json:"activity_description" validate:"required,max=500"`
	Latitude            *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude           *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

// Entry is the canonical server-side state of a log entry.
type Entry struct {
	ServerID            string    `json:"server_id"`
	ClientUUID          string    `json:"client_uuid"`
	LogDate             string    `json:"log_date"`
	WeekNumber          int       `json:"week_number"`
	ActivityDescription string    `json:"activity_description"`
	Latitude            *float64  `json:"latitude"`
	Longitude           *float64  `json:"longitude"`
	DistanceMeters      *float64  `json:"distance_meters"`
	Classification      string    `json:"classification"`
	SyncedAt            time.Time `json:"synced_at"`
}

// ErrorKind tells the client whether resubmitting can help.
type ErrorKind string

const (
	ErrorPermanent ErrorKind = "permanent"
	ErrorTransient ErrorKind = "transient"
)

// Error codes carried in Error.Code.
const (
	CodeValidation      = "validation_failed"
	CodeMalformed       = "malformed_payload"
	CodeConflict        = "client_uuid_conflict"
	CodeNoPlacement     = "no_active_placement"
	CodeBeforePlacement = "log_date_before_placement"
	CodeUnauthorized    = "unauthorized"
	CodeForbidden       = "forbidden"
	CodeNotFound        = "not_found"
	CodeInternal        = "internal_error"
	CodeRateLimited     = "rate_limited"
	CodeUnavailable     = "service_unavailable"
)

// Error is the structured failure description.
type Error struct {
	Kind    ErrorKind         `json:"kind"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// SyncResponse wraps every answer of the sync endpoint.
type SyncResponse struct {
	Success bool   `json:"success"`
	Created bool   `json:"created"`
	Entry   *Entry `json:"entry,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Event types delivered over the notification stream.
const (
	EventConnected   = "connected"
	EventEntrySynced = "entry_synced"
	EventPing        = "ping"
	EventPong        = "pong"
)

// Event is one notification stream message.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ConnectedData is the payload of a "connected" event.
type ConnectedData struct {
	StudentID string `json:"student_id"`
}

// EntrySyncedData is the payload of an "entry_synced" event.
type EntrySyncedData struct {
	ClientUUID     string `json:"client_uuid"`
	Classification string `json:"classification"`
}

// NewEvent marshals data into an Event of type t.
func NewEvent(t string, data any) (Event, error) {
	if data == nil {
		return Event{Type: t}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: t, Data: raw}, nil
}

// Decode reads one JSON value from r into v.
func Decode(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}

// Encode writes v as JSON to w.
func Encode(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// Unmarshal is json.Unmarshal with the package codec.
func Unmarshal(b []byte, v any) error {
	return json.Unmarshal(b, v)
}

// Marshal is json.Marshal with the package codec.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}
