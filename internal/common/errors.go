// Package common defines sentinel errors shared by the client and server
// layers of FieldLog. Callers should use errors.Is / errors.As to match them.
package common

import (
	"errors"
	"sort"
	"strings"
)

// AuthorizationHeaderName carries the bearer token on outbound HTTP requests.
const AuthorizationHeaderName = "Authorization"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Ingest outcome classes. A permanent error must not be retried
	// automatically; a transient one may succeed on a later attempt.
	ErrPermanent = errors.New("permanent failure")
	ErrTransient = errors.New("transient failure")

	// Ingest rejections. All of them are permanent.
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("client id belongs to another student")
	ErrNoActivePlacement = errors.New("no active placement")
	ErrBeforePlacement   = errors.New("log date is before placement start")
)

// ValidationError describes which fields of a payload were rejected.
// It matches both ErrValidation and ErrPermanent.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError returns an empty ValidationError ready for Add.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

// Add records a message for field. The first message per field wins.
func (e *ValidationError) Add(field, msg string) {
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// Empty reports whether no field was rejected.
func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation || target == ErrPermanent
}

// IsPermanent reports whether err should stop automatic retries.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrNoActivePlacement) ||
		errors.Is(err, ErrBeforePlacement)
}
