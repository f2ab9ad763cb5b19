package client

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/fieldlog/internal/api"
	"github.com/dmitrijs2005/fieldlog/internal/common"
)

var (
	ErrUnavailable           = errors.New("server unavailable")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrLocalDataNotAvailable = errors.New("local data unavailable")
)

// RejectedError is a permanent rejection by the server. Resubmitting the
// same payload will be rejected again.
type RejectedError struct {
	Status  int
	Code    string
	Message string
	Fields  map[string]string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rejected by server (%s)", e.Code)
	}
	return fmt.Sprintf("rejected by server (%s): %s", e.Code, e.Message)
}

func (e *RejectedError) Is(target error) bool {
	switch target {
	case common.ErrPermanent:
		return true
	case common.ErrValidation:
		return e.Code == api.CodeValidation || e.Code == api.CodeMalformed
	case common.ErrConflict:
		return e.Code == api.CodeConflict
	case common.ErrNoActivePlacement:
		return e.Code == api.CodeNoPlacement
	case common.ErrBeforePlacement:
		return e.Code == api.CodeBeforePlacement
	}
	return false
}

// Reason is the text shown to the user next to a failed entry.
func (e *RejectedError) Reason() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	ve := common.ValidationError{Fields: e.Fields}
	return ve.Error()
}
