package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/fieldlog/internal/api"
	"github.com/dmitrijs2005/fieldlog/internal/common"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = api.Encode(w, v)
}

func writeError(w http.ResponseWriter, status int, e *api.Error) {
	writeJSON(w, status, api.SyncResponse{Success: false, Error: e})
}

// classify maps a service error onto an HTTP status and wire error.
// Rejections are permanent; everything unrecognised is transient.
func classify(err error) (int, *api.Error) {
	var ve *common.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, &api.Error{Kind: api.ErrorPermanent, Code: api.CodeValidation, Message: "validation failed", Fields: ve.Fields}
	case errors.Is(err, common.ErrConflict):
		return http.StatusConflict, &api.Error{Kind: api.ErrorPermanent, Code: api.CodeConflict, Message: err.Error()}
	case errors.Is(err, common.ErrNoActivePlacement):
		return http.StatusUnprocessableEntity, &api.Error{Kind: api.ErrorPermanent, Code: api.CodeNoPlacement, Message: err.Error()}
	case errors.Is(err, common.ErrBeforePlacement):
		return http.StatusUnprocessableEntity, &api.Error{Kind: api.ErrorPermanent, Code: api.CodeBeforePlacement, Message: err.Error()}
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, &api.Error{Kind: api.ErrorPermanent, Code: api.CodeNotFound, Message: "not found"}
	case errors.Is(err, common.ErrTransient):
		return http.StatusServiceUnavailable, &api.Error{Kind: api.ErrorTransient, Code: api.CodeUnavailable, Message: "storage unavailable, retry later"}
	default:
		return http.StatusInternalServerError, &api.Error{Kind: api.ErrorTransient, Code: api.CodeInternal, Message: "internal error"}
	}
}
