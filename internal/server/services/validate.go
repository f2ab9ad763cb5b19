package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/fieldlog/internal/api"
	"github.com/dmitrijs2005/fieldlog/internal/common"
	"github.com/dmitrijs2005/fieldlog/internal/timex"
	"github.com/go-playground/validator/v10"
)

// MaxDescriptionLength is the longest accepted description, in characters.
const MaxDescriptionLength = 500

var (
	errRequired       = errors.New("is required")
	errInvalidUUID    = errors.New("must be a UUID")
	errInvalidDate    = errors.New("must be a date in YYYY-MM-DD format")
	errDescriptionLen = fmt.Errorf("must be at most %d characters", MaxDescriptionLength)
	errLatitude       = errors.New("must be between -90 and 90")
	errLongitude      = errors.New("must be between -180 and 180")
	errLocationPair   = errors.New("latitude and longitude must both be set or both be empty")
)

var customErrors = map[string]error{
	"SyncRequest.ClientUUID.required":          errRequired,
	"SyncRequest.ClientUUID.uuid":              errInvalidUUID,
	"SyncRequest.LogDate.required":             errRequired,
	"SyncRequest.LogDate.datetime":             errInvalidDate,
	"SyncRequest.ActivityDescription.required": errRequired,
	"SyncRequest.ActivityDescription.max":      errDescriptionLen,
	"SyncRequest.Latitude.gte":                 errLatitude,
	"SyncRequest.Latitude.lte":                 errLatitude,
	"SyncRequest.Longitude.gte":                errLongitude,
	"SyncRequest.Longitude.lte":                errLongitude,
}

// newValidator reports fields under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest runs the struct tags and the checks that depend on
// configuration. It returns the parsed log date.
func validateRequest(v *validator.Validate, req *api.SyncRequest, programWeeks int) (time.Time, error) {
	ve := common.NewValidationError()
	weekMsg := fmt.Sprintf("must be between 1 and %d", programWeeks)

	if err := v.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return time.Time{}, fmt.Errorf("%w: %w", common.ErrorInternal, err)
		}
		for _, e := range verrs {
			msg := fmt.Sprintf("%s is invalid", e.Field())
			if custom, ok := customErrors[e.StructNamespace()+"."+e.Tag()]; ok {
				msg = custom.Error()
			}
			if e.StructField() == "WeekNumber" {
				msg = weekMsg
			}
			ve.Add(e.Field(), msg)
		}
	}

	if strings.TrimSpace(req.ActivityDescription) == "" {
		ve.Add("activity_description", errRequired.Error())
	} else if utf8.RuneCountInString(req.ActivityDescription) > MaxDescriptionLength {
		ve.Add("activity_description", errDescriptionLen.Error())
	}

	if req.WeekNumber < 1 || req.WeekNumber > programWeeks {
		ve.Add("week_number", weekMsg)
	}

	if (req.Latitude == nil) != (req.Longitude == nil) {
		ve.Add("location", errLocationPair.Error())
	}

	logDate, err := timex.ParseDate(req.LogDate)
	if err != nil {
		ve.Add("log_date", errInvalidDate.Error())
	}

	if !ve.Empty() {
		return time.Time{}, ve
	}
	return logDate, nil
}
