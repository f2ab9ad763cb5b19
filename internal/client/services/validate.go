package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/fieldlog/internal/client/models"
	"github.com/dmitrijs2005/fieldlog/internal/common"
	"github.com/dmitrijs2005/fieldlog/internal/geofence"
)

// MaxDescriptionLength is counted in characters, not bytes.
const MaxDescriptionLength = 500

// validateEntry checks what the server would reject anyway, so the user
// learns about it before the entry is queued.
func validateEntry(e *models.LogEntry, programWeeks int) error {
	ve := common.NewValidationError()

	e.Description = strings.TrimSpace(e.Description)
	switch n := utf8.RuneCountInString(e.Description); {
	case n == 0:
		ve.Add("activity_description", "is required")
	case n > MaxDescriptionLength:
		ve.Add("activity_description", fmt.Sprintf("must be at most %d characters", MaxDescriptionLength))
	}

	if e.WeekNumber < 1 || e.WeekNumber > programWeeks {
		ve.Add("week_number", fmt.Sprintf("must be between 1 and %d", programWeeks))
	}

	if e.LogDate.IsZero() {
		ve.Add("log_date", "is required")
	}

	switch {
	case (e.Latitude == nil) != (e.Longitude == nil):
		ve.Add("location", "latitude and longitude must both be set or both be empty")
	case e.Latitude != nil && !geofence.ValidPoint(*e.Latitude, *e.Longitude):
		ve.Add("location", "coordinates out of range")
	}

	if ve.Empty() {
		return nil
	}
	return ve
}
