package models

import (
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/geofence"
)

// Placement is a student's industrial placement. Site is nil when no
// geofence has been registered for it.
type Placement struct {
	ID          string
	StudentID   string
	CompanyName string
	StartDate   time.Time
	Active      bool
	Site        *geofence.Site
}

// WeekCount is the number of entries logged in one programme week.
type WeekCount struct {
	WeekNumber int
	Count      int
}
