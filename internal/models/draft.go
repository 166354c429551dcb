package models

import "time"

// Schedule is when a calendar entry takes place: either a whole day or a
// concrete window in a named timezone.
type Schedule struct {
	AllDay   bool
	Date     time.Time // Calendar date for all-day entries (midnight, location of the reference date)
	Start    time.Time
	End      time.Time
	TimeZone string // IANA zone name for timed entries
}

// Draft is the provider-independent calendar entry written for one user and one event.
// It is built per sync and never persisted locally.
type Draft struct {
	ID           string
	Summary      string
	Description  string
	Transparency string
	ColorID      string
	Schedule     Schedule
}

const TransparencyTransparent = "transparent"

// Google Calendar event colour ids used for impact highlighting.
const (
	ColorHighImpact  = "11" // Tomato
	ColorOtherImpact = "6"  // Tangerine
)
