// Package eventtime turns the free-form time column of the news source into a
// calendar schedule.
package eventtime

import (
	"strings"
	"time"

	"fxcalsync/internal/models"
)

// TimedDuration is the length given to events with a concrete time of day.
// Entries are zero-length so they render as a marker rather than a block.
const TimedDuration time.Duration = 0

const clockLayout = "3:04pm"

// Resolved is the outcome of Resolve. Fallback is set when the text could not be
// understood and the event was turned into an all-day entry instead.
type Resolved struct {
	models.Schedule
	Fallback bool
}

// Resolve converts timeText into a schedule on refDate. Timed events are placed in loc,
// the deployment's configured zone; refDate only contributes its year, month and day.
func Resolve(timeText string, refDate time.Time, loc *time.Location) Resolved {
	if loc == nil {
		loc = time.UTC
	}
	day := time.Date(refDate.Year(), refDate.Month(), refDate.Day(), 0, 0, 0, 0, loc)

	text := strings.ToLower(strings.TrimSpace(timeText))
	if text == "" || strings.Contains(text, "day") || strings.Contains(text, "tentative") {
		return Resolved{Schedule: allDay(day)}
	}

	clock, err := time.Parse(clockLayout, strings.ReplaceAll(text, " ", ""))
	if err != nil {
		return Resolved{Schedule: allDay(day), Fallback: true}
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
	return Resolved{Schedule: models.Schedule{
		Date:     day,
		Start:    start,
		End:      start.Add(TimedDuration),
		TimeZone: loc.String(),
	}}
}

func allDay(day time.Time) models.Schedule {
	return models.Schedule{AllDay: true, Date: day, Start: day, End: day}
}
