// Package eventid derives the calendar entry id used to upsert an event.
//
// Google Calendar only accepts base32hex characters in custom event ids:
// lowercase a-v and the digits 0-9, between 5 and 1024 characters long.
package eventid

import (
	"strings"
	"time"

	"fxcalsync/internal/models"
)

// MaxLength is the longest id Identify produces.
const MaxLength = 100

const dateLayout = "20060102"

// Identify returns the id for event on refDate: the date as YYYYMMDD followed by the
// lower-cased title and currency with every character outside [a-v0-9] removed,
// cut to MaxLength from the end.
func Identify(event models.Event, refDate time.Time) string {
	raw := strings.ToLower(event.Title + event.Currency)

	var b strings.Builder
	b.Grow(len(dateLayout) + len(raw))
	b.WriteString(refDate.Format(dateLayout))
	for i := 0; i < len(raw); i++ {
		if allowed(raw[i]) {
			b.WriteByte(raw[i])
		}
	}

	id := b.String()
	if len(id) > MaxLength {
		id = id[:MaxLength]
	}
	return id
}

// Valid reports whether id only uses characters Identify can produce.
func Valid(id string) bool {
	if id == "" || len(id) > MaxLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if !allowed(id[i]) {
			return false
		}
	}
	return true
}

func allowed(c byte) bool {
	return (c >= 'a' && c <= 'v') || (c >= '0' && c <= '9')
}
