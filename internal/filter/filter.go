package filter

import "fxcalsync/internal/models"

// Filter returns the events whose impact and currency are both selected by pref,
// in their original order. The input slice is not modified.
func Filter(events []models.Event, pref models.UserPreference) []models.Event {
	var out []models.Event
	for _, ev := range events {
		if pref.Impacts.Has(ev.Impact) && pref.Currencies.Has(ev.Currency) {
			out = append(out, ev)
		}
	}
	return out
}
