// Package news produces the day's economic-calendar events.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"fxcalsync/internal/models"
)

// Source yields today's High and Medium impact events.
type Source interface {
	FetchToday(ctx context.Context) ([]models.Event, error)
}

// RawRow is one calendar table row as read from the page.
type RawRow struct {
	Currency    string `json:"currency"`
	Title       string `json:"title"`
	ImpactClass string `json:"impactClass"`
	Actual      string `json:"actual"`
	Forecast    string `json:"forecast"`
	Time        string `json:"time"`
}

// ClassifyImpact reads the impact icon's CSS class: red/high icons are High,
// orange/medium icons are Medium and everything else is Low.
func ClassifyImpact(class string) models.Impact {
	class = strings.ToLower(class)
	switch {
	case strings.Contains(class, "high"), strings.Contains(class, "red"):
		return models.ImpactHigh
	case strings.Contains(class, "medium"), strings.Contains(class, "ora"):
		return models.ImpactMedium
	default:
		return models.ImpactLow
	}
}

// NormalizeRows turns raw rows into events. Spacer rows without a title and Low impact
// rows are dropped. The calendar prints a time only on the first row of a group of
// events released together, so a blank time inherits the previous row's time.
func NormalizeRows(rows []RawRow) []models.Event {
	var events []models.Event
	lastTime := ""
	for _, row := range rows {
		title := strings.TrimSpace(row.Title)
		if title == "" {
			continue
		}
		timeText := strings.TrimSpace(row.Time)
		if timeText == "" {
			timeText = lastTime
		} else {
			lastTime = timeText
		}

		impact := ClassifyImpact(row.ImpactClass)
		if impact == models.ImpactLow {
			continue
		}
		events = append(events, models.Event{
			Currency: strings.ToUpper(strings.TrimSpace(row.Currency)),
			Title:    title,
			Impact:   impact,
			Forecast: strings.TrimSpace(row.Forecast),
			Actual:   strings.TrimSpace(row.Actual),
			TimeText: timeText,
		})
	}
	return events
}

// FileSource replays events from a JSON file holding an array of events.
type FileSource struct {
	Path string
}

func (s FileSource) FetchToday(context.Context) ([]models.Event, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read events file: %w", err)
	}
	var events []models.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to decode events file %s: %w", s.Path, err)
	}
	out := events[:0]
	for _, ev := range events {
		if ev.Impact == models.ImpactHigh || ev.Impact == models.ImpactMedium {
			out = append(out, ev)
		}
	}
	return out, nil
}
