// Package reconciler writes one user's filtered events into their calendar,
// updating entries that already exist instead of duplicating them.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fxcalsync/internal/calstore"
	"fxcalsync/internal/eventid"
	"fxcalsync/internal/eventtime"
	"fxcalsync/internal/models"
	"fxcalsync/internal/retry"
)

// Action is what happened to a single event.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionFailed  Action = "failed"
	ActionPlanned Action = "planned" // dry run, nothing written
)

// Outcome is the result for one event.
type Outcome struct {
	EventID string
	Summary string
	Action  Action
	Err     error
}

// Reconciler turns events into drafts and upserts them into a calendar store.
type Reconciler struct {
	logger   *slog.Logger
	location *time.Location
	retry    retry.Policy
	dryRun   bool
}

// New creates a Reconciler placing timed events in loc.
func New(logger *slog.Logger, loc *time.Location, policy retry.Policy, dryRun bool) *Reconciler {
	return &Reconciler{logger: logger, location: loc, retry: policy, dryRun: dryRun}
}

// Reconcile writes events into store and returns one outcome per event, in order.
// A failing event never stops the remaining ones.
func (r *Reconciler) Reconcile(ctx context.Context, store calstore.Store, events []models.Event, refDate time.Time) []Outcome {
	outcomes := make([]Outcome, 0, len(events))
	for _, ev := range events {
		draft := r.BuildDraft(ev, refDate)
		out := Outcome{EventID: draft.ID, Summary: draft.Summary}

		if r.dryRun {
			r.logger.Info("[DRY RUN] Would write calendar entry.", "id", draft.ID, "summary", draft.Summary, "allDay", draft.Schedule.AllDay, "start", draft.Schedule.Start)
			out.Action = ActionPlanned
			outcomes = append(outcomes, out)
			continue
		}

		out.Action, out.Err = r.upsert(ctx, store, draft)
		switch out.Action {
		case ActionCreated:
			r.logger.Info("Created calendar entry.", "summary", draft.Summary, "time", ev.TimeText)
		case ActionUpdated:
			r.logger.Info("Updated calendar entry.", "summary", draft.Summary)
		default:
			r.logger.Warn("Failed to write calendar entry.", "summary", draft.Summary, "id", draft.ID, "error", out.Err)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func (r *Reconciler) upsert(ctx context.Context, store calstore.Store, draft models.Draft) (Action, error) {
	err := retry.Do(ctx, r.retry, func(ctx context.Context) error {
		return store.Insert(ctx, draft)
	})
	if err == nil {
		return ActionCreated, nil
	}
	if !calstore.IsConflict(err) {
		return ActionFailed, fmt.Errorf("insert %s: %w", draft.ID, err)
	}

	err = retry.Do(ctx, r.retry, func(ctx context.Context) error {
		return store.Update(ctx, draft.ID, draft)
	})
	if err != nil {
		return ActionFailed, fmt.Errorf("update %s: %w", draft.ID, err)
	}
	return ActionUpdated, nil
}

// BuildDraft assembles the calendar entry for ev on refDate.
func (r *Reconciler) BuildDraft(ev models.Event, refDate time.Time) models.Draft {
	resolved := eventtime.Resolve(ev.TimeText, refDate, r.location)
	if resolved.Fallback {
		r.logger.Warn("Could not parse event time, defaulting to all day.", "time", ev.TimeText, "title", ev.Title)
	}

	color := models.ColorOtherImpact
	if ev.Impact == models.ImpactHigh {
		color = models.ColorHighImpact
	}

	return models.Draft{
		ID:      eventid.Identify(ev, refDate),
		Summary: fmt.Sprintf("%s - %s", ev.Currency, ev.Title),
		Description: fmt.Sprintf("Impact: %s\nForecast: %s\nActual: %s\nTime: %s",
			ev.Impact, ev.Forecast, ev.Actual, ev.TimeText),
		Transparency: models.TransparencyTransparent,
		ColorID:      color,
		Schedule:     resolved.Schedule,
	}
}

// Count tallies outcomes by action.
func Count(outcomes []Outcome) map[Action]int {
	counts := make(map[Action]int, 4)
	for _, o := range outcomes {
		counts[o.Action]++
	}
	return counts
}
