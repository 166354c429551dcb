package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"fxcalsync/internal/calstore"
	"fxcalsync/internal/models"
)

// DefaultCalendarID is the calendar events are written to unless configured otherwise.
const DefaultCalendarID = "primary"

// CalendarStore writes drafts into a Google Calendar through the Calendar API v3.
type CalendarStore struct {
	service    *calendar.Service
	calendarID string
}

// NewCalendarStore creates a store on top of an authenticated HTTP client.
// Extra client options are appended, e.g. option.WithEndpoint for tests.
func NewCalendarStore(ctx context.Context, client *http.Client, calendarID string, opts ...option.ClientOption) (*CalendarStore, error) {
	if calendarID == "" {
		calendarID = DefaultCalendarID
	}
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &CalendarStore{service: service, calendarID: calendarID}, nil
}

// Backend returns a BackendFunc opening a CalendarStore for calendarID.
func Backend(calendarID string, opts ...option.ClientOption) BackendFunc {
	return func(ctx context.Context, client *http.Client) (calstore.Store, error) {
		return NewCalendarStore(ctx, client, calendarID, opts...)
	}
}

// Insert creates the event with the draft's id. Google answers 409 when the id is taken.
func (s *CalendarStore) Insert(ctx context.Context, draft models.Draft) error {
	_, err := s.service.Events.Insert(s.calendarID, toGoogleEvent(draft)).Context(ctx).Do()
	return classify("insert", err)
}

// Update replaces the event with the given id.
func (s *CalendarStore) Update(ctx context.Context, id string, draft models.Draft) error {
	_, err := s.service.Events.Update(s.calendarID, id, toGoogleEvent(draft)).Context(ctx).Do()
	return classify("update", err)
}

// toGoogleEvent converts a draft to the API representation. All-day events use
// Google's exclusive end date, so a single day ends on the following date.
func toGoogleEvent(d models.Draft) *calendar.Event {
	ev := &calendar.Event{
		Id:           d.ID,
		Summary:      d.Summary,
		Description:  d.Description,
		Transparency: d.Transparency,
		ColorId:      d.ColorID,
	}
	if d.Schedule.AllDay {
		ev.Start = &calendar.EventDateTime{Date: d.Schedule.Date.Format(time.DateOnly)}
		ev.End = &calendar.EventDateTime{Date: d.Schedule.Date.AddDate(0, 0, 1).Format(time.DateOnly)}
		return ev
	}
	ev.Start = &calendar.EventDateTime{DateTime: d.Schedule.Start.Format(time.RFC3339), TimeZone: d.Schedule.TimeZone}
	ev.End = &calendar.EventDateTime{DateTime: d.Schedule.End.Format(time.RFC3339), TimeZone: d.Schedule.TimeZone}
	return ev
}

var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
}

// classify turns an API error into a calstore.Error based on the HTTP status.
// Google reports rate limiting as 403 with a reason, which is transient rather than auth.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		if calstore.IsNetworkFault(err) {
			return calstore.Wrap(calstore.KindTransient, op, err)
		}
		return calstore.Wrap(calstore.KindPermanent, op, err)
	}
	for _, item := range apiErr.Errors {
		if rateLimitReasons[item.Reason] {
			return calstore.Wrap(calstore.KindTransient, op, err)
		}
	}
	return calstore.Wrap(calstore.KindForStatus(apiErr.Code), op, err)
}
