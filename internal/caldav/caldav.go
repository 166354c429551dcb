package caldav

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	gocaldav "github.com/emersion/go-webdav/caldav"

	"fxcalsync/internal/calstore"
	"fxcalsync/internal/models"
)

// GoogleEndpoint is Google Calendar's CalDAV root. With an OAuth client the primary
// calendar of the authenticated user lives under <endpoint><email>/events/.
const GoogleEndpoint = "https://apidata.googleusercontent.com/caldav/v2/"

const productID = "-//fxcalsync//EN"

// userAgentTransport adds the client's User-Agent to every request.
type userAgentTransport struct {
	Transport http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", "fxcalsync/1.0")
	return t.Transport.RoundTrip(req)
}

// Store writes drafts as iCalendar objects into a CalDAV calendar collection.
type Store struct {
	httpClient  *http.Client
	logger      *slog.Logger
	calendarURL *url.URL
}

// NewStore creates a Store. client must already carry the user's credentials.
// When calendarName is empty, endpoint itself is taken as the calendar collection;
// otherwise the calendar is discovered through the principal's calendar home set.
func NewStore(ctx context.Context, logger *slog.Logger, client *http.Client, endpoint, calendarName string) (*Store, error) {
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient := &http.Client{Transport: &userAgentTransport{Transport: base}, Timeout: client.Timeout}

	endpointURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid caldav endpoint %q: %w", endpoint, err)
	}

	s := &Store{httpClient: httpClient, logger: logger, calendarURL: endpointURL}
	if calendarName == "" {
		return s, nil
	}

	caldavClient, err := gocaldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}
	calendarPath, err := findCalendar(ctx, caldavClient, calendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar '%s': %w", calendarName, err)
	}
	s.calendarURL = endpointURL.ResolveReference(&url.URL{Path: calendarPath})
	logger.Debug("Found CalDAV calendar.", "url", s.calendarURL.String())
	return s, nil
}

// Backend adapts NewStore to the connector's backend signature so CalDAV can be
// used with the same OAuth credentials as the Calendar API.
func Backend(logger *slog.Logger, endpoint, calendarName string) func(context.Context, *http.Client) (calstore.Store, error) {
	return func(ctx context.Context, client *http.Client) (calstore.Store, error) {
		return NewStore(ctx, logger, client, endpoint, calendarName)
	}
}

// Insert creates <id>.ics. If-None-Match makes the server refuse to overwrite an
// existing object, which is reported as a conflict.
func (s *Store) Insert(ctx context.Context, draft models.Draft) error {
	body, err := encode(draft)
	if err != nil {
		return calstore.Wrap(calstore.KindPermanent, "insert", err)
	}
	status, err := s.put(ctx, draft.ID, body, "If-None-Match")
	if err != nil {
		return calstore.Wrap(calstore.KindTransient, "insert", err)
	}
	return statusError("insert", status)
}

// Update overwrites <id>.ics, which must already exist.
func (s *Store) Update(ctx context.Context, id string, draft models.Draft) error {
	body, err := encode(draft)
	if err != nil {
		return calstore.Wrap(calstore.KindPermanent, "update", err)
	}
	status, err := s.put(ctx, id, body, "If-Match")
	if err != nil {
		return calstore.Wrap(calstore.KindTransient, "update", err)
	}
	if status == http.StatusPreconditionFailed {
		return calstore.Wrap(calstore.KindPermanent, "update", fmt.Errorf("object %s does not exist", id))
	}
	return statusError("update", status)
}

func encode(draft models.Draft) ([]byte, error) {
	var body bytes.Buffer
	if err := ical.NewEncoder(&body).Encode(toICal(draft, time.Now())); err != nil {
		return nil, fmt.Errorf("failed to encode event to iCal format: %w", err)
	}
	return body.Bytes(), nil
}

func (s *Store) put(ctx context.Context, id string, body []byte, condition string) (int, error) {
	target := s.calendarURL.JoinPath(id + ".ics")
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.String(), bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "text/calendar; charset=utf-8")
	req.Header.Set(condition, "*")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	s.logger.Debug("CalDAV PUT finished.", "path", path.Base(target.Path), "status", resp.StatusCode)
	return resp.StatusCode, nil
}

func statusError(op string, status int) error {
	if status >= 200 && status < 300 {
		return nil
	}
	return calstore.Wrap(calstore.KindForStatus(status), op, fmt.Errorf("caldav server answered %d %s", status, http.StatusText(status)))
}

// toICal wraps a draft in a VCALENDAR with a single VEVENT whose UID is the draft id.
func toICal(d models.Draft, now time.Time) *ical.Calendar {
	cal := newCalendar()
	cal.Children = append(cal.Children, toEvent(d, now))
	return cal
}

// WriteCalendar encodes drafts as one iCalendar stream, e.g. for import into a desktop client.
func WriteCalendar(w io.Writer, drafts []models.Draft, now time.Time) error {
	cal := newCalendar()
	for _, d := range drafts {
		cal.Children = append(cal.Children, toEvent(d, now))
	}
	if len(cal.Children) == 0 {
		return errors.New("no events to export")
	}
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

func newCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	return cal
}

func toEvent(d models.Draft, now time.Time) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, d.ID)
	ve.Props.SetText(ical.PropSummary, d.Summary)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	if d.Description != "" {
		ve.Props.SetText(ical.PropDescription, d.Description)
	}
	if d.Transparency != "" {
		ve.Props.SetText(ical.PropTransparency, strings.ToUpper(d.Transparency))
	}
	if color := colorName(d.ColorID); color != "" {
		ve.Props.SetText("COLOR", color)
	}

	if d.Schedule.AllDay {
		ve.Props.SetDate(ical.PropDateTimeStart, d.Schedule.Date)
		ve.Props.SetDate(ical.PropDateTimeEnd, d.Schedule.Date.AddDate(0, 0, 1))
	} else {
		ve.Props.SetDateTime(ical.PropDateTimeStart, d.Schedule.Start)
		ve.Props.SetDateTime(ical.PropDateTimeEnd, d.Schedule.End)
	}
	return ve
}

// colorName maps the Google colour ids used for impact onto RFC 7986 CSS colour names.
func colorName(id string) string {
	switch id {
	case models.ColorHighImpact:
		return "tomato"
	case models.ColorOtherImpact:
		return "orange"
	}
	return ""
}

// findCalendar discovers the user's calendars and returns the path of the one with the matching name.
func findCalendar(ctx context.Context, client *gocaldav.Client, name string) (string, error) {
	principalPath, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := client.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := client.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name {
			return cal.Path, nil
		}
	}
	return "", errors.New("no calendar with that name")
}
