// Package syncer runs a daily sync: it fetches the day's events once and pushes each
// user's matching subset into that user's calendar.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"fxcalsync/internal/calstore"
	"fxcalsync/internal/filter"
	"fxcalsync/internal/metrics"
	"fxcalsync/internal/models"
	"fxcalsync/internal/news"
	"fxcalsync/internal/reconciler"
)

// UserDirectory lists the subscribed users.
type UserDirectory interface {
	ListUsers(ctx context.Context) ([]models.UserPreference, error)
}

// Connector turns a user's stored credential into an authorized calendar store.
type Connector interface {
	Connect(ctx context.Context, user models.UserPreference) (calstore.Store, error)
}

// Status is the per-user result of a run.
type Status string

const (
	StatusSynced  Status = "synced"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// UserResult is the outcome for one user. Err is kept for callers; Error carries
// its text into the JSON status report.
type UserResult struct {
	Identity string `json:"identity"`
	Status   Status `json:"status"`
	Matched  int    `json:"matched"`
	Created  int    `json:"created"`
	Updated  int    `json:"updated"`
	Planned  int    `json:"planned,omitempty"`
	Failed   int    `json:"failed"`
	Error    string `json:"error,omitempty"`
	Err      error  `json:"-"`
}

// Report summarises one run.
type Report struct {
	RunID    string       `json:"runId"`
	Date     string       `json:"date"`
	Events   int          `json:"events"`
	Users    []UserResult `json:"users"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
}

// Counts returns the number of users per status.
func (r *Report) Counts() (synced, skipped, failed int) {
	for _, u := range r.Users {
		switch u.Status {
		case StatusSynced:
			synced++
		case StatusSkipped:
			skipped++
		case StatusFailed:
			failed++
		}
	}
	return synced, skipped, failed
}

// Options tunes a Syncer.
type Options struct {
	// Workers bounds how many users are processed at once. Values below 1 mean 1.
	Workers int
	// UserTimeout bounds the work for a single user. Zero means no limit.
	UserTimeout time.Duration
	// Now returns the current time; nil means time.Now.
	Now func() time.Time
}

// Syncer orchestrates a sync run across all users.
type Syncer struct {
	logger      *slog.Logger
	source      news.Source
	users       UserDirectory
	connector   Connector
	reconciler  *reconciler.Reconciler
	location    *time.Location
	metrics     *metrics.Recorder
	workers     int
	userTimeout time.Duration
	now         func() time.Time
}

// New creates a Syncer. The reference date of a run is "today" in loc.
func New(logger *slog.Logger, source news.Source, users UserDirectory, connector Connector, rec *reconciler.Reconciler, loc *time.Location, m *metrics.Recorder, opts Options) *Syncer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Syncer{
		logger:      logger,
		source:      source,
		users:       users,
		connector:   connector,
		reconciler:  rec,
		location:    loc,
		metrics:     m,
		workers:     opts.Workers,
		userTimeout: opts.UserTimeout,
		now:         opts.Now,
	}
}

// Run performs one full sync. The only error returned is a failure to load the
// user list; every per-user failure is recorded in the report instead.
func (s *Syncer) Run(ctx context.Context) (*Report, error) {
	started := s.now()
	refDate := started.In(s.location)
	report := &Report{
		RunID:   uuid.NewString(),
		Date:    refDate.Format("2006-01-02"),
		Started: started,
		Users:   []UserResult{},
	}
	logger := s.logger.With("run", report.RunID)
	logger.Info("Starting sync run.", "date", report.Date)

	events, err := s.source.FetchToday(ctx)
	if err != nil {
		logger.Error("Failed to fetch news, treating as no events.", "error", err)
		events = nil
	}
	report.Events = len(events)
	s.metrics.EventsFetched(len(events))

	if len(events) == 0 {
		logger.Info("No qualifying events today, nothing to sync.")
		s.finish(report, "empty")
		return report, nil
	}
	logger.Info("Fetched events.", "count", len(events))

	users, err := s.users.ListUsers(ctx)
	if err != nil {
		s.finish(report, "error")
		return report, fmt.Errorf("failed to load users: %w", err)
	}
	logger.Info("Loaded users.", "count", len(users))

	report.Users = s.syncAll(ctx, logger, users, events, refDate)

	s.finish(report, "ok")
	synced, skipped, failed := report.Counts()
	logger.Info("Sync run finished.",
		"events", report.Events, "users", len(users),
		"synced", synced, "skipped", skipped, "failed", failed,
		"duration", report.Finished.Sub(report.Started))
	return report, nil
}

func (s *Syncer) finish(report *Report, result string) {
	report.Finished = s.now()
	s.metrics.RunFinished(result, report.Finished.Sub(report.Started), report.Finished)
}

// syncAll feeds users to a fixed pool of workers. Results keep the user order.
func (s *Syncer) syncAll(ctx context.Context, logger *slog.Logger, users []models.UserPreference, events []models.Event, refDate time.Time) []UserResult {
	results := make([]UserResult, len(users))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(s.workers, len(users)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = s.syncUser(ctx, logger, users[i], events, refDate)
			}
		}()
	}
	for i := range users {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, res := range results {
		s.metrics.UserOutcome(string(res.Status))
		s.metrics.WriteActions(string(reconciler.ActionCreated), res.Created)
		s.metrics.WriteActions(string(reconciler.ActionUpdated), res.Updated)
		s.metrics.WriteActions(string(reconciler.ActionFailed), res.Failed)
	}
	return results
}

// syncUser never lets an error or panic escape; both become a failed result.
func (s *Syncer) syncUser(ctx context.Context, logger *slog.Logger, user models.UserPreference, events []models.Event, refDate time.Time) (res UserResult) {
	res.Identity = user.Identity
	logger = logger.With("user", user.Identity)

	defer func() {
		if r := recover(); r != nil {
			res.Status = StatusFailed
			res.Err = fmt.Errorf("panic: %v", r)
		}
		if res.Err != nil {
			res.Error = res.Err.Error()
			logger.Error("Failed to sync user.", "error", res.Err)
		}
	}()

	if err := ctx.Err(); err != nil {
		res.Status = StatusFailed
		res.Err = fmt.Errorf("run cancelled: %w", err)
		return res
	}

	if s.userTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.userTimeout)
		defer cancel()
	}

	matched := filter.Filter(events, user)
	res.Matched = len(matched)
	if len(matched) == 0 {
		res.Status = StatusSkipped
		logger.Info("Skipping user, no matching events.")
		return res
	}

	store, err := s.connector.Connect(ctx, user)
	if err != nil {
		res.Status = StatusFailed
		res.Err = describeConnectError(err)
		return res
	}

	counts := reconciler.Count(s.reconciler.Reconcile(ctx, store, matched, refDate))
	res.Created = counts[reconciler.ActionCreated]
	res.Updated = counts[reconciler.ActionUpdated]
	res.Planned = counts[reconciler.ActionPlanned]
	res.Failed = counts[reconciler.ActionFailed]
	res.Status = StatusSynced
	logger.Info("Synced events for user.",
		"matched", res.Matched, "created", res.Created, "updated", res.Updated,
		"planned", res.Planned, "failed", res.Failed)
	return res
}

func describeConnectError(err error) error {
	switch {
	case calstore.IsAuth(err):
		return fmt.Errorf("credential rejected, user must re-authorize: %w", err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("timed out connecting to calendar: %w", err)
	default:
		return fmt.Errorf("failed to connect to calendar: %w", err)
	}
}
