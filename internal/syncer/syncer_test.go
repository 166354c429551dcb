package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxcalsync/internal/calstore"
	"fxcalsync/internal/metrics"
	"fxcalsync/internal/models"
	"fxcalsync/internal/reconciler"
	"fxcalsync/internal/retry"
)

type fakeSource struct {
	events []models.Event
	err    error
	calls  atomic.Int32
}

func (f *fakeSource) FetchToday(context.Context) ([]models.Event, error) {
	f.calls.Add(1)
	return f.events, f.err
}

type fakeDirectory struct {
	users []models.UserPreference
	err   error
	calls atomic.Int32
}

func (f *fakeDirectory) ListUsers(context.Context) ([]models.UserPreference, error) {
	f.calls.Add(1)
	return f.users, f.err
}

// fakeConnector hands out one in-memory store per user, failing, panicking or
// hanging until the context ends for the identities listed.
type fakeConnector struct {
	mu     sync.Mutex
	stores map[string]*calstore.Memory
	fail   map[string]error
	panics map[string]bool
	hang   map[string]bool
	calls  atomic.Int32
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		stores: map[string]*calstore.Memory{},
		fail:   map[string]error{},
		panics: map[string]bool{},
		hang:   map[string]bool{},
	}
}

func (f *fakeConnector) Connect(ctx context.Context, user models.UserPreference) (calstore.Store, error) {
	f.calls.Add(1)
	if f.panics[user.Identity] {
		panic("boom")
	}
	if f.hang[user.Identity] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := f.fail[user.Identity]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stores[user.Identity]
	if !ok {
		s = calstore.NewMemory()
		f.stores[user.Identity] = s
	}
	return s, nil
}

var fixedNow = time.Date(2025, 1, 15, 4, 0, 0, 0, time.UTC)

func todaysEvents() []models.Event {
	return []models.Event{
		{Currency: "USD", Title: "CPI m/m", Impact: models.ImpactHigh, Forecast: "0.3%", TimeText: "8:30am"},
		{Currency: "EUR", Title: "German Buba President Speaks", Impact: models.ImpactMedium, TimeText: "Tentative"},
		{Currency: "GBP", Title: "CPI y/y", Impact: models.ImpactHigh, TimeText: "7:00am"},
	}
}

func user(identity string, impacts []models.Impact, currencies ...string) models.UserPreference {
	return models.UserPreference{
		Identity:     identity,
		RefreshToken: "refresh-" + identity,
		Impacts:      models.NewImpactSet(impacts...),
		Currencies:   models.NewCurrencySet(currencies...),
	}
}

func newTestSyncer(t *testing.T, src *fakeSource, dir *fakeDirectory, conn *fakeConnector, workers int, dryRun bool) *Syncer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loc, err := time.LoadLocation("Africa/Johannesburg")
	require.NoError(t, err)
	rec := reconciler.New(logger, loc, retry.Policy{Attempts: 1, Initial: time.Millisecond, Max: time.Millisecond}, dryRun)
	return New(logger, src, dir, conn, rec, loc, metrics.New(), Options{
		Workers:     workers,
		UserTimeout: 5 * time.Second,
		Now:         func() time.Time { return fixedNow },
	})
}

func TestRunSyncsMatchingEventsPerUser(t *testing.T) {
	src := &fakeSource{events: todaysEvents()}
	dir := &fakeDirectory{users: []models.UserPreference{
		user("a@example.com", []models.Impact{models.ImpactHigh}, "USD", "EUR", "GBP"),
		user("b@example.com", []models.Impact{models.ImpactHigh, models.ImpactMedium}, "EUR"),
		user("c@example.com", []models.Impact{models.ImpactHigh}, "JPY"),
	}}
	conn := newFakeConnector()

	report, err := newTestSyncer(t, src, dir, conn, 1, false).Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "2025-01-15", report.Date)
	assert.Equal(t, 3, report.Events)
	require.Len(t, report.Users, 3)

	assert.Equal(t, StatusSynced, report.Users[0].Status)
	assert.Equal(t, 2, report.Users[0].Created)
	assert.Equal(t, StatusSynced, report.Users[1].Status)
	assert.Equal(t, 1, report.Users[1].Created)
	assert.Equal(t, StatusSkipped, report.Users[2].Status)

	assert.Len(t, conn.stores["a@example.com"].Entries(), 2)
	assert.Contains(t, conn.stores["a@example.com"].Entries(), "20250115cpimmusd")
	assert.NotContains(t, conn.stores, "c@example.com", "skipped users are never connected")
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, int32(1), dir.calls.Load())
}

func TestRunIsolatesFailingUsers(t *testing.T) {
	src := &fakeSource{events: todaysEvents()}
	dir := &fakeDirectory{users: []models.UserPreference{
		user("a@example.com", []models.Impact{models.ImpactHigh}, "USD"),
		user("b@example.com", []models.Impact{models.ImpactHigh}, "USD"),
		user("c@example.com", []models.Impact{models.ImpactHigh}, "USD"),
	}}
	conn := newFakeConnector()
	conn.fail["a@example.com"] = calstore.Wrap(calstore.KindAuth, "token", errors.New("invalid_grant"))
	conn.panics["c@example.com"] = true

	report, err := newTestSyncer(t, src, dir, conn, 1, false).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Users, 3)

	assert.Equal(t, StatusFailed, report.Users[0].Status)
	assert.True(t, calstore.IsAuth(report.Users[0].Err))
	assert.Contains(t, report.Users[0].Error, "re-authorize")

	assert.Equal(t, StatusSynced, report.Users[1].Status)
	assert.Equal(t, 1, report.Users[1].Created)

	assert.Equal(t, StatusFailed, report.Users[2].Status)
	assert.Contains(t, report.Users[2].Error, "panic")

	synced, skipped, failed := report.Counts()
	assert.Equal(t, []int{1, 0, 2}, []int{synced, skipped, failed})
}

func TestRunReturnsEarlyWithoutEvents(t *testing.T) {
	for name, src := range map[string]*fakeSource{
		"empty":       {},
		"fetch error": {err: errors.New("chrome crashed")},
	} {
		t.Run(name, func(t *testing.T) {
			dir := &fakeDirectory{users: []models.UserPreference{user("a@example.com", []models.Impact{models.ImpactHigh}, "USD")}}
			conn := newFakeConnector()

			report, err := newTestSyncer(t, src, dir, conn, 1, false).Run(context.Background())

			require.NoError(t, err)
			assert.Equal(t, 0, report.Events)
			assert.Empty(t, report.Users)
			assert.Equal(t, int32(0), dir.calls.Load())
			assert.Equal(t, int32(0), conn.calls.Load())
		})
	}
}

func TestRunFailsWhenUsersCannotBeLoaded(t *testing.T) {
	src := &fakeSource{events: todaysEvents()}
	dir := &fakeDirectory{err: errors.New("database is locked")}

	report, err := newTestSyncer(t, src, dir, newFakeConnector(), 1, false).Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, dir.err)
	require.NotNil(t, report)
	assert.Empty(t, report.Users)
}

func TestRunTwiceUpdatesInsteadOfDuplicating(t *testing.T) {
	src := &fakeSource{events: todaysEvents()}
	dir := &fakeDirectory{users: []models.UserPreference{user("a@example.com", []models.Impact{models.ImpactHigh}, "USD", "GBP")}}
	conn := newFakeConnector()
	s := newTestSyncer(t, src, dir, conn, 1, false)

	first, err := s.Run(context.Background())
	require.NoError(t, err)
	second, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, first.Users[0].Created)
	assert.Equal(t, 0, second.Users[0].Created)
	assert.Equal(t, 2, second.Users[0].Updated)
	assert.Len(t, conn.stores["a@example.com"].Entries(), 2)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRunWithWorkerPool(t *testing.T) {
	var users []models.UserPreference
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		users = append(users, user(id+"@example.com", []models.Impact{models.ImpactHigh}, "USD"))
	}
	src := &fakeSource{events: todaysEvents()}
	conn := newFakeConnector()
	conn.fail["d@example.com"] = errors.New("connection reset")

	report, err := newTestSyncer(t, src, &fakeDirectory{users: users}, conn, 3, false).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Users, len(users))
	for i, res := range report.Users {
		assert.Equal(t, users[i].Identity, res.Identity, "results keep user order")
	}
	synced, _, failed := report.Counts()
	assert.Equal(t, 6, synced)
	assert.Equal(t, 1, failed)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestRunDryRunWritesNothing(t *testing.T) {
	src := &fakeSource{events: todaysEvents()}
	dir := &fakeDirectory{users: []models.UserPreference{user("a@example.com", []models.Impact{models.ImpactHigh}, "USD")}}
	conn := newFakeConnector()

	report, err := newTestSyncer(t, src, dir, conn, 1, true).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Users[0].Planned)
	assert.Empty(t, conn.stores["a@example.com"].Entries())
}

func TestRunCancelledContextFailsUsers(t *testing.T) {
	src := &fakeSource{events: todaysEvents()}
	dir := &fakeDirectory{users: []models.UserPreference{user("a@example.com", []models.Impact{models.ImpactHigh}, "USD")}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestSyncer(t, src, dir, newFakeConnector(), 1, false).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, report.Users[0].Status)
	assert.ErrorIs(t, report.Users[0].Err, context.Canceled)
}

func TestRunUserTimeoutDoesNotStallOthers(t *testing.T) {
	src := &fakeSource{events: todaysEvents()}
	dir := &fakeDirectory{users: []models.UserPreference{
		user("a@example.com", []models.Impact{models.ImpactHigh}, "USD"),
		user("b@example.com", []models.Impact{models.ImpactHigh}, "USD"),
	}}
	conn := newFakeConnector()
	conn.hang["a@example.com"] = true
	s := newTestSyncer(t, src, dir, conn, 1, false)
	s.userTimeout = 20 * time.Millisecond

	start := time.Now()
	report, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, report.Users, 2)
	assert.Equal(t, StatusFailed, report.Users[0].Status)
	assert.ErrorIs(t, report.Users[0].Err, context.DeadlineExceeded)
	assert.Contains(t, report.Users[0].Error, "timed out connecting")

	assert.Equal(t, StatusSynced, report.Users[1].Status)
	assert.Equal(t, 1, report.Users[1].Created)
}
