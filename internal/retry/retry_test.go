package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fxcalsync/internal/calstore"
)

var fast = Policy{Attempts: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond}

func TestDoRetriesTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, func(context.Context) error {
		calls++
		if calls < 3 {
			return calstore.Wrap(calstore.KindTransient, "insert", errors.New("503"))
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsAfterAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, func(context.Context) error {
		calls++
		return calstore.Wrap(calstore.KindTransient, "insert", errors.New("503"))
	})

	assert.True(t, calstore.IsTransient(err))
	assert.Equal(t, 3, calls)
}

func TestDoDoesNotRetryPermanentOrConflict(t *testing.T) {
	for _, kind := range []calstore.Kind{calstore.KindPermanent, calstore.KindConflict, calstore.KindAuth} {
		calls := 0
		err := Do(context.Background(), fast, func(context.Context) error {
			calls++
			return calstore.Wrap(kind, "insert", errors.New("nope"))
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls, kind.String())
	}
}

func TestDoZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), Policy{}, func(context.Context) error {
		calls++
		return calstore.Wrap(calstore.KindTransient, "insert", errors.New("503"))
	})
	assert.Equal(t, 1, calls)
}

func TestDoStopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{Attempts: 5, Initial: time.Hour, Max: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return calstore.Wrap(calstore.KindTransient, "insert", errors.New("503"))
	})

	assert.True(t, calstore.IsTransient(err))
	assert.Equal(t, 1, calls)
}
