// Package retry runs calls against external services with bounded exponential backoff.
package retry

import (
	"context"
	"time"

	gax "github.com/googleapis/gax-go/v2"

	"fxcalsync/internal/calstore"
)

// Policy bounds how often and how long a call is retried.
type Policy struct {
	Attempts int           // Total attempts including the first; values below 1 mean 1
	Initial  time.Duration // First backoff pause
	Max      time.Duration // Upper bound for a single pause
}

// DefaultPolicy is used when no policy is configured.
var DefaultPolicy = Policy{Attempts: 3, Initial: 500 * time.Millisecond, Max: 5 * time.Second}

// Do calls fn until it succeeds, returns an error that is not transient, the
// attempts are used up or ctx is done. The last error from fn is returned.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	bo := gax.Backoff{Initial: p.Initial, Max: p.Max, Multiplier: 2}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil || !calstore.IsTransient(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		if sleepErr := gax.Sleep(ctx, bo.Pause()); sleepErr != nil {
			return err
		}
	}
	return err
}
