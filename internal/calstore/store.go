// Package calstore defines the write side of a user's calendar and the typed
// errors its implementations return.
package calstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"fxcalsync/internal/models"
)

// Store writes drafts into one user's calendar.
type Store interface {
	// Insert creates the entry. It fails with KindConflict when an entry with
	// draft.ID already exists.
	Insert(ctx context.Context, draft models.Draft) error
	// Update replaces the existing entry with the given id.
	Update(ctx context.Context, id string, draft models.Draft) error
}

// Kind classifies failures from a calendar store or identity provider.
type Kind int

const (
	KindPermanent Kind = iota
	KindConflict
	KindAuth
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	case KindAuth:
		return "auth"
	case KindTransient:
		return "transient"
	default:
		return "permanent"
	}
}

// Error is a classified store failure.
type Error struct {
	Kind Kind
	Op   string // "insert", "update", "connect"
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Wrap attaches a kind and operation to err. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindPermanent.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPermanent
}

// IsConflict reports whether the entry already exists.
func IsConflict(err error) bool { return err != nil && KindOf(err) == KindConflict }

// IsAuth reports whether the user's credential was rejected.
func IsAuth(err error) bool { return err != nil && KindOf(err) == KindAuth }

// IsTransient reports whether retrying the failed call may succeed. Besides errors
// classified as KindTransient, unclassified network faults count as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindTransient
	}
	return IsNetworkFault(err)
}

// IsNetworkFault reports whether err is a transport failure such as a refused or
// reset connection, an unexpected EOF or a network timeout. Cancellation and
// deadline expiry of the caller's context are not network faults.
func IsNetworkFault(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var urlErr *url.Error
	var netErr net.Error
	return errors.As(err, &urlErr) || errors.As(err, &netErr) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// KindForStatus maps an HTTP status returned by a calendar backend onto a Kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusConflict, status == http.StatusPreconditionFailed:
		return KindConflict
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests, status >= 500:
		return KindTransient
	default:
		return KindPermanent
	}
}
