// Package browser abstracts the page automation backends behind one
// small Session interface.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no element matches a query.
	ErrNotFound = errors.New("element not found")
	// ErrUnsupported is returned when a backend cannot perform an action.
	ErrUnsupported = errors.New("action not supported by backend")
)

// Element is one matched node of the current page.
type Element interface {
	Text(ctx context.Context) (string, error)
	Attr(ctx context.Context, name string) (string, error)
	Click(ctx context.Context) error
}

// Session drives one page. Queries are XPath expressions.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Find(ctx context.Context, xpath string) (Element, error)
	FindAll(ctx context.Context, xpath string) ([]Element, error)
	WaitFor(ctx context.Context, xpath string, timeout time.Duration) error
	Source(ctx context.Context) (string, error)
	Close() error
}

// SessionError marks a fault that leaves the session unusable.
type SessionError struct {
	Backend string
	Op      string
	Err     error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s %s: session lost: %v", e.Backend, e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// Fatal marks the error for session recreation.
func (e *SessionError) Fatal() bool { return true }

func first(elems []Element, err error) (Element, error) {
	if err != nil {
		return nil, err
	}
	if len(elems) == 0 {
		return nil, ErrNotFound
	}
	return elems[0], nil
}
