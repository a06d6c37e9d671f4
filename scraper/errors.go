package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/aluiziolira/ri-harvester/browser"
	"github.com/aluiziolira/ri-harvester/extract"
	"github.com/aluiziolira/ri-harvester/fetch"
	"github.com/aluiziolira/ri-harvester/listing"
)

// ErrTimeout indicates a timeout while loading a page.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrForbidden indicates a forbidden response (HTTP 403).
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string {
	return fmt.Errorf("forbidden: %w", e.Err).Error()
}

func (e ErrForbidden) Unwrap() error {
	return e.Err
}

// ErrNotFound indicates a missing resource (HTTP 404).
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string {
	return fmt.Errorf("not_found: %w", e.Err).Error()
}

func (e ErrNotFound) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates the site rate-limited the request.
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string {
	return fmt.Errorf("rate_limited: %w", e.Err).Error()
}

func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return "forbidden"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	var session *browser.SessionError
	if errors.As(err, &session) {
		return "session"
	}
	var status *fetch.StatusError
	if errors.As(err, &status) {
		return "http_status"
	}
	switch {
	case errors.Is(err, extract.ErrProxyPage):
		return "proxy"
	case errors.Is(err, listing.ErrEmptyPage):
		return "empty_page"
	case errors.Is(err, browser.ErrNotFound):
		return "element"
	}
	return "other"
}

// classifyError maps low-level failures to the typed errors above. A
// session loss keeps its own type.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var session *browser.SessionError
	if errors.As(err, &session) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	var status *fetch.StatusError
	if errors.As(err, &status) {
		switch status.Status {
		case http.StatusForbidden:
			return ErrForbidden{Err: err}
		case http.StatusNotFound:
			return ErrNotFound{Err: err}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: err}
		}
	}
	return err
}
