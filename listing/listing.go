// Package listing walks paginated listings by page index or offset and
// hands each page of links to the caller.
package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/ri-harvester/models"
	"github.com/aluiziolira/ri-harvester/retry"
)

// ErrEmptyPage signals an empty page strictly below a known bound.
var ErrEmptyPage = errors.New("empty listing page below bound")

// Source returns the links visible at one cursor.
type Source interface {
	Links(ctx context.Context, cursor int) ([]models.Link, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, cursor int) ([]models.Link, error)

func (f SourceFunc) Links(ctx context.Context, cursor int) ([]models.Link, error) {
	return f(ctx, cursor)
}

// Bound is the last cursor to visit, inclusive.
type Bound struct {
	Last  int
	Known bool
}

// Stop reasons reported in Result.
const (
	StopBound    = "bound"
	StopEmpty    = "empty"
	StopRepeated = "repeated"
)

// Result summarizes one enumeration.
type Result struct {
	Start  int
	Next   int
	Pages  int
	Links  int
	Failed []int
	Reason string
}

// Enumerator visits cursors from a start value in Stride steps until the
// listing ends or the bound is passed.
type Enumerator struct {
	Source    Source
	Retrier   *retry.Retrier
	Stride    int
	Bound     Bound
	PageDelay time.Duration
	Sleep     retry.Sleeper
	Guard     *RepeatGuard

	// OnPage processes one page of links. An error aborts the run.
	OnPage func(ctx context.Context, cursor int, links []models.Link) error
	// Checkpoint persists the next cursor after each page.
	Checkpoint func(next int) error
	// OnFailure records a cursor skipped after exhausting retries.
	OnFailure func(cursor int, err error)
}

// Run enumerates from start. It returns early only on context
// cancellation or when OnPage or Checkpoint fail.
func (e *Enumerator) Run(ctx context.Context, start int) (Result, error) {
	stride := e.Stride
	if stride <= 0 {
		stride = 1
	}
	sleep := e.Sleep
	if sleep == nil {
		sleep = retry.Sleep
	}
	retrier := e.Retrier
	if retrier == nil {
		retrier = retry.New(retry.Policy{MaxAttempts: 1}, nil)
	}

	res := Result{Start: start, Next: start}
	cursor := start
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if e.Bound.Known && cursor > e.Bound.Last {
			res.Reason = StopBound
			return res, nil
		}

		unit := fmt.Sprintf("cursor %d", cursor)
		links, err := retry.Value(ctx, retrier, unit, func(ctx context.Context) ([]models.Link, error) {
			links, err := e.Source.Links(ctx, cursor)
			if err != nil {
				return nil, err
			}
			if len(links) == 0 && e.Bound.Known && cursor < e.Bound.Last {
				return nil, ErrEmptyPage
			}
			return links, nil
		})

		switch {
		case err != nil && ctx.Err() != nil:
			return res, ctx.Err()
		case errors.Is(err, ErrEmptyPage):
			slog.Info("listing exhausted after retries on empty page", slog.Int("cursor", cursor))
			res.Reason = StopEmpty
			return res, nil
		case err != nil:
			slog.Error("listing page failed, skipping", slog.Int("cursor", cursor), slog.Any("error", err))
			res.Failed = append(res.Failed, cursor)
			if e.OnFailure != nil {
				e.OnFailure(cursor, err)
			}
		case len(links) == 0:
			slog.Info("listing ended on empty page", slog.Int("cursor", cursor))
			res.Reason = StopEmpty
			return res, nil
		case e.Guard != nil && e.Guard.Repeated(links):
			slog.Info("listing ended on repeated page", slog.Int("cursor", cursor))
			res.Reason = StopRepeated
			return res, nil
		default:
			if e.OnPage != nil {
				if err := e.OnPage(ctx, cursor, links); err != nil {
					return res, fmt.Errorf("process %s: %w", unit, err)
				}
			}
			res.Pages++
			res.Links += len(links)
		}

		cursor += stride
		res.Next = cursor
		if e.Checkpoint != nil {
			if err := e.Checkpoint(cursor); err != nil {
				return res, fmt.Errorf("checkpoint %d: %w", cursor, err)
			}
		}
		if err := sleep(ctx, e.PageDelay); err != nil {
			return res, err
		}
	}
}
