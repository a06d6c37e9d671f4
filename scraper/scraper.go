// Package scraper runs the harvest flows: link discovery, article detail
// extraction and author profiles.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/aluiziolira/ri-harvester/browser"
	"github.com/aluiziolira/ri-harvester/config"
	"github.com/aluiziolira/ri-harvester/fetch"
	"github.com/aluiziolira/ri-harvester/models"
	"github.com/aluiziolira/ri-harvester/retry"
	"github.com/aluiziolira/ri-harvester/store"
)

// Flow names.
const (
	FlowLinks    = "links"
	FlowArticles = "articles"
	FlowAuthors  = "authors"
)

// Harvester owns the browser session, the HTTP fetcher and the metrics
// shared by every flow. It is not safe for concurrent use.
type Harvester struct {
	cfg      *config.Config
	browsers *browser.Manager
	fetcher  *fetch.Fetcher
	sleep    retry.Sleeper
	now      func() time.Time
	Metrics  *Metrics
}

// Option customizes a Harvester.
type Option func(*Harvester)

// WithBrowser replaces the session manager.
func WithBrowser(m *browser.Manager) Option {
	return func(h *Harvester) { h.browsers = m }
}

// WithFetcher replaces the HTTP fetcher used for listing pages.
func WithFetcher(f *fetch.Fetcher) Option {
	return func(h *Harvester) { h.fetcher = f }
}

// WithSleeper replaces every pacing and retry pause.
func WithSleeper(s retry.Sleeper) Option {
	return func(h *Harvester) { h.sleep = s }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(h *Harvester) { h.now = now }
}

// New builds a harvester configured from cfg.
func New(cfg *config.Config, opts ...Option) (*Harvester, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	h := &Harvester{
		cfg:     cfg,
		sleep:   retry.Sleep,
		now:     time.Now,
		Metrics: NewMetrics(),
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.fetcher == nil {
		h.fetcher = fetch.New(cfg.UserAgent, cfg.Timeout)
	}
	if h.fetcher.Observe == nil {
		h.fetcher.Observe = func(d time.Duration, _ error) { h.Metrics.ObserveFetch(d) }
	}
	if h.browsers == nil {
		bopts := browser.OptionsFromConfig(cfg)
		bopts.Fetcher = h.fetcher
		h.browsers = browser.NewManager(bopts)
	}
	prev := h.browsers.OnRestart
	h.browsers.OnRestart = func() {
		h.Metrics.IncRestarts()
		if prev != nil {
			prev()
		}
	}
	return h, nil
}

// Close releases the browser session.
func (h *Harvester) Close() error {
	return h.browsers.Close()
}

func (h *Harvester) session(ctx context.Context) (browser.Session, error) {
	s, err := h.browsers.Session(ctx)
	if err != nil {
		return nil, err
	}
	return timedSession{Session: s, h: h}, nil
}

// timedSession records navigation latency.
type timedSession struct {
	browser.Session
	h *Harvester
}

func (s timedSession) Navigate(ctx context.Context, url string) error {
	start := s.h.now()
	err := s.Session.Navigate(ctx, url)
	s.h.Metrics.ObserveNavigation(s.h.now().Sub(start))
	return err
}

// startSession opens the browser before a flow does any work. A backend
// that cannot start at all aborts the run instead of failing every unit.
func (h *Harvester) startSession(ctx context.Context) error {
	if _, err := h.session(ctx); err != nil {
		return fmt.Errorf("start %s backend: %w", h.cfg.Backend, err)
	}
	return nil
}

func (h *Harvester) resetFlow(flow string, paths config.Paths) error {
	if !h.cfg.Reset {
		return nil
	}
	slog.Info("resetting flow state", slog.String("flow", flow), slog.String("dir", paths.Dir))
	if err := store.Reset(paths.All()...); err != nil {
		return fmt.Errorf("reset %s: %w", flow, err)
	}
	return nil
}

// run tracks the bookkeeping of one flow execution.
type run struct {
	h        *Harvester
	res      *models.RunResult
	errs     *store.ErrorLog
	retriers []*retry.Retrier
	restarts int
}

func (h *Harvester) newRun(flow string, start int, errorsPath string) *run {
	return &run{
		h: h,
		res: &models.RunResult{
			Flow:         flow,
			StartTime:    h.now(),
			StartCursor:  start,
			NextCursor:   start,
			ErrorsByType: make(map[string]int),
		},
		errs:     &store.ErrorLog{Path: errorsPath, Now: h.now},
		restarts: h.browsers.Restarts(),
	}
}

func (r *run) retrier(maxAttempts int) *retry.Retrier {
	rt := retry.New(retry.Policy{
		MaxAttempts:  maxAttempts,
		SessionDelay: r.h.cfg.SessionDelay,
		ErrorDelay:   r.h.cfg.ErrorDelay,
	}, r.h.browsers.Restart)
	rt.Sleep = r.h.sleep
	rt.OnRetry = func(string, int, error) { r.h.Metrics.IncRetries() }
	r.retriers = append(r.retriers, rt)
	return rt
}

// fail records a unit given up on. The error log is best effort.
func (r *run) fail(unit string, err error) {
	label := errorTypeLabel(classifyError(err))
	r.res.ErrorCount++
	r.res.FailedUnits = append(r.res.FailedUnits, unit)
	r.res.ErrorsByType[label]++
	r.h.Metrics.IncError(label)
	r.h.Metrics.IncItem(r.res.Flow, "failed")

	slog.Error("unit failed",
		slog.String("flow", r.res.Flow),
		slog.String("unit", unit),
		slog.String("category", label),
		slog.Any("error", err),
	)
	if lerr := r.errs.Record(unit, err); lerr != nil {
		slog.Warn("cannot write error log", slog.Any("error", lerr))
	}
}

func (r *run) stored() {
	r.res.ItemCount++
	r.h.Metrics.IncItem(r.res.Flow, "stored")
}

func (r *run) skipped() {
	r.res.SkippedCount++
	r.h.Metrics.IncItem(r.res.Flow, "skipped")
}

func (r *run) finish(err error) (*models.RunResult, error) {
	r.res.EndTime = r.h.now()
	for _, rt := range r.retriers {
		r.res.RetryCount += rt.Retries()
	}
	r.res.SessionRestarts = r.h.browsers.Restarts() - r.restarts

	if err != nil && errors.Is(err, context.Canceled) {
		slog.Warn("run interrupted, state saved for resume",
			slog.String("flow", r.res.Flow),
			slog.Int("next_cursor", r.res.NextCursor),
		)
	}
	return r.res, err
}

// detail runs one item extraction under the item retry budget. Errors
// other than cancellation are recorded and reported as ok=false.
func detail[T any](ctx context.Context, r *run, rt *retry.Retrier, unit string, fn func(ctx context.Context, s browser.Session) (T, error)) (T, bool, error) {
	rec, err := retry.Value(ctx, rt, unit, func(ctx context.Context) (T, error) {
		s, err := r.h.session(ctx)
		if err != nil {
			var zero T
			return zero, &browser.SessionError{Backend: r.h.cfg.Backend, Op: "open", Err: err}
		}
		return fn(ctx, s)
	})
	if err != nil {
		if ctx.Err() != nil {
			return rec, false, ctx.Err()
		}
		r.fail(unit, err)
		return rec, false, nil
	}
	return rec, true, nil
}
