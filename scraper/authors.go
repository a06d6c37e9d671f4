package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/ri-harvester/browser"
	"github.com/aluiziolira/ri-harvester/extract"
	"github.com/aluiziolira/ri-harvester/listing"
	"github.com/aluiziolira/ri-harvester/models"
	"github.com/aluiziolira/ri-harvester/store"
)

// RunAuthors walks the author explorer by offset and stores every author
// profile not yet processed. Progress lives in a JSON state file.
func (h *Harvester) RunAuthors(ctx context.Context) (*models.RunResult, error) {
	cfg := h.cfg
	paths := cfg.AuthorPaths()
	if err := h.resetFlow(FlowAuthors, paths); err != nil {
		return nil, err
	}

	if err := h.startSession(ctx); err != nil {
		return nil, err
	}
	stateFile := store.StateFile{Path: paths.State}
	state := stateFile.Load()
	processed := &store.StateSet{File: stateFile, State: state}

	records, err := store.OpenColumnar[models.Author](paths.RecordLog, paths.Snapshot, cfg.CompactEvery)
	if err != nil {
		return nil, err
	}
	defer records.Close()
	records.OnCompact = func(store.CompactStats) { h.Metrics.IncCompaction(FlowAuthors) }

	src := &authorListing{h: h}
	est := listing.DiscoverTotal(ctx, src.total, state.TotalCount, cfg.FallbackAuthors)
	state.TotalCount = est.Total
	if err := stateFile.Save(state); err != nil {
		return nil, err
	}
	bound := listing.OffsetBound(est.Total, cfg.AuthorPageSize)

	start := state.LastOffset
	r := h.newRun(FlowAuthors, start, paths.Errors)
	itemRetrier := r.retrier(cfg.ItemRetries)
	x := extract.NewAuthorExtractor(cfg.WaitTimeout, cfg.HandlePageLimit)

	slog.Info("starting author harvest",
		slog.Int("total", est.Total),
		slog.String("total_source", est.Source),
		slog.Int("offset", start),
		slog.Int("processed", processed.Len()),
	)

	forecast := func(offset int) {
		f := Forecast{
			Processed:  processed.Len(),
			Total:      state.TotalCount,
			Offset:     offset,
			PageSize:   cfg.AuthorPageSize,
			Elapsed:    h.now().Sub(r.res.StartTime),
			RunItems:   r.res.ItemCount,
			Now:        h.now(),
			ZoneOffset: cfg.ForecastZone,
		}
		if err := writeForecast(paths.Forecast, f); err != nil {
			slog.Warn("cannot write forecast", slog.Any("error", err))
		}
	}

	enum := &listing.Enumerator{
		Source:    src,
		Retrier:   r.retrier(cfg.MaxRetries),
		Stride:    cfg.AuthorPageSize,
		Bound:     bound,
		PageDelay: cfg.PageDelay,
		Sleep:     h.sleep,
		Guard:     listing.NewRepeatGuard(cfg.RepeatWindow),
		OnPage: func(ctx context.Context, offset int, links []models.Link) error {
			h.Metrics.IncPage(FlowAuthors)
			slog.Info("author page",
				slog.Int("page", offset/cfg.AuthorPageSize+1),
				slog.Int("offset", offset),
				slog.Int("authors", len(links)),
			)
			for _, l := range links {
				if err := ctx.Err(); err != nil {
					return err
				}
				if processed.Has(l.URL) {
					r.skipped()
					continue
				}
				rec, ok, err := detail(ctx, r, itemRetrier, l.URL,
					func(ctx context.Context, s browser.Session) (models.Author, error) {
						return x.Extract(ctx, s, l.Name, l.URL)
					})
				if err != nil {
					return err
				}
				if ok {
					if err := records.Append(rec); err != nil {
						return err
					}
					if err := processed.Mark(l.URL); err != nil {
						return err
					}
					r.stored()
					slog.Debug("author stored",
						slog.String("name", rec.Name),
						slog.Int("handles", rec.HandleCount),
					)
					forecast(offset)
				}
				if err := h.sleep(ctx, cfg.ItemDelay); err != nil {
					return err
				}
			}
			return nil
		},
		Checkpoint: func(next int) error {
			state.LastOffset = next
			return stateFile.Save(state)
		},
		OnFailure: func(offset int, err error) {
			r.fail(fmt.Sprintf("offset %d", offset), err)
		},
	}

	res, runErr := enum.Run(ctx, start)
	r.res.NextCursor = res.Next
	r.res.PageCount = res.Pages

	if _, err := records.Compact(); err != nil && runErr == nil {
		runErr = fmt.Errorf("compact authors: %w", err)
	}
	slog.Info("author harvest finished",
		slog.Int("stored", r.res.ItemCount),
		slog.Int("processed_total", processed.Len()),
		slog.String("stop", res.Reason),
	)
	return r.finish(runErr)
}
