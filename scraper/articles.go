package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/ri-harvester/browser"
	"github.com/aluiziolira/ri-harvester/extract"
	"github.com/aluiziolira/ri-harvester/models"
	"github.com/aluiziolira/ri-harvester/store"
)

const progressEvery = 50

// ArticleOptions narrows an article run.
type ArticleOptions struct {
	// LinksFile overrides the link list produced by RunLinks.
	LinksFile string
	// Limit stops after this many new records; zero means no limit.
	Limit int
}

// RunArticles extracts the full record of every listed article not yet
// processed.
func (h *Harvester) RunArticles(ctx context.Context, opts ArticleOptions) (*models.RunResult, error) {
	cfg := h.cfg
	paths := cfg.ArticlePaths()
	if opts.LinksFile != "" {
		paths.Input = opts.LinksFile
	}
	if err := h.resetFlow(FlowArticles, paths); err != nil {
		return nil, err
	}

	links, err := store.ReadLinkFile(paths.Input)
	if err != nil {
		return nil, fmt.Errorf("articles need the link list from the links command: %w", err)
	}
	if err := h.startSession(ctx); err != nil {
		return nil, err
	}
	processed, err := store.OpenLineSet(paths.Processed)
	if err != nil {
		return nil, err
	}
	defer processed.Close()
	records, err := store.OpenColumnar[models.Article](paths.RecordLog, paths.Snapshot, cfg.CompactEvery)
	if err != nil {
		return nil, err
	}
	defer records.Close()
	records.OnCompact = func(store.CompactStats) { h.Metrics.IncCompaction(FlowArticles) }

	all := links.Links()
	r := h.newRun(FlowArticles, 0, paths.Errors)
	itemRetrier := r.retrier(cfg.ItemRetries)
	x := extract.NewArticleExtractor(cfg.Origin(), cfg.PageLoadDelay)
	x.Sleep = h.sleep

	slog.Info("starting article harvest",
		slog.String("links_file", paths.Input),
		slog.Int("links", len(all)),
		slog.Int("processed", processed.Len()),
	)

	var runErr error
	for i, url := range all {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		r.res.NextCursor = i
		if processed.Has(url) {
			r.skipped()
			continue
		}
		if opts.Limit > 0 && r.res.ItemCount >= opts.Limit {
			slog.Info("article limit reached", slog.Int("limit", opts.Limit))
			break
		}

		rec, ok, err := detail(ctx, r, itemRetrier, url,
			func(ctx context.Context, s browser.Session) (models.Article, error) {
				return x.Extract(ctx, s, url)
			})
		if err != nil {
			runErr = err
			break
		}
		if ok {
			if err := records.Append(rec); err != nil {
				runErr = err
				break
			}
			if err := processed.Mark(url); err != nil {
				runErr = err
				break
			}
			r.stored()
		}
		r.res.NextCursor = i + 1

		if (i+1)%progressEvery == 0 {
			slog.Info("article progress",
				slog.Int("position", i+1),
				slog.Int("total", len(all)),
				slog.Int("stored", r.res.ItemCount),
				slog.Int("failed", r.res.ErrorCount),
			)
		}
		if err := h.sleep(ctx, cfg.ItemDelay); err != nil {
			runErr = err
			break
		}
	}
	if runErr == nil && ctx.Err() == nil && (opts.Limit == 0 || r.res.ItemCount < opts.Limit) {
		r.res.NextCursor = len(all)
	}

	if _, err := records.Compact(); err != nil && runErr == nil {
		runErr = fmt.Errorf("compact articles: %w", err)
	}
	slog.Info("article harvest finished",
		slog.Int("stored", r.res.ItemCount),
		slog.Int("skipped", r.res.SkippedCount),
		slog.Int("failed", r.res.ErrorCount),
	)
	return r.finish(runErr)
}
