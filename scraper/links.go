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

// RunLinks walks the discover listing from the saved page, appends every
// item URL to the link file and stores the first author of each new item.
func (h *Harvester) RunLinks(ctx context.Context) (*models.RunResult, error) {
	cfg := h.cfg
	paths := cfg.LinkPaths()
	if err := h.resetFlow(FlowLinks, paths); err != nil {
		return nil, err
	}

	cursor := store.CursorFile{Path: paths.Checkpoint, Default: 1}
	start := cfg.StartPage
	if start <= 0 {
		start = cursor.Load()
	}
	if start < 1 {
		start = 1
	}

	linkFile, err := store.OpenLinkFile(paths.Links)
	if err != nil {
		return nil, err
	}
	processed, err := store.OpenLineSet(paths.Processed)
	if err != nil {
		return nil, err
	}
	defer processed.Close()
	records, err := store.OpenColumnar[models.ArticleLink](paths.RecordLog, paths.Snapshot, cfg.CompactEvery)
	if err != nil {
		return nil, err
	}
	defer records.Close()
	records.OnCompact = func(store.CompactStats) { h.Metrics.IncCompaction(FlowLinks) }

	if err := h.startSession(ctx); err != nil {
		return nil, err
	}
	r := h.newRun(FlowLinks, start, paths.Errors)
	src := &articleListing{h: h}

	bound := listing.PageBound(cfg.EndPage)
	if cfg.EndPage <= 0 {
		est := listing.DiscoverTotal(ctx, src.totalPages, 0, cfg.FallbackPages)
		bound = listing.PageBound(est.Total)
		slog.Info("article listing bound",
			slog.Int("last_page", bound.Last),
			slog.String("source", est.Source),
		)
	}

	slog.Info("starting link harvest",
		slog.Int("start_page", start),
		slog.Int("end_page", bound.Last),
		slog.Int("known_links", linkFile.Len()),
		slog.Int("processed", processed.Len()),
	)

	authors := extract.NewLinkAuthorExtractor(cfg.PageLoadDelay)
	authors.Sleep = h.sleep
	itemRetrier := r.retrier(cfg.ItemRetries)

	enum := &listing.Enumerator{
		Source:    src,
		Retrier:   r.retrier(cfg.MaxRetries),
		Stride:    1,
		Bound:     bound,
		PageDelay: cfg.PageDelay,
		Sleep:     h.sleep,
		Guard:     listing.NewRepeatGuard(cfg.RepeatWindow),
		OnPage: func(ctx context.Context, page int, links []models.Link) error {
			urls := make([]string, 0, len(links))
			for _, l := range links {
				urls = append(urls, l.URL)
			}
			added, err := linkFile.Append(urls...)
			if err != nil {
				return err
			}
			h.Metrics.IncPage(FlowLinks)
			slog.Info("listing page",
				slog.Int("page", page),
				slog.Int("links", len(links)),
				slog.Int("new", added),
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
					func(ctx context.Context, s browser.Session) (models.ArticleLink, error) {
						return authors.Extract(ctx, s, l.URL)
					})
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				if err := records.Append(rec); err != nil {
					return err
				}
				if err := processed.Mark(l.URL); err != nil {
					return err
				}
				r.stored()
				if err := h.sleep(ctx, cfg.ItemDelay); err != nil {
					return err
				}
			}
			return nil
		},
		Checkpoint: cursor.Save,
		OnFailure: func(page int, err error) {
			r.fail(fmt.Sprintf("page %d", page), err)
		},
	}

	res, runErr := enum.Run(ctx, start)
	r.res.NextCursor = res.Next
	r.res.PageCount = res.Pages

	if _, err := records.Compact(); err != nil && runErr == nil {
		runErr = fmt.Errorf("compact links: %w", err)
	}
	slog.Info("link harvest finished",
		slog.Int("pages", res.Pages),
		slog.Int("links", linkFile.Len()),
		slog.String("stop", res.Reason),
	)
	return r.finish(runErr)
}
