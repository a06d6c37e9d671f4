package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/ri-harvester/extract"
	"github.com/aluiziolira/ri-harvester/fetch"
	"github.com/aluiziolira/ri-harvester/models"
	"github.com/aluiziolira/ri-harvester/parser"
	"github.com/aluiziolira/ri-harvester/retry"
)

// articleListing reads discover pages through the browser session.
type articleListing struct {
	h *Harvester
}

func (a *articleListing) load(ctx context.Context, page int) error {
	s, err := a.h.session(ctx)
	if err != nil {
		return err
	}
	if err := s.Navigate(ctx, a.h.cfg.ArticleListingURL(page)); err != nil {
		return err
	}
	return a.h.sleep(ctx, a.h.cfg.PageLoadDelay)
}

func (a *articleListing) Links(ctx context.Context, page int) ([]models.Link, error) {
	if err := a.load(ctx, page); err != nil {
		return nil, err
	}
	s, err := a.h.session(ctx)
	if err != nil {
		return nil, err
	}
	return extract.ArticleLinks(ctx, s, a.h.cfg.Origin())
}

// totalPages reads the result count from the first discover page.
func (a *articleListing) totalPages(ctx context.Context) (int, error) {
	if err := a.load(ctx, 1); err != nil {
		return 0, err
	}
	s, err := a.h.session(ctx)
	if err != nil {
		return 0, err
	}
	total, ok := extract.ArticlePageTotal(ctx, s)
	if !ok {
		return 0, errors.New("result total not found in discover heading")
	}
	pages := parser.PageCount(total, a.h.cfg.ArticlePageSize)
	slog.Info("detected article total", slog.Int("results", total), slog.Int("pages", pages))
	return pages, nil
}

// authorListing fetches explorer pages over plain HTTP. Each call makes up
// to ListingRetries attempts with exponential backoff.
type authorListing struct {
	h *Harvester
}

func (a *authorListing) get(ctx context.Context, offset, attempts int) (*fetch.Page, error) {
	url := a.h.cfg.AuthorListingURL(offset)
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		page, err := a.h.fetcher.Get(ctx, url)
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if attempt == attempts-1 {
			break
		}

		base := a.h.cfg.BackoffBase
		var status *fetch.StatusError
		if errors.As(err, &status) {
			base *= 2
		}
		wait := retry.Backoff(attempt, base, a.h.cfg.BackoffMax)
		slog.Warn("author listing fetch failed",
			slog.Int("offset", offset),
			slog.Int("attempt", attempt+1),
			slog.Duration("wait", wait),
			slog.Any("error", err),
		)
		a.h.Metrics.IncRetries()
		if err := a.h.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("offset %d: %w", offset, lastErr)
}

func (a *authorListing) Links(ctx context.Context, offset int) ([]models.Link, error) {
	page, err := a.get(ctx, offset, a.h.cfg.ListingRetries)
	if err != nil {
		return nil, err
	}
	return extract.AuthorLinks(page.Doc, a.h.cfg.Origin()), nil
}

// total reads the author count from the first explorer page.
func (a *authorListing) total(ctx context.Context) (int, error) {
	page, err := a.get(ctx, 0, a.h.cfg.TotalRetries)
	if err != nil {
		return 0, err
	}
	total, ok := parser.AuthorTotal(page.Text())
	if !ok {
		return 0, errors.New("author total not found on explorer page")
	}
	return total, nil
}
