package listing

import (
	"context"
	"log/slog"
)

// Estimate describes how the upper bound was obtained.
type Estimate struct {
	Total  int
	Source string
}

// DiscoverTotal asks discover for the item total, then falls back to
// prior (a total saved by an earlier run) and finally to fallback.
func DiscoverTotal(ctx context.Context, discover func(ctx context.Context) (int, error), prior, fallback int) Estimate {
	if discover != nil {
		total, err := discover(ctx)
		if err == nil && total > 0 {
			return Estimate{Total: total, Source: "page"}
		}
		slog.Warn("could not detect listing total", slog.Any("error", err))
	}
	if prior > 0 {
		return Estimate{Total: prior, Source: "state"}
	}
	return Estimate{Total: fallback, Source: "fallback"}
}

// PageBound is the inclusive bound of a 1-based page listing.
func PageBound(pages int) Bound {
	return Bound{Last: pages, Known: pages > 0}
}

// OffsetBound is the inclusive bound of an offset listing with stride size
// over total items.
func OffsetBound(total, size int) Bound {
	if total <= 0 || size <= 0 {
		return Bound{}
	}
	last := ((total - 1) / size) * size
	return Bound{Last: last, Known: true}
}
