package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/ri-harvester/config"
	"github.com/aluiziolira/ri-harvester/fetch"
)

// Options selects and configures a backend.
type Options struct {
	Backend    string
	DriverPath string
	Headless   bool
	UserAgent  string
	Timeout    time.Duration
	Fetcher    *fetch.Fetcher
}

// OptionsFromConfig maps harvester config to backend options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Backend:    cfg.Backend,
		DriverPath: cfg.DriverPath,
		Headless:   cfg.Headless,
		UserAgent:  cfg.UserAgent,
		Timeout:    cfg.Timeout,
	}
}

// Open starts a session on the configured backend. The auto backend tries
// rod first and falls back to chromedp.
func Open(ctx context.Context, opts Options) (Session, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	switch opts.Backend {
	case config.BackendChromedp:
		return openChromedp(ctx, opts)
	case config.BackendRod:
		return openRod(ctx, opts)
	case config.BackendStatic:
		return openStatic(opts), nil
	case config.BackendAuto, "":
		s, rodErr := openRod(ctx, opts)
		if rodErr == nil {
			return s, nil
		}
		slog.Warn("rod backend unavailable, trying chromedp", slog.Any("error", rodErr))
		s2, cdpErr := openChromedp(ctx, opts)
		if cdpErr == nil {
			return s2, nil
		}
		return nil, fmt.Errorf("no browser backend available: %w", errors.Join(rodErr, cdpErr))
	default:
		return nil, fmt.Errorf("unknown backend %q", opts.Backend)
	}
}
