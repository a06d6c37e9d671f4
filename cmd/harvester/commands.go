package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/ri-harvester/models"
	"github.com/aluiziolira/ri-harvester/scraper"
)

type flowFunc func(ctx context.Context, h *scraper.Harvester) (*models.RunResult, error)

func linksCmd() *cobra.Command {
	var startPage, endPage int
	cmd := &cobra.Command{
		Use:   "links",
		Short: "Walk the discover listing and collect article links with their first author",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("start-page") {
				cfg.StartPage = startPage
			}
			if cmd.Flags().Changed("end-page") {
				cfg.EndPage = endPage
			}
			return harvest(cmd.Context(), func(ctx context.Context, h *scraper.Harvester) (*models.RunResult, error) {
				return h.RunLinks(ctx)
			})
		},
	}
	cmd.Flags().IntVar(&startPage, "start-page", 0, "First listing page (default: saved checkpoint)")
	cmd.Flags().IntVar(&endPage, "end-page", 0, "Last listing page (default: detected total)")
	return cmd
}

func articlesCmd() *cobra.Command {
	var opts scraper.ArticleOptions
	cmd := &cobra.Command{
		Use:   "articles",
		Short: "Extract the full metadata record of every collected article link",
		RunE: func(cmd *cobra.Command, args []string) error {
			return harvest(cmd.Context(), func(ctx context.Context, h *scraper.Harvester) (*models.RunResult, error) {
				return h.RunArticles(ctx, opts)
			})
		},
	}
	cmd.Flags().StringVar(&opts.LinksFile, "links-file", "", "Link list to read (default: links command output)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Stop after this many new records")
	return cmd
}

func authorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "authors",
		Short: "Walk the author explorer and extract every author profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return harvest(cmd.Context(), func(ctx context.Context, h *scraper.Harvester) (*models.RunResult, error) {
				return h.RunAuthors(ctx)
			})
		},
	}
}

func compactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Rebuild every CSV snapshot from its record log",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			stats, err := scraper.CompactAll(cfg, nil)
			for _, flow := range []string{scraper.FlowLinks, scraper.FlowArticles, scraper.FlowAuthors} {
				if s, ok := stats[flow]; ok {
					fmt.Printf("  %-9s %d records, %d duplicates, %d malformed\n", flow, s.Records, s.Duplicates, s.Malformed)
				}
			}
			return err
		},
	}
}

// harvest runs one flow with signal handling, serving metrics alongside it
// when an address is configured.
func harvest(parent context.Context, fn flowFunc) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := scraper.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Close(); err != nil {
			slog.Error("close browser session", slog.Any("error", err))
		}
	}()

	slog.Info("starting harvest",
		slog.String("base_url", cfg.BaseURL),
		slog.String("backend", cfg.Backend),
		slog.String("output_dir", cfg.OutputDir),
		slog.String("log_level", logLevel.Level().String()),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	var result *models.RunResult
	g.Go(func() error {
		defer cancel()
		res, err := fn(gctx, h)
		result = res
		return err
	})

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(h.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		g.Go(func() error {
			slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	if result != nil {
		printSummary(result)
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		slog.Info("harvest interrupted; rerun the same command to resume")
		return nil
	}
	return err
}

func printSummary(res *models.RunResult) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Printf("Harvest %s complete\n", res.Flow)
	fmt.Printf("  Stored:        %d\n", res.ItemCount)
	fmt.Printf("  Skipped:       %d\n", res.SkippedCount)
	fmt.Printf("  Pages:         %d\n", res.PageCount)
	fmt.Printf("  Errors:        %d\n", res.ErrorCount)
	fmt.Printf("  Retries:       %d\n", res.RetryCount)
	fmt.Printf("  Restarts:      %d\n", res.SessionRestarts)
	fmt.Printf("  Cursor:        %d -> %d\n", res.StartCursor, res.NextCursor)
	if len(res.ErrorsByType) > 0 {
		types := make([]string, 0, len(res.ErrorsByType))
		for k := range res.ErrorsByType {
			types = append(types, k)
		}
		sort.Strings(types)
		fmt.Print("  Error types:  ")
		for _, k := range types {
			fmt.Printf(" %s=%d", k, res.ErrorsByType[k])
		}
		fmt.Println()
	}
	fmt.Printf("  Duration:      %v\n", res.Duration().Round(time.Second))
	fmt.Println(separator)
}
