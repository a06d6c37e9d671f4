package scraper

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/ri-harvester/config"
	"github.com/aluiziolira/ri-harvester/models"
	"github.com/aluiziolira/ri-harvester/store"
)

// CompactAll rebuilds every flow snapshot from its record log.
func CompactAll(cfg *config.Config, metrics *Metrics) (map[string]store.CompactStats, error) {
	out := make(map[string]store.CompactStats, 3)
	var errs []error

	jobs := []struct {
		flow  string
		paths config.Paths
		run   func(logPath, snapshot string) (store.CompactStats, error)
	}{
		{FlowLinks, cfg.LinkPaths(), store.CompactFile[models.ArticleLink]},
		{FlowArticles, cfg.ArticlePaths(), store.CompactFile[models.Article]},
		{FlowAuthors, cfg.AuthorPaths(), store.CompactFile[models.Author]},
	}
	for _, job := range jobs {
		stats, err := job.run(job.paths.RecordLog, job.paths.Snapshot)
		if err != nil {
			errs = append(errs, fmt.Errorf("compact %s: %w", job.flow, err))
			continue
		}
		metrics.IncCompaction(job.flow)
		out[job.flow] = stats
		slog.Info("snapshot rebuilt",
			slog.String("flow", job.flow),
			slog.String("snapshot", job.paths.Snapshot),
			slog.Int("records", stats.Records),
			slog.Int("duplicates", stats.Duplicates),
			slog.Int("malformed", stats.Malformed),
		)
	}
	return out, errors.Join(errs...)
}
