package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// Backend names accepted for the automation session.
const (
	BackendAuto     = "auto"
	BackendChromedp = "chromedp"
	BackendRod      = "rod"
	BackendStatic   = "static"
)

// Config holds harvester configuration shared by every flow.
type Config struct {
	BaseURL            string        `yaml:"base_url"`
	ArticleListingPath string        `yaml:"article_listing_path"`
	AuthorListingPath  string        `yaml:"author_listing_path"`
	ArticlePageSize    int           `yaml:"article_page_size"`
	AuthorPageSize     int           `yaml:"author_page_size"`
	FallbackPages      int           `yaml:"fallback_pages"`
	FallbackAuthors    int           `yaml:"fallback_authors"`
	StartPage          int           `yaml:"start_page"`
	EndPage            int           `yaml:"end_page"`
	Backend            string        `yaml:"backend"`
	DriverPath         string        `yaml:"driver_path"`
	Headless           bool          `yaml:"headless"`
	UserAgent          string        `yaml:"user_agent"`
	Timeout            time.Duration `yaml:"timeout"`
	PageLoadDelay      time.Duration `yaml:"page_load_delay"`
	PageDelay          time.Duration `yaml:"page_delay"`
	ItemDelay          time.Duration `yaml:"item_delay"`
	WaitTimeout        time.Duration `yaml:"wait_timeout"`
	MaxRetries         int           `yaml:"max_retries"`
	ItemRetries        int           `yaml:"item_retries"`
	SessionDelay       time.Duration `yaml:"session_delay"`
	ErrorDelay         time.Duration `yaml:"error_delay"`
	ListingRetries     int           `yaml:"listing_retries"`
	TotalRetries       int           `yaml:"total_retries"`
	BackoffBase        time.Duration `yaml:"backoff_base"`
	BackoffMax         time.Duration `yaml:"backoff_max"`
	HandlePageLimit    int           `yaml:"handle_page_limit"`
	RepeatWindow       int           `yaml:"repeat_window"`
	CompactEvery       int           `yaml:"compact_every"`
	OutputDir          string        `yaml:"output_dir"`
	LogDir             string        `yaml:"log_dir"`
	ForecastZone       int           `yaml:"forecast_zone"`
	MetricsAddr        string        `yaml:"metrics_addr"`
	Reset              bool          `yaml:"-"`
	Verbose            bool          `yaml:"verbose"`
}

// DefaultConfig returns the production harvest settings.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "https://ri.conicet.gov.ar",
		ArticleListingPath: "/discover?rpp=10&etal=0&group_by=none&page=",
		AuthorListingPath:  "/explorar-autores?field=null&offset=",
		ArticlePageSize:    10,
		AuthorPageSize:     90,
		FallbackPages:      27154,
		FallbackAuthors:    313483,
		Backend:            BackendAuto,
		Headless:           true,
		UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		Timeout:            30 * time.Second,
		PageLoadDelay:      3 * time.Second,
		PageDelay:          3 * time.Second,
		ItemDelay:          2 * time.Second,
		WaitTimeout:        3 * time.Second,
		MaxRetries:         10,
		ItemRetries:        3,
		SessionDelay:       3 * time.Second,
		ErrorDelay:         2 * time.Second,
		ListingRetries:     3,
		TotalRetries:       5,
		BackoffBase:        time.Second,
		BackoffMax:         time.Minute,
		HandlePageLimit:    500,
		RepeatWindow:       1024,
		CompactEvery:       100,
		OutputDir:          "output",
		ForecastZone:       -3,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if c.ArticleListingPath == "" || c.AuthorListingPath == "" {
		return fmt.Errorf("listing paths cannot be empty")
	}
	if c.ArticlePageSize <= 0 || c.AuthorPageSize <= 0 {
		return fmt.Errorf("page sizes must be positive")
	}
	if c.FallbackPages <= 0 || c.FallbackAuthors <= 0 {
		return fmt.Errorf("fallback totals must be positive")
	}
	if c.StartPage < 0 || c.EndPage < 0 {
		return fmt.Errorf("page bounds cannot be negative")
	}
	if c.EndPage > 0 && c.StartPage > c.EndPage {
		return fmt.Errorf("start page (%d) cannot exceed end page (%d)", c.StartPage, c.EndPage)
	}
	switch c.Backend {
	case BackendAuto, BackendChromedp, BackendRod, BackendStatic:
	default:
		return fmt.Errorf("backend must be auto, chromedp, rod, or static")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.PageLoadDelay < 0 || c.PageDelay < 0 || c.ItemDelay < 0 {
		return fmt.Errorf("delays cannot be negative")
	}
	if c.WaitTimeout <= 0 {
		return fmt.Errorf("wait timeout must be positive")
	}
	if c.MaxRetries <= 0 || c.ItemRetries <= 0 {
		return fmt.Errorf("max retries must be positive")
	}
	if c.ListingRetries <= 0 || c.TotalRetries <= 0 {
		return fmt.Errorf("listing retries must be positive")
	}
	if c.SessionDelay < 0 || c.ErrorDelay < 0 || c.BackoffBase < 0 {
		return fmt.Errorf("retry delays cannot be negative")
	}
	if c.BackoffMax < c.BackoffBase {
		return fmt.Errorf("backoff max (%v) cannot be below backoff base (%v)", c.BackoffMax, c.BackoffBase)
	}
	if c.HandlePageLimit <= 0 {
		return fmt.Errorf("handle page limit must be positive")
	}
	if c.RepeatWindow < 0 {
		return fmt.Errorf("repeat window cannot be negative")
	}
	if c.CompactEvery < 0 {
		return fmt.Errorf("compact every cannot be negative")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output dir cannot be empty")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	return nil
}

// Origin returns the scheme and host of BaseURL without a trailing slash.
func (c *Config) Origin() string {
	return strings.TrimRight(c.BaseURL, "/")
}

// ArticleListingURL returns the discover page for a 1-based page index.
func (c *Config) ArticleListingURL(page int) string {
	return fmt.Sprintf("%s%s%d", c.Origin(), c.ArticleListingPath, page)
}

// AuthorListingURL returns the author explorer page for an offset.
func (c *Config) AuthorListingURL(offset int) string {
	return fmt.Sprintf("%s%s%d", c.Origin(), c.AuthorListingPath, offset)
}

// Paths groups every file a flow reads or writes.
type Paths struct {
	Dir        string
	Checkpoint string
	State      string
	Processed  string
	Links      string
	Input      string
	RecordLog  string
	Snapshot   string
	Errors     string
	Forecast   string
}

// All lists every path the flow owns, for reset. Input is read-only and
// never included.
func (p Paths) All() []string {
	var out []string
	for _, path := range []string{p.Checkpoint, p.State, p.Processed, p.Links, p.RecordLog, p.Snapshot, p.Errors, p.Forecast} {
		if path != "" {
			out = append(out, path)
		}
	}
	return out
}

// LinkPaths returns the files used by the link harvest.
func (c *Config) LinkPaths() Paths {
	dir := filepath.Join(c.OutputDir, "links")
	return Paths{
		Dir:        dir,
		Checkpoint: filepath.Join(dir, "checkpoint.txt"),
		Processed:  filepath.Join(dir, "processed.txt"),
		Links:      filepath.Join(dir, "links.txt"),
		RecordLog:  filepath.Join(dir, "article_links.jsonl"),
		Snapshot:   filepath.Join(dir, "article_links.csv"),
		Errors:     filepath.Join(dir, "errors.csv"),
	}
}

// ArticlePaths returns the files used by the article detail harvest. The
// link list is read from the link harvest output.
func (c *Config) ArticlePaths() Paths {
	dir := filepath.Join(c.OutputDir, "articles")
	return Paths{
		Dir:       dir,
		Processed: filepath.Join(dir, "processed.txt"),
		Input:     c.LinkPaths().Links,
		RecordLog: filepath.Join(dir, "articles.jsonl"),
		Snapshot:  filepath.Join(dir, "articles.csv"),
		Errors:    filepath.Join(dir, "errors.csv"),
	}
}

// AuthorPaths returns the files used by the author harvest.
func (c *Config) AuthorPaths() Paths {
	dir := filepath.Join(c.OutputDir, "authors")
	return Paths{
		Dir:       dir,
		State:     filepath.Join(dir, "state.json"),
		RecordLog: filepath.Join(dir, "authors.jsonl"),
		Snapshot:  filepath.Join(dir, "authors.csv"),
		Errors:    filepath.Join(dir, "errors.csv"),
		Forecast:  filepath.Join(dir, "forecast.txt"),
	}
}
