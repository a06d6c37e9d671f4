package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/ri-harvester/browser"
	"github.com/aluiziolira/ri-harvester/config"
	"github.com/aluiziolira/ri-harvester/extract"
	"github.com/aluiziolira/ri-harvester/fetch"
	"github.com/aluiziolira/ri-harvester/listing"
	"github.com/aluiziolira/ri-harvester/models"
	"github.com/aluiziolira/ri-harvester/store"
)

func TestClassifyError(t *testing.T) {
	status := func(code int) error { return &fetch.StatusError{URL: "http://x", Status: code} }
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, expected: "connection"},
		{name: "forbidden", err: status(http.StatusForbidden), expected: "forbidden"},
		{name: "not found", err: status(http.StatusNotFound), expected: "not_found"},
		{name: "rate limited", err: status(http.StatusTooManyRequests), expected: "rate_limited"},
		{name: "other status", err: status(http.StatusBadGateway), expected: "http_status"},
		{name: "session", err: &browser.SessionError{Backend: "rod", Op: "navigate", Err: errors.New("closed")}, expected: "session"},
		{name: "proxy", err: fmt.Errorf("page: %w", extract.ErrProxyPage), expected: "proxy"},
		{name: "empty page", err: listing.ErrEmptyPage, expected: "empty_page"},
		{name: "element", err: browser.ErrNotFound, expected: "element"},
		{name: "other", err: errors.New("some other error"), expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err)); got != tt.expected {
				t.Fatalf("classifyError(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

type sleepLog struct{ waits []time.Duration }

func (s *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	if d > 0 {
		s.waits = append(s.waits, d)
	}
	return ctx.Err()
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.Backend = config.BackendStatic
	cfg.OutputDir = t.TempDir()
	cfg.Timeout = 2 * time.Second
	cfg.WaitTimeout = time.Second
	cfg.CompactEvery = 0
	return cfg
}

func newTestHarvester(t *testing.T, cfg *config.Config, opts ...Option) *Harvester {
	t.Helper()
	h, err := New(cfg, append([]Option{WithSleeper(noSleep)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func itemPage(author string) string {
	return `<html><head><meta name="DC.identifier" content="hdl"></head><body>
<h1 style="font-size:150%;font-weight: 500;font-family: 'Roboto'; margin-top: 3px;">Item</h1>
<div class="simple-item-view-authors"><a href="/author/1">` + author + `</a><a href="/author/2">Otro, B.</a></div>
</body></html>`
}

// newRepositoryServer serves two discover pages, item pages 1, 2 and 4, and
// a 404 for item 3.
func newRepositoryServer(t *testing.T) *httptest.Server {
	t.Helper()
	listingPages := map[string]string{
		"1": `<h2 class="ds-div-head">Mostrando ítems 1-10 de un total de 20</h2>
<div class="ds-artifact-item"><a href="/handle/11336/1">Uno</a></div>
<div class="ds-artifact-item"><a href="/handle/11336/2">Dos</a></div>`,
		"2": `<h2 class="ds-div-head">Mostrando ítems 11-20 de un total de 20</h2>
<div class="ds-artifact-item"><a href="/handle/11336/3">Tres</a></div>
<div class="ds-artifact-item"><a href="/handle/11336/4">Cuatro</a></div>`,
	}
	items := map[string]string{
		"/handle/11336/1": itemPage("Pérez, Juan"),
		"/handle/11336/2": itemPage("Gómez, Ana"),
		"/handle/11336/4": itemPage("Ruiz, Luis"),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if r.URL.Path == "/discover" {
			body, ok := listingPages[r.URL.Query().Get("page")]
			if !ok {
				body = `<h2 class="ds-div-head">Mostrando ítems de un total de 20</h2>`
			}
			fmt.Fprint(w, "<html><body>"+body+"</body></html>")
			return
		}
		body, ok := items[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestRunLinks(t *testing.T) {
	srv := newRepositoryServer(t)
	cfg := testConfig(t, srv.URL)
	h := newTestHarvester(t, cfg)

	res, err := h.RunLinks(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.PageCount)
	assert.Equal(t, 3, res.ItemCount)
	assert.Equal(t, 1, res.ErrorCount)
	assert.Equal(t, 3, res.NextCursor)
	assert.Equal(t, 1, res.ErrorsByType["not_found"])
	assert.Equal(t, []string{srv.URL + "/handle/11336/3"}, res.FailedUnits)
	assert.Equal(t, 2, res.RetryCount)

	paths := cfg.LinkPaths()
	assert.Equal(t, []string{
		srv.URL + "/handle/11336/1",
		srv.URL + "/handle/11336/2",
		srv.URL + "/handle/11336/3",
		srv.URL + "/handle/11336/4",
	}, readLines(t, paths.Links))
	assert.Equal(t, 3, (store.CursorFile{Path: paths.Checkpoint}).Load())

	recs, _, err := store.ReadLog[models.ArticleLink](paths.RecordLog)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "Pérez, Juan", recs[0].Author)
	assert.Equal(t, "Ruiz, Luis", recs[2].Author)

	snapshot := readLines(t, paths.Snapshot)
	assert.Equal(t, "link,author", snapshot[0])
	assert.Len(t, snapshot, 4)

	errLines := readLines(t, paths.Errors)
	assert.Equal(t, "source,error,timestamp", errLines[0])
	assert.Len(t, errLines, 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(h.Metrics.PagesTotal.WithLabelValues(FlowLinks)))
	assert.Equal(t, 3.0, testutil.ToFloat64(h.Metrics.ItemsTotal.WithLabelValues(FlowLinks, "stored")))
}

func TestRunLinksResumeSkipsProcessed(t *testing.T) {
	srv := newRepositoryServer(t)
	cfg := testConfig(t, srv.URL)

	_, err := newTestHarvester(t, cfg).RunLinks(context.Background())
	require.NoError(t, err)

	// The checkpoint is past the last page, so a plain rerun does nothing.
	res, err := newTestHarvester(t, cfg).RunLinks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.PageCount)
	assert.Equal(t, 0, res.ItemCount)

	cfg.StartPage = 1
	res, err = newTestHarvester(t, cfg).RunLinks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.PageCount)
	assert.Equal(t, 0, res.ItemCount)
	assert.Equal(t, 3, res.SkippedCount)
	assert.Equal(t, 1, res.ErrorCount)
	assert.Len(t, readLines(t, cfg.LinkPaths().Links), 4)
}

func TestRunLinksReset(t *testing.T) {
	srv := newRepositoryServer(t)
	cfg := testConfig(t, srv.URL)

	_, err := newTestHarvester(t, cfg).RunLinks(context.Background())
	require.NoError(t, err)

	cfg.Reset = true
	res, err := newTestHarvester(t, cfg).RunLinks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.StartCursor)
	assert.Equal(t, 3, res.ItemCount)
}

func TestRunLinksCancelled(t *testing.T) {
	srv := newRepositoryServer(t)
	cfg := testConfig(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestHarvester(t, cfg).RunLinks(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func writeLinkFile(t *testing.T, path string, urls ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(urls, "\n")+"\n"), 0o644))
}

func TestRunArticles(t *testing.T) {
	srv := newRepositoryServer(t)
	cfg := testConfig(t, srv.URL)
	linksPath := filepath.Join(t.TempDir(), "links.txt")
	writeLinkFile(t, linksPath,
		srv.URL+"/handle/11336/1",
		srv.URL+"/handle/11336/3",
		srv.URL+"/handle/11336/4",
	)

	res, err := newTestHarvester(t, cfg).RunArticles(context.Background(), ArticleOptions{LinksFile: linksPath, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ItemCount)
	assert.Equal(t, 1, res.NextCursor)

	res, err = newTestHarvester(t, cfg).RunArticles(context.Background(), ArticleOptions{LinksFile: linksPath})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ItemCount)
	assert.Equal(t, 1, res.SkippedCount)
	assert.Equal(t, 1, res.ErrorCount)
	assert.Equal(t, 3, res.NextCursor)

	recs, _, err := store.ReadLog[models.Article](cfg.ArticlePaths().RecordLog)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Item", recs[0].Title)
	assert.Equal(t, "Ruiz, Luis; Otro, B.", recs[1].Authors)
	assert.Equal(t, "hdl", recs[1].DCIdentifier)

	snapshot := readLines(t, cfg.ArticlePaths().Snapshot)
	assert.True(t, strings.HasPrefix(snapshot[0], "url,title,authors"))
	assert.Len(t, snapshot, 3)
}

func TestRunArticlesRequiresLinkFile(t *testing.T) {
	cfg := testConfig(t, "http://example.test")
	_, err := newTestHarvester(t, cfg).RunArticles(context.Background(), ArticleOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func authorProfile(n int) string {
	return fmt.Sprintf(`<html><body><img src="/logo.png"><table>
<tr><td>Título</td><td>Doctor %d</td></tr>
<tr><td>Lugar de trabajo</td><td>IFEVA</td></tr>
</table><a href="/handle/11336/%d">pub</a></body></html>`, n, 100+n)
}

func newAuthorSite(t *testing.T) *httptest.Server {
	t.Helper()
	listingPages := map[string]string{
		"0": `<p>Del 1 al 2 de 3</p><a href="/author/1">Uno, A.</a><a href="/author/2">Dos, B.</a>`,
		"2": `<p>Del 3 al 3 de 3</p><a href="/author/3">Tres, C.</a>`,
	}
	profiles := map[string]string{
		"/author/1": authorProfile(1),
		"/author/2": authorProfile(2),
		"/author/3": `<html><body><h1>Proxy Error</h1></body></html>`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if r.URL.Path == "/explorar-autores" {
			fmt.Fprint(w, "<html><body>"+listingPages[r.URL.Query().Get("offset")]+"</body></html>")
			return
		}
		body, ok := profiles[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunAuthors(t *testing.T) {
	srv := newAuthorSite(t)
	cfg := testConfig(t, srv.URL)
	cfg.AuthorPageSize = 2
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := newTestHarvester(t, cfg, WithClock(func() time.Time { return clock }))

	res, err := h.RunAuthors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.PageCount)
	assert.Equal(t, 2, res.ItemCount)
	assert.Equal(t, 1, res.ErrorCount)
	assert.Equal(t, 1, res.ErrorsByType["proxy"])
	assert.Equal(t, 4, res.NextCursor)

	paths := cfg.AuthorPaths()
	st := (store.StateFile{Path: paths.State}).Load()
	assert.Equal(t, 4, st.LastOffset)
	assert.Equal(t, 3, st.TotalCount)
	assert.Len(t, st.Processed, 2)
	assert.True(t, st.Processed[srv.URL+"/author/1"])

	recs, _, err := store.ReadLog[models.Author](paths.RecordLog)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Uno, A.", recs[0].Name)
	assert.True(t, recs[0].Credentialed)
	assert.Equal(t, "Doctor 1", recs[0].Title)
	assert.Equal(t, "IFEVA", recs[0].Workplace)
	assert.Equal(t, 1, recs[0].HandleCount)
	assert.Equal(t, "101", recs[0].Handles)

	report, err := os.ReadFile(paths.Forecast)
	require.NoError(t, err)
	assert.Contains(t, string(report), "Authors processed: 2 / 3")

	// A second run resumes past the bound and stores nothing.
	res, err = newTestHarvester(t, cfg).RunAuthors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.PageCount)
	assert.Equal(t, 0, res.ItemCount)
}

func TestRunAuthorsRetriesFailedOnRestart(t *testing.T) {
	srv := newAuthorSite(t)
	cfg := testConfig(t, srv.URL)
	cfg.AuthorPageSize = 2

	_, err := newTestHarvester(t, cfg).RunAuthors(context.Background())
	require.NoError(t, err)

	st := (store.StateFile{Path: cfg.AuthorPaths().State}).Load()
	st.LastOffset = 0
	require.NoError(t, (store.StateFile{Path: cfg.AuthorPaths().State}).Save(st))

	res, err := newTestHarvester(t, cfg).RunAuthors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.SkippedCount)
	assert.Equal(t, 1, res.ErrorCount)
}

func TestAuthorListingBackoff(t *testing.T) {
	transport := httpmock.NewMockTransport()
	calls := 0
	transport.RegisterResponder("GET", "http://example.test/explorar-autores?field=null&offset=0",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewStringResponse(http.StatusServiceUnavailable, "busy"), nil
			}
			resp := httpmock.NewStringResponse(http.StatusOK, `<html><body><p>Mostrando ítems 1-90 de 313.483</p></body></html>`)
			resp.Header.Set("Content-Type", "text/html")
			return resp, nil
		})

	cfg := testConfig(t, "http://example.test")
	sleeps := &sleepLog{}
	h := newTestHarvester(t, cfg,
		WithFetcher(fetch.New("test", time.Second).WithTransport(transport)),
		WithSleeper(sleeps.sleep),
	)

	total, err := (&authorListing{h: h}).total(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 313483, total)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeps.waits)
}

func TestAuthorListingExhausted(t *testing.T) {
	tests := []struct {
		name       string
		retries    int
		backoffMax time.Duration
		waits      []time.Duration
	}{
		{name: "default cap", retries: 3, backoffMax: time.Minute,
			waits: []time.Duration{2 * time.Second, 4 * time.Second}},
		{name: "capped", retries: 4, backoffMax: 3 * time.Second,
			waits: []time.Duration{2 * time.Second, 3 * time.Second, 3 * time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", "http://example.test/explorar-autores?field=null&offset=90",
				httpmock.NewStringResponder(http.StatusBadGateway, "bad gateway"))

			cfg := testConfig(t, "http://example.test")
			cfg.ListingRetries = tt.retries
			cfg.BackoffMax = tt.backoffMax
			sleeps := &sleepLog{}
			h := newTestHarvester(t, cfg,
				WithFetcher(fetch.New("test", time.Second).WithTransport(transport)),
				WithSleeper(sleeps.sleep),
			)

			_, err := (&authorListing{h: h}).Links(context.Background(), 90)
			var status *fetch.StatusError
			require.ErrorAs(t, err, &status)
			assert.Equal(t, http.StatusBadGateway, status.Status)
			assert.Equal(t, tt.retries, transport.GetTotalCallCount())
			assert.Equal(t, tt.waits, sleeps.waits)
		})
	}
}

func TestBrowserStartFailureAbortsFlow(t *testing.T) {
	tests := []struct {
		name string
		run  func(ctx context.Context, h *Harvester, cfg *config.Config) (*models.RunResult, error)
	}{
		{name: "links", run: func(ctx context.Context, h *Harvester, cfg *config.Config) (*models.RunResult, error) {
			cfg.EndPage = 3
			return h.RunLinks(ctx)
		}},
		{name: "articles", run: func(ctx context.Context, h *Harvester, cfg *config.Config) (*models.RunResult, error) {
			linksPath := filepath.Join(t.TempDir(), "links.txt")
			writeLinkFile(t, linksPath, "http://example.test/handle/11336/1", "http://example.test/handle/11336/2")
			return h.RunArticles(ctx, ArticleOptions{LinksFile: linksPath})
		}},
		{name: "authors", run: func(ctx context.Context, h *Harvester, cfg *config.Config) (*models.RunResult, error) {
			return h.RunAuthors(ctx)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, "http://example.test")
			opens := 0
			noBrowser := errors.New("no browser found")
			manager := &browser.Manager{Open: func(context.Context) (browser.Session, error) {
				opens++
				return nil, noBrowser
			}}
			h := newTestHarvester(t, cfg, WithBrowser(manager))

			res, err := tt.run(context.Background(), h, cfg)
			require.ErrorIs(t, err, noBrowser)
			assert.Nil(t, res)
			assert.Equal(t, 1, opens)

			_, statErr := os.Stat(filepath.Join(cfg.OutputDir, tt.name, "errors.csv"))
			assert.ErrorIs(t, statErr, os.ErrNotExist)
		})
	}
}

func sampleCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, h.Write(m))
	return m.GetHistogram().GetSampleCount()
}

func TestNavigationLatencyObserved(t *testing.T) {
	srv := newRepositoryServer(t)
	cfg := testConfig(t, srv.URL)
	linksPath := filepath.Join(t.TempDir(), "links.txt")
	writeLinkFile(t, linksPath, srv.URL+"/handle/11336/1")
	h := newTestHarvester(t, cfg)

	res, err := h.RunArticles(context.Background(), ArticleOptions{LinksFile: linksPath})
	require.NoError(t, err)
	require.Equal(t, 1, res.ItemCount)

	assert.Equal(t, uint64(1), sampleCount(t, h.Metrics.NavigationDuration))
	assert.Equal(t, uint64(1), sampleCount(t, h.Metrics.FetchDuration))
}

func TestForecastReport(t *testing.T) {
	f := Forecast{
		Processed:  290,
		Total:      300,
		Offset:     180,
		PageSize:   90,
		Elapsed:    time.Hour,
		RunItems:   10,
		Now:        time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		ZoneOffset: -3,
	}

	assert.Equal(t, 6*time.Minute, f.PerItem())
	assert.Equal(t, time.Hour, f.Remaining())
	done, pages := f.Pages()
	assert.Equal(t, 2, done)
	assert.Equal(t, 4, pages)
	assert.InDelta(t, 50.0, f.Percent(), 0.001)

	var b strings.Builder
	_, err := f.WriteTo(&b)
	require.NoError(t, err)
	report := b.String()
	assert.Contains(t, report, "Authors processed: 290 / 300")
	assert.Contains(t, report, "Pages: 2 / 4")
	assert.Contains(t, report, "Average: 360.00s per author")
	assert.Contains(t, report, "UTC-3: 2026-01-01 10:00:00")
	assert.Contains(t, report, "UTC: 2026-01-01 13:00:00")
}

func TestWriteForecastSkipsEmptyRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forecast.txt")
	require.NoError(t, writeForecast(path, Forecast{Total: 10}))
	_, err := os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCompactAll(t *testing.T) {
	srv := newRepositoryServer(t)
	cfg := testConfig(t, srv.URL)
	_, err := newTestHarvester(t, cfg).RunLinks(context.Background())
	require.NoError(t, err)
	require.NoError(t, os.Remove(cfg.LinkPaths().Snapshot))

	metrics := NewMetrics()
	stats, err := CompactAll(cfg, metrics)
	require.NoError(t, err)
	assert.Equal(t, 3, stats[FlowLinks].Records)
	assert.Equal(t, 0, stats[FlowAuthors].Records)
	assert.Len(t, readLines(t, cfg.LinkPaths().Snapshot), 4)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CompactionsTotal.WithLabelValues(FlowLinks)))
}
