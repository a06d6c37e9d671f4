// Package fetch performs plain HTTP page fetches for listing pages that do
// not need a browser.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// StatusError reports a non-2xx response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: http status %d", e.URL, e.Status)
}

// Page is a fetched and parsed HTML document.
type Page struct {
	URL    string
	Status int
	Body   []byte
	Doc    *goquery.Document
}

// Text returns the whitespace-collapsed text of the document body.
func (p *Page) Text() string {
	return collapseSpaces(p.Doc.Find("body").Text())
}

// Fetcher issues one GET per call through a fresh collector.
type Fetcher struct {
	UserAgent string
	Timeout   time.Duration
	Observe   func(d time.Duration, err error)

	transport http.RoundTripper
}

// New returns a Fetcher sending userAgent with a per-request timeout.
func New(userAgent string, timeout time.Duration) *Fetcher {
	return &Fetcher{UserAgent: userAgent, Timeout: timeout}
}

// WithTransport replaces the HTTP transport, mainly for tests.
func (f *Fetcher) WithTransport(rt http.RoundTripper) *Fetcher {
	f.transport = rt
	return f
}

// Get fetches url and parses the body. Non-2xx responses return a
// *StatusError.
func (f *Fetcher) Get(ctx context.Context, url string) (*Page, error) {
	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.UserAgent(f.UserAgent),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	if f.Timeout > 0 {
		c.SetRequestTimeout(f.Timeout)
	}
	if f.transport != nil {
		c.WithTransport(f.transport)
	}

	var (
		page   *Page
		status int
	)
	c.OnResponse(func(r *colly.Response) {
		page = &Page{
			URL:    r.Request.URL.String(),
			Status: r.StatusCode,
			Body:   r.Body,
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	start := time.Now()
	err := c.Visit(url)
	if err == nil && page == nil && status == 0 {
		err = errors.New("empty response")
	}
	if status >= http.StatusBadRequest || (status != 0 && page == nil) {
		err = &StatusError{URL: url, Status: status}
	}
	if err == nil {
		page.Doc, err = goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
		if err != nil {
			err = fmt.Errorf("parse %s: %w", url, err)
		}
	} else if _, ok := err.(*StatusError); !ok {
		err = fmt.Errorf("GET %s: %w", url, err)
	}

	if f.Observe != nil {
		f.Observe(time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}
	return page, nil
}
