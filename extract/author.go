package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aluiziolira/ri-harvester/browser"
	"github.com/aluiziolira/ri-harvester/models"
	"github.com/aluiziolira/ri-harvester/parser"
	"github.com/aluiziolira/ri-harvester/retry"
)

// ErrProxyPage is returned when the site answers with a gateway error page.
var ErrProxyPage = errors.New("proxy error page")

var proxyMarkers = []string{"Proxy Error", "502 Bad Gateway", "invalid response"}

const (
	handleXPath   = `//a[contains(@href, '/handle/11336/')]`
	nextPageXPath = `//a[@class='next-page-link' and contains(text(), 'Página siguiente')]`
	tableCell     = `//td[contains(text(), '%s')]/following-sibling::td`
)

func authorFields() Fields[models.Author] {
	clean := strings.TrimSpace
	cell := func(label string) string { return fmt.Sprintf(tableCell, label) }
	return Fields[models.Author]{
		{Column: "title", XPath: cell("Título"), Clean: clean,
			Set: func(a *models.Author, v string) { a.Title = v }},
		{Column: "workplace", XPath: cell("Lugar de trabajo"), Clean: clean,
			Set: func(a *models.Author, v string) { a.Workplace = v }},
		{Column: "application_field", XPath: cell("Campo de aplicación"), Clean: clean,
			Set: func(a *models.Author, v string) { a.ApplicationField = v }},
		{Column: "specialty", XPath: cell("Especialidad"), Clean: clean,
			Set: func(a *models.Author, v string) { a.Specialty = v }},
		{Column: "degree", XPath: cell("Grado"), Clean: clean,
			Set: func(a *models.Author, v string) { a.Degree = v }},
	}
}

// AuthorExtractor reads an author profile and pages through its
// publication list collecting handles.
type AuthorExtractor struct {
	WaitTimeout     time.Duration
	HandlePageLimit int
	fields          Fields[models.Author]
}

func NewAuthorExtractor(wait time.Duration, handlePageLimit int) *AuthorExtractor {
	return &AuthorExtractor{WaitTimeout: wait, HandlePageLimit: handlePageLimit, fields: authorFields()}
}

// Extract visits link and returns the author record. A proxy error page
// yields ErrProxyPage so the caller can retry.
func (x *AuthorExtractor) Extract(ctx context.Context, s browser.Session, name, link string) (models.Author, error) {
	rec := models.Author{Name: parser.EscapeText(name), Link: link}

	if err := s.Navigate(ctx, link); err != nil {
		return rec, err
	}
	if err := s.WaitFor(ctx, "//body", x.WaitTimeout); err != nil {
		return rec, err
	}
	src, err := s.Source(ctx)
	if err != nil {
		return rec, err
	}
	for _, marker := range proxyMarkers {
		if strings.Contains(src, marker) {
			return rec, fmt.Errorf("%s: %w (%s)", link, ErrProxyPage, marker)
		}
	}

	if strings.Contains(link, "author/") {
		rec.Reference = parser.ReferenceFromURL(link)
		imgs, err := s.FindAll(ctx, "//img")
		if err != nil && (retry.IsFatal(err) || ctx.Err() != nil) {
			return rec, err
		}
		rec.Credentialed = len(imgs) > 0
	}

	if err := x.fields.Apply(ctx, s, &rec); err != nil {
		return rec, err
	}

	handles, err := x.collectHandles(ctx, s)
	if err != nil {
		return rec, err
	}
	rec.HandleCount = len(handles)
	rec.Handles = parser.JoinSet(handles, parser.HandleSeparator)
	return rec, nil
}

// collectHandles follows the "next page" control until it disappears, a
// page adds no new handle, or the page limit is reached.
func (x *AuthorExtractor) collectHandles(ctx context.Context, s browser.Session) (map[string]struct{}, error) {
	handles := make(map[string]struct{})
	limit := x.HandlePageLimit
	if limit <= 0 {
		limit = 1
	}

	for page := 1; page <= limit; page++ {
		anchors, err := s.FindAll(ctx, handleXPath)
		if err != nil {
			return handles, stopOrFail(ctx, err)
		}
		if len(anchors) == 0 {
			break
		}

		added := 0
		for _, a := range anchors {
			href, err := a.Attr(ctx, "href")
			if err != nil {
				if retry.IsFatal(err) || ctx.Err() != nil {
					return handles, err
				}
				continue
			}
			h := parser.HandleFromURL(href)
			if h == "" {
				continue
			}
			if _, ok := handles[h]; !ok {
				handles[h] = struct{}{}
				added++
			}
		}
		if added == 0 && page > 1 {
			break
		}

		next, err := s.Find(ctx, nextPageXPath)
		if err != nil {
			return handles, stopOrFail(ctx, err)
		}
		if err := next.Click(ctx); err != nil {
			return handles, stopOrFail(ctx, err)
		}
		if err := s.WaitFor(ctx, handleXPath, x.WaitTimeout); err != nil {
			return handles, stopOrFail(ctx, err)
		}
		if page == limit {
			slog.Warn("handle page limit reached", slog.Int("limit", limit))
		}
	}
	return handles, nil
}

// stopOrFail ends pagination quietly unless the session or context died.
func stopOrFail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if retry.IsFatal(err) {
		return err
	}
	return nil
}
