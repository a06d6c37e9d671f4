package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/aluiziolira/ri-harvester/fetch"
)

var errNoPage = errors.New("no page loaded")

// staticSession evaluates XPath over server-rendered HTML fetched without a
// browser. Clicking a link navigates to its href.
type staticSession struct {
	fetcher *fetch.Fetcher
	url     string
	doc     *goquery.Document
}

func openStatic(opts Options) *staticSession {
	f := opts.Fetcher
	if f == nil {
		f = fetch.New(opts.UserAgent, opts.Timeout)
	}
	return &staticSession{fetcher: f}
}

// NewStatic returns a static session backed by f.
func NewStatic(f *fetch.Fetcher) Session {
	return &staticSession{fetcher: f}
}

func (s *staticSession) Navigate(ctx context.Context, target string) error {
	page, err := s.fetcher.Get(ctx, target)
	if err != nil {
		return err
	}
	s.url = page.URL
	s.doc = page.Doc
	return nil
}

func (s *staticSession) root() (*html.Node, error) {
	if s.doc == nil || len(s.doc.Nodes) == 0 {
		return nil, errNoPage
	}
	return s.doc.Nodes[0], nil
}

func (s *staticSession) FindAll(_ context.Context, xpath string) ([]Element, error) {
	root, err := s.root()
	if err != nil {
		return nil, err
	}
	nodes, err := htmlquery.QueryAll(root, xpath)
	if err != nil {
		return nil, fmt.Errorf("xpath %q: %w", xpath, err)
	}
	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &staticElement{s: s, node: n})
	}
	return out, nil
}

func (s *staticSession) Find(ctx context.Context, xpath string) (Element, error) {
	return first(s.FindAll(ctx, xpath))
}

// WaitFor checks once: a static document never changes after load.
func (s *staticSession) WaitFor(ctx context.Context, xpath string, _ time.Duration) error {
	if _, err := s.Find(ctx, xpath); err != nil {
		return fmt.Errorf("wait for %s: %w", xpath, err)
	}
	return nil
}

func (s *staticSession) Source(context.Context) (string, error) {
	if s.doc == nil {
		return "", errNoPage
	}
	return s.doc.Html()
}

func (s *staticSession) Close() error { return nil }

type staticElement struct {
	s    *staticSession
	node *html.Node
}

func (e *staticElement) Text(context.Context) (string, error) {
	return strings.TrimSpace(htmlquery.InnerText(e.node)), nil
}

func (e *staticElement) Attr(_ context.Context, name string) (string, error) {
	return htmlquery.SelectAttr(e.node, name), nil
}

func (e *staticElement) Click(ctx context.Context) error {
	if e.node.Type != html.ElementNode || e.node.Data != "a" {
		return fmt.Errorf("click <%s>: %w", e.node.Data, ErrUnsupported)
	}
	href := htmlquery.SelectAttr(e.node, "href")
	base, err := url.Parse(e.s.url)
	if err != nil {
		return fmt.Errorf("click: base url: %w", err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return fmt.Errorf("click: href %q: %w", href, err)
	}
	return e.s.Navigate(ctx, base.ResolveReference(ref).String())
}
