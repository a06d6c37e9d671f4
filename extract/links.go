package extract

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/ri-harvester/browser"
	"github.com/aluiziolira/ri-harvester/models"
	"github.com/aluiziolira/ri-harvester/parser"
)

// ArticleItemXPath selects every handle link inside listing items. Items
// often link the same handle more than once, so callers keep the first link
// per handle.
const ArticleItemXPath = `//*[contains(@class,'ds-artifact-item')]//a[contains(@href, '/handle/11336/')]`

// ArticleHeadingXPath selects the result summary heading of a discover page.
const ArticleHeadingXPath = `//h2[contains(@class,'ds-div-head')]`

// ArticleLinks returns the item links of the discover page loaded in s,
// absolute and one per item handle, in page order.
func ArticleLinks(ctx context.Context, s browser.Session, origin string) ([]models.Link, error) {
	anchors, err := s.FindAll(ctx, ArticleItemXPath)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(anchors))
	links := make([]models.Link, 0, len(anchors))
	for _, a := range anchors {
		href, err := a.Attr(ctx, "href")
		if err != nil || !parser.IsItemLink(href) {
			continue
		}
		abs := parser.AbsoluteURL(origin, href)
		id := itemID(href)
		if _, ok := seen[id]; ok || abs == "" || id == "" {
			continue
		}
		seen[id] = struct{}{}
		name, _ := a.Text(ctx)
		links = append(links, models.Link{URL: abs, Name: name})
	}
	return links, nil
}

// itemID is the first segment of the handle, so "/handle/11336/7/full"
// and "/handle/11336/7" name the same item.
func itemID(href string) string {
	id, _, _ := strings.Cut(parser.HandleFromURL(href), "/")
	return id
}

// ArticlePageTotal reads the result count from the discover heading.
func ArticlePageTotal(ctx context.Context, s browser.Session) (int, bool) {
	h, err := s.Find(ctx, ArticleHeadingXPath)
	if err != nil {
		return 0, false
	}
	text, err := h.Text(ctx)
	if err != nil {
		return 0, false
	}
	return parser.ArticleTotal(text)
}

// AuthorLinks returns the author links of an explorer page. Anchors with
// empty text are skipped.
func AuthorLinks(doc *goquery.Document, origin string) []models.Link {
	var links []models.Link
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !parser.IsAuthorLink(href) {
			return
		}
		name := strings.TrimSpace(a.Text())
		abs := parser.AbsoluteURL(origin, href)
		if name == "" || abs == "" {
			return
		}
		links = append(links, models.Link{URL: abs, Name: name})
	})
	return links
}
