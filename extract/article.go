package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/aluiziolira/ri-harvester/browser"
	"github.com/aluiziolira/ri-harvester/models"
	"github.com/aluiziolira/ri-harvester/parser"
	"github.com/aluiziolira/ri-harvester/retry"
)

const otherField = `//div[@class="simple-item-view-other"]/span[contains(text(), "%s")]/following-sibling::span`

// FirstAuthorXPath matches the author links of an item page.
const FirstAuthorXPath = `//div[contains(@class,"simple-item-view-authors")]//a`

func articleFields(origin string) Fields[models.Article] {
	abs := func(href string) string { return parser.AbsoluteURL(origin, href) }
	other := func(label string) string { return fmt.Sprintf(otherField, label) }

	return Fields[models.Article]{
		{Column: "title", XPath: `//h1[@style="font-size:150%;font-weight: 500;font-family: 'Roboto'; margin-top: 3px;"]`,
			Set: func(a *models.Article, v string) { a.Title = v }},
		{Column: "authors", XPath: `//div[@class="simple-item-view-authors"]//a`, Multi: true,
			Set: func(a *models.Article, v string) { a.Authors = v }},
		{Column: "published_date", XPath: other("Fecha de publicación:"),
			Set: func(a *models.Article, v string) { a.PublishedDate = v }},
		{Column: "publisher", XPath: other("Editorial:"),
			Set: func(a *models.Article, v string) { a.Publisher = v }},
		{Column: "journal", XPath: other("Revista:"),
			Set: func(a *models.Article, v string) { a.Journal = v }},
		{Column: "issn", XPath: other("ISSN:"),
			Set: func(a *models.Article, v string) { a.ISSN = v }},
		{Column: "e_issn", XPath: other("e-ISSN:"),
			Set: func(a *models.Article, v string) { a.EISSN = v }},
		{Column: "isbn", XPath: other("ISBN:"),
			Set: func(a *models.Article, v string) { a.ISBN = v }},
		{Column: "language", XPath: other("Idioma:"),
			Set: func(a *models.Article, v string) { a.Language = v }},
		{Column: "resource_type", XPath: other("Tipo de recurso:"),
			Set: func(a *models.Article, v string) { a.ResourceType = v }},
		{Column: "abstract", XPath: `//div[@class="simple-item-view-description"]//div[@style="overflow-wrap: break-word;"]`,
			Set: func(a *models.Article, v string) { a.Abstract = v }},
		{Column: "keywords", XPath: `//div[@class="simple-item-view-description"]//a[contains(@href, "/discover?filtertype=subject")]`, Multi: true,
			Set: func(a *models.Article, v string) { a.Keywords = v }},
		{Column: "uri", XPath: `//span[contains(text(), "URI:")]/following-sibling::a`, Attr: "href", Clean: abs,
			Set: func(a *models.Article, v string) { a.URI = v }},
		{Column: "url_1", XPath: `(//span[contains(text(), "URL:")]/following-sibling::a)[1]`, Attr: "href", Clean: abs,
			Set: func(a *models.Article, v string) { a.URL1 = v }},
		{Column: "url_2", XPath: `(//span[contains(text(), "URL:")]/following-sibling::a)[2]`, Attr: "href", Clean: abs,
			Set: func(a *models.Article, v string) { a.URL2 = v }},
		{Column: "doi", XPath: `//span[contains(text(), "DOI:")]/following-sibling::a`, Attr: "href", Clean: abs,
			Set: func(a *models.Article, v string) { a.DOI = v }},
		{Column: "dc_identifier", XPath: `//meta[@name="DC.identifier"]`, Attr: "content",
			Set: func(a *models.Article, v string) { a.DCIdentifier = v }},
		{Column: "metadata", XPath: `//div[@class="item-summary-view-metadata"]`,
			Set: func(a *models.Article, v string) { a.Metadata = v }},
	}
}

// ArticleExtractor reads the full metadata record of an article page.
type ArticleExtractor struct {
	Settle time.Duration
	Sleep  retry.Sleeper
	fields Fields[models.Article]
}

// NewArticleExtractor resolves link fields against origin and waits settle
// after each navigation.
func NewArticleExtractor(origin string, settle time.Duration) *ArticleExtractor {
	return &ArticleExtractor{Settle: settle, fields: articleFields(origin)}
}

// Columns lists the extracted columns in read order.
func (x *ArticleExtractor) Columns() []string {
	out := make([]string, 0, len(x.fields))
	for _, f := range x.fields {
		out = append(out, f.Column)
	}
	return out
}

// Extract navigates to url and reads every field. Navigation failures are
// returned; missing fields are left empty.
func (x *ArticleExtractor) Extract(ctx context.Context, s browser.Session, url string) (models.Article, error) {
	rec := models.Article{URL: url}
	if err := visit(ctx, s, url, x.Settle, x.Sleep); err != nil {
		return rec, err
	}
	err := x.fields.Apply(ctx, s, &rec)
	return rec, err
}

// LinkAuthorExtractor reads the first listed author of an article page.
type LinkAuthorExtractor struct {
	Settle time.Duration
	Sleep  retry.Sleeper
	fields Fields[models.ArticleLink]
}

func NewLinkAuthorExtractor(settle time.Duration) *LinkAuthorExtractor {
	return &LinkAuthorExtractor{
		Settle: settle,
		fields: Fields[models.ArticleLink]{{
			Column: "author",
			XPath:  FirstAuthorXPath,
			Set:    func(l *models.ArticleLink, v string) { l.Author = v },
		}},
	}
}

func (x *LinkAuthorExtractor) Extract(ctx context.Context, s browser.Session, url string) (models.ArticleLink, error) {
	rec := models.ArticleLink{Link: url}
	if err := visit(ctx, s, url, x.Settle, x.Sleep); err != nil {
		return rec, err
	}
	err := x.fields.Apply(ctx, s, &rec)
	return rec, err
}

func visit(ctx context.Context, s browser.Session, url string, settle time.Duration, sleep retry.Sleeper) error {
	if err := s.Navigate(ctx, url); err != nil {
		return err
	}
	if sleep == nil {
		sleep = retry.Sleep
	}
	return sleep(ctx, settle)
}
