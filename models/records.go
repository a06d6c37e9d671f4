// Package models defines the records harvested from the repository.
package models

import "strconv"

// Link is one child item discovered on a listing page.
type Link struct {
	URL  string
	Name string
}

// ArticleLink pairs an article URL with its first listed author.
type ArticleLink struct {
	Link   string `json:"link"`
	Author string `json:"author"`
}

var articleLinkHeader = []string{"link", "author"}

func (a ArticleLink) Key() string      { return a.Link }
func (a ArticleLink) Header() []string { return articleLinkHeader }
func (a ArticleLink) Row() []string    { return []string{a.Link, a.Author} }

// Article is the full metadata record of one article detail page.
type Article struct {
	URL           string `json:"url"`
	Title         string `json:"title"`
	Authors       string `json:"authors"`
	PublishedDate string `json:"published_date"`
	Publisher     string `json:"publisher"`
	Journal       string `json:"journal"`
	ISSN          string `json:"issn"`
	EISSN         string `json:"e_issn"`
	ISBN          string `json:"isbn"`
	Language      string `json:"language"`
	ResourceType  string `json:"resource_type"`
	Abstract      string `json:"abstract"`
	Keywords      string `json:"keywords"`
	URI           string `json:"uri"`
	URL1          string `json:"url_1"`
	URL2          string `json:"url_2"`
	DOI           string `json:"doi"`
	DCIdentifier  string `json:"dc_identifier"`
	Metadata      string `json:"metadata"`
}

var articleHeader = []string{
	"url", "title", "authors", "published_date", "publisher", "journal",
	"issn", "e_issn", "isbn", "language", "resource_type", "abstract",
	"keywords", "uri", "url_1", "url_2", "doi", "dc_identifier", "metadata",
}

func (a Article) Key() string      { return a.URL }
func (a Article) Header() []string { return articleHeader }

func (a Article) Row() []string {
	return []string{
		a.URL, a.Title, a.Authors, a.PublishedDate, a.Publisher, a.Journal,
		a.ISSN, a.EISSN, a.ISBN, a.Language, a.ResourceType, a.Abstract,
		a.Keywords, a.URI, a.URL1, a.URL2, a.DOI, a.DCIdentifier, a.Metadata,
	}
}

// Author is the profile record of one author page. Handles holds the
// sorted, de-duplicated publication handles joined with "|".
type Author struct {
	Name             string `json:"name"`
	Reference        string `json:"reference"`
	Link             string `json:"link"`
	Credentialed     bool   `json:"credentialed"`
	Title            string `json:"title"`
	Degree           string `json:"degree"`
	Specialty        string `json:"specialty"`
	ApplicationField string `json:"application_field"`
	Workplace        string `json:"workplace"`
	HandleCount      int    `json:"handle_count"`
	Handles          string `json:"handles"`
}

var authorHeader = []string{
	"name", "reference", "link", "credentialed", "title", "degree",
	"specialty", "application_field", "workplace", "handle_count", "handles",
}

func (a Author) Key() string      { return a.Link }
func (a Author) Header() []string { return authorHeader }

func (a Author) Row() []string {
	return []string{
		a.Name, a.Reference, a.Link, strconv.FormatBool(a.Credentialed),
		a.Title, a.Degree, a.Specialty, a.ApplicationField, a.Workplace,
		strconv.Itoa(a.HandleCount), a.Handles,
	}
}
