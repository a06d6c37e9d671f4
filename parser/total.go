package parser

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	articleTotalPattern = regexp.MustCompile(`total de\s+([\d\.]+)`)
	authorTotalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[Dd]el\s+\d+\s+[Aa]l\s+\d+\s+[Dd]e\s+([\d\.,]+)`),
		regexp.MustCompile(`Mostrando\s+ítems.*?de\s+([\d\.,]+)`),
	}
	longNumberPattern = regexp.MustCompile(`\d{3,}`)
)

// ArticleTotal extracts the result count from a discover page heading such
// as "Mostrando ítems 1-10 de un total de 271.533".
func ArticleTotal(heading string) (int, bool) {
	m := articleTotalPattern.FindStringSubmatch(heading)
	if m == nil {
		return 0, false
	}
	return parseCount(m[1])
}

// AuthorTotal extracts the author count from the explorer summary text. It
// tries the known summary phrasings first and falls back to the largest
// number of three or more digits on the page.
func AuthorTotal(text string) (int, bool) {
	for _, p := range authorTotalPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			if n, ok := parseCount(m[1]); ok {
				return n, true
			}
		}
	}

	best, found := 0, false
	for _, raw := range longNumberPattern.FindAllString(text, -1) {
		if n, err := strconv.Atoi(raw); err == nil && n > best {
			best, found = n, true
		}
	}
	return best, found
}

// PageCount returns how many pages of size hold total items.
func PageCount(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	pages := total / size
	if total%size > 0 {
		pages++
	}
	return pages
}

func parseCount(raw string) (int, bool) {
	digits := strings.NewReplacer(".", "", ",", "").Replace(raw)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}
