package parser

import (
	"strings"
	"testing"
)

func TestEscapeText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty string", input: "", expected: ""},
		{name: "plain", input: "Plain title", expected: "Plain title"},
		{name: "quotes doubled", input: `A "quoted" word`, expected: `A ""quoted"" word`},
		{name: "newlines flattened", input: "line one\nline two\r\nline three", expected: "line one line two line three"},
		{name: "surrounding whitespace", input: "  padded \n", expected: "padded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EscapeText(tt.input); got != tt.expected {
				t.Errorf("EscapeText(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestEscapeRoundTrip(t *testing.T) {
	inputs := []string{
		`He said "hello"`,
		"multi\nline \"abstract\"",
		`""already doubled""`,
		"no special characters",
	}

	for _, input := range inputs {
		want := strings.TrimSpace(newlineReplacer.Replace(input))
		if got := UnescapeText(EscapeText(input)); got != want {
			t.Errorf("round trip of %q = %q, want %q", input, got, want)
		}
	}
}

func TestJoinValues(t *testing.T) {
	got := JoinValues([]string{"Pérez, Juan", "", "  ", "Gómez, \"Ana\""})
	want := `Pérez, Juan; Gómez, ""Ana""`
	if got != want {
		t.Fatalf("JoinValues = %q, want %q", got, want)
	}
	if got := JoinValues(nil); got != "" {
		t.Fatalf("JoinValues(nil) = %q, want empty", got)
	}
}

func TestJoinSet(t *testing.T) {
	set := map[string]struct{}{"200": {}, "100": {}, "150": {}}
	if got := JoinSet(set, HandleSeparator); got != "100|150|200" {
		t.Fatalf("JoinSet = %q", got)
	}
}

func TestAbsoluteURL(t *testing.T) {
	const origin = "https://ri.conicet.gov.ar"
	tests := []struct {
		name     string
		href     string
		expected string
	}{
		{name: "root relative", href: "/handle/11336/123", expected: "https://ri.conicet.gov.ar/handle/11336/123"},
		{name: "relative", href: "handle/11336/9", expected: "https://ri.conicet.gov.ar/handle/11336/9"},
		{name: "absolute kept", href: "https://other.example/x", expected: "https://other.example/x"},
		{name: "query kept", href: "/discover?filtertype=author&value=X", expected: "https://ri.conicet.gov.ar/discover?filtertype=author&value=X"},
		{name: "empty", href: "  ", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AbsoluteURL(origin, tt.href); got != tt.expected {
				t.Errorf("AbsoluteURL(%q) = %q, want %q", tt.href, got, tt.expected)
			}
		})
	}
}

func TestLinkPredicates(t *testing.T) {
	if !IsItemLink("/handle/11336/555") {
		t.Error("handle link not recognised")
	}
	if IsItemLink("/browse?type=author") {
		t.Error("browse link recognised as item")
	}
	if !IsAuthorLink("/author/12345") || !IsAuthorLink("/discover?FILTERTYPE=AUTHOR&value=x") {
		t.Error("author links not recognised")
	}
	if IsAuthorLink("/handle/11336/1") {
		t.Error("item link recognised as author")
	}
}

func TestHandleFromURL(t *testing.T) {
	tests := []struct {
		href     string
		expected string
	}{
		{href: "https://ri.conicet.gov.ar/handle/11336/98765", expected: "98765"},
		{href: "/handle/11336/98765/", expected: "98765"},
		{href: "/handle/11336/42?show=full", expected: "42"},
		{href: "/author/1", expected: ""},
	}
	for _, tt := range tests {
		if got := HandleFromURL(tt.href); got != tt.expected {
			t.Errorf("HandleFromURL(%q) = %q, want %q", tt.href, got, tt.expected)
		}
	}
}

func TestReferenceFromURL(t *testing.T) {
	tests := []struct {
		href     string
		expected string
	}{
		{href: "https://ri.conicet.gov.ar/author/29341", expected: "29341"},
		{href: "/author/29341/?tab=pubs", expected: "29341"},
		{href: "/discover?filtertype=author&value=Doe", expected: ""},
	}
	for _, tt := range tests {
		if got := ReferenceFromURL(tt.href); got != tt.expected {
			t.Errorf("ReferenceFromURL(%q) = %q, want %q", tt.href, got, tt.expected)
		}
	}
}

func TestArticleTotal(t *testing.T) {
	tests := []struct {
		name     string
		heading  string
		expected int
		ok       bool
	}{
		{name: "dotted thousands", heading: "Mostrando ítems 1-10 de un total de 271.533", expected: 271533, ok: true},
		{name: "plain", heading: "Resultados: total de 42", expected: 42, ok: true},
		{name: "missing", heading: "Sin resultados", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ArticleTotal(tt.heading)
			if ok != tt.ok || got != tt.expected {
				t.Errorf("ArticleTotal(%q) = %d, %v; want %d, %v", tt.heading, got, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestAuthorTotal(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected int
		ok       bool
	}{
		{name: "del al de", text: "Autores Del 1 al 90 de 313.483", expected: 313483, ok: true},
		{name: "mostrando", text: "Mostrando ítems 91-180 de 1,204", expected: 1204, ok: true},
		{name: "largest number fallback", text: "Página 12 resultados 4500 de 98", expected: 4500, ok: true},
		{name: "nothing", text: "no numbers here 12", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AuthorTotal(tt.text)
			if ok != tt.ok || got != tt.expected {
				t.Errorf("AuthorTotal(%q) = %d, %v; want %d, %v", tt.text, got, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestPageCount(t *testing.T) {
	tests := []struct {
		total, size, expected int
	}{
		{total: 271533, size: 10, expected: 27154},
		{total: 90, size: 90, expected: 1},
		{total: 91, size: 90, expected: 2},
		{total: 0, size: 10, expected: 0},
	}
	for _, tt := range tests {
		if got := PageCount(tt.total, tt.size); got != tt.expected {
			t.Errorf("PageCount(%d, %d) = %d, want %d", tt.total, tt.size, got, tt.expected)
		}
	}
}
