// Package parser holds the pure text helpers shared by the extractors:
// escaping, joining, URL normalization and total-count detection.
package parser

import (
	"sort"
	"strings"
)

// ValueSeparator joins multi-valued fields such as authors and keywords.
const ValueSeparator = "; "

// HandleSeparator joins publication handles on author records.
const HandleSeparator = "|"

var newlineReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// EscapeText makes free text safe for the columnar store: embedded quotes
// are doubled, line breaks become spaces and the result is trimmed.
func EscapeText(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, `"`, `""`)
	text = newlineReplacer.Replace(text)
	return strings.TrimSpace(text)
}

// UnescapeText reverses the quote doubling applied by EscapeText. Line
// breaks are not restored.
func UnescapeText(text string) string {
	return strings.ReplaceAll(text, `""`, `"`)
}

// JoinValues escapes each value, drops empties and joins the rest with
// ValueSeparator.
func JoinValues(values []string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = EscapeText(v); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, ValueSeparator)
}

// JoinSet returns the sorted members of set joined with sep.
func JoinSet(set map[string]struct{}, sep string) string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, sep)
}
