package parser

import (
	"net/url"
	"regexp"
	"strings"
)

// HandlePrefix is the path segment shared by every item handle URL.
const HandlePrefix = "/handle/11336/"

var authorLinkPattern = regexp.MustCompile(`(?i)(author/|filtertype=author)`)

// AbsoluteURL resolves href against origin. Root-relative and relative
// paths become absolute; absolute URLs are returned unchanged.
func AbsoluteURL(origin, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}
	base, err := url.Parse(strings.TrimRight(origin, "/") + "/")
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// IsItemLink reports whether href points at an item handle.
func IsItemLink(href string) bool {
	return strings.Contains(href, HandlePrefix)
}

// IsAuthorLink reports whether href points at an author profile or an
// author-filtered search.
func IsAuthorLink(href string) bool {
	return authorLinkPattern.MatchString(href)
}

// HandleFromURL returns the handle suffix after HandlePrefix, or "".
func HandleFromURL(href string) string {
	idx := strings.LastIndex(href, HandlePrefix)
	if idx < 0 {
		return ""
	}
	handle := href[idx+len(HandlePrefix):]
	if cut := strings.IndexAny(handle, "?#"); cut >= 0 {
		handle = handle[:cut]
	}
	return strings.Trim(handle, "/")
}

// ReferenceFromURL returns the author reference after "author/", or "" for
// links that are not author profiles.
func ReferenceFromURL(href string) string {
	const marker = "author/"
	idx := strings.LastIndex(href, marker)
	if idx < 0 {
		return ""
	}
	ref := href[idx+len(marker):]
	if cut := strings.IndexAny(ref, "?#"); cut >= 0 {
		ref = ref[:cut]
	}
	return strings.Trim(ref, "/")
}
