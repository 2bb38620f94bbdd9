// Package redirect extracts the real download URL from the redirect
// indirection demo pages use: a meta-refresh tag or an inline script that
// rewrites the page location.
package redirect

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// ResolvedTarget is a candidate download URL with the filename the page
// implies for it. Both fields may be empty: some pages trigger the download
// themselves and carry no explicit redirect.
type ResolvedTarget struct {
	URL      string
	Filename string
}

// Found reports whether a download URL was extracted.
func (t ResolvedTarget) Found() bool {
	return t.URL != ""
}

// Extensions recognized as downloadable artifacts. Script redirects pointing
// anywhere else are ignored.
var artifactExtensions = []string{".rar", ".zip", ".dem", ".7z"}

var (
	metaRefreshRe = regexp.MustCompile(`(?is)<meta[^>]+http-equiv\s*=\s*["']?refresh["']?[^>]*>`)
	contentAttrRe = regexp.MustCompile(`(?is)content\s*=\s*["']([^"']+)["']`)
	scriptRe      = regexp.MustCompile(`(?is)<script[^>]*>(.*?)</script>`)
	locationRe    = regexp.MustCompile(`(?i)(?:window\.location(?:\.href)?|document\.location(?:\.href)?|self\.location(?:\.href)?|location\.href)\s*=\s*['"]([^'"]+)['"]`)
)

// Resolve scans markup for a redirect target. Meta-refresh wins over script
// redirects; among script redirects the first match in document order wins.
// Pure and deterministic: same markup, same result.
func Resolve(markup string) ResolvedTarget {
	if target := fromMetaRefresh(markup); target != "" {
		return ResolvedTarget{URL: target, Filename: filenameOf(target)}
	}

	if target := fromScriptRedirect(markup); target != "" {
		return ResolvedTarget{URL: target, Filename: filenameOf(target)}
	}

	return ResolvedTarget{}
}

// fromMetaRefresh pulls the URL out of a refresh directive like
// "5;url=https://cdn.example/demo123.rar". The directive is split on the last
// "url=" occurrence, case-insensitively.
func fromMetaRefresh(markup string) string {
	tag := metaRefreshRe.FindString(markup)
	if tag == "" {
		return ""
	}

	m := contentAttrRe.FindStringSubmatch(tag)
	if m == nil {
		return ""
	}

	directive := m[1]

	idx := strings.LastIndex(strings.ToLower(directive), "url=")
	if idx < 0 {
		return ""
	}

	return strings.TrimSpace(directive[idx+len("url="):])
}

// fromScriptRedirect finds the first location assignment whose target ends in
// a recognized artifact extension.
func fromScriptRedirect(markup string) string {
	for _, script := range scriptRe.FindAllStringSubmatch(markup, -1) {
		m := locationRe.FindStringSubmatch(script[1])
		if m == nil {
			continue
		}

		if hasArtifactExtension(m[1]) {
			return m[1]
		}
	}

	return ""
}

func hasArtifactExtension(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, ext := range artifactExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}

	return false
}

// filenameOf derives the expected filename from the URL's last path segment.
// A URL without one yields no filename, which is fine: the monitor then
// falls back to marker-based tracking.
func filenameOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return ""
	}

	return name
}
