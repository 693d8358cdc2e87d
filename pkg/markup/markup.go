// Package markup converts HTML-like message bodies to plain text for
// display surfaces such as report previews.
package markup

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// lastMessageMaxLen caps the formatted preview length in runes.
const lastMessageMaxLen = 100

var stripPolicy = bluemonday.StrictPolicy()

// ToText strips all markup from s and unescapes HTML entities. Line break
// tags become newlines so FormatLastMessage can collapse them later.
func ToText(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "<br>", "\n")
	s = strings.ReplaceAll(s, "<br/>", "\n")
	s = strings.ReplaceAll(s, "<br />", "\n")
	return html.UnescapeString(stripPolicy.Sanitize(s))
}

// FormatLastMessage normalizes plain text for a single-line preview:
// whitespace runs collapse to one space, the result is trimmed and
// truncated to a display-safe length.
func FormatLastMessage(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > lastMessageMaxLen {
		return string(r[:lastMessageMaxLen])
	}
	return s
}
