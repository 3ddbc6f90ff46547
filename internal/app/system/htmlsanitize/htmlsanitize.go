// internal/app/system/htmlsanitize/htmlsanitize.go

// Package htmlsanitize scrubs user-supplied rich text. Post bodies and
// comments arrive from the SPA as limited HTML; activity records freeze a
// plain-text snapshot of comment text so the notification survives later
// edits and deletes.
package htmlsanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ugc allows the formatting subset the client editor produces.
var ugc = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("u", "s", "sub", "sup", "mark")
	return p
}()

// strict strips all markup, leaving text content only.
var strict = bluemonday.StrictPolicy()

// Sanitize returns input with disallowed tags and attributes removed.
// Safe formatting (paragraphs, emphasis, lists, blockquotes, headings,
// code blocks, nofollow links) is preserved.
func Sanitize(input string) string {
	return ugc.Sanitize(input)
}

// StripTags reduces input to plain text. Used for activity comment
// snapshots, where markup would be rendered as literal text anyway.
func StripTags(input string) string {
	return strings.TrimSpace(strict.Sanitize(input))
}

// IsPlainText reports whether s contains no HTML tags at all.
// Lone < or > characters (e.g. "5 < 10") do not count as a tag.
func IsPlainText(s string) bool {
	open := strings.IndexByte(s, '<')
	if open == -1 {
		return true
	}
	return strings.IndexByte(s[open:], '>') == -1
}
