package wordpress

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// WordPress emits typographic punctuation as entities (&hellip;, &#8217;,
// &#8220;, &#8221;). The parser decodes those to Unicode; push payloads and
// feeds want plain ASCII, matching what the site renders in previews.
var asciiReplacer = strings.NewReplacer(
	"…", "...",
	"‘", "'",
	"’", "'",
	"“", `"`,
	"”", `"`,
	" ", " ",
)

// StripHTML removes all markup from a WordPress HTML fragment and returns
// the plain text with entities decoded and whitespace collapsed.
func StripHTML(fragment string) string {
	if fragment == "" {
		return ""
	}

	text := fragment
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment)); err == nil {
		text = doc.Text()
	}

	text = asciiReplacer.Replace(text)
	return strings.Join(strings.Fields(text), " ")
}

// Truncate cuts s to at most n characters.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
