package feed

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/BrandonHVX/heavy-status/pkg/news"
)

const siteURL = "https://heavy-status.com"

func TestEscapeXML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"Rock & Roll", "Rock &amp; Roll"},
		{"a < b > c", "a &lt; b &gt; c"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := EscapeXML(tt.in); got != tt.want {
			t.Errorf("EscapeXML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRSS(t *testing.T) {
	posts := []news.Post{
		{
			Title: "Cats & Dogs",
			Slug:  "cats-and-dogs",
			Date:  time.Date(2026, 8, 29, 11, 57, 0, 0, time.UTC),
		},
	}

	out := RSS(posts, siteURL+"/")

	for _, want := range []string{
		`<rss version="2.0"`,
		"<title>Heavy Status</title>",
		fmt.Sprintf(`<atom:link href="%s/feed.xml" rel="self"`, siteURL),
		"<title>Cats &amp; Dogs</title>",
		fmt.Sprintf("<link>%s/article/cats-and-dogs</link>", siteURL),
		fmt.Sprintf(`<guid isPermaLink="true">%s/article/cats-and-dogs</guid>`, siteURL),
		"<pubDate>Sat, 29 Aug 2026 11:57:00 GMT</pubDate>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("RSS output missing %q", want)
		}
	}
}

func TestRSSCapsItems(t *testing.T) {
	var posts []news.Post
	for i := range 30 {
		posts = append(posts, news.Post{
			Title: fmt.Sprintf("Post %d", i),
			Slug:  fmt.Sprintf("post-%d", i),
		})
	}

	out := RSS(posts, siteURL)
	if got := strings.Count(out, "<item>"); got != 20 {
		t.Errorf("feed has %d items, want 20", got)
	}
	// Source order is newest first, so the cap keeps the head of the list.
	if !strings.Contains(out, "/article/post-0") {
		t.Error("feed should keep the newest posts")
	}
	if strings.Contains(out, "/article/post-25") {
		t.Error("feed should drop posts beyond the cap")
	}
}

func TestSitemap(t *testing.T) {
	posts := []news.Post{
		{
			Title: "Launch <Live>",
			Slug:  "launch-live",
			Date:  time.Date(2026, 8, 29, 11, 57, 0, 0, time.UTC),
		},
	}

	out := Sitemap(posts, siteURL)

	for _, want := range []string{
		`xmlns:news="http://www.google.com/schemas/sitemap-news/0.9"`,
		fmt.Sprintf("<loc>%s/</loc>", siteURL),
		fmt.Sprintf("<loc>%s/featured</loc>", siteURL),
		fmt.Sprintf("<loc>%s/explore</loc>", siteURL),
		fmt.Sprintf("<loc>%s/live</loc>", siteURL),
		fmt.Sprintf("<loc>%s/article/launch-live</loc>", siteURL),
		"<lastmod>2026-08-29T11:57:00Z</lastmod>",
		"<news:publication_date>2026-08-29T11:57:00Z</news:publication_date>",
		"<news:title>Launch &lt;Live&gt;</news:title>",
		"<news:name>Heavy Status</news:name>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("sitemap missing %q", want)
		}
	}
}

func TestRobots(t *testing.T) {
	out := Robots(siteURL + "/")

	if !strings.Contains(out, "User-agent: *") || !strings.Contains(out, "Allow: /") {
		t.Errorf("robots.txt = %q", out)
	}
	if !strings.Contains(out, fmt.Sprintf("Sitemap: %s/sitemap.xml", siteURL)) {
		t.Errorf("robots.txt missing sitemap pointer: %q", out)
	}
}
