// Package feed renders the RSS feed, the news sitemap and robots.txt.
package feed

import (
	"fmt"
	"strings"
	"time"

	"github.com/BrandonHVX/heavy-status/pkg/news"
)

const (
	siteTitle       = "Heavy Status"
	siteDescription = "Breaking news, community stories, and live coverage"

	// maxFeedItems caps the RSS feed to the most recent posts.
	maxFeedItems = 20
)

// EscapeXML escapes the characters that would break XML text content.
func EscapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// RSS renders an RSS 2.0 document for the most recent posts.
func RSS(posts []news.Post, siteURL string) string {
	siteURL = strings.TrimSuffix(siteURL, "/")

	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	b.WriteString("<rss version=\"2.0\" xmlns:atom=\"http://www.w3.org/2005/Atom\">\n")
	b.WriteString("<channel>\n")
	b.WriteString(fmt.Sprintf("  <title>%s</title>\n", siteTitle))
	b.WriteString(fmt.Sprintf("  <link>%s</link>\n", siteURL))
	b.WriteString(fmt.Sprintf("  <description>%s</description>\n", siteDescription))
	b.WriteString("  <language>en-us</language>\n")
	b.WriteString(fmt.Sprintf("  <atom:link href=\"%s/feed.xml\" rel=\"self\" type=\"application/rss+xml\" />\n", siteURL))

	items := posts
	if len(items) > maxFeedItems {
		items = items[:maxFeedItems]
	}

	for _, post := range items {
		link := news.ArticleURL(siteURL, post.Slug)
		b.WriteString("  <item>\n")
		b.WriteString(fmt.Sprintf("    <title>%s</title>\n", EscapeXML(post.Title)))
		b.WriteString(fmt.Sprintf("    <link>%s</link>\n", link))
		b.WriteString(fmt.Sprintf("    <guid isPermaLink=\"true\">%s</guid>\n", link))
		b.WriteString(fmt.Sprintf("    <pubDate>%s</pubDate>\n", post.Date.UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")))
		b.WriteString("  </item>\n")
	}

	b.WriteString("</channel>\n</rss>")
	return b.String()
}

// staticPage is a non-article page listed in the sitemap.
type staticPage struct {
	path       string
	changeFreq string
	priority   string
}

var staticPages = []staticPage{
	{"/", "hourly", "1.0"},
	{"/featured", "hourly", "0.9"},
	{"/explore", "daily", "0.8"},
	{"/live", "always", "0.9"},
}

// Sitemap renders the sitemap with the Google News namespace.
func Sitemap(posts []news.Post, siteURL string) string {
	siteURL = strings.TrimSuffix(siteURL, "/")

	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	b.WriteString("<urlset xmlns=\"http://www.sitemaps.org/schemas/sitemap/0.9\"\n")
	b.WriteString("        xmlns:news=\"http://www.google.com/schemas/sitemap-news/0.9\">\n")

	for _, page := range staticPages {
		loc := siteURL + page.path
		if page.path == "/" {
			loc = siteURL + "/"
		}
		b.WriteString("  <url>\n")
		b.WriteString(fmt.Sprintf("    <loc>%s</loc>\n", loc))
		b.WriteString(fmt.Sprintf("    <changefreq>%s</changefreq>\n", page.changeFreq))
		b.WriteString(fmt.Sprintf("    <priority>%s</priority>\n", page.priority))
		b.WriteString("  </url>\n")
	}

	for _, post := range posts {
		published := post.Date.UTC().Format(time.RFC3339)
		b.WriteString("  <url>\n")
		b.WriteString(fmt.Sprintf("    <loc>%s</loc>\n", news.ArticleURL(siteURL, post.Slug)))
		b.WriteString(fmt.Sprintf("    <lastmod>%s</lastmod>\n", published))
		b.WriteString("    <changefreq>weekly</changefreq>\n")
		b.WriteString("    <priority>0.7</priority>\n")
		b.WriteString("    <news:news>\n")
		b.WriteString("      <news:publication>\n")
		b.WriteString(fmt.Sprintf("        <news:name>%s</news:name>\n", siteTitle))
		b.WriteString("        <news:language>en</news:language>\n")
		b.WriteString("      </news:publication>\n")
		b.WriteString(fmt.Sprintf("      <news:publication_date>%s</news:publication_date>\n", published))
		b.WriteString(fmt.Sprintf("      <news:title>%s</news:title>\n", EscapeXML(post.Title)))
		b.WriteString("    </news:news>\n")
		b.WriteString("  </url>\n")
	}

	b.WriteString("</urlset>")
	return b.String()
}

// Robots renders the robots.txt body with the sitemap pointer.
func Robots(siteURL string) string {
	siteURL = strings.TrimSuffix(siteURL, "/")
	return fmt.Sprintf("User-agent: *\nAllow: /\nSitemap: %s/sitemap.xml\n", siteURL)
}
