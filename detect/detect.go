// Package detect classifies fetched posts as new relative to prior state.
//
// Three interchangeable policies exist. The delivery-service ledger
// (URL membership) is the reference policy because it survives process
// restarts; the publish-time window guards against unbounded lookback; the
// last-seen marker needs the durable store and is kept for deployments that
// cannot reach the ledger.
package detect

import (
	"log/slog"
	"time"

	"github.com/BrandonHVX/heavy-status/pkg/news"
)

// DefaultWindow is how far back the window policy looks for new posts.
const DefaultWindow = 10 * time.Minute

// Detector filters fetched posts down to the ones worth notifying about.
type Detector struct {
	Now     func() time.Time // test hook, nil means time.Now
	Logger  *slog.Logger
	SiteURL string
	Window  time.Duration
}

// New creates a detector with the given window. A zero window falls back to
// DefaultWindow.
func New(siteURL string, window time.Duration, logger *slog.Logger) *Detector {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Detector{
		SiteURL: siteURL,
		Window:  window,
		Logger:  logger,
	}
}

func (d *Detector) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Cutoff returns the oldest publish time the window policy accepts.
func (d *Detector) Cutoff() time.Time {
	return d.now().Add(-d.Window)
}

// Recent applies the window policy: posts published at or after the cutoff,
// source order preserved. The boundary is inclusive.
func (d *Detector) Recent(posts []news.Post) []news.Post {
	cutoff := d.Cutoff()
	var recent []news.Post
	for _, p := range posts {
		if !p.Date.Before(cutoff) {
			recent = append(recent, p)
		}
	}
	return recent
}

// Fresh applies the URL-membership policy: posts whose canonical URL is not
// in the already-sent set. An empty set passes everything through, which is
// also the degraded behavior when the ledger could not be fetched.
func (d *Detector) Fresh(posts []news.Post, sent map[string]bool) []news.Post {
	var fresh []news.Post
	for _, p := range posts {
		url := news.ArticleURL(d.SiteURL, p.Slug)
		if sent[url] {
			if d.Logger != nil {
				d.Logger.Debug("Post already notified", "slug", p.Slug, "url", url)
			}
			continue
		}
		fresh = append(fresh, p)
	}
	return fresh
}

// URLSet extracts the target URLs from delivery-service history records.
func URLSet(records []news.NotificationRecord) map[string]bool {
	sent := make(map[string]bool, len(records))
	for _, r := range records {
		if r.URL != "" {
			sent[r.URL] = true
		}
	}
	return sent
}

// After applies the last-seen-timestamp policy: posts published strictly
// after the marker. Callers advance the marker only once dispatch succeeded.
func After(posts []news.Post, lastSeen time.Time) []news.Post {
	var fresh []news.Post
	for _, p := range posts {
		if p.Date.After(lastSeen) {
			fresh = append(fresh, p)
		}
	}
	return fresh
}

// Newest returns the most recent publish time among posts, or the zero time.
func Newest(posts []news.Post) time.Time {
	var newest time.Time
	for _, p := range posts {
		if p.Date.After(newest) {
			newest = p.Date
		}
	}
	return newest
}
