package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/BrandonHVX/heavy-status/detect"
	"github.com/BrandonHVX/heavy-status/pkg/news"
	"github.com/BrandonHVX/heavy-status/push"
)

const (
	// recentPostCount is how many candidate posts each check fetches.
	recentPostCount = 10

	// ledgerLookback is how many delivery records the ledger policy sees.
	// Posts older than the service's returned-record limit are invisible
	// to the membership check.
	ledgerLookback = 20
)

// notificationOutcome is one entry of the polling response.
type notificationOutcome struct {
	Result any    `json:"result"`
	Title  string `json:"title"`
	Slug   string `json:"slug"`
}

// checkOutcome aggregates one polling run.
type checkOutcome struct {
	message       string
	notifications []notificationOutcome
	recentCount   int
	notified      int
}

func (s *Server) handleCheckNewPosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Credentials are checked before any network call.
	if !s.pushConfigured {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "OneSignal not configured"})
		return
	}

	outcome, err := s.runCheck(r.Context())
	if err != nil {
		s.logger.Error("Check new posts failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Failed to check for new posts",
			"message": err.Error(),
		})
		return
	}

	body := map[string]any{
		"message":  outcome.message,
		"notified": outcome.notified,
	}
	if outcome.notified == 0 && outcome.recentCount > 0 {
		body["recent_count"] = outcome.recentCount
	}
	if len(outcome.notifications) > 0 {
		body["notifications"] = outcome.notifications
	}
	s.writeJSON(w, http.StatusOK, body)
}

// CheckNow runs one poll cycle outside the HTTP path (self-poll scheduler).
func (s *Server) CheckNow(ctx context.Context) (int, error) {
	if !s.pushConfigured {
		return 0, fmt.Errorf("push delivery not configured")
	}
	outcome, err := s.runCheck(ctx)
	if err != nil {
		return 0, err
	}
	return outcome.notified, nil
}

// runCheck fetches candidates and the dedup ledger, filters, and dispatches.
func (s *Server) runCheck(ctx context.Context) (*checkOutcome, error) {
	cutoff := s.detector.Cutoff()

	// The content fetch and the ledger fetch are independent reads.
	var (
		wg        sync.WaitGroup
		posts     []news.Post
		postsErr  error
		records   []news.NotificationRecord
		ledgerErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		posts, postsErr = s.content.RecentPosts(ctx, recentPostCount, cutoff)
	}()
	go func() {
		defer wg.Done()
		records, ledgerErr = s.ledger.RecentNotifications(ctx, ledgerLookback)
	}()
	wg.Wait()

	if postsErr != nil {
		return nil, fmt.Errorf("fetch recent posts: %w", postsErr)
	}

	sent := detect.URLSet(records)
	if ledgerErr != nil {
		// Degrade to an empty ledger: better a duplicate than a miss.
		s.logger.Warn("Ledger fetch failed, treating all recent posts as new", "error", ledgerErr)
		sent = nil
	}

	windowMinutes := int(s.detector.Window / time.Minute)

	recent := s.detector.Recent(posts)
	if len(recent) == 0 {
		return &checkOutcome{
			message: fmt.Sprintf("No new posts in the last %d minutes", windowMinutes),
		}, nil
	}

	fresh := s.detector.Fresh(recent, sent)
	if len(fresh) == 0 {
		return &checkOutcome{
			message:     "Recent posts already notified",
			recentCount: len(recent),
		}, nil
	}

	s.logger.Info("New posts detected", "count", len(fresh), "recent", len(recent))

	dispatches := s.pusher.DispatchAll(ctx, fresh)

	outcome := &checkOutcome{recentCount: len(recent)}
	for _, d := range dispatches {
		entry := notificationOutcome{Title: d.Post.Title, Slug: d.Post.Slug}
		if d.Err != nil {
			entry.Result = map[string]string{"error": d.Err.Error()}
		} else {
			entry.Result = d.Result
			outcome.notified++
			s.recordDispatch(ctx, d)
		}
		outcome.notifications = append(outcome.notifications, entry)
	}
	outcome.message = fmt.Sprintf("Sent %d notification(s)", outcome.notified)

	s.advanceMarker(ctx, dispatches)

	return outcome, nil
}

// recordDispatch journals a successful send. Journal failures are logged,
// never fatal: the delivery-service ledger remains authoritative.
func (s *Server) recordDispatch(ctx context.Context, d push.Dispatch) {
	if s.journal == nil {
		return
	}
	rec := news.DispatchRecord{
		URL:    news.ArticleURL(s.siteURL, d.Post.Slug),
		Slug:   d.Post.Slug,
		Title:  d.Post.Title,
		SentAt: time.Now().UTC(),
	}
	if d.Result != nil {
		rec.NotificationID = d.Result.ID
		rec.Recipients = d.Result.Recipients
	}
	if err := s.journal.RecordDispatch(ctx, rec); err != nil {
		s.logger.Warn("Failed to journal dispatch", "slug", d.Post.Slug, "error", err)
	}
}

// advanceMarker moves the durable last-seen marker to the newest post that
// was actually dispatched.
func (s *Server) advanceMarker(ctx context.Context, dispatches []push.Dispatch) {
	if s.journal == nil {
		return
	}
	var newest time.Time
	for _, d := range dispatches {
		if d.Err == nil && d.Post.Date.After(newest) {
			newest = d.Post.Date
		}
	}
	if newest.IsZero() {
		return
	}
	if err := s.journal.SetLastSeen(ctx, newest); err != nil {
		s.logger.Warn("Failed to advance last-seen marker", "error", err)
	}
}
