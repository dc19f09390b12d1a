package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/BrandonHVX/heavy-status/detect"
	"github.com/BrandonHVX/heavy-status/pkg/news"
	"github.com/BrandonHVX/heavy-status/push"
)

const siteURL = "https://heavy-status.com"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeContent is a canned content adapter.
type fakeContent struct {
	posts     []news.Post
	result    *news.SearchResult
	searchErr error
	postsErr  error
}

func (f *fakeContent) RecentPosts(context.Context, int, time.Time) ([]news.Post, error) {
	return f.posts, f.postsErr
}

func (f *fakeContent) Search(context.Context, string) (*news.SearchResult, error) {
	return f.result, f.searchErr
}

func (f *fakeContent) SitemapPosts(context.Context) ([]news.Post, error) {
	return f.posts, f.postsErr
}

// fakeJournal records marker writes.
type fakeJournal struct {
	dispatches []news.DispatchRecord
	lastSeen   time.Time
}

func (f *fakeJournal) RecordDispatch(_ context.Context, rec news.DispatchRecord) error {
	f.dispatches = append(f.dispatches, rec)
	return nil
}

func (f *fakeJournal) SetLastSeen(_ context.Context, t time.Time) error {
	f.lastSeen = t
	return nil
}

type fixture struct {
	server  *Server
	mock    *push.Mock
	content *fakeContent
	journal *fakeJournal
	now     time.Time
}

func newFixture(t *testing.T, content *fakeContent, configured bool) *fixture {
	t.Helper()

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	detector := detect.New(siteURL, 10*time.Minute, testLogger())
	detector.Now = func() time.Time { return now }

	mock := push.NewMock(testLogger())
	journal := &fakeJournal{}

	srv := New(&Config{
		Content:        content,
		Pusher:         push.New(mock, siteURL, testLogger()),
		Ledger:         mock,
		Journal:        journal,
		Detector:       detector,
		Logger:         testLogger(),
		SiteURL:        siteURL,
		WebhookSecret:  "hook-secret",
		PushConfigured: configured,
	})

	return &fixture{server: srv, mock: mock, content: content, journal: journal, now: now}
}

func (f *fixture) do(t *testing.T, method, target, body string, header http.Header) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	var decoded map[string]any
	if strings.Contains(w.Header().Get("Content-Type"), "json") {
		if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("response is not valid JSON: %v\n%s", err, w.Body.String())
		}
	}
	return w, decoded
}

func authHeader(secret string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + secret}}
}

func TestCheckNewPostsDispatchesOnlyPostsInWindow(t *testing.T) {
	content := &fakeContent{posts: []news.Post{
		{Title: "<b>Fresh Story</b>", Slug: "fresh-story", Date: time.Date(2026, 8, 29, 11, 57, 0, 0, time.UTC)},
		{Title: "Old Story", Slug: "old-story", Date: time.Date(2026, 8, 29, 11, 45, 0, 0, time.UTC)},
	}}
	f := newFixture(t, content, true)

	w, body := f.do(t, http.MethodGet, "/api/check-new-posts", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	if body["notified"] != float64(1) {
		t.Errorf("notified = %v, want 1", body["notified"])
	}
	if body["message"] != "Sent 1 notification(s)" {
		t.Errorf("message = %q", body["message"])
	}

	if f.mock.SendCount() != 1 {
		t.Fatalf("SendCount() = %d, want 1", f.mock.SendCount())
	}
	sent := f.mock.Sent[0]
	if sent.Headings["en"] != "Fresh Story" {
		t.Errorf("heading = %q, want stripped title", sent.Headings["en"])
	}
	if sent.URL != siteURL+"/article/fresh-story" {
		t.Errorf("url = %q", sent.URL)
	}

	// The durable marker advances to the dispatched post's publish time.
	want := time.Date(2026, 8, 29, 11, 57, 0, 0, time.UTC)
	if !f.journal.lastSeen.Equal(want) {
		t.Errorf("lastSeen = %v, want %v", f.journal.lastSeen, want)
	}
	if len(f.journal.dispatches) != 1 || f.journal.dispatches[0].Slug != "fresh-story" {
		t.Errorf("journal = %+v", f.journal.dispatches)
	}
}

func TestCheckNewPostsSkipsAlreadyNotified(t *testing.T) {
	content := &fakeContent{posts: []news.Post{
		{Title: "Fresh Story", Slug: "fresh-story", Date: time.Date(2026, 8, 29, 11, 57, 0, 0, time.UTC)},
	}}
	f := newFixture(t, content, true)

	// First check sends; the mock feeds the URL back through its history.
	if _, body := f.do(t, http.MethodGet, "/api/check-new-posts", "", nil); body["notified"] != float64(1) {
		t.Fatalf("first check notified = %v, want 1", body["notified"])
	}

	w, body := f.do(t, http.MethodGet, "/api/check-new-posts", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["notified"] != float64(0) {
		t.Errorf("second check notified = %v, want 0", body["notified"])
	}
	if body["message"] != "Recent posts already notified" {
		t.Errorf("message = %q", body["message"])
	}
	if body["recent_count"] != float64(1) {
		t.Errorf("recent_count = %v, want 1", body["recent_count"])
	}
	if f.mock.SendCount() != 1 {
		t.Errorf("SendCount() = %d, want no duplicate send", f.mock.SendCount())
	}
}

func TestCheckNewPostsNoRecentPosts(t *testing.T) {
	content := &fakeContent{posts: []news.Post{
		{Title: "Old", Slug: "old", Date: time.Date(2026, 8, 29, 11, 0, 0, 0, time.UTC)},
	}}
	f := newFixture(t, content, true)

	w, body := f.do(t, http.MethodGet, "/api/check-new-posts", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["message"] != "No new posts in the last 10 minutes" {
		t.Errorf("message = %q", body["message"])
	}
	if f.mock.SendCount() != 0 {
		t.Errorf("SendCount() = %d, want 0", f.mock.SendCount())
	}
}

func TestCheckNewPostsRequiresCredentials(t *testing.T) {
	f := newFixture(t, &fakeContent{}, false)

	w, body := f.do(t, http.MethodGet, "/api/check-new-posts", "", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if body["error"] != "OneSignal not configured" {
		t.Errorf("error = %q", body["error"])
	}
	// The credential gate fires before any upstream fetch.
	if f.mock.SendCount() != 0 {
		t.Errorf("SendCount() = %d, want 0", f.mock.SendCount())
	}
}

func TestCheckNewPostsContentFailure(t *testing.T) {
	f := newFixture(t, &fakeContent{postsErr: errors.New("graphql down")}, true)

	w, body := f.do(t, http.MethodGet, "/api/check-new-posts", "", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if body["error"] != "Failed to check for new posts" {
		t.Errorf("error = %q", body["error"])
	}
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	f := newFixture(t, &fakeContent{}, true)

	tests := []struct {
		name   string
		header http.Header
	}{
		{"missing authorization", nil},
		{"wrong secret", authHeader("wrong")},
		{"wrong scheme", http.Header{"Authorization": []string{"Basic hook-secret"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := f.do(t, http.MethodPost, "/api/notify", `{"post_title":"X","post_status":"publish"}`, tt.header)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			if body["error"] != "Unauthorized" {
				t.Errorf("error = %q", body["error"])
			}
		})
	}

	if f.mock.SendCount() != 0 {
		t.Errorf("SendCount() = %d, rejected requests must not reach the provider", f.mock.SendCount())
	}
}

func TestWebhookSkipsUnpublished(t *testing.T) {
	f := newFixture(t, &fakeContent{}, true)

	for _, status := range []string{"draft", "pending", "trash"} {
		t.Run(status, func(t *testing.T) {
			w, body := f.do(t, http.MethodPost, "/api/notify",
				`{"post_title":"Draft","post_name":"draft-post","post_status":"`+status+`"}`,
				authHeader("hook-secret"))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if body["skipped"] != true {
				t.Errorf("skipped = %v, want true", body["skipped"])
			}
			reason, _ := body["reason"].(string)
			if !strings.Contains(reason, status) {
				t.Errorf("reason = %q, should name the status", reason)
			}
		})
	}

	if f.mock.SendCount() != 0 {
		t.Errorf("SendCount() = %d, unpublished posts must never reach subscribers", f.mock.SendCount())
	}
}

func TestWebhookPublishedPostSends(t *testing.T) {
	f := newFixture(t, &fakeContent{}, true)

	w, body := f.do(t, http.MethodPost, "/api/notify",
		`{"post_title":"Native Title","title":"Alias Title","post_name":"native-slug","post_status":"publish","featured_image":"https://img/x.jpg"}`,
		authHeader("hook-secret"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	if body["recipients"] != float64(1) {
		t.Errorf("recipients = %v", body["recipients"])
	}
	if id, _ := body["notification_id"].(string); id == "" {
		t.Error("notification_id missing")
	}

	if f.mock.SendCount() != 1 {
		t.Fatalf("SendCount() = %d, want 1", f.mock.SendCount())
	}
	sent := f.mock.Sent[0]
	// The engine-native field wins over the alias.
	if sent.Headings["en"] != "Native Title" {
		t.Errorf("heading = %q", sent.Headings["en"])
	}
	if sent.URL != siteURL+"/article/native-slug" {
		t.Errorf("url = %q", sent.URL)
	}
	if sent.BigPicture != "https://img/x.jpg" || sent.ChromeWebImage != "https://img/x.jpg" {
		t.Errorf("image fields = %q/%q", sent.BigPicture, sent.ChromeWebImage)
	}
}

func TestWebhookAcceptsSpelledOutStatus(t *testing.T) {
	f := newFixture(t, &fakeContent{}, true)

	w, body := f.do(t, http.MethodPost, "/api/notify",
		`{"title":"T","slug":"s","status":"published"}`,
		authHeader("hook-secret"))
	if w.Code != http.StatusOK || body["success"] != true {
		t.Errorf("status = %d, body = %v", w.Code, body)
	}
}

func TestWebhookRequiresCredentials(t *testing.T) {
	f := newFixture(t, &fakeContent{}, false)

	w, body := f.do(t, http.MethodPost, "/api/notify",
		`{"post_title":"X","post_status":"publish"}`,
		authHeader("hook-secret"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if body["error"] != "OneSignal not configured" {
		t.Errorf("error = %q", body["error"])
	}
}

func TestWebhookInvalidJSON(t *testing.T) {
	f := newFixture(t, &fakeContent{}, true)

	w, body := f.do(t, http.MethodPost, "/api/notify", `{not json`, authHeader("hook-secret"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if body["error"] != "Invalid JSON body" {
		t.Errorf("error = %q", body["error"])
	}
}

func TestWebhookInfoEndpoint(t *testing.T) {
	f := newFixture(t, &fakeContent{}, true)

	w, body := f.do(t, http.MethodGet, "/api/notify", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["status"] != "Webhook endpoint active" {
		t.Errorf("status = %q", body["status"])
	}
	subs, _ := body["subscribers"].(map[string]any)
	if subs["players"] != float64(1) {
		t.Errorf("subscribers = %v", body["subscribers"])
	}
}

func TestSearchEndpoint(t *testing.T) {
	content := &fakeContent{result: &news.SearchResult{
		Posts:      []news.Post{{Title: "Hit", Slug: "hit"}},
		Categories: []news.Term{},
		Tags:       []news.Term{},
	}}
	f := newFixture(t, content, true)

	w, body := f.do(t, http.MethodGet, "/api/search/hello%20world", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	posts, _ := body["posts"].([]any)
	if len(posts) != 1 {
		t.Errorf("posts = %v", body["posts"])
	}
}

func TestSearchFailure(t *testing.T) {
	f := newFixture(t, &fakeContent{searchErr: errors.New("backend down")}, true)

	w, body := f.do(t, http.MethodGet, "/api/search/term", "", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if body["error"] != "Search failed" {
		t.Errorf("error = %q", body["error"])
	}
}

func TestFeedEndpoints(t *testing.T) {
	content := &fakeContent{posts: []news.Post{
		{Title: "Story", Slug: "story", Date: time.Date(2026, 8, 29, 11, 0, 0, 0, time.UTC)},
	}}
	f := newFixture(t, content, true)

	tests := []struct {
		target      string
		contentType string
		contains    string
	}{
		{"/feed.xml", "application/rss+xml", "<rss version=\"2.0\""},
		{"/sitemap.xml", "application/xml", "xmlns:news"},
		{"/robots.txt", "text/plain", "Sitemap: " + siteURL + "/sitemap.xml"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w, _ := f.do(t, http.MethodGet, tt.target, "", nil)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			if got := w.Header().Get("Content-Type"); got != tt.contentType {
				t.Errorf("content type = %q, want %q", got, tt.contentType)
			}
			if !strings.Contains(w.Body.String(), tt.contains) {
				t.Errorf("body missing %q", tt.contains)
			}
		})
	}
}

func TestHealthAndRoot(t *testing.T) {
	f := newFixture(t, &fakeContent{}, true)

	w, body := f.do(t, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("healthz: status = %d, body = %v", w.Code, body)
	}

	w, body = f.do(t, http.MethodGet, "/", "", nil)
	if w.Code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("root: status = %d, body = %v", w.Code, body)
	}

	w, _ = f.do(t, http.MethodGet, "/no-such-page", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown path: status = %d, want 404", w.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, &fakeContent{}, true)

	for _, target := range []string{"/api/check-new-posts", "/healthz", "/feed.xml"} {
		w, _ := f.do(t, http.MethodDelete, target, "", nil)
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("DELETE %s: status = %d, want 405", target, w.Code)
		}
	}
}
