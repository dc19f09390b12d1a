// Package server handles HTTP endpoints and request routing.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/BrandonHVX/heavy-status/detect"
	"github.com/BrandonHVX/heavy-status/feed"
	"github.com/BrandonHVX/heavy-status/pkg/news"
	"github.com/BrandonHVX/heavy-status/push"
)

// Content is the slice of the content adapter the endpoints use.
type Content interface {
	RecentPosts(ctx context.Context, count int, cutoff time.Time) ([]news.Post, error)
	Search(ctx context.Context, term string) (*news.SearchResult, error)
	SitemapPosts(ctx context.Context) ([]news.Post, error)
}

// Pusher dispatches notifications for posts.
type Pusher interface {
	DispatchPost(ctx context.Context, post news.Post) (*push.Result, error)
	DispatchAll(ctx context.Context, posts []news.Post) []push.Dispatch
}

// Ledger reads the delivery service's own records.
type Ledger interface {
	RecentNotifications(ctx context.Context, limit int) ([]news.NotificationRecord, error)
	AppStats(ctx context.Context) (*push.AppStats, error)
}

// Journal is the optional durable marker store.
type Journal interface {
	RecordDispatch(ctx context.Context, rec news.DispatchRecord) error
	SetLastSeen(ctx context.Context, t time.Time) error
}

// Server handles HTTP requests.
type Server struct {
	content        Content
	pusher         Pusher
	ledger         Ledger
	journal        Journal // may be nil
	detector       *detect.Detector
	logger         *slog.Logger
	siteURL        string
	webhookSecret  string
	pushConfigured bool
}

// Config holds server configuration.
type Config struct {
	Content        Content
	Pusher         Pusher
	Ledger         Ledger
	Journal        Journal
	Detector       *detect.Detector
	Logger         *slog.Logger
	SiteURL        string
	WebhookSecret  string
	PushConfigured bool
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	return &Server{
		content:        cfg.Content,
		pusher:         cfg.Pusher,
		ledger:         cfg.Ledger,
		journal:        cfg.Journal,
		detector:       cfg.Detector,
		logger:         cfg.Logger,
		siteURL:        cfg.SiteURL,
		webhookSecret:  cfg.WebhookSecret,
		pushConfigured: cfg.PushConfigured,
	}
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/check-new-posts", s.handleCheckNewPosts)
	mux.HandleFunc("/api/notify", s.handleNotify)
	mux.HandleFunc("/api/search/{query}", s.handleSearch)
	mux.HandleFunc("/feed.xml", s.handleFeed)
	mux.HandleFunc("/sitemap.xml", s.handleSitemap)
	mux.HandleFunc("/robots.txt", s.handleRobots)
	return mux
}

// Serve starts the HTTP server with explicit timeouts.
func (s *Server) Serve(port string) error {
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "port", port)
	return server.ListenAndServe()
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"service": "heavy-status notification service",
		"status":  "ok",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	term := r.PathValue("query")
	if term == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing search term"})
		return
	}

	result, err := s.content.Search(r.Context(), term)
	if err != nil {
		s.logger.Error("Search failed", "term", term, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Search failed"})
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	s.serveXML(w, r, "application/rss+xml", "Error generating feed", feed.RSS)
}

func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	s.serveXML(w, r, "application/xml", "Error generating sitemap", feed.Sitemap)
}

func (s *Server) serveXML(w http.ResponseWriter, r *http.Request, contentType, failMsg string, render func([]news.Post, string) string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	posts, err := s.content.SitemapPosts(r.Context())
	if err != nil {
		s.logger.Error("Failed to fetch posts for feed", "error", err)
		http.Error(w, failMsg, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	if _, err := w.Write([]byte(render(posts, s.siteURL))); err != nil {
		s.logger.Warn("Failed to write feed response", "error", err)
	}
}

func (s *Server) handleRobots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	if _, err := w.Write([]byte(feed.Robots(s.siteURL))); err != nil {
		s.logger.Warn("Failed to write robots response", "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
