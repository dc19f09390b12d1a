package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/BrandonHVX/heavy-status/pkg/news"
	"github.com/BrandonHVX/heavy-status/push"
)

// webhookEvent is one content item pushed by the WordPress side. Fields may
// arrive under the engine-native names (post_*) or the generic aliases; the
// engine-native name wins when both are present.
type webhookEvent struct {
	Title            string `json:"title"`
	PostTitle        string `json:"post_title"`
	Excerpt          string `json:"excerpt"`
	PostExcerpt      string `json:"post_excerpt"`
	Slug             string `json:"slug"`
	PostName         string `json:"post_name"`
	Image            string `json:"image"`
	FeaturedImage    string `json:"featured_image"`
	PostThumbnailURL string `json:"post_thumbnail_url"`
	Status           string `json:"status"`
	PostStatus       string `json:"post_status"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (e *webhookEvent) resolve() (title, excerpt, slug, image, status string) {
	title = firstNonEmpty(e.PostTitle, e.Title)
	excerpt = firstNonEmpty(e.PostExcerpt, e.Excerpt)
	slug = firstNonEmpty(e.PostName, e.Slug)
	image = firstNonEmpty(e.FeaturedImage, e.Image, e.PostThumbnailURL)
	status = firstNonEmpty(e.PostStatus, e.Status)
	return title, excerpt, slug, image, status
}

// isPublished accepts both WordPress's internal status value and the
// spelled-out form some integrations send.
func isPublished(status string) bool {
	return status == "publish" || status == "published"
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleNotifyInfo(w, r)
	case http.MethodPost:
		s.handleNotifyPost(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleNotifyInfo returns a diagnostic payload with live subscriber counts.
func (s *Server) handleNotifyInfo(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status": "Webhook endpoint active",
		"usage":  "POST with { title, excerpt, slug, image } to send push notification",
	}

	if s.pushConfigured {
		if stats, err := s.ledger.AppStats(r.Context()); err == nil {
			body["subscribers"] = map[string]int{
				"players":             stats.Players,
				"messageable_players": stats.MessageablePlayers,
			}
		} else {
			s.logger.Warn("Failed to fetch subscriber stats", "error", err)
		}
	}

	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleNotifyPost(w http.ResponseWriter, r *http.Request) {
	if s.webhookSecret != "" {
		if r.Header.Get("Authorization") != "Bearer "+s.webhookSecret {
			s.logger.Warn("Webhook rejected: bad or missing authorization")
			s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
	}

	if !s.pushConfigured {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "OneSignal not configured"})
		return
	}

	var event webhookEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON body"})
		return
	}

	title, excerpt, slug, image, status := event.resolve()

	// A status other than published means the event is intentionally
	// skipped; drafts and trash must never reach subscribers.
	if status != "" && !isPublished(status) {
		s.logger.Info("Webhook skipped", "slug", slug, "status", status)
		s.writeJSON(w, http.StatusOK, map[string]any{
			"skipped": true,
			"reason":  fmt.Sprintf("status is %q, not published", status),
		})
		return
	}

	s.logger.Info("Webhook notification requested", "slug", slug, "title_length", len(title))

	result, err := s.pusher.DispatchPost(r.Context(), news.Post{
		Title:    title,
		Excerpt:  excerpt,
		Slug:     slug,
		ImageURL: image,
		Date:     time.Now().UTC(),
	})
	if err != nil {
		if apiErr := push.AsAPIError(err); apiErr != nil {
			s.writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":   "Failed to send notification",
				"details": apiErr.Body,
			})
			return
		}
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "Internal server error",
			"message": err.Error(),
		})
		return
	}

	if result.NoRecipients() {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"success":         false,
			"notification_id": result.ID,
			"recipients":      0,
			"hint":            "Notification accepted but there are no eligible push subscribers",
		})
		return
	}

	s.recordDispatch(r.Context(), push.Dispatch{
		Post:   news.Post{Title: title, Slug: slug},
		Result: result,
	})

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"notification_id": result.ID,
		"recipients":      result.Recipients,
	})
}
