// Package push builds notification payloads and delivers them through a
// pluggable push provider.
package push

import (
	"context"
	"log/slog"

	"github.com/BrandonHVX/heavy-status/pkg/news"
)

// Provider defines the delivery-service operations the dispatcher needs.
type Provider interface {
	// Send submits one notification payload and returns the service result.
	Send(ctx context.Context, p *Payload) (*Result, error)
	// RecentNotifications reads the service's delivery history, newest first.
	RecentNotifications(ctx context.Context, limit int) ([]news.NotificationRecord, error)
	// AppStats reports live subscriber counts.
	AppStats(ctx context.Context) (*AppStats, error)
}

// AppStats holds subscriber counts reported by the delivery service.
type AppStats struct {
	Players            int `json:"players"`
	MessageablePlayers int `json:"messageable_players"`
}

// Dispatch is the outcome of one delivery attempt.
type Dispatch struct {
	Err    error
	Result *Result
	Post   news.Post
}

// Dispatcher sends post notifications using a pluggable provider.
type Dispatcher struct {
	provider Provider
	logger   *slog.Logger
	siteURL  string
}

// New creates a dispatcher.
func New(provider Provider, siteURL string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		provider: provider,
		siteURL:  siteURL,
		logger:   logger,
	}
}

// DispatchPost builds the payload for a post and submits it.
func (d *Dispatcher) DispatchPost(ctx context.Context, post news.Post) (*Result, error) {
	payload := BuildPayload(post.Title, post.Excerpt, post.Slug, post.ImageURL, d.siteURL)

	d.logger.Info("Dispatching push notification",
		"slug", post.Slug,
		"url", payload.URL,
		"has_image", payload.BigPicture != "")

	result, err := d.provider.Send(ctx, payload)
	if err != nil {
		return nil, err
	}

	if result.NoRecipients() {
		d.logger.Warn("Notification accepted but no eligible recipients",
			"slug", post.Slug,
			"notification_id", result.ID)
	} else {
		d.logger.Info("Notification sent",
			"slug", post.Slug,
			"notification_id", result.ID,
			"recipients", result.Recipients)
	}

	return result, nil
}

// DispatchAll submits one notification per post, in order. A failure on one
// post never prevents attempting the rest; callers inspect the per-post
// outcomes.
func (d *Dispatcher) DispatchAll(ctx context.Context, posts []news.Post) []Dispatch {
	dispatches := make([]Dispatch, 0, len(posts))
	for _, post := range posts {
		result, err := d.DispatchPost(ctx, post)
		if err != nil {
			d.logger.Warn("Dispatch failed, continuing with remaining posts",
				"slug", post.Slug,
				"error", err)
		}
		dispatches = append(dispatches, Dispatch{Post: post, Result: result, Err: err})
	}
	return dispatches
}

// Succeeded counts dispatches that were accepted by the delivery service.
func Succeeded(dispatches []Dispatch) int {
	var n int
	for _, d := range dispatches {
		if d.Err == nil {
			n++
		}
	}
	return n
}
