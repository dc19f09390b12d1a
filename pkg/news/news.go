// Package news contains the core domain types for the Heavy Status notification service.
package news

import "time"

// Post is a fully-normalized article fetched from the content backend.
// Every optional field is populated with its zero value during
// normalization, so consumers never re-check for missing data.
type Post struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Slug       string     `json:"slug"`
	Date       time.Time  `json:"date"`
	Excerpt    string     `json:"excerpt"` // Raw HTML as delivered by WordPress
	Content    string     `json:"content"`
	ImageURL   string     `json:"imageUrl"`
	ImageAlt   string     `json:"imageAlt"`
	Author     string     `json:"author"`
	AuthorIcon string     `json:"authorIcon"`
	Categories []TermLite `json:"categories"`
	Tags       []TermLite `json:"tags"`
}

// TermLite is a category or tag attached to a post.
type TermLite struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Term is a standalone category or tag with its post count.
type Term struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Count int    `json:"count"`
}

// SearchResult groups everything matched by a search term.
type SearchResult struct {
	Posts      []Post `json:"posts"`
	Categories []Term `json:"categories"`
	Tags       []Term `json:"tags"`
}

// NotificationRecord is one entry in the push service's delivery history.
// The service owns this data; we only read it as a de-duplication ledger.
type NotificationRecord struct {
	ID       string    `json:"id"`
	URL      string    `json:"url"`
	QueuedAt time.Time `json:"queued_at"`
}

// DispatchRecord is our own durable journal entry for a sent notification.
type DispatchRecord struct {
	NotificationID string    `json:"notification_id"`
	URL            string    `json:"url"`
	Slug           string    `json:"slug"`
	Title          string    `json:"title"`
	Recipients     int       `json:"recipients"`
	SentAt         time.Time `json:"sent_at"`
}
