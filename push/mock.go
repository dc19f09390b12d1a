package push

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BrandonHVX/heavy-status/pkg/news"
)

// Mock is a push provider for local development and tests. It records every
// payload instead of sending it and feeds sent URLs back through its own
// notification history, so the ledger policy works end to end without
// credentials.
type Mock struct {
	logger *slog.Logger

	mu      sync.Mutex
	Sent    []*Payload
	history []news.NotificationRecord
}

// NewMock creates a mock provider.
func NewMock(logger *slog.Logger) *Mock {
	return &Mock{logger: logger}
}

// Send logs and records the payload.
func (m *Mock) Send(ctx context.Context, p *Payload) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Sent = append(m.Sent, p)
	id := "mock-" + p.URL
	m.history = append([]news.NotificationRecord{{ID: id, URL: p.URL}}, m.history...)

	m.logger.Info("MOCK PUSH",
		"heading", p.Headings["en"],
		"url", p.URL,
		"content_length", len(p.Contents["en"]))

	return &Result{ID: id, Recipients: 1}, nil
}

// RecentNotifications returns the recorded sends, newest first.
func (m *Mock) RecentNotifications(_ context.Context, limit int) ([]news.NotificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit > len(m.history) {
		limit = len(m.history)
	}
	out := make([]news.NotificationRecord, limit)
	copy(out, m.history[:limit])
	return out, nil
}

// AppStats reports a single imaginary subscriber.
func (m *Mock) AppStats(context.Context) (*AppStats, error) {
	return &AppStats{Players: 1, MessageablePlayers: 1}, nil
}

// SendCount reports how many payloads were submitted.
func (m *Mock) SendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}
