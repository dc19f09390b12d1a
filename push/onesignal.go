package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/BrandonHVX/heavy-status/pkg/news"
)

// APIVersion selects which OneSignal REST surface and auth scheme to use.
// It is resolved once at startup from the API key format, never re-sniffed
// per call.
type APIVersion int

const (
	// LegacyV1 uses onesignal.com/api/v1 with a Basic authorization header.
	LegacyV1 APIVersion = iota
	// ModernV2 uses api.onesignal.com with a Key authorization header.
	ModernV2
)

// v2KeyPrefix marks the newer key format issued by OneSignal.
const v2KeyPrefix = "os_v2_"

// ResolveAPIVersion picks the API version matching an API key's format.
func ResolveAPIVersion(apiKey string) APIVersion {
	if strings.HasPrefix(apiKey, v2KeyPrefix) {
		return ModernV2
	}
	return LegacyV1
}

func (v APIVersion) String() string {
	if v == ModernV2 {
		return "v2"
	}
	return "v1"
}

func (v APIVersion) baseURL() string {
	if v == ModernV2 {
		return "https://api.onesignal.com"
	}
	return "https://onesignal.com/api/v1"
}

func (v APIVersion) authorization(apiKey string) string {
	if v == ModernV2 {
		return "Key " + apiKey
	}
	return "Basic " + apiKey
}

// Result is the delivery service's response to a send call.
type Result struct {
	ID         string          `json:"id"`
	Errors     json.RawMessage `json:"errors,omitempty"`
	Recipients int             `json:"recipients"`
}

// NoRecipients reports the non-fatal condition where the service accepted
// the call but found nobody to deliver to.
func (r *Result) NoRecipients() bool {
	return r.Recipients == 0
}

// APIError indicates a non-2xx response from the delivery service.
type APIError struct {
	Body   json.RawMessage
	Status int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("onesignal: HTTP %d", e.Status)
}

// AsAPIError extracts an APIError if err carries one.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

// OneSignal is the real push provider, speaking the OneSignal REST API.
type OneSignal struct {
	client  *http.Client
	logger  *slog.Logger
	appID   string
	apiKey  string
	base    string
	version APIVersion
}

// NewOneSignal creates a OneSignal provider. The API version must already
// be resolved from the key format (see ResolveAPIVersion).
func NewOneSignal(appID, apiKey string, version APIVersion, client *http.Client, logger *slog.Logger) *OneSignal {
	return &OneSignal{
		appID:   appID,
		apiKey:  apiKey,
		version: version,
		base:    version.baseURL(),
		client:  client,
		logger:  logger,
	}
}

// Send submits one notification. 4xx responses are not retried; network
// failures and 5xx are.
func (o *OneSignal) Send(ctx context.Context, p *Payload) (*Result, error) {
	payload := *p
	payload.AppID = o.appID

	body, err := json.Marshal(&payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	endpoint := o.base + "/notifications"
	var result Result

	err = retry.Do(
		func() error {
			o.logger.Info("OneSignal API request starting",
				"method", "POST",
				"endpoint", "notifications",
				"api_version", o.version.String(),
				"url", payload.URL)

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", o.version.authorization(o.apiKey))

			startTime := time.Now()
			resp, err := o.client.Do(req)
			duration := time.Since(startTime)

			if err != nil {
				o.logger.Warn("OneSignal API request failed, will retry",
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					o.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			respBody, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				o.logger.Warn("OneSignal API returned non-2xx status",
					"status_code", resp.StatusCode,
					"body", string(respBody))
				apiErr := &APIError{Status: resp.StatusCode, Body: json.RawMessage(respBody)}
				if resp.StatusCode >= 400 && resp.StatusCode < 500 {
					// Client errors will not heal on retry, and retrying a
					// send risks a duplicate notification.
					return retry.Unrecoverable(apiErr)
				}
				return apiErr
			}

			if err := json.Unmarshal(respBody, &result); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode response: %w", err))
			}

			o.logger.Info("OneSignal API request completed",
				"endpoint", "notifications",
				"duration_ms", duration.Milliseconds(),
				"notification_id", result.ID,
				"recipients", result.Recipients)

			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(2*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			o.logger.Info("Retrying OneSignal send after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}

	return &result, nil
}

type historyEntry struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	QueuedAt int64  `json:"queued_at"`
}

type historyResponse struct {
	Notifications []historyEntry `json:"notifications"`
}

// RecentNotifications reads the delivery history, newest first. This is the
// de-duplication ledger: the service is the only durable record of what has
// already been sent.
func (o *OneSignal) RecentNotifications(ctx context.Context, limit int) ([]news.NotificationRecord, error) {
	endpoint := fmt.Sprintf("%s/notifications?app_id=%s&limit=%d",
		o.base, url.QueryEscape(o.appID), limit)

	var history historyResponse

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Authorization", o.version.authorization(o.apiKey))

			resp, err := o.client.Do(req)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					o.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return &APIError{Status: resp.StatusCode}
			}

			if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode history: %w", err))
			}

			return nil
		},
		retry.Attempts(2),
		retry.Delay(time.Second),
		retry.MaxDelay(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			o.logger.Info("Retrying notification history fetch", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}

	records := make([]news.NotificationRecord, 0, len(history.Notifications))
	for _, n := range history.Notifications {
		records = append(records, news.NotificationRecord{
			ID:       n.ID,
			URL:      n.URL,
			QueuedAt: time.Unix(n.QueuedAt, 0).UTC(),
		})
	}
	return records, nil
}

// AppStats reports live subscriber counts for the configured app.
func (o *OneSignal) AppStats(ctx context.Context) (*AppStats, error) {
	endpoint := o.base + "/apps/" + url.PathEscape(o.appID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", o.version.authorization(o.apiKey))

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch app stats: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			o.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode}
	}

	var stats AppStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decode app stats: %w", err)
	}

	return &stats, nil
}
