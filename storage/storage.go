// Package storage persists the last-seen marker and the dispatch journal.
//
// The push service's own history is the primary de-duplication ledger; this
// store exists so the last-seen policy has durable state across process
// restarts (a bare in-process variable resets on every cold start) and so
// operators have a queryable record of what was dispatched.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/iterator"

	"github.com/BrandonHVX/heavy-status/pkg/news"
)

const (
	markerKey      = "last-seen.json"
	dispatchPrefix = "dispatch-"
)

var errNotFound = errors.New("storage: object doesn't exist")

// Store persists markers and journal entries to a Cloud Storage bucket, or
// to a local directory in development.
type Store struct {
	client    *storage.Client
	logger    *slog.Logger
	localPath string
	bucket    string
}

// New creates a storage handler. localPath wins when both it and bucket are
// set.
func New(client *storage.Client, bucket, localPath string, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		bucket:    bucket,
		localPath: localPath,
		logger:    logger,
	}
}

type marker struct {
	LastSeen time.Time `json:"last_seen"`
}

// LastSeen returns the durable last-seen publish timestamp. A missing
// marker is not an error; it yields the zero time, which the detector
// treats as "everything is new".
func (s *Store) LastSeen(ctx context.Context) (time.Time, error) {
	data, err := s.load(ctx, markerKey)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}

	var m marker
	if err := json.Unmarshal(data, &m); err != nil {
		return time.Time{}, fmt.Errorf("unmarshal marker: %w", err)
	}
	return m.LastSeen, nil
}

// SetLastSeen advances the durable last-seen marker. Callers only do this
// after a successful dispatch.
func (s *Store) SetLastSeen(ctx context.Context, t time.Time) error {
	data, err := json.MarshalIndent(marker{LastSeen: t}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}
	if err := s.save(ctx, markerKey, data); err != nil {
		return err
	}
	s.logger.Info("Last-seen marker advanced", "last_seen", t.Format(time.RFC3339))
	return nil
}

// RecordDispatch appends one entry to the dispatch journal.
func (s *Store) RecordDispatch(ctx context.Context, rec news.DispatchRecord) error {
	if rec.SentAt.IsZero() {
		rec.SentAt = time.Now().UTC()
	}
	key := fmt.Sprintf("%s%020d.json", dispatchPrefix, rec.SentAt.UnixNano())

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dispatch record: %w", err)
	}
	if err := s.save(ctx, key, data); err != nil {
		return err
	}

	s.logger.Info("Dispatch recorded", "key", key, "slug", rec.Slug, "url", rec.URL)
	return nil
}

// RecentDispatches returns the newest journal entries, newest first.
func (s *Store) RecentDispatches(ctx context.Context, limit int) ([]news.DispatchRecord, error) {
	keys, err := s.listKeys(ctx, dispatchPrefix)
	if err != nil {
		return nil, err
	}

	// Keys embed zero-padded nanosecond timestamps, so lexical order is
	// chronological order.
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	records := make([]news.DispatchRecord, 0, len(keys))
	for _, key := range keys {
		data, err := s.load(ctx, key)
		if err != nil {
			s.logger.Warn("Failed to load dispatch record", "key", key, "error", err)
			continue
		}
		var rec news.DispatchRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn("Failed to decode dispatch record", "key", key, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Store) save(ctx context.Context, key string, data []byte) error {
	// Local filesystem storage
	if s.localPath != "" {
		filePath := filepath.Join(s.localPath, key)
		if err := os.WriteFile(filePath, data, 0o600); err != nil {
			return fmt.Errorf("write to local storage: %w", err)
		}
		return nil
	}

	// Cloud Storage with retry logic for reliability
	err := retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying save operation after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}
	return nil
}

func (s *Store) load(ctx context.Context, key string) ([]byte, error) {
	// Local filesystem storage
	if s.localPath != "" {
		data, err := os.ReadFile(filepath.Join(s.localPath, key))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errNotFound
			}
			return nil, fmt.Errorf("read from local storage: %w", err)
		}
		return data, nil
	}

	// Cloud Storage with retry logic for reliability
	var data []byte
	err := retry.Do(
		func() error {
			r, openErr := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
			if openErr != nil {
				if errors.Is(openErr, storage.ErrObjectNotExist) {
					return retry.Unrecoverable(errNotFound)
				}
				return fmt.Errorf("open storage reader: %w", openErr)
			}
			defer func() {
				if closeErr := r.Close(); closeErr != nil {
					s.logger.Warn("Failed to close storage reader", "error", closeErr)
				}
			}()

			var readErr error
			data, readErr = io.ReadAll(r)
			if readErr != nil {
				return fmt.Errorf("read from storage: %w", readErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying load operation after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, errNotFound
		}
		return nil, fmt.Errorf("load after retries: %w", err)
	}
	return data, nil
}

func (s *Store) listKeys(ctx context.Context, prefix string) ([]string, error) {
	// Local filesystem storage
	if s.localPath != "" {
		entries, err := os.ReadDir(s.localPath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("read local storage directory: %w", err)
		}

		var keys []string
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			keys = append(keys, entry.Name())
		}
		return keys, nil
	}

	// Cloud Storage
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate storage: %w", err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

// IsNotFound checks if an error indicates a missing object.
func IsNotFound(err error) bool {
	return errors.Is(err, errNotFound)
}
