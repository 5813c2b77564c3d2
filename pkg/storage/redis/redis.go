// Package redis keeps the latest summary per user in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/papercomputeco/cohort/pkg/storage"
)

const summaryPrefix = "cohort:summary:"

// SummaryStore implements storage.SummaryStore.
type SummaryStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSummaryStore connects to redisURL, e.g. "redis://localhost:6379/0".
// A zero ttl keeps summaries forever.
func NewSummaryStore(ctx context.Context, redisURL string, ttl time.Duration) (*SummaryStore, error) {
	if redisURL == "" {
		return nil, errors.New("redis URL is required")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &SummaryStore{client: client, ttl: ttl}, nil
}

func (s *SummaryStore) key(userID string) string {
	return summaryPrefix + userID
}

// PutSummary overwrites the user's summary unless the stored one is newer.
func (s *SummaryStore) PutSummary(ctx context.Context, sum *storage.Summary) error {
	if sum == nil {
		return errors.New("cannot store nil summary")
	}

	prev, err := s.LatestSummary(ctx, sum.UserID)
	if err == nil && prev.CreatedAt.After(sum.CreatedAt) {
		return nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sum.UserID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set summary: %w", err)
	}
	return nil
}

// LatestSummary returns the newest summary for userID, or
// storage.ErrNotFound.
func (s *SummaryStore) LatestSummary(ctx context.Context, userID string) (*storage.Summary, error) {
	data, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("summary for %s: %w", userID, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}

	var sum storage.Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	return &sum, nil
}

// Close closes the Redis client.
func (s *SummaryStore) Close() error {
	return s.client.Close()
}

var _ storage.SummaryStore = (*SummaryStore)(nil)
