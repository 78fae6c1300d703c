package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// processedTTL bounds dedupe memory; providers stop redelivering well within
// a day.
const processedTTL = 24 * time.Hour

// ProcessedStore records webhook events that were already handled so provider
// redeliveries do not replay state transitions.
type ProcessedStore struct {
	rdb *redis.Client
}

// NewProcessedStore creates a dedupe store backed by Redis.
func NewProcessedStore(rdb *redis.Client) *ProcessedStore {
	if rdb == nil {
		panic("events: redis client required")
	}
	return &ProcessedStore{rdb: rdb}
}

func processedKey(provider, eventID string) string {
	return "events:processed:" + provider + ":" + eventID
}

// AlreadyProcessed reports whether the event id was handled before. Callers
// check this before processing and call MarkProcessed only after the event is
// fully handled, so a failed handler leaves the id unclaimed for redelivery.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	if s == nil || s.rdb == nil || eventID == "" {
		return false, nil
	}
	n, err := s.rdb.Exists(ctx, processedKey(provider, eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("events: processed lookup: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed records an event id as handled, returning false when the
// event was seen before.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	if s == nil || s.rdb == nil {
		return true, nil
	}
	if eventID == "" {
		// Events without an id cannot be deduplicated; process them.
		return true, nil
	}
	ok, err := s.rdb.SetNX(ctx, processedKey(provider, eventID), 1, processedTTL).Result()
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ok, nil
}
