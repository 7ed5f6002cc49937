package tweets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Store is the persistence surface the storage service writes through.
// *Repository satisfies it.
type Store interface {
	Save(ctx context.Context, tweet *Tweet) error
	DeleteByID(ctx context.Context, id int64) (int64, error)
}

// Indexer keeps the full-text index in step with the store. The search
// package provides the real implementation.
type Indexer interface {
	Upsert(tweet *Tweet) error
	Remove(id int64) error
}

const lockShards = 64

// StorageService turns ingestion payloads into stored, indexed tweets.
//
// Writes for the same id are serialized through a mutex shard so the index
// always reflects the last completed write; writes for different ids run
// independently.
type StorageService struct {
	store  Store
	index  Indexer
	logger *slog.Logger
	locks  [lockShards]sync.Mutex
}

// NewStorageService creates a storage service.
func NewStorageService(store Store, index Indexer, logger *slog.Logger) *StorageService {
	return &StorageService{store: store, index: index, logger: logger}
}

func (s *StorageService) lock(id int64) *sync.Mutex {
	return &s.locks[uint64(id)%lockShards]
}

// Store converts the status, persists it, and updates the search index.
// It is idempotent: storing the same status twice leaves one row and one
// index entry. Partial reply metadata is dropped with a warning rather than
// stored as a corrupt link.
func (s *StorageService) Store(ctx context.Context, status *Status, rawData string) (*Tweet, error) {
	// raw_data is a JSONB column; reject garbage here instead of surfacing
	// an opaque driver error at insert time.
	if !json.Valid([]byte(rawData)) {
		return nil, fmt.Errorf("status %d: raw data is not valid JSON", status.ID)
	}

	if status.HasPartialReply() {
		s.logger.Warn("dropping partial reply metadata",
			"id", status.ID,
			"in_reply_to_status_id", status.InReplyToStatusID,
			"in_reply_to_user_id", status.InReplyToUserID,
			"in_reply_to_screen_name", status.InReplyToScreenName,
		)
	}

	tweet, err := NewTweetFromStatus(status, rawData)
	if err != nil {
		return nil, fmt.Errorf("failed to convert status: %w", err)
	}

	mu := s.lock(tweet.ID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.store.Save(ctx, tweet); err != nil {
		return nil, err
	}
	if err := s.index.Upsert(tweet); err != nil {
		return nil, fmt.Errorf("failed to index tweet %d: %w", tweet.ID, err)
	}

	s.logger.Debug("stored tweet", "id", tweet.ID, "lang", tweet.Lang, "reply", tweet.IsReply())
	return tweet, nil
}

// Delete removes the tweet and its index entry. Returns the number of rows
// deleted; deleting an unknown id returns 0 without error.
func (s *StorageService) Delete(ctx context.Context, id int64) (int64, error) {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	count, err := s.store.DeleteByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := s.index.Remove(id); err != nil {
		return count, fmt.Errorf("failed to remove tweet %d from index: %w", id, err)
	}

	s.logger.Info("deleted status", "id", id, "count", count)
	return count, nil
}
