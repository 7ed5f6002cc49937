package stream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tweetvault/tweetvault/pkg/tweets"
)

// Subscriber connects to the status stream and feeds it into the storage
// service, mirroring what the archive's live ingestion collaborator does.
type Subscriber struct {
	url       string
	storage   *tweets.StorageService
	logger    *slog.Logger
	reconnect time.Duration
}

// NewSubscriber creates a stream subscriber.
func NewSubscriber(streamURL string, storage *tweets.StorageService, logger *slog.Logger, reconnect time.Duration) *Subscriber {
	if reconnect <= 0 {
		reconnect = 5 * time.Second
	}
	return &Subscriber{
		url:       streamURL,
		storage:   storage,
		logger:    logger,
		reconnect: reconnect,
	}
}

// Start connects to the stream and processes events until the context is
// cancelled, reconnecting on transient errors.
func (s *Subscriber) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.subscribe(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Error("stream connection error, reconnecting", "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(s.reconnect):
				}
			}
		}
	}
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	s.logger.Info("connecting to status stream", "url", s.url)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	// ReadMessage blocks indefinitely on a quiet connection; closing the
	// connection is the only way to unblock it when the context ends.
	watcherDone := make(chan struct{})
	defer close(watcherDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watcherDone:
		}
	}()

	s.logger.Info("connected to status stream")

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read message: %w", err)
		}

		event, err := parseEvent(message)
		if err != nil {
			s.logger.Error("failed to parse stream event", "error", err)
			continue
		}

		if event.IsDeletion() {
			if _, err := s.storage.Delete(ctx, event.DeleteID); err != nil {
				s.logger.Error("failed to delete status", "id", event.DeleteID, "error", err)
			}
			continue
		}

		if _, err := s.storage.Store(ctx, event.Status, string(event.Raw)); err != nil {
			s.logger.Error("failed to store status", "id", event.Status.ID, "error", err)
		}
	}
}
