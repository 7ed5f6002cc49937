package stream

import (
	"encoding/json"
	"fmt"

	"github.com/tweetvault/tweetvault/pkg/tweets"
)

// Event is one message from the status stream: either a new status or a
// deletion notice.
type Event struct {
	// Status is set for status events.
	Status *tweets.Status
	// DeleteID is set for deletion notices.
	DeleteID int64
	// Raw is the original message payload, stored alongside the tweet.
	Raw []byte
}

// IsDeletion reports whether the event is a deletion notice.
func (e *Event) IsDeletion() bool {
	return e.DeleteID != 0
}

// parseEvent decodes a stream message. Deletion notices arrive as
// {"delete": {"status": {"id": …}}}; everything else carrying an id and
// text is a status.
func parseEvent(data []byte) (*Event, error) {
	var envelope struct {
		Delete *struct {
			Status struct {
				ID int64 `json:"id"`
			} `json:"status"`
		} `json:"delete"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	if envelope.Delete != nil {
		if envelope.Delete.Status.ID == 0 {
			return nil, fmt.Errorf("deletion notice without status id")
		}
		return &Event{DeleteID: envelope.Delete.Status.ID, Raw: data}, nil
	}

	var status tweets.Status
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("unmarshal status: %w", err)
	}
	if status.ID == 0 {
		return nil, fmt.Errorf("status without id")
	}
	return &Event{Status: &status, Raw: data}, nil
}
