package tweets

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Tweet is the archived unit: a single status with its structured fields and
// the raw payload it was built from. The raw payload is kept so the search
// index can be rebuilt by replaying stored tweets without re-fetching.
type Tweet struct {
	// ID is the externally assigned status id. Never reused.
	ID int64 `json:"id"`

	// UserID identifies the posting account.
	UserID int64 `json:"user_id"`

	// CreatedAt is UTC, second precision.
	CreatedAt time.Time `json:"created_at"`

	// Content is the status text with all URL entities resolved to their
	// expanded form. Never blank.
	Content string `json:"content"`

	// Source is the client name only, stripped of its link markup.
	Source string `json:"source"`

	// RawData is the original JSON payload. Stored, not exposed.
	RawData string `json:"-"`

	// InReplyTo is set only when the tweet is a reply, and then all three
	// of its fields are populated.
	InReplyTo *InReplyTo `json:"in_reply_to,omitempty"`

	// QuotedStatusID surfaces only for quote tweets.
	QuotedStatusID *int64 `json:"quoted_status_id,omitempty"`

	// CountryCode from the tweet's place, if available.
	CountryCode string `json:"country_code,omitempty"`

	// Lang is a BCP-47-like tag of the machine-detected language, or empty.
	Lang string `json:"lang,omitempty"`

	// Location is the exact location, if available. Not searchable.
	Location *Location `json:"location,omitempty"`
}

// InReplyTo carries the facts needed to reconstruct the tweet this one
// replies to.
type InReplyTo struct {
	StatusID   int64  `json:"status_id"`
	ScreenName string `json:"screen_name"`
	UserID     int64  `json:"user_id"`
}

// Location wraps latitude and longitude.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Year returns the derived year facet, computed from CreatedAt in UTC.
func (t *Tweet) Year() string {
	return strconv.Itoa(t.CreatedAt.UTC().Year())
}

// IsReply reports whether the tweet carries complete reply metadata.
func (t *Tweet) IsReply() bool {
	return t.InReplyTo != nil
}

// Validate checks the invariants every stored tweet must hold.
func (t *Tweet) Validate() error {
	if t.ID == 0 {
		return fmt.Errorf("tweet id is required")
	}
	if strings.TrimSpace(t.Content) == "" {
		return fmt.Errorf("tweet %d: content must not be blank", t.ID)
	}
	if t.Source == "" {
		return fmt.Errorf("tweet %d: source is required", t.ID)
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("tweet %d: created_at is required", t.ID)
	}
	if r := t.InReplyTo; r != nil {
		if r.StatusID == 0 || r.UserID == 0 || r.ScreenName == "" {
			return fmt.Errorf("tweet %d: partial reply metadata", t.ID)
		}
	}
	return nil
}
