package tweets

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Created-at layouts seen in the wild. The streaming API uses the ruby-style
// layout; exported archives use the ISO-ish one. Layout constants are passed
// to time.Parse per call, so parsing is safe under concurrency.
const (
	CreatedAtLayoutAPI     = "Mon Jan 02 15:04:05 -0700 2006"
	CreatedAtLayoutArchive = "2006-01-02 15:04:05 -0700"
)

// Status is the raw ingestion payload for a single tweet, mirroring the
// provider's JSON shape. It is converted into a Tweet before storage.
type Status struct {
	ID                  int64       `json:"id"`
	User                StatusUser  `json:"user"`
	CreatedAt           string      `json:"created_at"`
	Text                string      `json:"text"`
	Source              string      `json:"source"`
	Lang                string      `json:"lang"`
	InReplyToStatusID   int64       `json:"in_reply_to_status_id"`
	InReplyToUserID     int64       `json:"in_reply_to_user_id"`
	InReplyToScreenName string      `json:"in_reply_to_screen_name"`
	QuotedStatusID      int64       `json:"quoted_status_id"`
	RetweetedStatus     *Status     `json:"retweeted_status"`
	Entities            Entities    `json:"entities"`
	Place               *Place      `json:"place"`
	Geo                 *GeoPoint   `json:"geo"`
}

// StatusUser identifies the account behind a status.
type StatusUser struct {
	ID         int64  `json:"id"`
	ScreenName string `json:"screen_name"`
}

// Entities holds the resolvable entities of a status. Only URLs matter for
// content extraction.
type Entities struct {
	URLs []URLEntity `json:"urls"`
}

// URLEntity is a shortened URL with its expansion and its rune-offset span
// in the status text.
type URLEntity struct {
	URL         string `json:"url"`
	ExpandedURL string `json:"expanded_url"`
	Indices     [2]int `json:"indices"`
}

// Place carries the coarse location of a status.
type Place struct {
	CountryCode string `json:"country_code"`
}

// GeoPoint is the exact location, coordinates ordered latitude, longitude.
type GeoPoint struct {
	Coordinates []float64 `json:"coordinates"`
}

var sourcePattern = regexp.MustCompile(`^<a.*?>(.*)</a>$`)

// ParseCreatedAt parses a created_at value in either supported layout.
func ParseCreatedAt(value string) (time.Time, error) {
	if t, err := time.Parse(CreatedAtLayoutAPI, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(CreatedAtLayoutArchive, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("unsupported created_at value %q", value)
	}
	return t, nil
}

// ExtractContent resolves all URL entities in the status text to their
// expanded form. Retweets use the retweeted status's text and entities,
// prefixed with the conventional "RT @name: " marker.
func (s *Status) ExtractContent() string {
	work := s
	prefix := ""
	if s.RetweetedStatus != nil {
		work = s.RetweetedStatus
		prefix = fmt.Sprintf("RT @%s: ", work.User.ScreenName)
	}

	text := []rune(work.Text)
	var b strings.Builder
	pos := 0
	for _, u := range work.Entities.URLs {
		start, end := u.Indices[0], u.Indices[1]
		if start < pos || end > len(text) || end < start || u.ExpandedURL == "" {
			continue
		}
		b.WriteString(string(text[pos:start]))
		b.WriteString(u.ExpandedURL)
		pos = end
	}
	if pos <= len(text) {
		b.WriteString(string(text[pos:]))
	}
	return prefix + b.String()
}

// ExtractSource strips the anchor markup the provider wraps around the
// client name. Sources that are not anchor tags pass through trimmed.
func (s *Status) ExtractSource() string {
	source := strings.TrimSpace(s.Source)
	if m := sourcePattern.FindStringSubmatch(source); m != nil {
		return strings.TrimSpace(m[1])
	}
	return source
}

// HasCompleteReply reports whether all three reply fields are populated.
func (s *Status) HasCompleteReply() bool {
	return s.InReplyToStatusID > 0 && s.InReplyToUserID > 0 && s.InReplyToScreenName != ""
}

// HasPartialReply reports whether some but not all reply fields are set.
// Such metadata is never stored; the storage service normalizes it away.
func (s *Status) HasPartialReply() bool {
	any := s.InReplyToStatusID > 0 || s.InReplyToUserID > 0 || s.InReplyToScreenName != ""
	return any && !s.HasCompleteReply()
}

// NewTweetFromStatus converts an ingestion payload into a Tweet ready for
// storage. Partial reply metadata is dropped rather than stored.
func NewTweetFromStatus(status *Status, rawData string) (*Tweet, error) {
	createdAt, err := ParseCreatedAt(status.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("status %d: %w", status.ID, err)
	}

	tweet := &Tweet{
		ID:        status.ID,
		UserID:    status.User.ID,
		CreatedAt: createdAt.UTC().Truncate(time.Second),
		Content:   status.ExtractContent(),
		Source:    status.ExtractSource(),
		RawData:   rawData,
		Lang:      status.Lang,
	}
	if status.HasCompleteReply() {
		tweet.InReplyTo = &InReplyTo{
			StatusID:   status.InReplyToStatusID,
			ScreenName: status.InReplyToScreenName,
			UserID:     status.InReplyToUserID,
		}
	}
	if status.QuotedStatusID > 0 {
		id := status.QuotedStatusID
		tweet.QuotedStatusID = &id
	}
	if status.Place != nil {
		tweet.CountryCode = status.Place.CountryCode
	}
	if status.Geo != nil && len(status.Geo.Coordinates) == 2 {
		tweet.Location = &Location{
			Latitude:  status.Geo.Coordinates[0],
			Longitude: status.Geo.Coordinates[1],
		}
	}

	if err := tweet.Validate(); err != nil {
		return nil, err
	}
	return tweet, nil
}
