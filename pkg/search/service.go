package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tweetvault/tweetvault/pkg/tweets"
)

// Loader hydrates search hits back into tweets. *tweets.Repository
// satisfies it.
type Loader interface {
	FindByIDs(ctx context.Context, ids []int64) ([]tweets.Tweet, error)
}

const defaultMaxResults = 100

// Service answers the two search operations against the index, returning
// full tweets in hit order.
type Service struct {
	index      *Index
	loader     Loader
	logger     *slog.Logger
	maxResults int
}

// NewService creates a search service. maxResults caps the number of hits
// per query; zero selects the default.
func NewService(index *Index, loader Loader, logger *slog.Logger, maxResults int) *Service {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &Service{index: index, loader: loader, logger: logger, maxResults: maxResults}
}

// SearchKeywords finds tweets whose content matches the keywords, optionally
// restricted to a UTC calendar-day range. from is inclusive; to names the
// last included day. Blank keywords are rejected with ErrBlankKeywords.
func (s *Service) SearchKeywords(ctx context.Context, keywords string, from, to *time.Time) ([]tweets.Tweet, error) {
	q, err := NewKeywordQuery(keywords, from, to)
	if err != nil {
		return nil, err
	}

	ids, err := s.index.Search(ctx, q, s.maxResults)
	if err != nil {
		return nil, err
	}
	return s.loader.FindByIDs(ctx, ids)
}

// SearchQuery evaluates a query-language expression. A malformed expression
// is not an error to the caller: it is logged and yields an empty result.
// Blank input is a validation error, and index or store failures propagate.
func (s *Service) SearchQuery(ctx context.Context, expr string) ([]tweets.Tweet, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, ErrBlankKeywords
	}

	q, err := ParseQuery(expr)
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			s.logger.Error("could not parse query", "query", expr, "error", err)
			return []tweets.Tweet{}, nil
		}
		return nil, fmt.Errorf("failed to parse query: %w", err)
	}

	ids, err := s.index.Search(ctx, q, s.maxResults)
	if err != nil {
		return nil, err
	}
	return s.loader.FindByIDs(ctx, ids)
}
