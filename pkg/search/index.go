package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/tweetvault/tweetvault/pkg/tweets"
)

// Field names of the index schema. Only content is analyzed; everything
// else is an exact-match term or a datetime.
const (
	FieldContent     = "content"
	FieldCreatedAt   = "created_at"
	FieldSource      = "source"
	FieldCountryCode = "country_code"
	FieldRepliedTo   = "replied_to"
	FieldYear        = "year"
)

// tweetDocument is the indexed derivative of a tweet. Its type name selects
// the document mapping, and with it the analyzer applied to content.
type tweetDocument struct {
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
	Source      string    `json:"source"`
	CountryCode string    `json:"country_code,omitempty"`
	RepliedTo   string    `json:"replied_to,omitempty"`
	Year        string    `json:"year"`

	analyzer string
}

// Type implements mapping.Classifier.
func (d tweetDocument) Type() string {
	return d.analyzer
}

var _ mapping.Classifier = tweetDocument{}

// Index maintains the full-text index over stored tweets. All methods are
// safe for concurrent use; bleve serializes writes internally and exposes a
// consistent snapshot to searches started after a write returns.
type Index struct {
	path string
	idx  bleve.Index
}

// Open opens the index at path, creating it with the tweet mapping when it
// does not exist yet.
func Open(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		indexMapping, mapErr := newIndexMapping()
		if mapErr != nil {
			return nil, mapErr
		}
		idx, err = bleve.New(path, indexMapping)
		if err != nil {
			return nil, fmt.Errorf("failed to create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	return &Index{path: path, idx: idx}, nil
}

// newIndexMapping builds the index mapping: one document mapping per
// analysis pipeline, identical except for the analyzer on content.
func newIndexMapping() (mapping.IndexMapping, error) {
	indexMapping := bleve.NewIndexMapping()
	if err := registerAnalyzers(indexMapping); err != nil {
		return nil, err
	}

	for _, analyzer := range supportedAnalyzers {
		indexMapping.AddDocumentMapping(analyzer, newTweetMapping(analyzer))
	}
	indexMapping.DefaultType = AnalyzerUndetermined
	indexMapping.DefaultAnalyzer = AnalyzerUndetermined

	return indexMapping, nil
}

func newTweetMapping(contentAnalyzer string) *mapping.DocumentMapping {
	docMapping := bleve.NewDocumentMapping()

	contentField := bleve.NewTextFieldMapping()
	contentField.Store = false
	contentField.Index = true
	contentField.Analyzer = contentAnalyzer
	docMapping.AddFieldMappingsAt(FieldContent, contentField)

	createdField := bleve.NewDateTimeFieldMapping()
	createdField.Store = true
	createdField.Index = true
	docMapping.AddFieldMappingsAt(FieldCreatedAt, createdField)

	for _, field := range []string{FieldSource, FieldCountryCode, FieldRepliedTo} {
		keywordField := bleve.NewTextFieldMapping()
		keywordField.Store = true
		keywordField.Index = true
		keywordField.Analyzer = keyword.Name
		docMapping.AddFieldMappingsAt(field, keywordField)
	}

	// Derived facet: exact-match, never stored.
	yearField := bleve.NewTextFieldMapping()
	yearField.Store = false
	yearField.Index = true
	yearField.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt(FieldYear, yearField)

	return docMapping
}

func docID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Upsert replaces the index entry for the tweet, re-deriving the year facet
// and running content through the pipeline selected by the tweet's
// language. Repeated calls with the same tweet state are idempotent.
func (i *Index) Upsert(tweet *tweets.Tweet) error {
	doc := tweetDocument{
		Content:     tweet.Content,
		CreatedAt:   tweet.CreatedAt,
		Source:      tweet.Source,
		CountryCode: tweet.CountryCode,
		Year:        tweet.Year(),
		analyzer:    AnalyzerForLanguage(tweet.Lang),
	}
	if tweet.InReplyTo != nil {
		doc.RepliedTo = tweet.InReplyTo.ScreenName
	}

	if err := i.idx.Index(docID(tweet.ID), doc); err != nil {
		return fmt.Errorf("failed to index tweet %d: %w", tweet.ID, err)
	}
	return nil
}

// Remove deletes all postings for the id. Removing an id that was never
// indexed is a no-op.
func (i *Index) Remove(id int64) error {
	if err := i.idx.Delete(docID(id)); err != nil {
		return fmt.Errorf("failed to delete tweet %d from index: %w", id, err)
	}
	return nil
}

// Search evaluates the query and returns matching tweet ids, most relevant
// first. Ordering is stable for identical index state and query: relevance
// ties are broken by document id. The context cancels long searches.
func (i *Index) Search(ctx context.Context, q query.Query, limit int) ([]int64, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.SortBy([]string{"-_score", "_id"})

	result, err := i.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	ids := make([]int64, 0, len(result.Hits))
	for _, hit := range result.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("unexpected document id %q: %w", hit.ID, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// DocCount returns the number of indexed tweets.
func (i *Index) DocCount() (uint64, error) {
	return i.idx.DocCount()
}

// Close releases the index.
func (i *Index) Close() error {
	return i.idx.Close()
}
