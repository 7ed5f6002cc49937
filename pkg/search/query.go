package search

import (
	"errors"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// ErrBlankKeywords rejects keyword searches with nothing to search for.
// It is a caller contract violation, surfaced before the index is touched.
var ErrBlankKeywords = errors.New("search keywords must not be blank")

var (
	inclusive = true
	exclusive = false
)

// NewKeywordQuery builds the boolean query for the keyword+date-range path:
// a mandatory content match, plus optional created_at bounds. from and to
// are UTC calendar days; from is inclusive at its midnight and to is
// inclusive as a whole day (the exclusive bound is the midnight after it).
func NewKeywordQuery(keywords string, from, to *time.Time) (query.Query, error) {
	if strings.TrimSpace(keywords) == "" {
		return nil, ErrBlankKeywords
	}

	match := bleve.NewMatchQuery(keywords)
	match.SetField(FieldContent)
	match.Analyzer = AnalyzerUndetermined

	clauses := []query.Query{query.Query(match)}

	if from != nil {
		start := startOfDayUTC(*from)
		rq := bleve.NewDateRangeInclusiveQuery(start, time.Time{}, &inclusive, nil)
		rq.SetField(FieldCreatedAt)
		clauses = append(clauses, rq)
	}
	if to != nil {
		end := startOfDayUTC(*to).AddDate(0, 0, 1)
		rq := bleve.NewDateRangeInclusiveQuery(time.Time{}, end, nil, &exclusive)
		rq.SetField(FieldCreatedAt)
		clauses = append(clauses, rq)
	}

	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return bleve.NewConjunctionQuery(clauses...), nil
}

func startOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
