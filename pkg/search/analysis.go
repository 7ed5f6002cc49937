package search

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/lang/de"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/porter"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Analyzer names. Each corresponds to one analysis pipeline and one document
// type in the index mapping.
const (
	AnalyzerEnglish      = "en"
	AnalyzerGerman       = "de"
	AnalyzerUndetermined = "und"
)

var supportedAnalyzers = []string{AnalyzerEnglish, AnalyzerGerman, AnalyzerUndetermined}

// AnalyzerForLanguage maps a language tag to the analyzer used for the
// tweet's content. It is total: unknown, unsupported, or missing tags all
// resolve to the undetermined pipeline, never to an error.
func AnalyzerForLanguage(lang string) string {
	switch strings.ToLower(lang) {
	case "en":
		return AnalyzerEnglish
	case "de":
		return AnalyzerGerman
	default:
		return AnalyzerUndetermined
	}
}

// registerAnalyzers adds the three content pipelines to the index mapping:
//
//	en:  unicode tokenizer, lowercase, Porter stemming
//	de:  unicode tokenizer, lowercase, German normalization and stemming
//	und: unicode tokenizer, lowercase
//
// Structured fields never pass through these; they are mapped with the
// keyword analyzer or as datetimes.
func registerAnalyzers(m *mapping.IndexMappingImpl) error {
	pipelines := map[string][]string{
		AnalyzerEnglish:      {lowercase.Name, porter.Name},
		AnalyzerGerman:       {lowercase.Name, de.NormalizeName, de.SnowballStemmerName},
		AnalyzerUndetermined: {lowercase.Name},
	}
	for name, filters := range pipelines {
		err := m.AddCustomAnalyzer(name, map[string]interface{}{
			"type":          custom.Name,
			"tokenizer":     unicode.Name,
			"token_filters": filters,
		})
		if err != nil {
			return fmt.Errorf("failed to register analyzer %q: %w", name, err)
		}
	}
	return nil
}
