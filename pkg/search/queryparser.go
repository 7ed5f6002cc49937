package search

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// ParseError reports a malformed query expression together with the rune
// offset where parsing failed.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d: %s", e.Pos, e.Msg)
}

// ParseQuery parses a restricted query-language expression into an index
// query. Supported syntax:
//
//	term            match against content (analyzed)
//	field:value     exact match on a structured field
//	"a phrase"      phrase match, optionally with field:
//	a AND b, a OR b, NOT a, +a, -a, ( … )
//	term*           trailing wildcard (prefix match)
//
// AND binds tighter than OR; adjacent clauses combine like OR. Leading
// wildcards are rejected with a ParseError, never silently degraded into a
// full scan.
func ParseQuery(expr string) (query.Query, error) {
	toks, err := lexQuery(expr)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, &ParseError{Pos: 0, Msg: "empty query"}
	}

	p := &queryParser{toks: toks}
	q, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.atEnd() {
		t := p.toks[p.pos]
		return nil, &ParseError{Pos: t.pos, Msg: fmt.Sprintf("unexpected %q", t.text)}
	}
	return q, nil
}

type tokenKind int

const (
	tokTerm tokenKind = iota
	tokPhrase
	tokAnd
	tokOr
	tokNot
	tokPlus
	tokMinus
	tokLParen
	tokRParen
)

type token struct {
	kind  tokenKind
	field string
	text  string
	pos   int
}

func lexQuery(expr string) ([]token, error) {
	runes := []rune(expr)
	var toks []token
	i := 0

	readPhrase := func(start int) (string, error) {
		i++ // opening quote
		from := i
		for i < len(runes) && runes[i] != '"' {
			i++
		}
		if i >= len(runes) {
			return "", &ParseError{Pos: start, Msg: "unterminated phrase"}
		}
		phrase := string(runes[from:i])
		i++ // closing quote
		return phrase, nil
	}

	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case r == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case r == '+':
			toks = append(toks, token{kind: tokPlus, text: "+", pos: i})
			i++
		case r == '-':
			toks = append(toks, token{kind: tokMinus, text: "-", pos: i})
			i++
		case r == '"':
			start := i
			phrase, err := readPhrase(start)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokPhrase, text: phrase, pos: start})
		default:
			start := i
			for i < len(runes) && !unicode.IsSpace(runes[i]) &&
				runes[i] != '(' && runes[i] != ')' && runes[i] != '"' {
				i++
			}
			word := string(runes[start:i])

			switch word {
			case "AND":
				toks = append(toks, token{kind: tokAnd, text: word, pos: start})
				continue
			case "OR":
				toks = append(toks, token{kind: tokOr, text: word, pos: start})
				continue
			case "NOT":
				toks = append(toks, token{kind: tokNot, text: word, pos: start})
				continue
			}

			field := ""
			value := word
			if idx := strings.IndexRune(word, ':'); idx >= 0 {
				field = word[:idx]
				value = word[idx+1:]
			}
			if field != "" && value == "" {
				// field:"quoted phrase"
				if i < len(runes) && runes[i] == '"' {
					phrase, err := readPhrase(i)
					if err != nil {
						return nil, err
					}
					toks = append(toks, token{kind: tokPhrase, field: field, text: phrase, pos: start})
					continue
				}
				return nil, &ParseError{Pos: start, Msg: fmt.Sprintf("missing value for field %q", field)}
			}
			toks = append(toks, token{kind: tokTerm, field: field, text: value, pos: start})
		}
	}
	return toks, nil
}

type clauseSign int

const (
	signShould clauseSign = iota
	signMust
	signMustNot
)

type signedQuery struct {
	q    query.Query
	sign clauseSign
}

type queryParser struct {
	toks []token
	pos  int
}

func (p *queryParser) atEnd() bool {
	return p.pos >= len(p.toks)
}

func (p *queryParser) peekKind() (tokenKind, bool) {
	if p.atEnd() {
		return 0, false
	}
	return p.toks[p.pos].kind, true
}

func (p *queryParser) startsOperand() bool {
	kind, ok := p.peekKind()
	if !ok {
		return false
	}
	switch kind {
	case tokTerm, tokPhrase, tokLParen, tokPlus, tokMinus, tokNot:
		return true
	}
	return false
}

// parseOr combines AND-groups. An explicit OR and plain adjacency both
// produce optional clauses; +/- signs surviving from single-clause groups
// become required and prohibited clauses of one boolean query.
func (p *queryParser) parseOr() (query.Query, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	clauses := []signedQuery{first}

	for {
		if kind, ok := p.peekKind(); ok && kind == tokOr {
			p.pos++
			if !p.startsOperand() {
				return nil, p.errHere("expected clause after OR")
			}
		} else if !p.startsOperand() {
			break
		}
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, next)
	}

	return combineClauses(clauses), nil
}

// parseAnd combines clauses joined by explicit AND into one conjunction.
func (p *queryParser) parseAnd() (signedQuery, error) {
	first, err := p.parseClause()
	if err != nil {
		return signedQuery{}, err
	}
	clauses := []signedQuery{first}

	for {
		kind, ok := p.peekKind()
		if !ok || kind != tokAnd {
			break
		}
		p.pos++
		next, err := p.parseClause()
		if err != nil {
			return signedQuery{}, err
		}
		clauses = append(clauses, next)
	}

	if len(clauses) == 1 {
		return clauses[0], nil
	}

	// Inside an AND group every plain clause is required.
	var must, mustNot []query.Query
	for _, c := range clauses {
		if c.sign == signMustNot {
			mustNot = append(mustNot, c.q)
		} else {
			must = append(must, c.q)
		}
	}
	if len(mustNot) == 0 {
		return signedQuery{q: bleve.NewConjunctionQuery(must...)}, nil
	}
	bq := bleve.NewBooleanQuery()
	if len(must) == 0 {
		bq.AddMust(bleve.NewMatchAllQuery())
	} else {
		bq.AddMust(must...)
	}
	bq.AddMustNot(mustNot...)
	return signedQuery{q: bq}, nil
}

func (p *queryParser) parseClause() (signedQuery, error) {
	kind, ok := p.peekKind()
	if !ok {
		return signedQuery{}, p.errHere("expected clause")
	}
	switch kind {
	case tokPlus:
		p.pos++
		inner, err := p.parsePrimary()
		if err != nil {
			return signedQuery{}, err
		}
		return signedQuery{q: inner, sign: signMust}, nil
	case tokMinus, tokNot:
		p.pos++
		inner, err := p.parsePrimary()
		if err != nil {
			return signedQuery{}, err
		}
		return signedQuery{q: inner, sign: signMustNot}, nil
	default:
		q, err := p.parsePrimary()
		if err != nil {
			return signedQuery{}, err
		}
		return signedQuery{q: q}, nil
	}
}

func (p *queryParser) parsePrimary() (query.Query, error) {
	kind, ok := p.peekKind()
	if !ok {
		return nil, p.errHere("expected term")
	}
	switch kind {
	case tokLParen:
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if kind, ok := p.peekKind(); !ok || kind != tokRParen {
			return nil, p.errHere("expected closing parenthesis")
		}
		p.pos++
		return inner, nil
	case tokTerm:
		t := p.toks[p.pos]
		p.pos++
		return termQuery(t)
	case tokPhrase:
		t := p.toks[p.pos]
		p.pos++
		return phraseQuery(t), nil
	default:
		t := p.toks[p.pos]
		return nil, &ParseError{Pos: t.pos, Msg: fmt.Sprintf("unexpected %q", t.text)}
	}
}

func (p *queryParser) errHere(msg string) error {
	pos := 0
	if !p.atEnd() {
		pos = p.toks[p.pos].pos
	} else if len(p.toks) > 0 {
		last := p.toks[len(p.toks)-1]
		pos = last.pos + len(last.text)
	}
	return &ParseError{Pos: pos, Msg: msg}
}

func termQuery(t token) (query.Query, error) {
	value := t.text
	if strings.HasPrefix(value, "*") || strings.HasPrefix(value, "?") {
		return nil, &ParseError{Pos: t.pos, Msg: "leading wildcards are not allowed"}
	}

	field := t.field
	if field == "" {
		field = FieldContent
	}

	// Wildcard terms bypass analysis; lowercasing mirrors the index-side
	// lowercase filter.
	if strings.HasSuffix(value, "*") && !containsWildcard(strings.TrimSuffix(value, "*")) {
		pq := bleve.NewPrefixQuery(strings.ToLower(strings.TrimSuffix(value, "*")))
		pq.SetField(field)
		return pq, nil
	}
	if containsWildcard(value) {
		wq := bleve.NewWildcardQuery(strings.ToLower(value))
		wq.SetField(field)
		return wq, nil
	}

	if field == FieldContent {
		mq := bleve.NewMatchQuery(value)
		mq.SetField(FieldContent)
		mq.Analyzer = AnalyzerUndetermined
		return mq, nil
	}
	tq := bleve.NewTermQuery(value)
	tq.SetField(field)
	return tq, nil
}

func phraseQuery(t token) query.Query {
	if t.field != "" && t.field != FieldContent {
		tq := bleve.NewTermQuery(t.text)
		tq.SetField(t.field)
		return tq
	}
	pq := bleve.NewMatchPhraseQuery(t.text)
	pq.SetField(FieldContent)
	pq.Analyzer = AnalyzerUndetermined
	return pq
}

func containsWildcard(s string) bool {
	return strings.ContainsAny(s, "*?")
}

func combineClauses(clauses []signedQuery) query.Query {
	if len(clauses) == 1 && clauses[0].sign == signShould {
		return clauses[0].q
	}

	var must, should, mustNot []query.Query
	for _, c := range clauses {
		switch c.sign {
		case signMust:
			must = append(must, c.q)
		case signMustNot:
			mustNot = append(mustNot, c.q)
		default:
			should = append(should, c.q)
		}
	}

	if len(must) == 0 && len(mustNot) == 0 {
		return bleve.NewDisjunctionQuery(should...)
	}

	bq := bleve.NewBooleanQuery()
	if len(must) > 0 {
		bq.AddMust(must...)
	}
	if len(should) > 0 {
		bq.AddShould(should...)
	}
	if len(must) == 0 && len(should) == 0 {
		bq.AddMust(bleve.NewMatchAllQuery())
	}
	if len(mustNot) > 0 {
		bq.AddMustNot(mustNot...)
	}
	return bq
}
