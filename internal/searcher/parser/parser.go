// Package parser turns a search string into phonetic terms. Words are
// normalized and encoded exactly as the indexer does, so a term matches a
// message when they share any phonetic code.
package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/indexer/phonetic"
)

type QueryType int

const (
	QueryAND QueryType = iota
	QueryOR
)

func (t QueryType) String() string {
	if t == QueryOR {
		return "OR"
	}
	return "AND"
}

// Analyzer normalizes and encodes text. *indexer.Engine implements it.
type Analyzer interface {
	Analyze(text string) []phonetic.Result
}

// Term is one query word and the codes any of which it matches.
type Term struct {
	Word  string   `json:"word"`
	Codes []string `json:"codes"`
}

type QueryPlan struct {
	Terms        []Term
	Type         QueryType
	ExcludeTerms []Term
	// Dropped lists words that were stop words, too short, or unencodable.
	Dropped  []string
	RawQuery string
}

// Parse builds a plan from query. AND, OR and NOT are operators in any case;
// AND is the default. NOT applies to the following word only.
func Parse(analyzer Analyzer, query string) *QueryPlan {
	plan := &QueryPlan{
		Terms:        make([]Term, 0),
		ExcludeTerms: make([]Term, 0),
		Type:         QueryAND,
		RawQuery:     query,
	}
	excludeNext := false
	for _, word := range strings.Fields(query) {
		switch strings.ToUpper(word) {
		case "AND":
			plan.Type = QueryAND
			continue
		case "OR":
			plan.Type = QueryOR
			continue
		case "NOT":
			excludeNext = true
			continue
		}
		exclude := excludeNext
		excludeNext = false

		// a single query word may hold several index words ("brown-fox")
		results := analyzer.Analyze(word)
		if len(results) == 0 {
			plan.Dropped = append(plan.Dropped, word)
			continue
		}
		for _, r := range results {
			if r.Failed() || len(r.Codes) == 0 {
				plan.Dropped = append(plan.Dropped, r.Token)
				continue
			}
			term := Term{Word: r.Token, Codes: r.Codes}
			if exclude {
				plan.ExcludeTerms = append(plan.ExcludeTerms, term)
			} else {
				plan.Terms = append(plan.Terms, term)
			}
		}
	}
	return plan
}

// Words returns the query words that survived normalization.
func (p *QueryPlan) Words() []string {
	words := make([]string, len(p.Terms))
	for i, t := range p.Terms {
		words[i] = t.Word
	}
	return words
}
