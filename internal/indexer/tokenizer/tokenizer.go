// Package tokenizer extracts indexable words from chat text. Configured
// punctuation is replaced with whitespace, the text is split on whitespace,
// and short words and stop-words are dropped. Kept words keep their case;
// phonetic encoding downstream is case-insensitive.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/config"
)

// Normalizer turns message text into words. It is immutable after
// construction and safe for concurrent use.
type Normalizer struct {
	minLen      int
	stopWords   map[string]struct{}
	punctuation map[rune]struct{}
}

// New builds a Normalizer from cfg, falling back to the package defaults for
// zero values.
func New(cfg config.IndexerConfig) *Normalizer {
	minLen := cfg.MinWordLength
	if minLen <= 0 {
		minLen = config.DefaultMinWordLength
	}
	stop := cfg.StopWords
	if stop == nil {
		stop = config.DefaultStopWords
	}
	punct := cfg.PunctuationChars
	if punct == "" {
		punct = config.DefaultPunctuationChars
	}

	n := &Normalizer{
		minLen:      minLen,
		stopWords:   make(map[string]struct{}, len(stop)),
		punctuation: make(map[rune]struct{}, len(punct)),
	}
	for _, w := range stop {
		n.stopWords[strings.ToLower(w)] = struct{}{}
	}
	for _, r := range punct {
		n.punctuation[r] = struct{}{}
	}
	return n
}

// Default returns a Normalizer with the default word length, stop-words and
// punctuation.
func Default() *Normalizer {
	return New(config.IndexerConfig{})
}

// Tokens returns the indexable words of text in order of appearance.
// Duplicates are kept. Word length is counted in runes.
func (n *Normalizer) Tokens(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		if _, ok := n.punctuation[r]; ok {
			return true
		}
		return unicode.IsSpace(r)
	})
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if utf8.RuneCountInString(word) < n.minLen {
			continue
		}
		if _, isStop := n.stopWords[strings.ToLower(word)]; isStop {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}
