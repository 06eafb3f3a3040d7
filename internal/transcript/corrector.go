// Package transcript post-processes speech-recognition output. Recognizers
// reliably mangle proper nouns and app-specific vocabulary ("neural oh es",
// "jura" for "Jira"); the corrector snaps near-miss words back to a
// configured vocabulary using Double Metaphone phonetic codes filtered by
// Jaro-Winkler similarity.
package transcript

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	// phoneticThreshold is the minimum Jaro-Winkler score for a word that
	// already sounds like a vocabulary term.
	phoneticThreshold = 0.70

	// fuzzyThreshold is the stricter minimum for words with no phonetic
	// overlap, catching pure spelling drift.
	fuzzyThreshold = 0.85
)

// term is one vocabulary entry with its precomputed phonetic codes.
type term struct {
	word    string
	lower   string
	primary string
	second  string
}

// CorrectorOption is a functional option for configuring a Corrector.
type CorrectorOption func(*Corrector)

// WithMinWordLength sets the shortest transcript word the corrector will
// touch. Very short words produce degenerate phonetic codes. Default: 3.
func WithMinWordLength(n int) CorrectorOption {
	return func(c *Corrector) {
		if n > 0 {
			c.minWordLen = n
		}
	}
}

// Corrector rewrites transcript words toward a fixed vocabulary. Read-only
// after construction and safe for concurrent use.
type Corrector struct {
	terms      []term
	minWordLen int
}

// NewCorrector builds a Corrector over the vocabulary. Blank entries are
// skipped; an empty vocabulary yields a pass-through corrector.
func NewCorrector(vocabulary []string, opts ...CorrectorOption) *Corrector {
	c := &Corrector{minWordLen: 3}
	for _, o := range opts {
		o(c)
	}
	for _, v := range vocabulary {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		lower := strings.ToLower(v)
		p, s := matchr.DoubleMetaphone(lower)
		c.terms = append(c.terms, term{word: v, lower: lower, primary: p, second: s})
	}
	return c
}

// Correct rewrites text word by word, preserving punctuation and spacing
// between words. Words already matching a vocabulary term (case-insensitive)
// are left alone; corrected words take the vocabulary casing.
func (c *Corrector) Correct(text string) string {
	if len(c.terms) == 0 || text == "" {
		return text
	}

	fields := strings.Fields(text)
	changed := false
	for i, f := range fields {
		core, prefix, suffix := stripPunct(f)
		if len(core) < c.minWordLen {
			continue
		}
		if replacement, ok := c.correctWord(core); ok {
			fields[i] = prefix + replacement + suffix
			changed = true
		}
	}
	if !changed {
		return text
	}
	return strings.Join(fields, " ")
}

// correctWord finds the best vocabulary replacement for one word.
func (c *Corrector) correctWord(word string) (string, bool) {
	lower := strings.ToLower(word)
	p, s := matchr.DoubleMetaphone(lower)

	bestScore := 0.0
	bestWord := ""
	bestPhonetic := false
	for _, t := range c.terms {
		if lower == t.lower {
			return "", false
		}

		phonetic := codesOverlap(p, s, t)
		score := matchr.JaroWinkler(lower, t.lower, false)

		switch {
		case phonetic && score >= phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				bestWord, bestScore, bestPhonetic = t.word, score, true
			}
		case !bestPhonetic && score >= fuzzyThreshold && score > bestScore:
			bestWord, bestScore = t.word, score
		}
	}

	if bestWord == "" {
		return "", false
	}
	return bestWord, true
}

// codesOverlap reports whether the word's Double Metaphone codes share a code
// with the term's. Empty codes never match.
func codesOverlap(p, s string, t term) bool {
	if p != "" && (p == t.primary || p == t.second) {
		return true
	}
	if s != "" && (s == t.primary || s == t.second) {
		return true
	}
	return false
}

// stripPunct splits leading and trailing punctuation off a token so "jura,"
// corrects to "Jira," rather than being skipped.
func stripPunct(token string) (core, prefix, suffix string) {
	start := 0
	for start < len(token) && !isWordByte(token[start]) {
		start++
	}
	end := len(token)
	for end > start && !isWordByte(token[end-1]) {
		end--
	}
	return token[start:end], token[:start], token[end:]
}

func isWordByte(b byte) bool {
	return b >= 0x80 || unicode.IsLetter(rune(b)) || unicode.IsDigit(rune(b)) || b == '\''
}
