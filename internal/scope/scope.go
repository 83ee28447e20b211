// Package scope decides whether a question belongs to the assistant's topic
// before any upstream model is called.
package scope

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinLength is the shortest trimmed input, in characters, that can be in scope.
const MinLength = 3

var defaultKeywords = []string{
	"mahdawiyyah", "mahdi", "imam mahdi", "intizar", "muntazar", "zakzaky",
	"غیبت", "انتظار", "مهدویت", "امام مهدی", "زکزاکی", "شیعی", "shia",
	"occultation", "awaited", "mahdaviat", "mahdism",
}

var defaultBroadTerms = []string{
	"islam", "muslim", "quran", "prophet", "imam", "justice", "leadership", "religion", "faith",
}

var leadWords = regexp.MustCompile(`(?i)^(what|who|when|where|why|how|explain|describe|tell me about)`)

// Filter is a keyword gate. A zero Filter rejects everything.
type Filter struct {
	keywords   []string
	broadTerms []string
}

// NewFilter lowercases the supplied term lists once.
func NewFilter(keywords, broadTerms []string) Filter {
	return Filter{keywords: lowerAll(keywords), broadTerms: lowerAll(broadTerms)}
}

// Default returns the Mahdawiyyah topic filter.
func Default() Filter {
	return NewFilter(defaultKeywords, defaultBroadTerms)
}

// IsInScope accepts text containing a domain keyword, or a broad term when
// the text also opens with a question lead word.
func (f Filter) IsInScope(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if utf8.RuneCountInString(lower) < MinLength {
		return false
	}
	if containsAny(lower, f.keywords) {
		return true
	}
	return containsAny(lower, f.broadTerms) && leadWords.MatchString(lower)
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if term != "" && strings.Contains(s, term) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(strings.TrimSpace(s)))
	}
	return out
}
