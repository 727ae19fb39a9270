// Package classifier routes guest questions to an answer source.
//
// Classification is a single pure pass over word tokens:
//
//  1. an explicit on-property phrase ("the restaurant", "at the resort",
//     a named venue) wins outright: ResortFacility;
//  2. otherwise an off-property indicator ("nearest", "how far") yields
//     ExternalAmenity when a place type can be extracted, else General;
//  3. otherwise an on-property facility keyword: ResortFacility;
//  4. otherwise General.
//
// Matching is on whole words, so "bar" never matches "barber".
package classifier

import (
	"strings"
	"unicode"
)

// Label is the routing decision for one query.
type Label int

const (
	General Label = iota
	ResortFacility
	ExternalAmenity
)

func (l Label) String() string {
	switch l {
	case ResortFacility:
		return "ResortFacility"
	case ExternalAmenity:
		return "ExternalAmenity"
	default:
		return "General"
	}
}

// Result is everything the pipeline derives from the query text.
type Result struct {
	Label     Label
	PlaceType string // Places API type; set only for ExternalAmenity
	Category  string
}

// Classify returns the routing label for query.
func Classify(query string) Label {
	return Analyze(query).Label
}

// PlaceType extracts the Places API type named in query, if any.
func PlaceType(query string) (string, bool) {
	return placeType(tokenize(query))
}

// Category maps query to an analytics category.
func Category(query string) string {
	return Analyze(query).Category
}

// Analyze tokenizes once and derives label, place type and category.
func Analyze(query string) Result {
	tokens := tokenize(query)
	res := Result{Label: classify(tokens)}
	if res.Label == ExternalAmenity {
		res.PlaceType, _ = placeType(tokens)
	}
	res.Category = category(tokens, res.Label)
	return res
}

func classify(tokens []string) Label {
	if matchAny(tokens, resortContextPhrases) {
		return ResortFacility
	}
	if matchAny(tokens, externalIndicators) {
		if _, ok := placeType(tokens); ok {
			return ExternalAmenity
		}
		return General
	}
	if matchAny(tokens, facilityKeywords) {
		return ResortFacility
	}
	return General
}

func placeType(tokens []string) (string, bool) {
	for _, m := range placeTypeMappings {
		if containsPhrase(tokens, m.phrase) {
			return m.placeType, true
		}
	}
	return "", false
}

func category(tokens []string, label Label) string {
	if label == ExternalAmenity {
		return CategoryLocation
	}
	for _, c := range categoryKeywords {
		if matchAny(tokens, c.phrases) {
			return c.name
		}
	}
	return CategoryGeneral
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

type phrase []string

func phrases(list ...string) []phrase {
	out := make([]phrase, 0, len(list))
	for _, s := range list {
		out = append(out, phrase(tokenize(s)))
	}
	return out
}

func matchAny(tokens []string, list []phrase) bool {
	for _, p := range list {
		if containsPhrase(tokens, p) {
			return true
		}
	}
	return false
}

// containsPhrase reports whether p occurs as a contiguous run of tokens.
func containsPhrase(tokens []string, p phrase) bool {
	if len(p) == 0 || len(p) > len(tokens) {
		return false
	}
outer:
	for i := 0; i+len(p) <= len(tokens); i++ {
		for j, w := range p {
			if tokens[i+j] != w {
				continue outer
			}
		}
		return true
	}
	return false
}
