// Package filter wraps profanity detection behind a single predicate so the
// session protocol only depends on a string → bool check.
package filter

import (
	goaway "github.com/TwiN/go-away"
)

// Filter reports whether message text contains profanity.
type Filter struct {
	detector *goaway.ProfanityDetector
}

// New creates a Filter using the default dictionary, extended with any
// additional words.
func New(extraWords ...string) *Filter {
	detector := goaway.NewProfanityDetector()
	if len(extraWords) > 0 {
		profanities := append([]string{}, goaway.DefaultProfanities...)
		profanities = append(profanities, extraWords...)
		detector = detector.WithCustomDictionary(
			profanities,
			goaway.DefaultFalsePositives,
			goaway.DefaultFalseNegatives,
		)
	}
	return &Filter{detector: detector}
}

// Profane reports whether text contains a filtered word.
func (f *Filter) Profane(text string) bool {
	return f.detector.IsProfane(text)
}
