// Package classify decides whether a recognized utterance contains the wake
// phrase.
//
// Matching is a plain substring test on case-folded text, not a word match:
// "hey king" wakes a listener waiting for "hey kin". Over-matching only costs
// a "listening for command" prompt, so recall wins over precision.
package classify

import (
	"strings"

	"golang.org/x/text/cases"
)

// Result is the outcome of classifying one utterance.
type Result struct {
	IsWake     bool
	Normalized string
}

// Normalize case-folds s with Unicode simple+full folding, independent of
// the host locale.
func Normalize(s string) string {
	return cases.Fold().String(s)
}

// Classify normalizes utterance and reports whether it contains wakePhrase.
// The wake phrase is folded the same way. An empty or blank wake phrase
// never matches.
func Classify(utterance, wakePhrase string) Result {
	normalized := Normalize(utterance)
	phrase := Normalize(strings.TrimSpace(wakePhrase))
	return Result{
		IsWake:     phrase != "" && strings.Contains(normalized, phrase),
		Normalized: normalized,
	}
}
