package model

import "time"

// WildcardPrefix marks a source or mapping as applicable to every
// taxonomy code regardless of chapter.
const WildcardPrefix = "*"

// Outcome classifies the terminal result of one source invocation.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	// OutcomeNoData means the source answered definitively but held no
	// records for the product (e.g. a 404 with no fallback configured).
	OutcomeNoData Outcome = "no_data"
)

// RateDelta returns the success-rate adjustment for the outcome.
// Rates are nudged incrementally and clamped to [0,1]; they model
// recency-weighted reliability, not a lifetime average.
func (o Outcome) RateDelta() float64 {
	switch o {
	case OutcomeSuccess:
		return 0.10
	case OutcomeNoData:
		return -0.05
	default:
		return -0.10
	}
}

// Source is a queryable external data endpoint owned by an agency.
type Source struct {
	Name         string            `json:"name"`
	Agency       string            `json:"agency"`
	URL          string            `json:"url"`
	Method       string            `json:"method"`
	Params       map[string]string `json:"params,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Category     string            `json:"category"`
	Prefixes     []string          `json:"prefixes"`
	RequiresKey  bool              `json:"requires_key"`
	RateLimit    string            `json:"rate_limit,omitempty"`
	Fallback     string            `json:"fallback,omitempty"`
	SuccessRate  float64           `json:"success_rate"`
	LastSuccess  *time.Time        `json:"last_success,omitempty"`
	LastFailure  *time.Time        `json:"last_failure,omitempty"`
	FailureCount int               `json:"failure_count"`
	Active       bool              `json:"active"`
}

// AppliesTo reports whether the source covers the given taxonomy code.
// A source applies when its prefix set contains the code's chapter
// (leading two digits) or the wildcard.
func (s Source) AppliesTo(code string) bool {
	chapter := Chapter(code)
	for _, p := range s.Prefixes {
		if p == WildcardPrefix || p == chapter {
			return true
		}
	}
	return false
}

// Chapter returns the leading two digits of a taxonomy code, ignoring
// dot separators.
func Chapter(code string) string {
	digits := DigitsOf(code)
	if len(digits) < 2 {
		return digits
	}
	return digits[:2]
}

// DigitsOf strips dot separators from a taxonomy code.
func DigitsOf(code string) string {
	out := make([]byte, 0, len(code))
	for i := 0; i < len(code); i++ {
		if code[i] != '.' {
			out = append(out, code[i])
		}
	}
	return string(out)
}
