// Package score holds the result type and keyword-bucket arithmetic shared
// by every scoring tool in the pipeline.
package score

import (
	"fmt"
	"math"
	"strings"
)

// Result is the output of a single scoring dimension.
type Result struct {
	Score          float64  `json:"score"`
	Compliant      bool     `json:"compliant"`
	Evidence       []string `json:"evidence,omitempty"`
	Issues         []string `json:"issues,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// Bucket is a named list of keywords contributing to one dimension.
type Bucket struct {
	Name     string
	Keywords []string
}

// CountMatches counts case-insensitive substring matches of the bucket's
// keywords in text. A keyword counts once no matter how often it appears.
func (b Bucket) CountMatches(text string) int {
	lowered := strings.ToLower(text)
	n := 0
	for _, kw := range b.Keywords {
		if strings.Contains(lowered, strings.ToLower(kw)) {
			n++
		}
	}
	return n
}

// Points maps a match count to partial score: three or more matches earn the
// full 30, at least one earns 15, none earns nothing.
func Points(matches int) float64 {
	switch {
	case matches >= 3:
		return 30
	case matches >= 1:
		return 15
	default:
		return 0
	}
}

// Apply scores text against the bucket, appending evidence or an issue to r.
func (b Bucket) Apply(text string, r *Result) {
	matches := b.CountMatches(text)
	pts := Points(matches)
	r.Score += pts
	if pts > 0 {
		r.Evidence = append(r.Evidence, fmt.Sprintf("%s: %d keyword matches (+%.0f)", b.Name, matches, pts))
	} else {
		r.Issues = append(r.Issues, fmt.Sprintf("no %s signals found", b.Name))
	}
}

// Clamp bounds v to [0, 100].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Round1 rounds to one decimal, the precision every aggregate reports.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Finalize clamps the score and sets the compliance verdict against the
// threshold.
func (r *Result) Finalize(threshold float64) {
	r.Score = Clamp(r.Score)
	r.Compliant = r.Score >= threshold
}
