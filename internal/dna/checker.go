// Package dna scores feature requests against the team's nine DNA
// principles: five design principles scored pessimistically from keyword
// evidence, four architecture principles scored optimistically from the
// absence of red flags.
package dna

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jhonnyo88/devteam-sub003/internal/contract"
	"github.com/jhonnyo88/devteam-sub003/internal/score"
)

const (
	// RecommendedMinutes is the hard ceiling a single session should fit in.
	RecommendedMinutes = 10

	defaultDesignThreshold       = 60
	defaultArchitectureThreshold = 70
	defaultArchitectureBase      = 80
	redFlagPenalty               = 15
	timeConstraintPoints         = 55

	designWeight       = 0.6
	architectureWeight = 0.4
)

// ComplianceError wraps a failure inside the scoring machinery itself.
// A non-compliant verdict is a normal result, not a ComplianceError.
type ComplianceError struct {
	StoryID string
	Err     error
}

func (e *ComplianceError) Error() string {
	return fmt.Sprintf("dna compliance analysis failed for story %s: %v", e.StoryID, e.Err)
}

func (e *ComplianceError) Unwrap() error { return e.Err }

// Report is the full analysis of one story.
type Report struct {
	StoryID                string                  `json:"story_id"`
	DesignPrinciples       map[string]score.Result `json:"design_principles"`
	ArchitecturePrinciples map[string]score.Result `json:"architecture_principles"`
	OverallScore           float64                 `json:"overall_score"`
	Compliant              bool                    `json:"compliant"`
	Violations             []string                `json:"violations,omitempty"`
	Recommendations        []string                `json:"recommendations,omitempty"`
}

// Checker scores stories. Zero value uses the default thresholds.
type Checker struct {
	DesignThreshold       float64
	ArchitectureThreshold float64
	Log                   *zap.Logger
}

// NewChecker returns a checker with default thresholds.
func NewChecker(log *zap.Logger) *Checker {
	return &Checker{
		DesignThreshold:       defaultDesignThreshold,
		ArchitectureThreshold: defaultArchitectureThreshold,
		Log:                   log,
	}
}

func (c *Checker) designThreshold() float64 {
	if c.DesignThreshold > 0 {
		return c.DesignThreshold
	}
	return defaultDesignThreshold
}

func (c *Checker) architectureThreshold() float64 {
	if c.ArchitectureThreshold > 0 {
		return c.ArchitectureThreshold
	}
	return defaultArchitectureThreshold
}

// AnalyzeFeature scores the story against all nine principles. Scoring is
// pure and deterministic; identical input yields an identical report. Any
// internal failure is re-raised as a *ComplianceError.
func (c *Checker) AnalyzeFeature(story contract.StoryRequest) (*Report, error) {
	rep, err := c.analyze(story)
	if err != nil {
		return nil, &ComplianceError{StoryID: story.StoryID, Err: err}
	}
	if c.Log != nil {
		c.Log.Debug("dna analysis complete",
			zap.String("story_id", story.StoryID),
			zap.Float64("overall_score", rep.OverallScore),
			zap.Bool("compliant", rep.Compliant))
	}
	return rep, nil
}

func (c *Checker) analyze(story contract.StoryRequest) (*Report, error) {
	text := analysisText(story)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("story %s has no analyzable text", story.StoryID)
	}

	rep := &Report{
		StoryID:                story.StoryID,
		DesignPrinciples:       make(map[string]score.Result, len(contract.DesignPrinciples)),
		ArchitecturePrinciples: make(map[string]score.Result, len(contract.ArchitecturePrinciples)),
	}

	for _, principle := range contract.DesignPrinciples {
		var r score.Result
		if principle == "time_respect" {
			r = c.scoreTimeRespect(story, text)
		} else {
			r = c.scoreDesignPrinciple(principle, text)
		}
		rep.DesignPrinciples[principle] = r
		if !r.Compliant {
			rep.Violations = append(rep.Violations, fmt.Sprintf("Design principle violation: %s", principle))
		}
	}

	for _, principle := range contract.ArchitecturePrinciples {
		r := c.scoreArchitecturePrinciple(principle, text)
		rep.ArchitecturePrinciples[principle] = r
		if !r.Compliant {
			rep.Violations = append(rep.Violations, fmt.Sprintf("Architecture principle violation: %s", principle))
		}
	}

	rep.OverallScore = CompositeScore(rep.DesignPrinciples, rep.ArchitecturePrinciples)
	rep.Compliant = len(rep.Violations) == 0
	rep.Recommendations = recommendFor(rep)
	return rep, nil
}

func (c *Checker) scoreDesignPrinciple(principle, text string) score.Result {
	var r score.Result
	for _, b := range designBuckets[principle] {
		b.Apply(text, &r)
	}
	r.Finalize(c.designThreshold())
	if !r.Compliant {
		r.Recommendation = recommendations[principle]
	}
	return r
}

// scoreTimeRespect combines the hard time-constraint check with efficiency
// keyword evidence. A constraint over the recommended ceiling forfeits the
// constraint points entirely.
func (c *Checker) scoreTimeRespect(story contract.StoryRequest, text string) score.Result {
	var r score.Result
	minutes := story.TimeConstraintMinutes
	switch {
	case minutes <= 0:
		r.Issues = append(r.Issues, "no time constraint declared")
	case minutes <= RecommendedMinutes:
		r.Score += timeConstraintPoints
		r.Evidence = append(r.Evidence, fmt.Sprintf("time constraint %d minutes within recommended %d minutes (+%d)",
			minutes, RecommendedMinutes, timeConstraintPoints))
	default:
		r.Issues = append(r.Issues, fmt.Sprintf("time constraint %d minutes exceeds recommended %d minutes",
			minutes, RecommendedMinutes))
	}
	efficiencyBucket.Apply(text, &r)
	r.Finalize(70)
	if !r.Compliant {
		r.Recommendation = recommendations["time_respect"]
	}
	return r
}

func (c *Checker) scoreArchitecturePrinciple(principle, text string) score.Result {
	r := score.Result{Score: defaultArchitectureBase}
	flags := architectureRedFlags[principle]
	lowered := strings.ToLower(text)
	for _, kw := range flags.Keywords {
		if strings.Contains(lowered, kw) {
			r.Score -= redFlagPenalty
			r.Issues = append(r.Issues, fmt.Sprintf("%s: red flag %q", principle, kw))
		}
	}
	if len(r.Issues) == 0 {
		r.Evidence = append(r.Evidence, fmt.Sprintf("%s: no red flags detected", principle))
	}
	r.Finalize(c.architectureThreshold())
	if !r.Compliant {
		r.Recommendation = recommendations[principle]
	}
	return r
}

// CompositeScore is the weighted aggregate: design principles 60%,
// architecture principles 40%, rounded to one decimal. Increasing any
// dimension's score never decreases the aggregate.
func CompositeScore(design, architecture map[string]score.Result) float64 {
	avg := func(m map[string]score.Result, keys []string) float64 {
		if len(keys) == 0 {
			return 0
		}
		var sum float64
		for _, k := range keys {
			sum += m[k].Score
		}
		return sum / float64(len(keys))
	}
	composite := designWeight*avg(design, contract.DesignPrinciples) +
		architectureWeight*avg(architecture, contract.ArchitecturePrinciples)
	return score.Round1(composite)
}

// VerdictMap flattens a report into the boolean maps a contract carries.
func (rep *Report) VerdictMap() (design, architecture map[string]bool) {
	design = make(map[string]bool, len(rep.DesignPrinciples))
	for k, v := range rep.DesignPrinciples {
		design[k] = v.Compliant
	}
	architecture = make(map[string]bool, len(rep.ArchitecturePrinciples))
	for k, v := range rep.ArchitecturePrinciples {
		architecture[k] = v.Compliant
	}
	return design, architecture
}

func recommendFor(rep *Report) []string {
	var recs []string
	seen := map[string]struct{}{}
	add := func(principle string, r score.Result) {
		if r.Compliant {
			return
		}
		rec := recommendations[principle]
		if rec == "" {
			return
		}
		if _, ok := seen[rec]; ok {
			return
		}
		seen[rec] = struct{}{}
		recs = append(recs, rec)
	}
	for _, p := range contract.DesignPrinciples {
		add(p, rep.DesignPrinciples[p])
	}
	for _, p := range contract.ArchitecturePrinciples {
		add(p, rep.ArchitecturePrinciples[p])
	}
	return recs
}

func analysisText(story contract.StoryRequest) string {
	parts := []string{story.Title, story.FeatureDescription}
	parts = append(parts, story.AcceptanceCriteria...)
	parts = append(parts, story.UserPersona)
	return strings.Join(parts, "\n")
}
