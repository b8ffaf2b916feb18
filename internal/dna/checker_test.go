package dna

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhonnyo88/devteam-sub003/internal/contract"
	"github.com/jhonnyo88/devteam-sub003/internal/score"
)

// compliantStory matches at least two keyword buckets per design principle
// and stays inside the recommended session length.
func compliantStory() contract.StoryRequest {
	return contract.StoryRequest{
		StoryID: "STORY-100",
		Title:   "GDPR policy quiz",
		FeatureDescription: "A short interactive quiz where municipal employees learn and " +
			"practice the new GDPR policy. Each exercise gives immediate feedback so civil " +
			"servants build the skill to apply compliance procedures in their everyday " +
			"workplace role. Professional, clear and concise copy with consistent " +
			"terminology and a structured layout keeps the session quick and focused, and " +
			"shows how the policy connects to the overall workflow, process and impact for " +
			"colleagues and team members across the organisation and its context.",
		AcceptanceCriteria: []string{
			"employee can answer five quiz questions",
			"employee sees feedback and progress after each answer",
		},
		UserPersona:           "anna",
		TimeConstraintMinutes: 8,
	}
}

func TestCompliantStoryPassesAllPrinciples(t *testing.T) {
	c := NewChecker(nil)
	rep, err := c.AnalyzeFeature(compliantStory())
	require.NoError(t, err)

	assert.True(t, rep.Compliant, "violations: %v", rep.Violations)
	assert.Empty(t, rep.Violations)
	for _, p := range contract.DesignPrinciples {
		assert.True(t, rep.DesignPrinciples[p].Compliant, "design principle %s", p)
	}
	for _, p := range contract.ArchitecturePrinciples {
		assert.True(t, rep.ArchitecturePrinciples[p].Compliant, "architecture principle %s", p)
	}
	assert.Greater(t, rep.OverallScore, 60.0)
}

func TestTimeRespectWithinBudget(t *testing.T) {
	c := NewChecker(nil)
	rep, err := c.AnalyzeFeature(compliantStory())
	require.NoError(t, err)

	tr := rep.DesignPrinciples["time_respect"]
	assert.True(t, tr.Compliant)
	assert.GreaterOrEqual(t, tr.Score, 70.0)
}

func TestTimeRespectOverBudgetViolates(t *testing.T) {
	story := compliantStory()
	story.TimeConstraintMinutes = 25

	c := NewChecker(nil)
	rep, err := c.AnalyzeFeature(story)
	require.NoError(t, err)

	tr := rep.DesignPrinciples["time_respect"]
	assert.False(t, tr.Compliant)
	assert.Contains(t, tr.Issues, "time constraint 25 minutes exceeds recommended 10 minutes")
	assert.False(t, rep.Compliant)
	assert.Contains(t, rep.Violations, "Design principle violation: time_respect")
	assert.Contains(t, rep.Recommendations, recommendations["time_respect"])
}

func TestArchitectureRedFlagsPenalize(t *testing.T) {
	story := compliantStory()
	story.FeatureDescription += " The frontend keeps session state and uses direct database access."

	c := NewChecker(nil)
	rep, err := c.AnalyzeFeature(story)
	require.NoError(t, err)

	assert.False(t, rep.ArchitecturePrinciples["stateless_backend"].Compliant)
	assert.False(t, rep.ArchitecturePrinciples["api_first"].Compliant)
	assert.Equal(t, 65.0, rep.ArchitecturePrinciples["stateless_backend"].Score)
}

func TestAnalysisIsDeterministic(t *testing.T) {
	c := NewChecker(nil)
	first, err := c.AnalyzeFeature(compliantStory())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := c.AnalyzeFeature(compliantStory())
		require.NoError(t, err)
		assert.Equal(t, first.OverallScore, again.OverallScore)
		assert.Equal(t, first.Violations, again.Violations)
	}
}

func TestAnalyzeFailsOnEmptyStory(t *testing.T) {
	c := NewChecker(nil)
	_, err := c.AnalyzeFeature(contract.StoryRequest{StoryID: "STORY-0"})
	require.Error(t, err)
	var cerr *ComplianceError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "STORY-0", cerr.StoryID)
}

func TestCompositeScoreWeighting(t *testing.T) {
	design := map[string]score.Result{}
	for _, p := range contract.DesignPrinciples {
		design[p] = score.Result{Score: 100}
	}
	arch := map[string]score.Result{}
	for _, p := range contract.ArchitecturePrinciples {
		arch[p] = score.Result{Score: 50}
	}
	// 0.6*100 + 0.4*50 = 80
	assert.Equal(t, 80.0, CompositeScore(design, arch))
}

func TestCompositeScoreMonotonic(t *testing.T) {
	build := func(designScore float64) float64 {
		design := map[string]score.Result{}
		for _, p := range contract.DesignPrinciples {
			design[p] = score.Result{Score: designScore}
		}
		arch := map[string]score.Result{}
		for _, p := range contract.ArchitecturePrinciples {
			arch[p] = score.Result{Score: 70}
		}
		return CompositeScore(design, arch)
	}
	prev := build(0)
	for s := 10.0; s <= 100; s += 10 {
		cur := build(s)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}
