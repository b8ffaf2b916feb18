package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhonnyo88/devteam-sub003/internal/contract"
)

func qaReportContract(t *testing.T, report contract.QAReportPayload) *contract.Contract {
	t.Helper()
	c, err := contract.New(report.Story.StoryID, contract.StageQATester, contract.StageQualityReviewer,
		contract.PassingDNA(), report)
	require.NoError(t, err)
	return c
}

func TestReviewerPromotesCleanReport(t *testing.T) {
	reviewer := NewQualityReviewer(Base{})
	in := qaReportContract(t, contract.QAReportPayload{
		Story:           contract.StoryRequest{StoryID: "STORY-R1", Title: "quiz"},
		OverallScore:    93.5,
		DeploymentReady: true,
	})

	out, err := reviewer.Process(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, contract.StageDeployment, out.TargetAgent)

	review, err := contract.DecodePayload[contract.ReviewPayload](out.InputReqs.RequiredData)
	require.NoError(t, err)
	assert.True(t, review.Approved)
	// 0.4*93.5 + 0.3*100 + 0.2*100 + 0.1*100
	assert.Equal(t, 97.4, review.DecisionScore)
	assert.Contains(t, out.HandoffCriteria, "final_approval_granted")
}

func TestReviewerLoopsBackOnBlockingIssues(t *testing.T) {
	reviewer := NewQualityReviewer(Base{})
	in := qaReportContract(t, contract.QAReportPayload{
		Story:           contract.StoryRequest{StoryID: "STORY-R2", Title: "quiz"},
		OverallScore:    93.5,
		DeploymentReady: true,
		BlockingIssues:  []string{"Performance issues"},
	})

	out, err := reviewer.Process(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, contract.StageDeveloper, out.TargetAgent)

	review, err := contract.DecodePayload[contract.ReviewPayload](out.InputReqs.RequiredData)
	require.NoError(t, err)
	assert.False(t, review.Approved)
	assert.Contains(t, review.ReworkFocus, "Performance issues")
	assert.Contains(t, out.HandoffCriteria, "rework_required")
}

func TestReviewerFocusesLowScoringDimensions(t *testing.T) {
	reviewer := NewQualityReviewer(Base{})
	in := qaReportContract(t, contract.QAReportPayload{
		Story:        contract.StoryRequest{StoryID: "STORY-R3", Title: "quiz"},
		OverallScore: 62,
		QualityScores: map[string]float64{
			"functionality": 90,
			"usability":     55,
			"accessibility": 50,
		},
	})

	out, err := reviewer.Process(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, contract.StageDeveloper, out.TargetAgent)

	review, err := contract.DecodePayload[contract.ReviewPayload](out.InputReqs.RequiredData)
	require.NoError(t, err)
	assert.False(t, review.Approved)
	// sorted by dimension name
	assert.Equal(t, []string{"raise accessibility quality", "raise usability quality"}, review.ReworkFocus)
}

func TestReviewerTracksRevisionFromDeveloperStage(t *testing.T) {
	reviewer := NewQualityReviewer(Base{})
	in := qaReportContract(t, contract.QAReportPayload{
		Story:           contract.StoryRequest{StoryID: "STORY-R4", Title: "quiz"},
		OverallScore:    95,
		DeploymentReady: true,
	})
	require.NoError(t, in.DNACompliance.AttachStageValidation(contract.StageDeveloper, map[string]any{
		"revision": 2,
	}))

	out, err := reviewer.Process(context.Background(), in)
	require.NoError(t, err)
	review, err := contract.DecodePayload[contract.ReviewPayload](out.InputReqs.RequiredData)
	require.NoError(t, err)
	assert.Equal(t, 2, review.Revision)
}

func TestReviewerRejectsMisaddressedContract(t *testing.T) {
	reviewer := NewQualityReviewer(Base{})
	c, err := contract.New("STORY-R5", contract.StageQATester, contract.StageDeployment,
		contract.PassingDNA(), contract.QAReportPayload{})
	// qa_tester -> deployment is not a graph edge, but New only shapes the
	// document; addressing is the agent's check.
	require.NoError(t, err)

	_, perr := reviewer.Process(context.Background(), c)
	var bizErr *BusinessLogicError
	require.ErrorAs(t, perr, &bizErr)
}
