package agents

import (
	"context"
	"encoding/json"
	"sort"

	"go.uber.org/zap"

	"github.com/jhonnyo88/devteam-sub003/internal/contract"
	"github.com/jhonnyo88/devteam-sub003/internal/score"
)

// QualityReviewer makes the final call: promote the story to deployment or
// loop it back to the developer for rework. The only branch in the pipeline
// lives here.
type QualityReviewer struct {
	Base
	Approver *FinalApprover
}

func NewQualityReviewer(b Base) *QualityReviewer {
	return &QualityReviewer{Base: b, Approver: NewFinalApprover(b.Cfg)}
}

func (a *QualityReviewer) Stage() contract.Stage { return contract.StageQualityReviewer }

func (a *QualityReviewer) Process(ctx context.Context, in *contract.Contract) (*contract.Contract, error) {
	if err := requireTarget(in, a.Stage()); err != nil {
		return nil, err
	}
	report, err := decodeInput[contract.QAReportPayload](in, a.Stage())
	if err != nil {
		return nil, err
	}
	story := report.Story

	dnaScore := dnaVerdictScore(in.DNACompliance)
	decision := a.Approver.Decide(ApprovalInput{
		QualityScore:    report.OverallScore,
		DeploymentReady: report.DeploymentReady,
		BlockingIssues:  report.BlockingIssues,
		DNAScore:        dnaScore,
	})

	gates := []Gate{
		{Name: "final_score_computed", Policy: FailFast, Check: func(context.Context) (bool, error) {
			return decision.Score >= 0, nil
		}},
		{Name: "deployment_readiness_assessed", Policy: FailSoft, Check: func(context.Context) (bool, error) {
			return report.DeploymentReady, nil
		}},
	}
	outcomes, err := RunGates(ctx, a.Log, story.StoryID, a.Stage(), gates)
	if err != nil {
		return nil, err
	}

	target := contract.StageDeployment
	if !decision.Approved {
		target = contract.StageDeveloper
	}

	dnaBlock := in.DNACompliance
	if err := dnaBlock.AttachStageValidation(a.Stage(), map[string]any{
		"gates":          outcomes,
		"decision_score": decision.Score,
		"approved":       decision.Approved,
	}); err != nil {
		return nil, &ExecutionError{StoryID: story.StoryID, Stage: a.Stage(), Err: err}
	}

	revision := 0
	if sv, ok := in.DNACompliance.StageValidations[string(contract.StageDeveloper)]; ok {
		var detail struct {
			Revision int `json:"revision"`
		}
		if err := json.Unmarshal(sv, &detail); err == nil {
			revision = detail.Revision
		}
	}

	payload := contract.ReviewPayload{
		Story:          story,
		Approved:       decision.Approved,
		DecisionScore:  decision.Score,
		Reasoning:      decision.Reasoning,
		BlockingIssues: report.BlockingIssues,
		Revision:       revision,
	}
	if !decision.Approved {
		payload.ReworkFocus = reworkFocus(report)
	}

	out, err := contract.New(story.StoryID, a.Stage(), target, dnaBlock, payload)
	if err != nil {
		return nil, &ExecutionError{StoryID: story.StoryID, Stage: a.Stage(), Err: err}
	}
	out.InputReqs.RequiredFiles = storyFiles(story.StoryID, "review/decisions")
	out.AppendGates(in.QualityGates...)
	out.AppendGates(GateNames(gates)...)
	out.AppendHandoffCriteria(in.HandoffCriteria...)
	if decision.Approved {
		out.AppendHandoffCriteria("final_approval_granted")
	} else {
		out.AppendHandoffCriteria("rework_required")
	}

	a.logger().Info("final review decided",
		zap.String("story_id", story.StoryID),
		zap.Bool("approved", decision.Approved),
		zap.Float64("decision_score", decision.Score),
		zap.String("target", string(target)))
	return out, nil
}

// dnaVerdictScore flattens the boolean principle verdicts into a 0-100
// score for the approval weighting.
func dnaVerdictScore(d contract.DNACompliance) float64 {
	total := len(d.DesignPrinciplesValidation) + len(d.ArchitectureCompliance)
	if total == 0 {
		return 0
	}
	passed := 0
	for _, ok := range d.DesignPrinciplesValidation {
		if ok {
			passed++
		}
	}
	for _, ok := range d.ArchitectureCompliance {
		if ok {
			passed++
		}
	}
	return score.Round1(100 * float64(passed) / float64(total))
}

func reworkFocus(report contract.QAReportPayload) []string {
	var focus []string
	focus = append(focus, report.BlockingIssues...)
	dims := make([]string, 0, len(report.QualityScores))
	for dim := range report.QualityScores {
		dims = append(dims, dim)
	}
	sort.Strings(dims)
	for _, dim := range dims {
		if report.QualityScores[dim] < 70 {
			focus = append(focus, "raise "+dim+" quality")
		}
	}
	if len(focus) == 0 {
		focus = append(focus, "raise overall quality above the approval threshold")
	}
	return focus
}
