package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jhonnyo88/devteam-sub003/internal/contract"
	"github.com/jhonnyo88/devteam-sub003/internal/dna"
	"github.com/jhonnyo88/devteam-sub003/internal/score"
)

// ProjectManager turns an incoming feature request into a scored story
// breakdown for the game designer. It owns the DNA compliance analysis for
// the whole pipeline.
type ProjectManager struct {
	Base
	DNA *dna.Checker
}

func NewProjectManager(b Base) *ProjectManager {
	checker := dna.NewChecker(b.Log)
	if b.Cfg != nil {
		if b.Cfg.Thresholds.DNADesign > 0 {
			checker.DesignThreshold = b.Cfg.Thresholds.DNADesign
		}
		if b.Cfg.Thresholds.DNAArchitecture > 0 {
			checker.ArchitectureThreshold = b.Cfg.Thresholds.DNAArchitecture
		}
	}
	return &ProjectManager{Base: b, DNA: checker}
}

func (a *ProjectManager) Stage() contract.Stage { return contract.StageProjectManager }

func (a *ProjectManager) Process(ctx context.Context, in *contract.Contract) (*contract.Contract, error) {
	if err := requireTarget(in, a.Stage()); err != nil {
		return nil, err
	}
	story, err := decodeInput[contract.StoryRequest](in, a.Stage())
	if err != nil {
		return nil, err
	}
	if story.StoryID == "" {
		story.StoryID = in.StoryID
	}
	if strings.TrimSpace(story.FeatureDescription) == "" {
		return nil, &BusinessLogicError{StoryID: in.StoryID, Stage: a.Stage(), Msg: "feature_description is required"}
	}

	breakdown, complexity := analyzeStory(story)
	report, err := a.DNA.AnalyzeFeature(story)
	if err != nil {
		return nil, err
	}

	gates := []Gate{
		{Name: "story_breakdown_complete", Policy: FailFast, Check: func(context.Context) (bool, error) {
			return len(breakdown) > 0, nil
		}},
		{Name: "acceptance_criteria_defined", Policy: FailFast, Check: func(context.Context) (bool, error) {
			if len(story.AcceptanceCriteria) == 0 {
				return false, fmt.Errorf("story %s has no acceptance criteria", story.StoryID)
			}
			return true, nil
		}},
		{Name: "dna_compliance_verified", Policy: FailSoft, Check: func(context.Context) (bool, error) {
			return report.Compliant, nil
		}},
	}
	outcomes, err := RunGates(ctx, a.Log, story.StoryID, a.Stage(), gates)
	if err != nil {
		return nil, err
	}

	design, arch := report.VerdictMap()
	dnaBlock := contract.DNACompliance{
		DesignPrinciplesValidation: design,
		ArchitectureCompliance:     arch,
	}
	if err := dnaBlock.AttachStageValidation(a.Stage(), map[string]any{
		"gates":         outcomes,
		"overall_score": report.OverallScore,
		"violations":    report.Violations,
	}); err != nil {
		return nil, &ExecutionError{StoryID: story.StoryID, Stage: a.Stage(), Err: err}
	}

	payload := contract.StoryBreakdownPayload{
		Story:               story,
		Breakdown:           breakdown,
		ComplexityScore:     complexity.Score,
		DNAOverallScore:     report.OverallScore,
		DNACompliant:        report.Compliant,
		DNAViolations:       report.Violations,
		RecommendedFocus:    report.Recommendations,
		EstimatedComponents: len(story.AcceptanceCriteria) + 1,
	}
	out, err := contract.New(story.StoryID, a.Stage(), contract.StageGameDesigner, dnaBlock, payload)
	if err != nil {
		return nil, &ExecutionError{StoryID: story.StoryID, Stage: a.Stage(), Err: err}
	}
	out.InputReqs.RequiredFiles = storyFiles(story.StoryID, "docs/stories")
	out.InputReqs.RequiredValidations = []string{"story_breakdown_reviewed"}
	out.OutputSpecs.DeliverableFiles = storyFiles(story.StoryID, "docs/design")
	out.AppendGates(in.QualityGates...)
	out.AppendGates(GateNames(gates)...)
	out.AppendHandoffCriteria(in.HandoffCriteria...)
	out.AppendHandoffCriteria("story_breakdown_reviewed", "dna_analysis_attached")

	a.logger().Info("story broken down",
		zap.String("story_id", story.StoryID),
		zap.Float64("complexity", complexity.Score),
		zap.Float64("dna_score", report.OverallScore),
		zap.Bool("dna_compliant", report.Compliant))
	return out, nil
}

// analyzeStory is the story analyzer tool: a deterministic breakdown of the
// request into work steps plus a complexity estimate from clarity signals.
func analyzeStory(story contract.StoryRequest) ([]string, score.Result) {
	var breakdown []string
	for i, criterion := range story.AcceptanceCriteria {
		breakdown = append(breakdown, fmt.Sprintf("step %d: satisfy %q", i+1, criterion))
	}
	if story.UserPersona != "" {
		breakdown = append(breakdown, "validate experience for persona "+story.UserPersona)
	}

	var complexity score.Result
	complexity.Score = 20 + 15*float64(len(story.AcceptanceCriteria))
	clarityBucket := score.Bucket{Name: "clarity", Keywords: []string{
		"must", "should", "when", "given", "then", "so that",
	}}
	clarityBucket.Apply(story.FeatureDescription+"\n"+strings.Join(story.AcceptanceCriteria, "\n"), &complexity)
	complexity.Finalize(50)
	return breakdown, complexity
}
