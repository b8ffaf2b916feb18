package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jhonnyo88/devteam-sub003/internal/contract"
)

// Developer turns the game design into implementation deliverables for the
// test engineer. It also accepts rework contracts looped back from the
// quality reviewer.
type Developer struct {
	Base
}

func NewDeveloper(b Base) *Developer { return &Developer{Base: b} }

func (a *Developer) Stage() contract.Stage { return contract.StageDeveloper }

func (a *Developer) Process(ctx context.Context, in *contract.Contract) (*contract.Contract, error) {
	if err := requireTarget(in, a.Stage()); err != nil {
		return nil, err
	}

	var (
		story    contract.StoryRequest
		flows    []string
		revision int
		notes    []string
	)
	switch in.SourceAgent {
	case contract.StageGameDesigner:
		design, err := decodeInput[contract.GameDesignPayload](in, a.Stage())
		if err != nil {
			return nil, err
		}
		if len(design.Mechanics) == 0 {
			return nil, &BusinessLogicError{StoryID: in.StoryID, Stage: a.Stage(), Msg: "game_mechanics is empty"}
		}
		story = design.Story
		flows = design.InteractionFlows
		for _, m := range design.Mechanics {
			notes = append(notes, "implements "+m.Name+" for criterion: "+m.Criterion)
		}
	case contract.StageQualityReviewer:
		review, err := decodeInput[contract.ReviewPayload](in, a.Stage())
		if err != nil {
			return nil, err
		}
		story = review.Story
		revision = review.Revision + 1
		for _, focus := range review.ReworkFocus {
			notes = append(notes, "rework: "+focus)
		}
		for _, issue := range review.BlockingIssues {
			notes = append(notes, "resolved blocking issue: "+issue)
		}
		flows = []string{"rework pass " + fmt.Sprint(revision)}
	default:
		return nil, &BusinessLogicError{StoryID: in.StoryID, Stage: a.Stage(),
			Msg: "unexpected source_agent " + string(in.SourceAgent)}
	}

	endpoints := buildEndpoints(story)
	components := buildComponents(story)

	gates := []Gate{
		{Name: "code_deliverables_complete", Policy: FailFast, Check: func(context.Context) (bool, error) {
			return len(components) > 0, nil
		}},
		{Name: "api_contracts_defined", Policy: FailFast, Check: func(context.Context) (bool, error) {
			return len(endpoints) > 0, nil
		}},
		{Name: "architecture_compliance_verified", Policy: FailSoft, Check: func(context.Context) (bool, error) {
			for _, ok := range in.DNACompliance.ArchitectureCompliance {
				if !ok {
					return false, nil
				}
			}
			return true, nil
		}},
	}
	outcomes, err := RunGates(ctx, a.Log, story.StoryID, a.Stage(), gates)
	if err != nil {
		return nil, err
	}

	dnaBlock := in.DNACompliance
	if err := dnaBlock.AttachStageValidation(a.Stage(), map[string]any{
		"gates":    outcomes,
		"revision": revision,
	}); err != nil {
		return nil, &ExecutionError{StoryID: story.StoryID, Stage: a.Stage(), Err: err}
	}

	payload := contract.ImplementationPayload{
		Story:             story,
		APIEndpoints:      endpoints,
		Components:        components,
		ArchitectureNotes: notes,
		ImplementationLog: flows,
		Revision:          revision,
	}
	out, err := contract.New(story.StoryID, a.Stage(), contract.StageTestEngineer, dnaBlock, payload)
	if err != nil {
		return nil, &ExecutionError{StoryID: story.StoryID, Stage: a.Stage(), Err: err}
	}
	out.InputReqs.RequiredFiles = storyFiles(story.StoryID, "src/features")
	out.InputReqs.RequiredValidations = []string{"implementation_complete"}
	out.OutputSpecs.DeliverableFiles = storyFiles(story.StoryID, "tests/suites")
	out.AppendGates(in.QualityGates...)
	out.AppendGates(GateNames(gates)...)
	out.AppendHandoffCriteria(in.HandoffCriteria...)
	out.AppendHandoffCriteria("implementation_complete", "api_contracts_attached")

	a.logger().Info("implementation delivered",
		zap.String("story_id", story.StoryID),
		zap.Int("endpoints", len(endpoints)),
		zap.Int("components", len(components)),
		zap.Int("revision", revision))
	return out, nil
}

func buildEndpoints(story contract.StoryRequest) []string {
	slug := storySlug(story)
	return []string{
		"GET /api/v1/" + slug,
		"POST /api/v1/" + slug + "/progress",
		"GET /api/v1/" + slug + "/result",
	}
}

func buildComponents(story contract.StoryRequest) []string {
	components := []string{"feature_shell", "progress_tracker"}
	for i := range story.AcceptanceCriteria {
		components = append(components, fmt.Sprintf("exercise_step_%d", i+1))
	}
	return components
}

func storySlug(story contract.StoryRequest) string {
	slug := strings.ToLower(strings.TrimSpace(story.Title))
	if slug == "" {
		slug = strings.ToLower(story.StoryID)
	}
	slug = strings.ReplaceAll(slug, " ", "-")
	return slug
}
