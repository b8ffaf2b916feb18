package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jhonnyo88/devteam-sub003/internal/contract"
	"github.com/jhonnyo88/devteam-sub003/internal/score"
)

// GameDesigner maps the story breakdown onto game mechanics and a UX
// specification for the developer.
type GameDesigner struct {
	Base
}

func NewGameDesigner(b Base) *GameDesigner { return &GameDesigner{Base: b} }

func (a *GameDesigner) Stage() contract.Stage { return contract.StageGameDesigner }

func (a *GameDesigner) Process(ctx context.Context, in *contract.Contract) (*contract.Contract, error) {
	if err := requireTarget(in, a.Stage()); err != nil {
		return nil, err
	}
	breakdown, err := decodeInput[contract.StoryBreakdownPayload](in, a.Stage())
	if err != nil {
		return nil, err
	}
	story := breakdown.Story
	if len(breakdown.Breakdown) == 0 {
		return nil, &BusinessLogicError{StoryID: in.StoryID, Stage: a.Stage(), Msg: "story_breakdown is empty"}
	}

	mechanics := mapMechanics(story)
	uxSpec := buildUXSpec(story, mechanics)
	componentMapping := make(map[string]string, len(mechanics))
	for _, m := range mechanics {
		componentMapping[m.Name] = "ui/" + strings.ReplaceAll(m.Name, " ", "_")
	}
	designScore := scoreDesign(mechanics, uxSpec, a.stageThreshold(a.Stage(), 70))

	gates := []Gate{
		{Name: "mechanics_mapped", Policy: FailFast, Check: func(context.Context) (bool, error) {
			return len(mechanics) > 0, nil
		}},
		{Name: "ux_specification_complete", Policy: FailFast, Check: func(context.Context) (bool, error) {
			return len(uxSpec) > 0, nil
		}},
		{Name: "pedagogical_alignment", Policy: FailSoft, Check: func(context.Context) (bool, error) {
			for _, m := range mechanics {
				if m.Pedagogical {
					return true, nil
				}
			}
			return false, nil
		}},
	}
	outcomes, err := RunGates(ctx, a.Log, story.StoryID, a.Stage(), gates)
	if err != nil {
		return nil, err
	}

	dnaBlock := in.DNACompliance
	if err := dnaBlock.AttachStageValidation(a.Stage(), map[string]any{
		"gates":        outcomes,
		"design_score": designScore.Score,
	}); err != nil {
		return nil, &ExecutionError{StoryID: story.StoryID, Stage: a.Stage(), Err: err}
	}

	payload := contract.GameDesignPayload{
		Story:            story,
		Mechanics:        mechanics,
		UXSpecification:  uxSpec,
		ComponentMapping: componentMapping,
		InteractionFlows: breakdown.Breakdown,
		DesignScore:      designScore.Score,
	}
	out, err := contract.New(story.StoryID, a.Stage(), contract.StageDeveloper, dnaBlock, payload)
	if err != nil {
		return nil, &ExecutionError{StoryID: story.StoryID, Stage: a.Stage(), Err: err}
	}
	out.InputReqs.RequiredFiles = storyFiles(story.StoryID, "docs/design")
	out.InputReqs.RequiredValidations = []string{"design_review_passed"}
	out.OutputSpecs.DeliverableFiles = storyFiles(story.StoryID, "src/features")
	out.AppendGates(in.QualityGates...)
	out.AppendGates(GateNames(gates)...)
	out.AppendHandoffCriteria(in.HandoffCriteria...)
	out.AppendHandoffCriteria("design_review_passed", "component_mapping_attached")

	a.logger().Info("design produced",
		zap.String("story_id", story.StoryID),
		zap.Int("mechanics", len(mechanics)),
		zap.Float64("design_score", designScore.Score))
	return out, nil
}

var pedagogicalSignals = score.Bucket{Name: "pedagogical", Keywords: []string{
	"learn", "practice", "quiz", "scenario", "feedback", "teach", "skill",
}}

func mapMechanics(story contract.StoryRequest) []contract.GameMechanic {
	mechanics := make([]contract.GameMechanic, 0, len(story.AcceptanceCriteria))
	for i, criterion := range story.AcceptanceCriteria {
		mechanics = append(mechanics, contract.GameMechanic{
			Name:        fmt.Sprintf("mechanic_%d", i+1),
			Criterion:   criterion,
			Description: "interactive exercise covering: " + criterion,
			Pedagogical: pedagogicalSignals.CountMatches(criterion+" "+story.FeatureDescription) > 0,
		})
	}
	return mechanics
}

func buildUXSpec(story contract.StoryRequest, mechanics []contract.GameMechanic) []string {
	spec := []string{
		"single-screen flow completable within the session constraint",
		"progress indicator visible at every step",
	}
	for _, m := range mechanics {
		spec = append(spec, "screen for "+m.Name+": "+m.Description)
	}
	if story.UserPersona != "" {
		spec = append(spec, "copy addressed to persona "+story.UserPersona)
	}
	return spec
}

func scoreDesign(mechanics []contract.GameMechanic, uxSpec []string, threshold float64) score.Result {
	var r score.Result
	r.Score = 40
	pedagogical := 0
	for _, m := range mechanics {
		if m.Pedagogical {
			pedagogical++
		}
	}
	r.Score += score.Points(pedagogical)
	r.Score += score.Points(len(uxSpec) / 2)
	if pedagogical == 0 {
		r.Issues = append(r.Issues, "no pedagogical mechanics mapped")
	} else {
		r.Evidence = append(r.Evidence, fmt.Sprintf("%d pedagogical mechanics", pedagogical))
	}
	r.Finalize(threshold)
	return r
}
