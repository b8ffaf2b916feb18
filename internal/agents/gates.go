package agents

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jhonnyo88/devteam-sub003/internal/contract"
)

// GatePolicy says whether a gate failure (or a checker error) aborts the
// stage or only records a failed gate. The policy is a declared property of
// each gate, not an accident of error handling.
type GatePolicy int

const (
	// FailFast gates abort the stage with a QualityGateError.
	FailFast GatePolicy = iota
	// FailSoft gates convert checker errors and failed checks into a
	// recorded false result and let the stage continue.
	FailSoft
)

// Gate is one named boolean precondition a stage must evaluate before
// building its output contract.
type Gate struct {
	Name   string
	Policy GatePolicy
	Check  func(ctx context.Context) (bool, error)
}

// GateOutcome is the recorded result of one gate evaluation.
type GateOutcome struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

// GateCatalog is the exhaustive set of known gate names and the stage each
// belongs to. Referencing a name outside this catalog is a hard error; a
// typo must never pass silently.
var GateCatalog = map[string]contract.Stage{
	"story_breakdown_complete":         contract.StageProjectManager,
	"dna_compliance_verified":          contract.StageProjectManager,
	"acceptance_criteria_defined":      contract.StageProjectManager,
	"mechanics_mapped":                 contract.StageGameDesigner,
	"ux_specification_complete":        contract.StageGameDesigner,
	"pedagogical_alignment":            contract.StageGameDesigner,
	"code_deliverables_complete":       contract.StageDeveloper,
	"architecture_compliance_verified": contract.StageDeveloper,
	"api_contracts_defined":            contract.StageDeveloper,
	"coverage_threshold_met":           contract.StageTestEngineer,
	"performance_budget_met":           contract.StageTestEngineer,
	"security_scan_clean":              contract.StageTestEngineer,
	"persona_validation_complete":      contract.StageQATester,
	"accessibility_checked":            contract.StageQATester,
	"regression_suite_passed":          contract.StageQATester,
	"final_score_computed":             contract.StageQualityReviewer,
	"deployment_readiness_assessed":    contract.StageQualityReviewer,
}

// RunGates evaluates the stage's gates in order. Unknown or misattributed
// gate names fail hard regardless of policy. Checker errors on FailSoft
// gates are logged and recorded as a failed gate; on FailFast gates they
// abort the stage.
func RunGates(ctx context.Context, log *zap.Logger, storyID string, stage contract.Stage, gates []Gate) ([]GateOutcome, error) {
	outcomes := make([]GateOutcome, 0, len(gates))
	for _, g := range gates {
		owner, known := GateCatalog[g.Name]
		if !known {
			return nil, &QualityGateError{StoryID: storyID, Stage: stage, Gate: g.Name, Reason: "unknown quality gate"}
		}
		if owner != stage {
			return nil, &QualityGateError{StoryID: storyID, Stage: stage, Gate: g.Name,
				Reason: fmt.Sprintf("gate belongs to stage %s", owner)}
		}
		ok, err := g.Check(ctx)
		if err != nil {
			if g.Policy == FailFast {
				return nil, &QualityGateError{StoryID: storyID, Stage: stage, Gate: g.Name, Reason: err.Error()}
			}
			if log != nil {
				log.Warn("quality gate checker failed; recording gate as failed",
					zap.String("story_id", storyID),
					zap.String("stage", string(stage)),
					zap.String("gate", g.Name),
					zap.Error(err))
			}
			outcomes = append(outcomes, GateOutcome{Name: g.Name, Passed: false, Reason: err.Error()})
			continue
		}
		if !ok && g.Policy == FailFast {
			return nil, &QualityGateError{StoryID: storyID, Stage: stage, Gate: g.Name, Reason: "threshold not met"}
		}
		out := GateOutcome{Name: g.Name, Passed: ok}
		if !ok {
			out.Reason = "check returned false"
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

// GateNames extracts the names from a gate list, in order.
func GateNames(gates []Gate) []string {
	names := make([]string, len(gates))
	for i, g := range gates {
		names[i] = g.Name
	}
	return names
}
