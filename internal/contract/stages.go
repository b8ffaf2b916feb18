package contract

// Stage identifies one step of the delivery pipeline.
type Stage string

const (
	StageGithub          Stage = "github"
	StageProjectManager  Stage = "project_manager"
	StageGameDesigner    Stage = "game_designer"
	StageDeveloper       Stage = "developer"
	StageTestEngineer    Stage = "test_engineer"
	StageQATester        Stage = "qa_tester"
	StageQualityReviewer Stage = "quality_reviewer"
	StageDeployment      Stage = "deployment"
)

// Handoff is a directed edge between two stages.
type Handoff struct {
	Source Stage
	Target Stage
}

// Handoffs is the single authoritative edge set for the pipeline. The chain
// is linear except for the quality reviewer, which either promotes to
// deployment or loops work back to the developer.
var Handoffs = []Handoff{
	{StageGithub, StageProjectManager},
	{StageProjectManager, StageGameDesigner},
	{StageGameDesigner, StageDeveloper},
	{StageDeveloper, StageTestEngineer},
	{StageTestEngineer, StageQATester},
	{StageQATester, StageQualityReviewer},
	{StageQualityReviewer, StageDeployment},
	{StageQualityReviewer, StageDeveloper},
}

// AllowedHandoff reports whether source may hand a contract to target.
func AllowedHandoff(source, target Stage) bool {
	for _, h := range Handoffs {
		if h.Source == source && h.Target == target {
			return true
		}
	}
	return false
}

// NextStage returns the default successor of a stage in the happy path.
// The quality reviewer's successor depends on the approval decision and is
// not answered here.
func NextStage(s Stage) (Stage, bool) {
	switch s {
	case StageGithub:
		return StageProjectManager, true
	case StageProjectManager:
		return StageGameDesigner, true
	case StageGameDesigner:
		return StageDeveloper, true
	case StageDeveloper:
		return StageTestEngineer, true
	case StageTestEngineer:
		return StageQATester, true
	case StageQATester:
		return StageQualityReviewer, true
	}
	return "", false
}

// KnownStage reports whether s names a pipeline stage.
func KnownStage(s Stage) bool {
	switch s {
	case StageGithub, StageProjectManager, StageGameDesigner, StageDeveloper,
		StageTestEngineer, StageQATester, StageQualityReviewer, StageDeployment:
		return true
	}
	return false
}
