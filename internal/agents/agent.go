// Package agents implements the six pipeline stages. Every agent follows
// the same shape: decode the typed payload from the input contract, run its
// tools sequentially, evaluate its quality gates, then build the successor
// contract. Data extraction fails fast; only gates declared FailSoft absorb
// checker errors.
package agents

import (
	"context"

	"go.uber.org/zap"

	"github.com/jhonnyo88/devteam-sub003/internal/config"
	"github.com/jhonnyo88/devteam-sub003/internal/contract"
)

// Agent is one step of the pipeline.
type Agent interface {
	Stage() contract.Stage
	Process(ctx context.Context, in *contract.Contract) (*contract.Contract, error)
}

// Base carries the dependencies every agent shares.
type Base struct {
	Cfg *config.Config
	Log *zap.Logger
}

func (b Base) logger() *zap.Logger {
	if b.Log != nil {
		return b.Log
	}
	return zap.NewNop()
}

func (b Base) stageThreshold(stage contract.Stage, fallback float64) float64 {
	if b.Cfg == nil {
		return fallback
	}
	if v, ok := b.Cfg.Thresholds.Stage[string(stage)]; ok && v > 0 {
		return v
	}
	return fallback
}

// requireTarget rejects contracts addressed to a different stage.
func requireTarget(in *contract.Contract, stage contract.Stage) error {
	if in.TargetAgent != stage {
		return &BusinessLogicError{
			StoryID: in.StoryID,
			Stage:   stage,
			Msg:     "contract addressed to " + string(in.TargetAgent),
		}
	}
	return nil
}

// decodeInput decodes the input contract's required_data into T, converting
// failure into a BusinessLogicError for the stage.
func decodeInput[T any](in *contract.Contract, stage contract.Stage) (T, error) {
	payload, err := contract.DecodePayload[T](in.InputReqs.RequiredData)
	if err != nil {
		return payload, &BusinessLogicError{StoryID: in.StoryID, Stage: stage, Msg: "required data missing or malformed", Err: err}
	}
	return payload, nil
}

// storyFiles renders the stage's deliverable file paths for a story. File
// lists in contracts are plain story-templated strings.
func storyFiles(storyID string, paths ...string) []string {
	files := make([]string, len(paths))
	for i, p := range paths {
		files[i] = p + "/" + storyID + ".json"
	}
	return files
}

// Roster builds the full agent set keyed by stage.
func Roster(cfg *config.Config, log *zap.Logger) map[contract.Stage]Agent {
	base := Base{Cfg: cfg, Log: log}
	return map[contract.Stage]Agent{
		contract.StageProjectManager:  NewProjectManager(base),
		contract.StageGameDesigner:    NewGameDesigner(base),
		contract.StageDeveloper:       NewDeveloper(base),
		contract.StageTestEngineer:    NewTestEngineer(base),
		contract.StageQATester:        NewQATester(base),
		contract.StageQualityReviewer: NewQualityReviewer(base),
	}
}
