package agents

import (
	"fmt"

	"github.com/jhonnyo88/devteam-sub003/internal/contract"
)

// BusinessLogicError means the input contract did not carry the data this
// stage needs. Raised immediately, never retried.
type BusinessLogicError struct {
	StoryID string
	Stage   contract.Stage
	Msg     string
	Err     error
}

func (e *BusinessLogicError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("story %s: %s at %s: %v", e.StoryID, e.Msg, e.Stage, e.Err)
	}
	return fmt.Sprintf("story %s: %s at %s", e.StoryID, e.Msg, e.Stage)
}

func (e *BusinessLogicError) Unwrap() error { return e.Err }

// QualityGateError means a required quality bar was not met where the stage
// treats that as fatal, or a gate name fell outside the known catalog.
type QualityGateError struct {
	StoryID string
	Stage   contract.Stage
	Gate    string
	Reason  string
}

func (e *QualityGateError) Error() string {
	return fmt.Sprintf("story %s: quality gate %q failed at %s: %s", e.StoryID, e.Gate, e.Stage, e.Reason)
}

// ExecutionError wraps any lower-level failure with story context before it
// reaches the pipeline caller.
type ExecutionError struct {
	StoryID string
	Stage   contract.Stage
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("story %s: agent %s failed: %v", e.StoryID, e.Stage, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
