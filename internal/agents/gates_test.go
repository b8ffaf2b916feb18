package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhonnyo88/devteam-sub003/internal/contract"
)

func passing(ctx context.Context) (bool, error) { return true, nil }

func TestRunGatesRecordsOutcomesInOrder(t *testing.T) {
	gates := []Gate{
		{Name: "coverage_threshold_met", Policy: FailFast, Check: passing},
		{Name: "performance_budget_met", Policy: FailSoft, Check: func(ctx context.Context) (bool, error) {
			return false, nil
		}},
		{Name: "security_scan_clean", Policy: FailSoft, Check: passing},
	}
	out, err := RunGates(context.Background(), nil, "STORY-1", contract.StageTestEngineer, gates)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []string{"coverage_threshold_met", "performance_budget_met", "security_scan_clean"}, GateNames(gates))
	assert.True(t, out[0].Passed)
	assert.False(t, out[1].Passed)
	assert.Equal(t, "check returned false", out[1].Reason)
	assert.True(t, out[2].Passed)
}

func TestRunGatesRejectsUnknownGate(t *testing.T) {
	gates := []Gate{{Name: "vibes_check_passed", Policy: FailSoft, Check: passing}}
	_, err := RunGates(context.Background(), nil, "STORY-1", contract.StageQATester, gates)
	var gerr *QualityGateError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "vibes_check_passed", gerr.Gate)
	assert.Equal(t, "unknown quality gate", gerr.Reason)
}

func TestRunGatesRejectsMisattributedGate(t *testing.T) {
	// coverage_threshold_met belongs to the test engineer, not QA.
	gates := []Gate{{Name: "coverage_threshold_met", Policy: FailSoft, Check: passing}}
	_, err := RunGates(context.Background(), nil, "STORY-1", contract.StageQATester, gates)
	var gerr *QualityGateError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, contract.StageQATester, gerr.Stage)
	assert.Contains(t, gerr.Reason, "belongs to stage test_engineer")
}

func TestRunGatesFailFastAbortsOnFalse(t *testing.T) {
	gates := []Gate{
		{Name: "coverage_threshold_met", Policy: FailFast, Check: func(ctx context.Context) (bool, error) {
			return false, nil
		}},
		{Name: "security_scan_clean", Policy: FailSoft, Check: passing},
	}
	_, err := RunGates(context.Background(), nil, "STORY-1", contract.StageTestEngineer, gates)
	var gerr *QualityGateError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "coverage_threshold_met", gerr.Gate)
	assert.Equal(t, "threshold not met", gerr.Reason)
}

func TestRunGatesFailFastAbortsOnCheckerError(t *testing.T) {
	gates := []Gate{
		{Name: "coverage_threshold_met", Policy: FailFast, Check: func(ctx context.Context) (bool, error) {
			return false, errors.New("coverage report unreadable")
		}},
	}
	_, err := RunGates(context.Background(), nil, "STORY-1", contract.StageTestEngineer, gates)
	var gerr *QualityGateError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "coverage report unreadable", gerr.Reason)
}

func TestRunGatesFailSoftAbsorbsCheckerError(t *testing.T) {
	gates := []Gate{
		{Name: "performance_budget_met", Policy: FailSoft, Check: func(ctx context.Context) (bool, error) {
			return false, errors.New("lighthouse unavailable")
		}},
		{Name: "security_scan_clean", Policy: FailSoft, Check: passing},
	}
	out, err := RunGates(context.Background(), nil, "STORY-1", contract.StageTestEngineer, gates)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.False(t, out[0].Passed)
	assert.Equal(t, "lighthouse unavailable", out[0].Reason)
	assert.True(t, out[1].Passed)
}

func TestGateCatalogCoversEveryPipelineStage(t *testing.T) {
	stages := map[contract.Stage]int{}
	for _, owner := range GateCatalog {
		stages[owner]++
	}
	for _, s := range []contract.Stage{
		contract.StageProjectManager,
		contract.StageGameDesigner,
		contract.StageDeveloper,
		contract.StageTestEngineer,
		contract.StageQATester,
		contract.StageQualityReviewer,
	} {
		assert.Greater(t, stages[s], 0, "stage %s has no gates", s)
	}
}
