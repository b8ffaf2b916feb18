package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jhonnyo88/devteam-sub003/internal/config"
)

func TestDecideWeightedScore(t *testing.T) {
	a := NewFinalApprover(nil)
	d := a.Decide(ApprovalInput{
		QualityScore:    97,
		DeploymentReady: true,
		DNAScore:        100,
	})
	// 0.4*97 + 0.3*100 + 0.2*100 + 0.1*100
	assert.Equal(t, 98.8, d.Score)
	assert.True(t, d.Approved)
}

func TestDecideThresholdBoundary(t *testing.T) {
	a := NewFinalApprover(nil)

	// 0.4*80 + 0.3*100 + 0.2*100 + 0.1*60 = 88
	at := a.Decide(ApprovalInput{QualityScore: 80, DeploymentReady: true, DNAScore: 60})
	assert.True(t, at.Approved)

	// 0.4*60 + 0.3*40 + 0.2*100 + 0.1*60 = 62
	below := a.Decide(ApprovalInput{QualityScore: 60, DNAScore: 60})
	assert.Equal(t, 62.0, below.Score)
	assert.False(t, below.Approved)
}

func TestDecideBlockingIssuesForceRejection(t *testing.T) {
	a := NewFinalApprover(nil)
	d := a.Decide(ApprovalInput{
		QualityScore:    100,
		DeploymentReady: true,
		BlockingIssues:  []string{"video without captions"},
		DNAScore:        100,
	})
	// 0.4*100 + 0.3*100 + 0.2*75 + 0.1*100 = 95, still rejected.
	assert.Equal(t, 95.0, d.Score)
	assert.False(t, d.Approved)
	assert.Contains(t, d.Reasoning, "rejected: 1 blocking issue(s) present")
}

func TestDecideIssuePenaltyClamps(t *testing.T) {
	a := NewFinalApprover(nil)
	d := a.Decide(ApprovalInput{
		QualityScore:    100,
		DeploymentReady: true,
		BlockingIssues:  []string{"a", "b", "c", "d", "e", "f"},
		DNAScore:        100,
	})
	// issues dimension bottoms out at 0: 40 + 30 + 0 + 10
	assert.Equal(t, 80.0, d.Score)
	assert.False(t, d.Approved)
}

func TestNewFinalApproverUsesConfig(t *testing.T) {
	cfg := config.Default("demo")
	cfg.Approval.Weights = config.ApprovalWeights{Quality: 1}
	cfg.Approval.Threshold = 90

	a := NewFinalApprover(cfg)
	assert.Equal(t, 90.0, a.Threshold)

	d := a.Decide(ApprovalInput{QualityScore: 89, DeploymentReady: true, DNAScore: 100})
	assert.Equal(t, 89.0, d.Score)
	assert.False(t, d.Approved)
}
