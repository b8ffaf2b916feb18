package agents

import (
	"fmt"

	"github.com/jhonnyo88/devteam-sub003/internal/config"
	"github.com/jhonnyo88/devteam-sub003/internal/score"
)

// ApprovalInput is everything the final decision weighs.
type ApprovalInput struct {
	QualityScore    float64
	DeploymentReady bool
	BlockingIssues  []string
	DNAScore        float64
}

// Decision is the final verdict for one story revision.
type Decision struct {
	Approved  bool     `json:"approved"`
	Score     float64  `json:"decision_score"`
	Reasoning []string `json:"reasoning"`
}

// FinalApprover computes the weighted approval decision. A non-empty
// blocking issue list forces rejection regardless of the score.
type FinalApprover struct {
	Weights   config.ApprovalWeights
	Threshold float64
}

// NewFinalApprover uses the configured weights, falling back to the
// canonical 40/30/20/10 split.
func NewFinalApprover(cfg *config.Config) *FinalApprover {
	a := &FinalApprover{
		Weights:   config.ApprovalWeights{Quality: 0.4, Readiness: 0.3, Issues: 0.2, DNA: 0.1},
		Threshold: 80,
	}
	if cfg != nil {
		w := cfg.Approval.Weights
		if w.Quality+w.Readiness+w.Issues+w.DNA > 0 {
			a.Weights = w
		}
		if cfg.Approval.Threshold > 0 {
			a.Threshold = cfg.Approval.Threshold
		}
	}
	return a
}

// Decide computes the decision score and the hard blocking rule.
func (a *FinalApprover) Decide(in ApprovalInput) Decision {
	readiness := 40.0
	if in.DeploymentReady {
		readiness = 100
	}
	issues := score.Clamp(100 - 25*float64(len(in.BlockingIssues)))

	total := a.Weights.Quality*score.Clamp(in.QualityScore) +
		a.Weights.Readiness*readiness +
		a.Weights.Issues*issues +
		a.Weights.DNA*score.Clamp(in.DNAScore)
	total = score.Round1(total)

	d := Decision{Score: total}
	d.Reasoning = append(d.Reasoning,
		fmt.Sprintf("quality %.1f, readiness %.0f, issues %.0f, dna %.1f -> decision score %.1f",
			in.QualityScore, readiness, issues, in.DNAScore, total))

	if len(in.BlockingIssues) > 0 {
		d.Approved = false
		d.Reasoning = append(d.Reasoning,
			fmt.Sprintf("rejected: %d blocking issue(s) present", len(in.BlockingIssues)))
		return d
	}
	d.Approved = total >= a.Threshold
	if d.Approved {
		d.Reasoning = append(d.Reasoning, fmt.Sprintf("approved: score meets threshold %.1f", a.Threshold))
	} else {
		d.Reasoning = append(d.Reasoning, fmt.Sprintf("rejected: score below threshold %.1f", a.Threshold))
	}
	return d
}
