package contract

import (
	"encoding/json"
	"strings"
	"testing"
)

func validContract(t *testing.T) *Contract {
	t.Helper()
	c, err := New("STORY-001", StageGithub, StageProjectManager, PassingDNA(), StoryRequest{
		StoryID:            "STORY-001",
		Title:              "Policy quiz",
		FeatureDescription: "a short quiz",
		AcceptanceCriteria: []string{"user can answer"},
	})
	if err != nil {
		t.Fatalf("build contract: %v", err)
	}
	return c
}

func TestValidateAcceptsWellFormedContract(t *testing.T) {
	var v Validator
	res := v.Validate(validContract(t))
	if !res.Valid {
		t.Fatalf("expected valid, got errors: %v", res.Errors)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", res.Errors)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Contract)
		wantErr string
	}{
		{
			name:    "missing story id",
			mutate:  func(c *Contract) { c.StoryID = "" },
			wantErr: "story_id",
		},
		{
			name:    "unsupported version",
			mutate:  func(c *Contract) { c.ContractVersion = "2.0" },
			wantErr: "contract_version",
		},
		{
			name:    "missing version",
			mutate:  func(c *Contract) { c.ContractVersion = "" },
			wantErr: "contract_version",
		},
		{
			name:    "unknown target",
			mutate:  func(c *Contract) { c.TargetAgent = "intern" },
			wantErr: "unknown target_agent",
		},
		{
			name: "handoff not in graph",
			mutate: func(c *Contract) {
				c.SourceAgent = StageProjectManager
				c.TargetAgent = StageDeveloper
			},
			wantErr: "not permitted",
		},
		{
			name: "missing design principle",
			mutate: func(c *Contract) {
				delete(c.DNACompliance.DesignPrinciplesValidation, "time_respect")
			},
			wantErr: `missing principle "time_respect"`,
		},
		{
			name: "unexpected architecture principle",
			mutate: func(c *Contract) {
				c.DNACompliance.ArchitectureCompliance["buzzword_driven"] = true
			},
			wantErr: "unexpected principle",
		},
		{
			name: "nil principle map",
			mutate: func(c *Contract) {
				c.DNACompliance.DesignPrinciplesValidation = nil
			},
			wantErr: "design_principles_validation",
		},
	}

	var v Validator
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validContract(t)
			tc.mutate(c)
			res := v.Validate(c)
			if res.Valid {
				t.Fatalf("expected invalid")
			}
			found := false
			for _, e := range res.Errors {
				if strings.Contains(e, tc.wantErr) {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, res.Errors)
			}
		})
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	c := validContract(t)
	c.StoryID = ""
	var v Validator
	first := v.Validate(c)
	for i := 0; i < 5; i++ {
		again := v.Validate(c)
		if again.Valid != first.Valid || len(again.Errors) != len(first.Errors) {
			t.Fatalf("validation not stable: %v vs %v", first, again)
		}
	}
}

func TestValidateHandoffFlagsDroppedGates(t *testing.T) {
	prev := validContract(t)
	prev.AppendGates("story_breakdown_complete", "dna_compliance_verified")
	prev.AppendHandoffCriteria("story_breakdown_reviewed")

	next := prev.Clone()
	next.SourceAgent = StageProjectManager
	next.TargetAgent = StageGameDesigner
	next.QualityGates = []string{"story_breakdown_complete"}
	next.HandoffCriteria = nil

	var v Validator
	res := v.ValidateHandoff(prev, next)
	if !res.Valid {
		t.Fatalf("drops must stay warnings, got errors: %v", res.Errors)
	}
	if len(res.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", res.Warnings)
	}
}

func TestValidateHandoffRejectsStoryChange(t *testing.T) {
	prev := validContract(t)
	next := prev.Clone()
	next.SourceAgent = StageProjectManager
	next.TargetAgent = StageGameDesigner
	next.StoryID = "STORY-999"

	var v Validator
	res := v.ValidateHandoff(prev, next)
	if res.Valid {
		t.Fatalf("expected story_id change to be an error")
	}
}

func TestContractRoundTrip(t *testing.T) {
	c := validContract(t)
	c.AppendGates("story_breakdown_complete")
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Contract
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var v Validator
	if res := v.Validate(&back); !res.Valid {
		t.Fatalf("round-tripped contract invalid: %v", res.Errors)
	}
	if back.StoryID != c.StoryID || back.TargetAgent != c.TargetAgent {
		t.Fatalf("round trip changed identity: %+v", back)
	}
}

func TestAppendGatesIsIdempotent(t *testing.T) {
	c := validContract(t)
	c.AppendGates("story_breakdown_complete", "acceptance_criteria_defined")
	c.AppendGates("story_breakdown_complete")
	if len(c.QualityGates) != 2 {
		t.Fatalf("expected 2 gates, got %v", c.QualityGates)
	}
}

func TestHandoffGraph(t *testing.T) {
	if !AllowedHandoff(StageQualityReviewer, StageDeveloper) {
		t.Fatalf("rework edge must be allowed")
	}
	if !AllowedHandoff(StageQualityReviewer, StageDeployment) {
		t.Fatalf("promotion edge must be allowed")
	}
	if AllowedHandoff(StageDeveloper, StageQATester) {
		t.Fatalf("skipping the test engineer must not be allowed")
	}
	next, ok := NextStage(StageTestEngineer)
	if !ok || next != StageQATester {
		t.Fatalf("unexpected successor: %v %v", next, ok)
	}
	if _, ok := NextStage(StageQualityReviewer); ok {
		t.Fatalf("reviewer successor is a decision, not a default")
	}
}
