package contract

import (
	"fmt"
)

// ValidationResult is the outcome of structural validation. Any error makes
// the whole contract invalid; warnings never do.
type ValidationResult struct {
	Valid    bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings,omitempty"`
}

// Validator checks contracts against the schema and the handoff graph.
type Validator struct{}

// Validate performs the full structural check: required fields, exact DNA
// principle key sets with boolean values, and the (source, target) edge.
func (Validator) Validate(c *Contract) ValidationResult {
	res := ValidationResult{Valid: true}
	fail := func(format string, args ...any) {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
	}

	if c == nil {
		fail("contract is nil")
		return res
	}
	if c.ContractVersion == "" {
		fail("missing required field: contract_version")
	} else if c.ContractVersion != Version {
		fail("unsupported contract_version %q (want %q)", c.ContractVersion, Version)
	}
	if c.StoryID == "" {
		fail("missing required field: story_id")
	}
	if c.SourceAgent == "" {
		fail("missing required field: source_agent")
	} else if !KnownStage(c.SourceAgent) {
		fail("unknown source_agent %q", c.SourceAgent)
	}
	if c.TargetAgent == "" {
		fail("missing required field: target_agent")
	} else if !KnownStage(c.TargetAgent) {
		fail("unknown target_agent %q", c.TargetAgent)
	}
	if c.SourceAgent != "" && c.TargetAgent != "" && KnownStage(c.SourceAgent) && KnownStage(c.TargetAgent) {
		if !AllowedHandoff(c.SourceAgent, c.TargetAgent) {
			fail("handoff %s -> %s not permitted", c.SourceAgent, c.TargetAgent)
		}
	}

	validatePrincipleSet(&res, "dna_compliance.design_principles_validation",
		c.DNACompliance.DesignPrinciplesValidation, DesignPrinciples)
	validatePrincipleSet(&res, "dna_compliance.architecture_compliance",
		c.DNACompliance.ArchitectureCompliance, ArchitecturePrinciples)

	return res
}

// ValidateHandoff validates next and additionally flags gate or criteria
// entries that the successor contract dropped. Drops are warnings: the
// append-only rule is advisory, not enforced.
func (v Validator) ValidateHandoff(prev, next *Contract) ValidationResult {
	res := v.Validate(next)
	if prev == nil || next == nil {
		return res
	}
	if prev.StoryID != next.StoryID {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf("story_id changed across handoff: %q -> %q", prev.StoryID, next.StoryID))
	}
	for _, g := range DroppedEntries(prev.QualityGates, next.QualityGates) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("quality gate %q dropped by %s", g, next.SourceAgent))
	}
	for _, h := range DroppedEntries(prev.HandoffCriteria, next.HandoffCriteria) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("handoff criterion %q dropped by %s", h, next.SourceAgent))
	}
	return res
}

func validatePrincipleSet(res *ValidationResult, field string, got map[string]bool, want []string) {
	if got == nil {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf("missing required field: %s", field))
		return
	}
	for _, key := range want {
		if _, ok := got[key]; !ok {
			res.Valid = false
			res.Errors = append(res.Errors, fmt.Sprintf("%s missing principle %q", field, key))
		}
	}
	for key := range got {
		if !containsString(want, key) {
			res.Valid = false
			res.Errors = append(res.Errors, fmt.Sprintf("%s has unexpected principle %q", field, key))
		}
	}
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
