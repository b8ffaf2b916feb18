package contract

import (
	"encoding/json"
)

// Version is the only contract schema version this team speaks.
const Version = "1.0"

// DesignPrinciples are the five design principles every contract must carry
// a boolean verdict for.
var DesignPrinciples = []string{
	"pedagogical_value",
	"policy_to_practice",
	"time_respect",
	"holistic_thinking",
	"professional_tone",
}

// ArchitecturePrinciples are the four architecture principles every contract
// must carry a boolean verdict for.
var ArchitecturePrinciples = []string{
	"api_first",
	"stateless_backend",
	"separation_of_concerns",
	"simplicity_first",
}

// Contract is the handoff document exchanged between pipeline stages. The
// JSON shape is the wire format; key names are stable.
type Contract struct {
	ContractVersion string               `json:"contract_version"`
	StoryID         string               `json:"story_id"`
	SourceAgent     Stage                `json:"source_agent"`
	TargetAgent     Stage                `json:"target_agent"`
	DNACompliance   DNACompliance        `json:"dna_compliance"`
	InputReqs       InputRequirements    `json:"input_requirements"`
	OutputSpecs     OutputSpecifications `json:"output_specifications"`
	QualityGates    []string             `json:"quality_gates"`
	HandoffCriteria []string             `json:"handoff_criteria"`
}

// DNACompliance carries the principle verdicts plus optional per-stage
// validation detail added by whichever stage produced the contract.
type DNACompliance struct {
	DesignPrinciplesValidation map[string]bool            `json:"design_principles_validation"`
	ArchitectureCompliance     map[string]bool            `json:"architecture_compliance"`
	StageValidations           map[string]json.RawMessage `json:"stage_validations,omitempty"`
}

// InputRequirements describes what the receiving stage needs.
type InputRequirements struct {
	RequiredFiles       []string        `json:"required_files"`
	RequiredData        json.RawMessage `json:"required_data"`
	RequiredValidations []string        `json:"required_validations"`
}

// OutputSpecifications describes what the receiving stage must produce.
type OutputSpecifications struct {
	DeliverableFiles   []string        `json:"deliverable_files"`
	DeliverableData    json.RawMessage `json:"deliverable_data"`
	ValidationCriteria json.RawMessage `json:"validation_criteria"`
}

// PassingDNA returns a compliance block with every principle set true.
// Stages overwrite individual verdicts once they have scored the story.
func PassingDNA() DNACompliance {
	design := make(map[string]bool, len(DesignPrinciples))
	for _, p := range DesignPrinciples {
		design[p] = true
	}
	arch := make(map[string]bool, len(ArchitecturePrinciples))
	for _, p := range ArchitecturePrinciples {
		arch[p] = true
	}
	return DNACompliance{
		DesignPrinciplesValidation: design,
		ArchitectureCompliance:     arch,
	}
}

// AttachStageValidation stores a stage's own validation detail under its name.
func (d *DNACompliance) AttachStageValidation(stage Stage, detail any) error {
	data, err := json.Marshal(detail)
	if err != nil {
		return err
	}
	if d.StageValidations == nil {
		d.StageValidations = map[string]json.RawMessage{}
	}
	d.StageValidations[string(stage)] = data
	return nil
}

// Clone returns a deep copy. Contracts are handed between agents and each
// owner mutates its own copy only.
func (c *Contract) Clone() *Contract {
	data, _ := json.Marshal(c)
	var out Contract
	_ = json.Unmarshal(data, &out)
	return &out
}

// AppendGates adds gate names not already present, preserving order.
// Gate lists are append-only across the pipeline.
func (c *Contract) AppendGates(gates ...string) {
	c.QualityGates = appendUnique(c.QualityGates, gates)
}

// AppendHandoffCriteria adds criteria not already present, preserving order.
func (c *Contract) AppendHandoffCriteria(criteria ...string) {
	c.HandoffCriteria = appendUnique(c.HandoffCriteria, criteria)
}

func appendUnique(dst []string, src []string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, v := range dst {
		seen[v] = struct{}{}
	}
	for _, v := range src {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}

// DroppedEntries lists values present in prev but missing from next. Used to
// flag (not reject) contracts whose successor dropped predecessor gates.
func DroppedEntries(prev, next []string) []string {
	have := make(map[string]struct{}, len(next))
	for _, v := range next {
		have[v] = struct{}{}
	}
	var dropped []string
	for _, v := range prev {
		if _, ok := have[v]; !ok {
			dropped = append(dropped, v)
		}
	}
	return dropped
}
