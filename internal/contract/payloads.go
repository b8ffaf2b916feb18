package contract

import (
	"encoding/json"
	"fmt"
)

// Each stage decodes required_data into its own payload type instead of
// indexing an untyped map. Decode failures surface as business logic errors
// at the consuming agent.

// StoryRequest is the feature request entering the pipeline.
type StoryRequest struct {
	StoryID               string   `json:"story_id"`
	Title                 string   `json:"title"`
	FeatureDescription    string   `json:"feature_description"`
	AcceptanceCriteria    []string `json:"acceptance_criteria"`
	UserPersona           string   `json:"user_persona"`
	TimeConstraintMinutes int      `json:"time_constraint_minutes"`
	Priority              string   `json:"priority,omitempty"`
	Requester             string   `json:"requester,omitempty"`
}

// StoryBreakdownPayload is what the project manager hands the game designer.
type StoryBreakdownPayload struct {
	Story               StoryRequest `json:"story"`
	Breakdown           []string     `json:"story_breakdown"`
	ComplexityScore     float64      `json:"complexity_score"`
	DNAOverallScore     float64      `json:"dna_overall_score"`
	DNACompliant        bool         `json:"dna_compliant"`
	DNAViolations       []string     `json:"dna_violations,omitempty"`
	RecommendedFocus    []string     `json:"recommended_focus,omitempty"`
	EstimatedComponents int          `json:"estimated_components"`
}

// GameDesignPayload is what the game designer hands the developer.
type GameDesignPayload struct {
	Story            StoryRequest      `json:"story"`
	Mechanics        []GameMechanic    `json:"game_mechanics"`
	UXSpecification  []string          `json:"ux_specification"`
	ComponentMapping map[string]string `json:"component_mapping"`
	InteractionFlows []string          `json:"interaction_flows"`
	DesignScore      float64           `json:"design_score"`
}

// GameMechanic maps one acceptance criterion to an interactive mechanic.
type GameMechanic struct {
	Name        string `json:"name"`
	Criterion   string `json:"criterion"`
	Description string `json:"description"`
	Pedagogical bool   `json:"pedagogical"`
}

// ImplementationPayload is what the developer hands the test engineer.
type ImplementationPayload struct {
	Story             StoryRequest `json:"story"`
	APIEndpoints      []string     `json:"api_endpoints"`
	Components        []string     `json:"components"`
	ArchitectureNotes []string     `json:"architecture_notes"`
	ImplementationLog []string     `json:"implementation_log"`
	Revision          int          `json:"revision"`
}

// TestSuitePayload is what the test engineer hands the QA tester.
type TestSuitePayload struct {
	Story              StoryRequest       `json:"story"`
	TestSuites         []string           `json:"test_suites"`
	PrioritizedCases   []PrioritizedCase  `json:"prioritized_cases"`
	CoveragePercent    float64            `json:"coverage_percent"`
	PerformanceMetrics PerformanceMetrics `json:"performance_metrics"`
	SecurityFindings   []string           `json:"security_findings"`
}

// PrioritizedCase is one test case ranked by the optimizer.
type PrioritizedCase struct {
	Name      string  `json:"name"`
	RiskScore float64 `json:"risk_score"`
	Reason    string  `json:"reason,omitempty"`
}

// PerformanceMetrics are the measured budgets the gates compare against.
type PerformanceMetrics struct {
	APIResponseMs   float64 `json:"api_response_ms"`
	LighthouseScore float64 `json:"lighthouse_score"`
	BundleKB        float64 `json:"bundle_kb"`
}

// QAReportPayload is what the QA tester hands the quality reviewer.
type QAReportPayload struct {
	Story               StoryRequest       `json:"story"`
	QualityScores       map[string]float64 `json:"quality_scores"`
	OverallScore        float64            `json:"overall_score"`
	PersonaResults      []string           `json:"persona_results"`
	AccessibilityIssues []string           `json:"accessibility_issues"`
	BlockingIssues      []string           `json:"blocking_issues"`
	DeploymentReady     bool               `json:"deployment_ready"`
}

// ReviewPayload is the quality reviewer's final output, handed either to
// deployment or back to the developer for rework.
type ReviewPayload struct {
	Story          StoryRequest `json:"story"`
	Approved       bool         `json:"approved"`
	DecisionScore  float64      `json:"decision_score"`
	Reasoning      []string     `json:"reasoning"`
	BlockingIssues []string     `json:"blocking_issues,omitempty"`
	ReworkFocus    []string     `json:"rework_focus,omitempty"`
	Revision       int          `json:"revision"`
}

// DecodePayload decodes required_data into the stage's payload type.
func DecodePayload[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, fmt.Errorf("required_data is empty")
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode required_data: %w", err)
	}
	return out, nil
}

// EncodePayload marshals a stage payload for embedding in a contract.
func EncodePayload(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// New builds a contract between two stages carrying the given payload.
// The DNA block starts from the source's compliance view.
func New(storyID string, source, target Stage, dna DNACompliance, payload any) (*Contract, error) {
	data, err := EncodePayload(payload)
	if err != nil {
		return nil, err
	}
	return &Contract{
		ContractVersion: Version,
		StoryID:         storyID,
		SourceAgent:     source,
		TargetAgent:     target,
		DNACompliance:   dna,
		InputReqs: InputRequirements{
			RequiredFiles:       []string{},
			RequiredData:        data,
			RequiredValidations: []string{},
		},
		OutputSpecs: OutputSpecifications{
			DeliverableFiles: []string{},
			DeliverableData:  json.RawMessage(`{}`),
		},
		QualityGates:    []string{},
		HandoffCriteria: []string{},
	}, nil
}
