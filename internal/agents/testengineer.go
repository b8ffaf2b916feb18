package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/jhonnyo88/devteam-sub003/internal/contract"
	"github.com/jhonnyo88/devteam-sub003/internal/score"
)

// TestEngineer generates and prioritizes test suites for the implementation
// and enforces the coverage, performance and security gates. All three of
// its gates are fail-fast: an unmet bar aborts the handoff.
type TestEngineer struct {
	Base
}

func NewTestEngineer(b Base) *TestEngineer { return &TestEngineer{Base: b} }

func (a *TestEngineer) Stage() contract.Stage { return contract.StageTestEngineer }

func (a *TestEngineer) Process(ctx context.Context, in *contract.Contract) (*contract.Contract, error) {
	if err := requireTarget(in, a.Stage()); err != nil {
		return nil, err
	}
	impl, err := decodeInput[contract.ImplementationPayload](in, a.Stage())
	if err != nil {
		return nil, err
	}
	story := impl.Story
	if len(impl.Components) == 0 {
		return nil, &BusinessLogicError{StoryID: in.StoryID, Stage: a.Stage(), Msg: "components list is empty"}
	}

	suites := buildTestSuites(impl)
	cases := prioritizeCases(impl)
	coverage := estimateCoverage(impl, suites)
	perf := estimatePerformance(impl)
	findings := scanSecurity(impl)

	coverageBar := 90.0
	responseBar := 200.0
	if a.Cfg != nil {
		if a.Cfg.Thresholds.CoveragePercent > 0 {
			coverageBar = a.Cfg.Thresholds.CoveragePercent
		}
		if a.Cfg.Thresholds.APIResponseMs > 0 {
			responseBar = a.Cfg.Thresholds.APIResponseMs
		}
	}

	gates := []Gate{
		{Name: "coverage_threshold_met", Policy: FailFast, Check: func(context.Context) (bool, error) {
			if coverage < coverageBar {
				return false, fmt.Errorf("coverage %.1f%% below required %.1f%%", coverage, coverageBar)
			}
			return true, nil
		}},
		{Name: "performance_budget_met", Policy: FailFast, Check: func(context.Context) (bool, error) {
			if perf.APIResponseMs > responseBar {
				return false, fmt.Errorf("api response %.0fms over budget %.0fms", perf.APIResponseMs, responseBar)
			}
			return true, nil
		}},
		{Name: "security_scan_clean", Policy: FailFast, Check: func(context.Context) (bool, error) {
			for _, f := range findings {
				if strings.Contains(strings.ToLower(f), "critical") {
					return false, fmt.Errorf("critical security finding: %s", f)
				}
			}
			return true, nil
		}},
	}
	outcomes, err := RunGates(ctx, a.Log, story.StoryID, a.Stage(), gates)
	if err != nil {
		return nil, err
	}

	dnaBlock := in.DNACompliance
	if err := dnaBlock.AttachStageValidation(a.Stage(), map[string]any{
		"gates":            outcomes,
		"coverage_percent": coverage,
		"api_response_ms":  perf.APIResponseMs,
	}); err != nil {
		return nil, &ExecutionError{StoryID: story.StoryID, Stage: a.Stage(), Err: err}
	}

	payload := contract.TestSuitePayload{
		Story:              story,
		TestSuites:         suites,
		PrioritizedCases:   cases,
		CoveragePercent:    coverage,
		PerformanceMetrics: perf,
		SecurityFindings:   findings,
	}
	out, err := contract.New(story.StoryID, a.Stage(), contract.StageQATester, dnaBlock, payload)
	if err != nil {
		return nil, &ExecutionError{StoryID: story.StoryID, Stage: a.Stage(), Err: err}
	}
	out.InputReqs.RequiredFiles = storyFiles(story.StoryID, "tests/suites")
	out.InputReqs.RequiredValidations = []string{"test_suites_generated"}
	out.OutputSpecs.DeliverableFiles = storyFiles(story.StoryID, "qa/reports")
	out.AppendGates(in.QualityGates...)
	out.AppendGates(GateNames(gates)...)
	out.AppendHandoffCriteria(in.HandoffCriteria...)
	out.AppendHandoffCriteria("test_suites_generated", "coverage_report_attached")

	a.logger().Info("test suites generated",
		zap.String("story_id", story.StoryID),
		zap.Int("suites", len(suites)),
		zap.Float64("coverage", coverage))
	return out, nil
}

func buildTestSuites(impl contract.ImplementationPayload) []string {
	suites := make([]string, 0, len(impl.Components)+1)
	for _, c := range impl.Components {
		suites = append(suites, "unit/"+c)
	}
	suites = append(suites, "integration/api_contract")
	return suites
}

// prioritizeCases is the test optimizer: endpoints and components are ranked
// by risk keywords so the riskiest paths are exercised first.
func prioritizeCases(impl contract.ImplementationPayload) []contract.PrioritizedCase {
	risk := score.Bucket{Name: "risk", Keywords: []string{
		"post", "delete", "progress", "result", "auth", "payment", "write",
	}}
	cases := make([]contract.PrioritizedCase, 0, len(impl.APIEndpoints))
	for _, ep := range impl.APIEndpoints {
		matches := risk.CountMatches(ep)
		cases = append(cases, contract.PrioritizedCase{
			Name:      "case " + ep,
			RiskScore: 40 + 20*float64(matches),
			Reason:    fmt.Sprintf("%d risk signals", matches),
		})
	}
	sort.SliceStable(cases, func(i, j int) bool { return cases[i].RiskScore > cases[j].RiskScore })
	return cases
}

// estimateCoverage is deterministic: one unit suite per component plus the
// integration suite covers the generated code shape completely; uncovered
// surface only appears when endpoints outnumber suites.
func estimateCoverage(impl contract.ImplementationPayload, suites []string) float64 {
	base := 86 + 2*float64(len(suites))
	if len(impl.APIEndpoints) > len(suites) {
		base -= 5 * float64(len(impl.APIEndpoints)-len(suites))
	}
	return score.Clamp(base)
}

func estimatePerformance(impl contract.ImplementationPayload) contract.PerformanceMetrics {
	return contract.PerformanceMetrics{
		APIResponseMs:   40 + 10*float64(len(impl.APIEndpoints)),
		LighthouseScore: 92,
		BundleKB:        180 + 15*float64(len(impl.Components)),
	}
}

func scanSecurity(impl contract.ImplementationPayload) []string {
	var findings []string
	for _, note := range impl.ArchitectureNotes {
		lowered := strings.ToLower(note)
		if strings.Contains(lowered, "hardcoded secret") || strings.Contains(lowered, "plaintext password") {
			findings = append(findings, "critical: "+note)
		}
	}
	return findings
}
