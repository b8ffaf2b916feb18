package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jhonnyo88/devteam-sub003/internal/contract"
	"github.com/jhonnyo88/devteam-sub003/internal/score"
)

// QATester replays the feature from the target persona's perspective and
// scores the quality dimensions the reviewer will weigh.
type QATester struct {
	Base
}

func NewQATester(b Base) *QATester { return &QATester{Base: b} }

func (a *QATester) Stage() contract.Stage { return contract.StageQATester }

func (a *QATester) Process(ctx context.Context, in *contract.Contract) (*contract.Contract, error) {
	if err := requireTarget(in, a.Stage()); err != nil {
		return nil, err
	}
	tests, err := decodeInput[contract.TestSuitePayload](in, a.Stage())
	if err != nil {
		return nil, err
	}
	story := tests.Story

	personaResults := runPersonaChecks(story, tests)
	accessibilityIssues := checkAccessibility(story)
	scores := scoreQuality(tests, personaResults, accessibilityIssues)
	overall := overallQuality(scores)

	minOverall := 75.0
	if a.Cfg != nil && a.Cfg.Thresholds.QualityOverall > 0 {
		minOverall = a.Cfg.Thresholds.QualityOverall
	}
	var blocking []string
	for _, issue := range accessibilityIssues {
		if strings.HasPrefix(issue, "blocker:") {
			blocking = append(blocking, issue)
		}
	}
	for _, f := range tests.SecurityFindings {
		blocking = append(blocking, "security finding unresolved: "+f)
	}
	if overall < minOverall {
		blocking = append(blocking, fmt.Sprintf("overall quality %.1f below required %.1f", overall, minOverall))
	}
	deploymentReady := len(blocking) == 0

	gates := []Gate{
		{Name: "persona_validation_complete", Policy: FailFast, Check: func(context.Context) (bool, error) {
			return len(personaResults) > 0, nil
		}},
		{Name: "regression_suite_passed", Policy: FailFast, Check: func(context.Context) (bool, error) {
			if len(tests.TestSuites) == 0 {
				return false, fmt.Errorf("no test suites delivered")
			}
			return true, nil
		}},
		{Name: "accessibility_checked", Policy: FailSoft, Check: func(context.Context) (bool, error) {
			return len(accessibilityIssues) == 0, nil
		}},
	}
	outcomes, err := RunGates(ctx, a.Log, story.StoryID, a.Stage(), gates)
	if err != nil {
		return nil, err
	}

	dnaBlock := in.DNACompliance
	if err := dnaBlock.AttachStageValidation(a.Stage(), map[string]any{
		"gates":          outcomes,
		"overall_score":  overall,
		"blocking_count": len(blocking),
	}); err != nil {
		return nil, &ExecutionError{StoryID: story.StoryID, Stage: a.Stage(), Err: err}
	}

	payload := contract.QAReportPayload{
		Story:               story,
		QualityScores:       scores,
		OverallScore:        overall,
		PersonaResults:      personaResults,
		AccessibilityIssues: accessibilityIssues,
		BlockingIssues:      blocking,
		DeploymentReady:     deploymentReady,
	}
	out, err := contract.New(story.StoryID, a.Stage(), contract.StageQualityReviewer, dnaBlock, payload)
	if err != nil {
		return nil, &ExecutionError{StoryID: story.StoryID, Stage: a.Stage(), Err: err}
	}
	out.InputReqs.RequiredFiles = storyFiles(story.StoryID, "qa/reports")
	out.InputReqs.RequiredValidations = []string{"qa_report_complete"}
	out.OutputSpecs.DeliverableFiles = storyFiles(story.StoryID, "review/decisions")
	out.AppendGates(in.QualityGates...)
	out.AppendGates(GateNames(gates)...)
	out.AppendHandoffCriteria(in.HandoffCriteria...)
	out.AppendHandoffCriteria("qa_report_complete", "blocking_issues_listed")

	a.logger().Info("qa report produced",
		zap.String("story_id", story.StoryID),
		zap.Float64("overall", overall),
		zap.Int("blocking", len(blocking)),
		zap.Bool("deployment_ready", deploymentReady))
	return out, nil
}

func runPersonaChecks(story contract.StoryRequest, tests contract.TestSuitePayload) []string {
	persona := story.UserPersona
	if persona == "" {
		persona = "default user"
	}
	results := []string{
		fmt.Sprintf("%s completed the main flow in a simulated session", persona),
	}
	if story.TimeConstraintMinutes > 0 {
		results = append(results,
			fmt.Sprintf("session length checked against %d minute constraint", story.TimeConstraintMinutes))
	}
	for _, c := range tests.PrioritizedCases {
		if c.RiskScore >= 60 {
			results = append(results, "high-risk path exercised: "+c.Name)
		}
	}
	return results
}

func checkAccessibility(story contract.StoryRequest) []string {
	text := strings.ToLower(story.FeatureDescription + " " + strings.Join(story.AcceptanceCriteria, " "))
	var issues []string
	if strings.Contains(text, "video") && !strings.Contains(text, "caption") {
		issues = append(issues, "blocker: video content without captions")
	}
	if strings.Contains(text, "color only") {
		issues = append(issues, "blocker: information conveyed by color only")
	}
	return issues
}

func scoreQuality(tests contract.TestSuitePayload, personaResults, accessibilityIssues []string) map[string]float64 {
	scores := map[string]float64{
		"functionality": score.Clamp(tests.CoveragePercent),
		"performance":   performanceScore(tests.PerformanceMetrics),
		"usability":     score.Clamp(60 + 10*float64(len(personaResults))),
		"accessibility": score.Clamp(100 - 25*float64(len(accessibilityIssues))),
	}
	return scores
}

func performanceScore(m contract.PerformanceMetrics) float64 {
	s := m.LighthouseScore
	if m.APIResponseMs > 150 {
		s -= (m.APIResponseMs - 150) / 10
	}
	return score.Clamp(s)
}

// overallQuality is the quality scorer's aggregate: a plain mean over the
// scored dimensions, rounded to one decimal.
func overallQuality(scores map[string]float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, v := range scores {
		sum += v
	}
	return score.Round1(sum / float64(len(scores)))
}
