package pipeline

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jhonnyo88/devteam-sub003/internal/config"
	"github.com/jhonnyo88/devteam-sub003/internal/contract"
	"github.com/jhonnyo88/devteam-sub003/internal/db"
	"github.com/jhonnyo88/devteam-sub003/internal/migrate"
	"github.com/jhonnyo88/devteam-sub003/internal/repo"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := New(conn, config.Default("test-team"), zap.NewNop())
	r.Now = func() time.Time { return time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC) }
	return r
}

func goodStory() contract.StoryRequest {
	return contract.StoryRequest{
		StoryID: "STORY-RUN-1",
		Title:   "gdpr policy quiz",
		FeatureDescription: "A short interactive quiz where municipal employees learn and " +
			"practice the new GDPR policy. Each exercise gives immediate feedback so civil " +
			"servants build the skill to apply compliance procedures in their everyday " +
			"workplace role. Professional, clear and concise copy with consistent " +
			"terminology and a structured layout keeps the session quick and focused, and " +
			"shows how the policy connects to the overall workflow, process and impact for " +
			"colleagues and team members across the organisation and its context.",
		AcceptanceCriteria: []string{
			"employee can answer five quiz questions",
			"employee sees feedback and progress after each answer",
		},
		UserPersona:           "anna",
		TimeConstraintMinutes: 8,
		Requester:             "stakeholder-lisa",
	}
}

func TestRunApprovesCleanStory(t *testing.T) {
	r := newTestRunner(t)
	ctx := context.Background()

	res, err := r.Run(ctx, goodStory())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != StatusApproved {
		t.Fatalf("status = %s, want %s (review: %+v)", res.Status, StatusApproved, res.Review)
	}
	if res.Revisions != 0 {
		t.Errorf("revisions = %d, want 0", res.Revisions)
	}
	if res.Score != 98.8 {
		t.Errorf("decision score = %.1f, want 98.8", res.Score)
	}

	story, err := r.Repo.GetStory(ctx, "STORY-RUN-1")
	if err != nil {
		t.Fatalf("get story: %v", err)
	}
	if story.Status != StatusApproved {
		t.Errorf("stored status = %s, want %s", story.Status, StatusApproved)
	}

	history, err := r.Repo.ListHistory(ctx, "STORY-RUN-1")
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 6 {
		t.Fatalf("history rows = %d, want 6", len(history))
	}
	wantStages := []string{
		"project_manager", "game_designer", "developer",
		"test_engineer", "qa_tester", "quality_reviewer",
	}
	seen := map[string]bool{}
	for _, h := range history {
		seen[h.Stage] = true
		if h.Stage == "quality_reviewer" && h.Decision != StatusApproved {
			t.Errorf("reviewer decision = %s, want %s", h.Decision, StatusApproved)
		}
	}
	for _, s := range wantStages {
		if !seen[s] {
			t.Errorf("no history row for stage %s", s)
		}
	}
}

func TestRunSettlesAccuracyMetrics(t *testing.T) {
	r := newTestRunner(t)
	ctx := context.Background()

	if _, err := r.Run(ctx, goodStory()); err != nil {
		t.Fatalf("run: %v", err)
	}
	metrics, err := r.Repo.ListAccuracyMetrics(ctx, "STORY-RUN-1")
	if err != nil {
		t.Fatalf("list metrics: %v", err)
	}
	// pm, game designer, test engineer and qa all predict a score; the
	// developer stage only reports a revision number.
	if len(metrics) != 4 {
		t.Fatalf("metrics = %d, want 4", len(metrics))
	}
	for _, m := range metrics {
		if m.FinalScore == nil {
			t.Errorf("metric for %s not settled", m.Stage)
			continue
		}
		if *m.FinalScore != 98.8 {
			t.Errorf("final score for %s = %.1f, want 98.8", m.Stage, *m.FinalScore)
		}
	}
}

func TestRunRecordsRequesterInteraction(t *testing.T) {
	r := newTestRunner(t)
	ctx := context.Background()

	if _, err := r.Run(ctx, goodStory()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := r.Repo.GetStakeholderProfile(ctx, "stakeholder-lisa"); err != nil {
		t.Fatalf("stakeholder profile: %v", err)
	}
	interactions, err := r.Repo.ListInteractions(ctx, "stakeholder-lisa")
	if err != nil {
		t.Fatalf("list interactions: %v", err)
	}
	if len(interactions) != 1 {
		t.Fatalf("interactions = %d, want 1", len(interactions))
	}
	if interactions[0].Kind != "decision_delivered" {
		t.Errorf("interaction kind = %s", interactions[0].Kind)
	}
}

func TestRunEmitsLifecycleEvents(t *testing.T) {
	r := newTestRunner(t)
	ctx := context.Background()

	if _, err := r.Run(ctx, goodStory()); err != nil {
		t.Fatalf("run: %v", err)
	}
	evts, err := r.Repo.ListEvents(ctx, repo.EventFilters{StoryID: "STORY-RUN-1", Limit: 50})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	counts := map[string]int{}
	for _, e := range evts {
		counts[e.Type]++
	}
	if counts["story.received"] != 1 {
		t.Errorf("story.received events = %d, want 1", counts["story.received"])
	}
	if counts["stage.completed"] != 6 {
		t.Errorf("stage.completed events = %d, want 6", counts["stage.completed"])
	}
	if counts["story.approved"] != 1 {
		t.Errorf("story.approved events = %d, want 1", counts["story.approved"])
	}
}

func TestRunRejectsAfterRevisionBudget(t *testing.T) {
	r := newTestRunner(t)
	ctx := context.Background()

	// Uncaptioned video is an accessibility blocker no amount of rework
	// fixes, so the story burns through its revision budget.
	story := goodStory()
	story.StoryID = "STORY-RUN-2"
	story.FeatureDescription += " Includes a video walkthrough of the form."

	res, err := r.Run(ctx, story)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != StatusRejected {
		t.Fatalf("status = %s, want %s", res.Status, StatusRejected)
	}
	if res.Revisions != 2 {
		t.Errorf("revisions = %d, want 2", res.Revisions)
	}
	if res.Review.Approved {
		t.Error("review marked approved on a rejected story")
	}
	if len(res.Review.BlockingIssues) == 0 {
		t.Error("rejected story has no blocking issues")
	}

	stored, err := r.Repo.GetStory(ctx, "STORY-RUN-2")
	if err != nil {
		t.Fatalf("get story: %v", err)
	}
	if stored.Status != StatusRejected {
		t.Errorf("stored status = %s, want %s", stored.Status, StatusRejected)
	}

	evts, err := r.Repo.ListEvents(ctx, repo.EventFilters{StoryID: "STORY-RUN-2", Type: "story.rework", Limit: 10})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(evts) != 2 {
		t.Errorf("story.rework events = %d, want 2", len(evts))
	}

	history, err := r.Repo.ListHistory(ctx, "STORY-RUN-2")
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	// first pass runs six stages, each rework pass four more
	if len(history) != 14 {
		t.Errorf("history rows = %d, want 14", len(history))
	}
}

func TestRunFailsStoryWithoutDescription(t *testing.T) {
	r := newTestRunner(t)
	ctx := context.Background()

	_, err := r.Run(ctx, contract.StoryRequest{StoryID: "STORY-RUN-3", Title: "empty"})
	if err == nil {
		t.Fatal("expected error for empty feature description")
	}
	stored, gerr := r.Repo.GetStory(ctx, "STORY-RUN-3")
	if gerr != nil {
		t.Fatalf("get story: %v", gerr)
	}
	if stored.Status != StatusFailed {
		t.Errorf("stored status = %s, want %s", stored.Status, StatusFailed)
	}
}

func TestRunGeneratesStoryID(t *testing.T) {
	r := newTestRunner(t)
	story := goodStory()
	story.StoryID = ""

	res, err := r.Run(context.Background(), story)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.StoryID == "" {
		t.Fatal("no story id generated")
	}
	if _, err := r.Repo.GetStory(context.Background(), res.StoryID); err != nil {
		t.Fatalf("generated story not stored: %v", err)
	}
}
