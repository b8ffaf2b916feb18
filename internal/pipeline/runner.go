// Package pipeline drives a story through the agent chain, persisting every
// handoff and emitting events as it goes.
package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jhonnyo88/devteam-sub003/internal/agents"
	"github.com/jhonnyo88/devteam-sub003/internal/config"
	"github.com/jhonnyo88/devteam-sub003/internal/contract"
	"github.com/jhonnyo88/devteam-sub003/internal/domain"
	"github.com/jhonnyo88/devteam-sub003/internal/events"
	"github.com/jhonnyo88/devteam-sub003/internal/repo"
)

const (
	StatusReceived   = "received"
	StatusInPipeline = "in_pipeline"
	StatusApproved   = "approved"
	StatusRejected   = "rejected"
	StatusFailed     = "failed"
)

const pipelineActor = "pipeline"

// Runner executes the full delivery chain for one story at a time.
type Runner struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Cfg       *config.Config
	Log       *zap.Logger
	Agents    map[contract.Stage]agents.Agent
	Validator contract.Validator
	Now       func() time.Time
}

// New wires a Runner with the standard agent roster.
func New(db *sql.DB, cfg *config.Config, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	now := time.Now
	return &Runner{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db, Now: now},
		Cfg:    cfg,
		Log:    log,
		Agents: agents.Roster(cfg, log),
		Now:    now,
	}
}

// Result is the outcome of one pipeline run.
type Result struct {
	StoryID   string                 `json:"story_id"`
	Status    string                 `json:"status"`
	Score     float64                `json:"score"`
	Revisions int                    `json:"revisions"`
	Review    contract.ReviewPayload `json:"review"`
}

// Run takes a story request end to end: project manager through quality
// reviewer, looping rejected work back to the developer until the revision
// budget runs out. The configured pipeline timeout bounds the whole run.
func (r *Runner) Run(ctx context.Context, req contract.StoryRequest) (*Result, error) {
	if strings.TrimSpace(req.StoryID) == "" {
		req.StoryID = "STORY-" + uuid.NewString()
	}
	if r.Cfg != nil && r.Cfg.Pipeline.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(r.Cfg.Pipeline.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	if err := r.receiveStory(ctx, req); err != nil {
		return nil, err
	}

	cur, err := contract.New(req.StoryID, contract.StageGithub, contract.StageProjectManager, contract.PassingDNA(), req)
	if err != nil {
		return nil, r.failStory(ctx, req.StoryID, err)
	}
	if vr := r.Validator.Validate(cur); !vr.Valid {
		return nil, r.failStory(ctx, req.StoryID, fmt.Errorf("seed contract invalid: %s", strings.Join(vr.Errors, "; ")))
	}

	maxRevisions := 2
	if r.Cfg != nil && r.Cfg.Pipeline.MaxRevisions > 0 {
		maxRevisions = r.Cfg.Pipeline.MaxRevisions
	}

	revisions := 0
	for {
		stage := cur.TargetAgent
		agent, ok := r.Agents[stage]
		if !ok {
			return nil, r.failStory(ctx, req.StoryID, fmt.Errorf("no agent registered for stage %s", stage))
		}

		out, err := agent.Process(ctx, cur)
		if err != nil {
			return nil, r.failStory(ctx, req.StoryID, err)
		}

		vr := r.Validator.ValidateHandoff(cur, out)
		if !vr.Valid {
			return nil, r.failStory(ctx, req.StoryID, fmt.Errorf("contract from %s invalid: %s", stage, strings.Join(vr.Errors, "; ")))
		}
		for _, warn := range vr.Warnings {
			r.Log.Warn("contract handoff warning",
				zap.String("story_id", req.StoryID), zap.String("stage", string(stage)), zap.String("warning", warn))
			if err := r.emit(ctx, "contract.gates.dropped", req.StoryID, "contract", string(stage), events.EventPayload{"warning": warn}); err != nil {
				return nil, r.failStory(ctx, req.StoryID, err)
			}
		}

		if err := r.recordHandoff(ctx, stage, out, revisions); err != nil {
			return nil, r.failStory(ctx, req.StoryID, err)
		}

		if stage != contract.StageQualityReviewer {
			cur = out
			continue
		}

		review, err := contract.DecodePayload[contract.ReviewPayload](out.InputReqs.RequiredData)
		if err != nil {
			return nil, r.failStory(ctx, req.StoryID, err)
		}

		if review.Approved {
			if err := r.settleStory(ctx, req, StatusApproved, review); err != nil {
				return nil, err
			}
			return &Result{StoryID: req.StoryID, Status: StatusApproved, Score: review.DecisionScore, Revisions: revisions, Review: review}, nil
		}

		revisions++
		if revisions > maxRevisions {
			r.Log.Info("revision budget exhausted",
				zap.String("story_id", req.StoryID), zap.Int("revisions", revisions-1))
			if err := r.settleStory(ctx, req, StatusRejected, review); err != nil {
				return nil, err
			}
			return &Result{StoryID: req.StoryID, Status: StatusRejected, Score: review.DecisionScore, Revisions: revisions - 1, Review: review}, nil
		}

		r.Log.Info("story sent back for rework",
			zap.String("story_id", req.StoryID), zap.Int("revision", revisions), zap.Strings("focus", review.ReworkFocus))
		if err := r.emit(ctx, "story.rework", req.StoryID, "story", req.StoryID, events.EventPayload{
			"revision": revisions,
			"focus":    review.ReworkFocus,
		}); err != nil {
			return nil, r.failStory(ctx, req.StoryID, err)
		}
		cur = out
	}
}

func (r *Runner) receiveStory(ctx context.Context, req contract.StoryRequest) error {
	ts := r.now()
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := r.Repo.InsertStory(ctx, tx, domain.Story{
			ID:        req.StoryID,
			Title:     req.Title,
			Status:    StatusInPipeline,
			Requester: req.Requester,
			CreatedAt: ts,
			UpdatedAt: ts,
		}); err != nil {
			return fmt.Errorf("insert story: %w", err)
		}
		return r.Events.Append(ctx, tx, "story.received", req.StoryID, "story", req.StoryID, pipelineActor, events.EventPayload{
			"title":     req.Title,
			"requester": req.Requester,
		})
	})
}

// recordHandoff persists the produced contract as a history row plus, when
// the stage reported a score, an accuracy metric to settle later.
func (r *Runner) recordHandoff(ctx context.Context, stage contract.Stage, out *contract.Contract, revisions int) error {
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal contract: %w", err)
	}
	decision := "handed_off"
	if stage == contract.StageQualityReviewer {
		decision = StatusRejected
		if out.TargetAgent == contract.StageDeployment {
			decision = StatusApproved
		}
	}
	predicted := stageScore(out, stage)
	ts := r.now()
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := r.Repo.InsertHistory(ctx, tx, domain.HistoryEntry{
			StoryID:      out.StoryID,
			Stage:        string(stage),
			Decision:     decision,
			Score:        predicted,
			Revision:     revisions,
			ContractJSON: string(data),
			CreatedAt:    ts,
		}); err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
		if predicted != nil && stage != contract.StageQualityReviewer {
			if err := r.Repo.InsertAccuracyMetric(ctx, tx, domain.AccuracyMetric{
				StoryID:        out.StoryID,
				Stage:          string(stage),
				PredictedScore: *predicted,
				CreatedAt:      ts,
			}); err != nil {
				return fmt.Errorf("insert accuracy metric: %w", err)
			}
		}
		return r.Events.Append(ctx, tx, "stage.completed", out.StoryID, "contract", string(stage), pipelineActor, events.EventPayload{
			"source_agent": out.SourceAgent,
			"target_agent": out.TargetAgent,
			"decision":     decision,
		})
	})
}

// settleStory records the final verdict: story status, settled accuracy
// metrics, and the requester's interaction trail.
func (r *Runner) settleStory(ctx context.Context, req contract.StoryRequest, status string, review contract.ReviewPayload) error {
	evtType := "story.approved"
	if status != StatusApproved {
		evtType = "story.rejected"
	}
	payload, err := json.Marshal(review)
	if err != nil {
		return fmt.Errorf("marshal review: %w", err)
	}
	ts := r.now()
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := r.Repo.UpdateStoryStatus(ctx, tx, req.StoryID, status, ts); err != nil {
			return fmt.Errorf("update story status: %w", err)
		}
		if err := r.Repo.SettleAccuracyMetrics(ctx, tx, req.StoryID, review.DecisionScore); err != nil {
			return fmt.Errorf("settle accuracy metrics: %w", err)
		}
		if strings.TrimSpace(req.Requester) != "" {
			if err := r.Repo.UpsertStakeholderProfile(ctx, tx, domain.StakeholderProfile{
				StakeholderID: req.Requester,
				UpdatedAt:     ts,
			}); err != nil {
				return fmt.Errorf("upsert stakeholder: %w", err)
			}
			if err := r.Repo.InsertInteraction(ctx, tx, domain.Interaction{
				StakeholderID: req.Requester,
				StoryID:       req.StoryID,
				Kind:          "decision_delivered",
				PayloadJSON:   string(payload),
				CreatedAt:     ts,
			}); err != nil {
				return fmt.Errorf("insert interaction: %w", err)
			}
		}
		return r.Events.Append(ctx, tx, evtType, req.StoryID, "story", req.StoryID, pipelineActor, events.EventPayload{
			"score":     review.DecisionScore,
			"reasoning": review.Reasoning,
		})
	})
}

// failStory marks the story failed and returns the original error. Used on
// every abnormal exit so callers see a consistent story status.
func (r *Runner) failStory(ctx context.Context, storyID string, cause error) error {
	r.Log.Error("pipeline run failed", zap.String("story_id", storyID), zap.Error(cause))
	ts := r.now()
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := r.Repo.UpdateStoryStatus(ctx, tx, storyID, StatusFailed, ts); err != nil {
			return err
		}
		return r.Events.Append(ctx, tx, "story.failed", storyID, "story", storyID, pipelineActor, events.EventPayload{
			"error": cause.Error(),
		})
	})
	if err != nil {
		r.Log.Error("record failure", zap.String("story_id", storyID), zap.Error(err))
	}
	return cause
}

func (r *Runner) emit(ctx context.Context, evtType, storyID, entityKind, entityID string, payload events.EventPayload) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		return r.Events.Append(ctx, tx, evtType, storyID, entityKind, entityID, pipelineActor, payload)
	})
}

func (r *Runner) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *Runner) now() string {
	now := r.Now
	if now == nil {
		now = time.Now
	}
	return now().UTC().Format(time.RFC3339)
}

// stageScore pulls the stage's own reported score out of the contract's
// validation detail, when the stage reports one.
func stageScore(c *contract.Contract, stage contract.Stage) *float64 {
	raw, ok := c.DNACompliance.StageValidations[string(stage)]
	if !ok {
		return nil
	}
	var detail struct {
		OverallScore    *float64 `json:"overall_score"`
		DesignScore     *float64 `json:"design_score"`
		CoveragePercent *float64 `json:"coverage_percent"`
		DecisionScore   *float64 `json:"decision_score"`
	}
	if err := json.Unmarshal(raw, &detail); err != nil {
		return nil
	}
	for _, v := range []*float64{detail.OverallScore, detail.DesignScore, detail.CoveragePercent, detail.DecisionScore} {
		if v != nil {
			return v
		}
	}
	return nil
}
