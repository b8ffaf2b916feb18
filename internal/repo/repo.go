package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jhonnyo88/devteam-sub003/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertStory(ctx context.Context, tx *sql.Tx, s domain.Story) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO stories(id,title,status,requester,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		s.ID, s.Title, s.Status, nullable(s.Requester), s.CreatedAt, s.UpdatedAt)
	return err
}

func (r Repo) GetStory(ctx context.Context, id string) (domain.Story, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,title,status,COALESCE(requester,''),created_at,updated_at FROM stories WHERE id=?`, id)
	var s domain.Story
	err := row.Scan(&s.ID, &s.Title, &s.Status, &s.Requester, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) ListStories(ctx context.Context) ([]domain.Story, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,title,status,COALESCE(requester,''),created_at,updated_at FROM stories ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Story
	for rows.Next() {
		var s domain.Story
		if err := rows.Scan(&s.ID, &s.Title, &s.Status, &s.Requester, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) UpdateStoryStatus(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE stories SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertHistory(ctx context.Context, tx *sql.Tx, h domain.HistoryEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO project_history(story_id,stage,decision,score,revision,contract_json,created_at) VALUES (?,?,?,?,?,?,?)`,
		h.StoryID, h.Stage, h.Decision, nullableFloat(h.Score), h.Revision, h.ContractJSON, h.CreatedAt)
	return err
}

func (r Repo) ListHistory(ctx context.Context, storyID string) ([]domain.HistoryEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,story_id,stage,decision,score,revision,contract_json,created_at FROM project_history WHERE story_id=? ORDER BY id ASC`, storyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.HistoryEntry
	for rows.Next() {
		var h domain.HistoryEntry
		var sc sql.NullFloat64
		if err := rows.Scan(&h.ID, &h.StoryID, &h.Stage, &h.Decision, &sc, &h.Revision, &h.ContractJSON, &h.CreatedAt); err != nil {
			return nil, err
		}
		if sc.Valid {
			h.Score = &sc.Float64
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

func (r Repo) InsertAccuracyMetric(ctx context.Context, tx *sql.Tx, m domain.AccuracyMetric) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO accuracy_metrics(story_id,stage,predicted_score,final_score,created_at) VALUES (?,?,?,?,?)`,
		m.StoryID, m.Stage, m.PredictedScore, nullableFloat(m.FinalScore), m.CreatedAt)
	return err
}

// SettleAccuracyMetrics fills final_score on every metric row of a story
// once the reviewer has decided.
func (r Repo) SettleAccuracyMetrics(ctx context.Context, tx *sql.Tx, storyID string, finalScore float64) error {
	_, err := tx.ExecContext(ctx, `UPDATE accuracy_metrics SET final_score=? WHERE story_id=? AND final_score IS NULL`, finalScore, storyID)
	return err
}

func (r Repo) ListAccuracyMetrics(ctx context.Context, storyID string) ([]domain.AccuracyMetric, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,story_id,stage,predicted_score,final_score,created_at FROM accuracy_metrics WHERE story_id=? ORDER BY id ASC`, storyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AccuracyMetric
	for rows.Next() {
		var m domain.AccuracyMetric
		var fs sql.NullFloat64
		if err := rows.Scan(&m.ID, &m.StoryID, &m.Stage, &m.PredictedScore, &fs, &m.CreatedAt); err != nil {
			return nil, err
		}
		if fs.Valid {
			m.FinalScore = &fs.Float64
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) UpsertStakeholderProfile(ctx context.Context, tx *sql.Tx, p domain.StakeholderProfile) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO stakeholder_profiles(stakeholder_id,name,role,preferences_json,updated_at) VALUES (?,?,?,?,?)
		ON CONFLICT(stakeholder_id) DO UPDATE SET name=excluded.name, role=excluded.role, preferences_json=excluded.preferences_json, updated_at=excluded.updated_at`,
		p.StakeholderID, nullable(p.Name), nullable(p.Role), nullable(p.PreferencesJSON), p.UpdatedAt)
	return err
}

func (r Repo) GetStakeholderProfile(ctx context.Context, stakeholderID string) (domain.StakeholderProfile, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT stakeholder_id,COALESCE(name,''),COALESCE(role,''),COALESCE(preferences_json,''),updated_at FROM stakeholder_profiles WHERE stakeholder_id=?`, stakeholderID)
	var p domain.StakeholderProfile
	err := row.Scan(&p.StakeholderID, &p.Name, &p.Role, &p.PreferencesJSON, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) InsertInteraction(ctx context.Context, tx *sql.Tx, in domain.Interaction) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO interaction_history(stakeholder_id,story_id,kind,payload_json,created_at) VALUES (?,?,?,?,?)`,
		in.StakeholderID, nullable(in.StoryID), in.Kind, nullable(in.PayloadJSON), in.CreatedAt)
	return err
}

func (r Repo) ListInteractions(ctx context.Context, stakeholderID string) ([]domain.Interaction, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,stakeholder_id,COALESCE(story_id,''),kind,COALESCE(payload_json,''),created_at FROM interaction_history WHERE stakeholder_id=? ORDER BY id ASC`, stakeholderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Interaction
	for rows.Next() {
		var in domain.Interaction
		if err := rows.Scan(&in.ID, &in.StakeholderID, &in.StoryID, &in.Kind, &in.PayloadJSON, &in.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, in)
	}
	return res, rows.Err()
}

// EventFilters narrows event queries.
type EventFilters struct {
	StoryID string
	Type    string
	Limit   int
}

func (r Repo) ListEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	var (
		where []string
		args  []any
	)
	if f.StoryID != "" {
		where = append(where, "story_id=?")
		args = append(args, f.StoryID)
	}
	if f.Type != "" {
		where = append(where, "type=?")
		args = append(args, f.Type)
	}
	q := `SELECT id,ts,type,COALESCE(story_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.StoryID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns up to limit events with id greater than cursor, oldest
// first. Used by the webhook dispatcher.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,COALESCE(story_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.StoryID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
