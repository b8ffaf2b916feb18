package server

import (
	"encoding/json"

	"github.com/jhonnyo88/devteam-sub003/internal/domain"
)

type RunStoryRequest struct {
	StoryID            string   `json:"story_id,omitempty" example:"STORY-042"`
	Title              string   `json:"title" example:"Policy quiz module"`
	FeatureDescription string   `json:"feature_description"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	UserPersona        string   `json:"user_persona,omitempty" example:"anna"`
	TimeConstraint     int      `json:"time_constraint_minutes,omitempty" example:"8"`
	Priority           string   `json:"priority,omitempty" example:"high"`
	Requester          string   `json:"requester,omitempty"`
}

type RunStoryResponse struct {
	StoryID   string          `json:"story_id"`
	Status    string          `json:"status"`
	Score     float64         `json:"score"`
	Revisions int             `json:"revisions"`
	Review    json.RawMessage `json:"review"`
}

type StoryResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	Requester string `json:"requester,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type HistoryEntryResponse struct {
	ID       int64           `json:"id"`
	Stage    string          `json:"stage"`
	Decision string          `json:"decision"`
	Score    *float64        `json:"score,omitempty"`
	Revision int             `json:"revision"`
	Contract json.RawMessage `json:"contract"`
	TS       string          `json:"ts"`
}

type AccuracyMetricResponse struct {
	Stage          string   `json:"stage"`
	PredictedScore float64  `json:"predicted_score"`
	FinalScore     *float64 `json:"final_score,omitempty"`
	TS             string   `json:"ts"`
}

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts"`
	Type       string          `json:"type"`
	StoryID    string          `json:"story_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles"`
	Source  string   `json:"source"`
}

func storyResponse(s domain.Story) StoryResponse {
	return StoryResponse{
		ID:        s.ID,
		Title:     s.Title,
		Status:    s.Status,
		Requester: s.Requester,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func historyResponse(h domain.HistoryEntry) HistoryEntryResponse {
	contract := json.RawMessage(`{}`)
	if json.Valid([]byte(h.ContractJSON)) {
		contract = json.RawMessage(h.ContractJSON)
	}
	return HistoryEntryResponse{
		ID:       h.ID,
		Stage:    h.Stage,
		Decision: h.Decision,
		Score:    h.Score,
		Revision: h.Revision,
		Contract: contract,
		TS:       h.CreatedAt,
	}
}

func metricResponse(m domain.AccuracyMetric) AccuracyMetricResponse {
	return AccuracyMetricResponse{
		Stage:          m.Stage,
		PredictedScore: m.PredictedScore,
		FinalScore:     m.FinalScore,
		TS:             m.CreatedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	payload := json.RawMessage(`{}`)
	if json.Valid([]byte(e.Payload)) {
		payload = json.RawMessage(e.Payload)
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		StoryID:    e.StoryID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    payload,
	}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
