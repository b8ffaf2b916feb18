package domain

type Story struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status" enum:"received,in_pipeline,approved,rejected,failed"`
	Requester string `json:"requester,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// HistoryEntry is one recorded handoff of a story through a stage.
type HistoryEntry struct {
	ID           int64    `json:"id"`
	StoryID      string   `json:"story_id"`
	Stage        string   `json:"stage"`
	Decision     string   `json:"decision" enum:"handed_off,approved,rejected,failed"`
	Score        *float64 `json:"score,omitempty"`
	Revision     int      `json:"revision"`
	ContractJSON string   `json:"contract_json"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
}

// AccuracyMetric pairs a stage's predicted score with the story's final
// score for later calibration.
type AccuracyMetric struct {
	ID             int64    `json:"id"`
	StoryID        string   `json:"story_id"`
	Stage          string   `json:"stage"`
	PredictedScore float64  `json:"predicted_score"`
	FinalScore     *float64 `json:"final_score,omitempty"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
}

type StakeholderProfile struct {
	StakeholderID   string `json:"stakeholder_id"`
	Name            string `json:"name,omitempty"`
	Role            string `json:"role,omitempty"`
	PreferencesJSON string `json:"preferences_json,omitempty"`
	UpdatedAt       string `json:"updated_at" format:"date-time"`
}

type Interaction struct {
	ID            int64  `json:"id"`
	StakeholderID string `json:"stakeholder_id"`
	StoryID       string `json:"story_id,omitempty"`
	Kind          string `json:"kind"`
	PayloadJSON   string `json:"payload_json,omitempty"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	StoryID    string `json:"story_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
