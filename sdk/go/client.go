package devteamsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal DevTeam HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// StoryRequest is the feature request the pipeline runs on.
type StoryRequest struct {
	StoryID            string   `json:"story_id,omitempty"`
	Title              string   `json:"title"`
	FeatureDescription string   `json:"feature_description"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	UserPersona        string   `json:"user_persona,omitempty"`
	TimeConstraint     int      `json:"time_constraint_minutes,omitempty"`
	Priority           string   `json:"priority,omitempty"`
	Requester          string   `json:"requester,omitempty"`
}

// RunResult is the final outcome of a pipeline run.
type RunResult struct {
	StoryID   string          `json:"story_id"`
	Status    string          `json:"status"`
	Score     float64         `json:"score"`
	Revisions int             `json:"revisions"`
	Review    json.RawMessage `json:"review"`
}

// Story is the API story model.
type Story struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	Requester string `json:"requester,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// HistoryEntry is one recorded stage handoff.
type HistoryEntry struct {
	ID       int64           `json:"id"`
	Stage    string          `json:"stage"`
	Decision string          `json:"decision"`
	Score    *float64        `json:"score,omitempty"`
	Revision int             `json:"revision"`
	Contract json.RawMessage `json:"contract"`
	TS       string          `json:"ts"`
}

// ValidationResult is the outcome of contract validation.
type ValidationResult struct {
	Valid    bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	StoryID    string         `json:"story_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// RunStory submits a story and waits for the pipeline verdict.
func (c *Client) RunStory(ctx context.Context, req StoryRequest) (RunResult, error) {
	var resp RunResult
	err := c.do(ctx, http.MethodPost, "stories", req, &resp)
	return resp, err
}

// ListStories returns all stories.
func (c *Client) ListStories(ctx context.Context) ([]Story, error) {
	var resp []Story
	err := c.do(ctx, http.MethodGet, "stories", nil, &resp)
	return resp, err
}

// GetStory fetches one story by id.
func (c *Client) GetStory(ctx context.Context, storyID string) (Story, error) {
	var resp Story
	err := c.do(ctx, http.MethodGet, "stories/"+url.PathEscape(storyID), nil, &resp)
	return resp, err
}

// History returns the handoff trail for a story.
func (c *Client) History(ctx context.Context, storyID string) ([]HistoryEntry, error) {
	var resp []HistoryEntry
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("stories/%s/history", url.PathEscape(storyID)), nil, &resp)
	return resp, err
}

// ValidateContract validates a raw contract document server-side.
func (c *Client) ValidateContract(ctx context.Context, doc json.RawMessage) (ValidationResult, error) {
	var resp ValidationResult
	err := c.do(ctx, http.MethodPost, "contracts/validate", doc, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
