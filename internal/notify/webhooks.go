// Package notify delivers pipeline events to configured webhook endpoints.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jhonnyo88/devteam-sub003/internal/config"
	"github.com/jhonnyo88/devteam-sub003/internal/domain"
	"github.com/jhonnyo88/devteam-sub003/internal/repo"
)

const (
	defaultInterval = 2 * time.Second
	defaultTimeout  = 5 * time.Second
	defaultBatch    = 100
)

// ExternalServiceError reports a failed delivery to an external endpoint.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service %s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// Dispatcher polls the event log and forwards new events to each webhook.
// Each hook keeps its own cursor so a slow endpoint never blocks the rest.
type Dispatcher struct {
	repo    repo.Repo
	team    string
	hooks   []config.WebhookConfig
	client  *http.Client
	log     *zap.Logger
	mu      sync.Mutex
	cursors map[int]int64
}

// Start launches a background dispatcher when webhooks are configured.
// It returns nil when there is nothing to dispatch to.
func Start(r repo.Repo, cfg *config.Config, log *zap.Logger) *Dispatcher {
	if cfg == nil || len(cfg.Webhooks) == 0 {
		return nil
	}
	d := &Dispatcher{
		repo:    r,
		team:    cfg.Team.ID,
		hooks:   cfg.Webhooks,
		client:  &http.Client{Timeout: defaultTimeout},
		log:     log,
		cursors: make(map[int]int64),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	ticker := time.NewTicker(defaultInterval)
	defer ticker.Stop()
	for {
		d.DispatchAll(context.Background())
		<-ticker.C
	}
}

// DispatchAll runs one delivery round over every enabled hook.
func (d *Dispatcher) DispatchAll(ctx context.Context) {
	for i, hook := range d.hooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchHook(ctx, i, hook)
	}
}

func (d *Dispatcher) dispatchHook(ctx context.Context, idx int, hook config.WebhookConfig) {
	cursor := d.cursorFor(ctx, idx)
	events, err := d.repo.EventsAfter(ctx, defaultBatch, cursor)
	if err != nil {
		d.log.Warn("webhook: fetch events failed", zap.Error(err))
		return
	}
	filter := newEventFilter(hook.Events)
	for _, evt := range events {
		if !filter.match(evt.Type) {
			d.setCursor(idx, evt.ID)
			continue
		}
		if err := d.postEvent(ctx, hook, evt); err != nil {
			d.log.Warn("webhook: delivery failed",
				zap.String("url", hook.URL), zap.Error(err))
			return
		}
		d.setCursor(idx, evt.ID)
	}
}

func (d *Dispatcher) cursorFor(ctx context.Context, idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.repo.LatestEventID(ctx)
	if err != nil {
		d.log.Warn("webhook: init cursor failed", zap.Error(err))
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *Dispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	TeamID     string          `json:"team_id"`
	StoryID    string          `json:"story_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
	PayloadRaw string          `json:"payload_raw,omitempty"`
}

func (d *Dispatcher) postEvent(ctx context.Context, hook config.WebhookConfig, evt domain.Event) error {
	payload := json.RawMessage([]byte("{}"))
	var raw string
	if evt.Payload != "" {
		if json.Valid([]byte(evt.Payload)) {
			payload = json.RawMessage([]byte(evt.Payload))
		} else {
			raw = evt.Payload
		}
	}
	body := webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		TeamID:     d.team,
		StoryID:    evt.StoryID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
		PayloadRaw: raw,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	timeout := defaultTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	client := d.client
	if timeout != d.client.Timeout {
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-DevTeam-Event", evt.Type)
	req.Header.Set("X-DevTeam-Delivery", fmt.Sprintf("%d", evt.ID))
	req.Header.Set("X-DevTeam-Team", d.team)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-DevTeam-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return &ExternalServiceError{Service: hook.URL, Err: err}
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &ExternalServiceError{
			Service: hook.URL,
			Err:     fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes))),
		}
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
