package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"go.uber.org/zap"

	"github.com/jhonnyo88/devteam-sub003/internal/config"
	"github.com/jhonnyo88/devteam-sub003/internal/contract"
	"github.com/jhonnyo88/devteam-sub003/internal/db"
	"github.com/jhonnyo88/devteam-sub003/internal/domain"
	"github.com/jhonnyo88/devteam-sub003/internal/migrate"
	"github.com/jhonnyo88/devteam-sub003/internal/pipeline"
	"github.com/jhonnyo88/devteam-sub003/internal/repo"
)

const testJWTSecret = "test-secret"

type testServer struct {
	URL    string
	Runner *pipeline.Runner
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	runner := pipeline.New(conn, config.Default("devteam"), zap.NewNop())
	handler, err := New(Config{
		Runner:   runner,
		BasePath: "/v1",
		Auth: AuthConfig{
			JWTSecret:        testJWTSecret,
			AllowActorHeader: true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Runner: runner,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func actorHeaders(actor string) map[string]string {
	return map[string]string{"X-Actor-Id": actor}
}

func goodStoryBody() map[string]any {
	return map[string]any{
		"title": "gdpr policy quiz",
		"feature_description": "A short interactive quiz where municipal employees learn and " +
			"practice the new GDPR policy. Each exercise gives immediate feedback so civil " +
			"servants build the skill to apply compliance procedures in their everyday " +
			"workplace role. Professional, clear and concise copy with consistent " +
			"terminology and a structured layout keeps the session quick and focused, and " +
			"shows how the policy connects to the overall workflow, process and impact for " +
			"colleagues and team members across the organisation and its context.",
		"acceptance_criteria": []string{
			"employee can answer five quiz questions",
			"employee sees feedback and progress after each answer",
		},
		"user_persona":            "anna",
		"time_constraint_minutes": 8,
	}
}

func TestHealthIsOpen(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/stories", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Errorf("error code = %q, want unauthorized", envelope.Error.Code)
	}
}

func TestDevLoginAndWhoAmI(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{
		"actor_id": "anna",
		"roles":    []string{"pm"},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	if login.Token == "" {
		t.Fatal("empty token")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	if err := json.Unmarshal(data, &who); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if who.ActorID != "anna" || who.Source != "jwt" {
		t.Errorf("me = %+v", who)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	rawKey := "dtk_test_key"
	err := srv.Runner.Repo.InsertAPIKey(context.Background(), domain.APIKey{
		ID:      "key-1",
		ActorID: "svc-reporting",
		Name:    "reporting",
		KeyHash: repo.HashAPIKey(rawKey),
	})
	if err != nil {
		t.Fatalf("insert api key: %v", err)
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"X-Api-Key": rawKey,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	if err := json.Unmarshal(data, &who); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if who.ActorID != "svc-reporting" || who.Source != "api_key" {
		t.Errorf("me = %+v", who)
	}
}

func TestRunStoryEndToEnd(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/stories", goodStoryBody(), actorHeaders("anna"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("run story status %d: %s", res.StatusCode, string(data))
	}
	var run RunStoryResponse
	if err := json.Unmarshal(data, &run); err != nil {
		t.Fatalf("unmarshal run: %v", err)
	}
	if run.Status != pipeline.StatusApproved {
		t.Fatalf("status = %s, want approved (review: %s)", run.Status, string(run.Review))
	}
	if run.Score != 98.8 {
		t.Errorf("score = %.1f, want 98.8", run.Score)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/stories/"+run.StoryID, nil, actorHeaders("anna"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get story status %d: %s", res.StatusCode, string(data))
	}
	var story StoryResponse
	if err := json.Unmarshal(data, &story); err != nil {
		t.Fatalf("unmarshal story: %v", err)
	}
	if story.Status != pipeline.StatusApproved {
		t.Errorf("stored status = %s", story.Status)
	}
	// requester defaults to the authenticated actor
	if story.Requester != "anna" {
		t.Errorf("requester = %q, want anna", story.Requester)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/stories/"+run.StoryID+"/history", nil, actorHeaders("anna"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history status %d: %s", res.StatusCode, string(data))
	}
	var history []HistoryEntryResponse
	if err := json.Unmarshal(data, &history); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(history) != 6 {
		t.Errorf("history rows = %d, want 6", len(history))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/stories/"+run.StoryID+"/metrics", nil, actorHeaders("anna"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d: %s", res.StatusCode, string(data))
	}
	var metrics []AccuracyMetricResponse
	if err := json.Unmarshal(data, &metrics); err != nil {
		t.Fatalf("unmarshal metrics: %v", err)
	}
	if len(metrics) != 4 {
		t.Errorf("metrics = %d, want 4", len(metrics))
	}
	for _, m := range metrics {
		if m.FinalScore == nil {
			t.Errorf("metric %s unsettled", m.Stage)
		}
	}
}

func TestRunStoryRequiresDescription(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/stories", map[string]any{
		"title": "no description",
	}, actorHeaders("anna"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "bad_request" {
		t.Errorf("error code = %q", envelope.Error.Code)
	}
}

func TestGetUnknownStory(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/stories/STORY-NOPE", nil, actorHeaders("anna"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404: %s", res.StatusCode, string(data))
	}
}

func TestValidateContract(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	good, err := contract.New("STORY-V1", contract.StageGithub, contract.StageProjectManager,
		contract.PassingDNA(), map[string]any{"note": "seed"})
	if err != nil {
		t.Fatalf("build contract: %v", err)
	}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/contracts/validate", good, actorHeaders("anna"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validate status %d: %s", res.StatusCode, string(data))
	}
	var result contract.ValidationResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if !result.Valid {
		t.Errorf("good contract invalid: %v", result.Errors)
	}

	bad := *good
	bad.StoryID = ""
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/contracts/validate", &bad, actorHeaders("anna"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validate status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Valid {
		t.Error("contract without story id reported valid")
	}
	if len(result.Errors) == 0 {
		t.Error("no validation errors reported")
	}
}

func TestEventsPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	body := goodStoryBody()
	body["story_id"] = "STORY-EVT"
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/stories", body, actorHeaders("anna"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("run story status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/events?story_id=STORY-EVT&limit=2", nil, actorHeaders("anna"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedEvents
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(page.Items))
	}
	if page.NextCursor == "" {
		t.Error("expected next_cursor on truncated page")
	}
}
