// Package server exposes the pipeline over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/jhonnyo88/devteam-sub003/internal/agents"
	"github.com/jhonnyo88/devteam-sub003/internal/contract"
	"github.com/jhonnyo88/devteam-sub003/internal/dna"
	"github.com/jhonnyo88/devteam-sub003/internal/pipeline"
	"github.com/jhonnyo88/devteam-sub003/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Runner   *pipeline.Runner
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"quality_gate_failed"`
	Message string         `json:"message" example:"coverage below required threshold"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the DevTeam API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Runner == nil {
		return nil, errors.New("server: runner is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	rp := cfg.Runner.Repo
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, rp))
	hcfg := huma.DefaultConfig("DevTeam API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerStories(group, cfg.Runner, rp)
	registerContracts(group)
	registerEvents(group, rp)
	registerMe(group)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps domain errors onto the envelope. Gate and compliance
// failures are client-visible outcomes, not server faults.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var gateErr *agents.QualityGateError
	if errors.As(err, &gateErr) {
		return newAPIError(http.StatusUnprocessableEntity, "quality_gate_failed", err.Error(), map[string]any{
			"gate":  gateErr.Gate,
			"stage": string(gateErr.Stage),
		})
	}
	var complianceErr *dna.ComplianceError
	if errors.As(err, &complianceErr) {
		return newAPIError(http.StatusUnprocessableEntity, "dna_compliance_failed", err.Error(), map[string]any{
			"story_id": complianceErr.StoryID,
		})
	}
	var bizErr *agents.BusinessLogicError
	if errors.As(err, &bizErr) {
		return newAPIError(http.StatusBadRequest, "business_rule_violation", err.Error(), map[string]any{
			"stage": string(bizErr.Stage),
		})
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newAPIError(http.StatusGatewayTimeout, "pipeline_timeout", "pipeline run exceeded its time budget", nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "unique constraint"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]struct{}{
		path.Join("/", basePath, "health"):         {},
		path.Join("/", basePath, "auth/dev/login"): {},
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if _, ok := open[route]; ok {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>DevTeam API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerStories(api huma.API, runner *pipeline.Runner, rp repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID:   "run-story",
		Method:        http.MethodPost,
		Path:          "/stories",
		Summary:       "Run a story through the pipeline",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnprocessableEntity,
			http.StatusGatewayTimeout,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body RunStoryRequest `json:"body"`
	}) (*struct {
		Body RunStoryResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if strings.TrimSpace(input.Body.FeatureDescription) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "feature_description is required", nil)
		}
		req := contract.StoryRequest{
			StoryID:               input.Body.StoryID,
			Title:                 input.Body.Title,
			FeatureDescription:    input.Body.FeatureDescription,
			AcceptanceCriteria:    input.Body.AcceptanceCriteria,
			UserPersona:           input.Body.UserPersona,
			TimeConstraintMinutes: input.Body.TimeConstraint,
			Priority:              input.Body.Priority,
			Requester:             input.Body.Requester,
		}
		if req.Requester == "" {
			if actor, authErr := actorIDFromContext(ctx); authErr == nil {
				req.Requester = actor
			}
		}
		result, err := runner.Run(ctx, req)
		if err != nil {
			return nil, handleError(err)
		}
		review, err := json.Marshal(result.Review)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RunStoryResponse `json:"body"`
		}{Body: RunStoryResponse{
			StoryID:   result.StoryID,
			Status:    result.Status,
			Score:     result.Score,
			Revisions: result.Revisions,
			Review:    review,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-stories",
		Method:      http.MethodGet,
		Path:        "/stories",
		Summary:     "List stories",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []StoryResponse `json:"body"`
	}, error) {
		items, err := rp.ListStories(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]StoryResponse, 0, len(items))
		for _, s := range items {
			res = append(res, storyResponse(s))
		}
		return &struct {
			Body []StoryResponse `json:"body"`
		}{Body: res}, nil
	})

	type storyPath struct {
		StoryID string `path:"story_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-story",
		Method:      http.MethodGet,
		Path:        "/stories/{story_id}",
		Summary:     "Get story",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *storyPath) (*struct {
		Body StoryResponse `json:"body"`
	}, error) {
		s, err := rp.GetStory(ctx, input.StoryID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StoryResponse `json:"body"`
		}{Body: storyResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "story-history",
		Method:      http.MethodGet,
		Path:        "/stories/{story_id}/history",
		Summary:     "Story handoff history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *storyPath) (*struct {
		Body []HistoryEntryResponse `json:"body"`
	}, error) {
		if _, err := rp.GetStory(ctx, input.StoryID); err != nil {
			return nil, handleError(err)
		}
		items, err := rp.ListHistory(ctx, input.StoryID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]HistoryEntryResponse, 0, len(items))
		for _, h := range items {
			res = append(res, historyResponse(h))
		}
		return &struct {
			Body []HistoryEntryResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "story-metrics",
		Method:      http.MethodGet,
		Path:        "/stories/{story_id}/metrics",
		Summary:     "Story accuracy metrics",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *storyPath) (*struct {
		Body []AccuracyMetricResponse `json:"body"`
	}, error) {
		if _, err := rp.GetStory(ctx, input.StoryID); err != nil {
			return nil, handleError(err)
		}
		items, err := rp.ListAccuracyMetrics(ctx, input.StoryID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]AccuracyMetricResponse, 0, len(items))
		for _, m := range items {
			res = append(res, metricResponse(m))
		}
		return &struct {
			Body []AccuracyMetricResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerContracts(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "validate-contract",
		Method:      http.MethodPost,
		Path:        "/contracts/validate",
		Summary:     "Validate a contract document",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body contract.Contract `json:"body"`
	}) (*struct {
		Body contract.ValidationResult `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		var v contract.Validator
		res := v.Validate(&input.Body)
		res.Errors = nonNilSlice(res.Errors)
		return &struct {
			Body contract.ValidationResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerEvents(api huma.API, rp repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		StoryID string `query:"story_id"`
		Type    string `query:"type"`
		Limit   int    `query:"limit" default:"50"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		items, err := rp.ListEvents(ctx, repo.EventFilters{
			StoryID: input.StoryID,
			Type:    input.Type,
			Limit:   limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID: principal.ActorID,
			Roles:   nonNilSlice(principal.Roles),
			Source:  principal.Source,
		}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, input.Body.Roles)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
