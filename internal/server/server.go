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
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"bfflender/internal/domain"
	"bfflender/internal/engine"
	"bfflender/internal/intake"
	"bfflender/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Intake   *intake.Manager
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"validation_failed"`
	Message string         `json:"message" example:"status: unknown status \"bogus\""`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the BFFLender portal API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("BFFLender Portal API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerAuth(group, cfg.Engine, cfg.Auth)
	registerIntake(group, cfg.Intake)
	registerChallenges(group, cfg.Engine)
	registerDocuments(group, cfg.Engine)
	registerUsers(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

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

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve *engine.ValidationError
	if errors.As(err, &ve) {
		var details map[string]any
		if ve.Field != "" {
			details = map[string]any{"field": ve.Field}
		}
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), details)
	}
	var pl *engine.PayloadTooLarge
	if errors.As(err, &pl) {
		return newAPIError(http.StatusRequestEntityTooLarge, "payload_too_large", err.Error(), map[string]any{
			"size":  pl.Size,
			"limit": pl.Limit,
		})
	}
	var pf *engine.PreconditionFailed
	if errors.As(err, &pf) {
		return newAPIError(http.StatusPreconditionFailed, "precondition_failed", err.Error(), nil)
	}
	var uf *engine.UploadFailed
	if errors.As(err, &uf) {
		return newAPIError(http.StatusBadGateway, "upload_failed", err.Error(), nil)
	}
	var ae *engine.AuthError
	if errors.As(err, &ae) {
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) || errors.Is(err, intake.ErrSessionNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
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
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if publicPath(basePath, route) {
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
    <title>BFFLender Portal API Docs</title>
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

func registerAuth(api huma.API, e engine.Engine, auth AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a bearer token",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body LoginResponse `json:"body"`
	}, error) {
		u, err := e.Authenticate(ctx, input.Body.Login, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		now := time.Now()
		if e.Now != nil {
			now = e.Now()
		}
		token, err := issueToken(u, auth.JWTSecret, auth.TokenTTL, now)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LoginResponse `json:"body"`
		}{Body: LoginResponse{Token: token, User: userResponse(u)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/auth/api-keys",
		Summary:       "Create an API key for the caller",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		k, raw, err := e.CreateAPIKey(ctx, actorID, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{ID: k.ID, Name: k.Name, Key: raw, CreatedAt: k.CreatedAt}}, nil
	})
}

func registerIntake(api huma.API, mgr *intake.Manager) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-intake-session",
		Method:        http.MethodPost,
		Path:          "/intake/sessions",
		Summary:       "Start a guided intake session",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body IntakeSessionResponse `json:"body"`
	}, error) {
		s, err := mgr.StartSession(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IntakeSessionResponse `json:"body"`
		}{Body: intakeSessionResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-intake-session",
		Method:      http.MethodGet,
		Path:        "/intake/sessions/{session_id}",
		Summary:     "Get an intake session transcript",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
	}) (*struct {
		Body IntakeSessionResponse `json:"body"`
	}, error) {
		s, err := mgr.GetSession(ctx, input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IntakeSessionResponse `json:"body"`
		}{Body: intakeSessionResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-intake-message",
		Method:      http.MethodPost,
		Path:        "/intake/sessions/{session_id}/messages",
		Summary:     "Send a visitor message to an intake session",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SessionID string               `path:"session_id"`
		Body      IntakeMessageRequest `json:"body"`
	}) (*struct {
		Body IntakeSessionResponse `json:"body"`
	}, error) {
		s, err := mgr.Submit(ctx, input.SessionID, input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IntakeSessionResponse `json:"body"`
		}{Body: intakeSessionResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restart-intake-session",
		Method:      http.MethodPost,
		Path:        "/intake/sessions/{session_id}/restart",
		Summary:     "Restart an intake session from scratch",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
	}) (*struct {
		Body IntakeSessionResponse `json:"body"`
	}, error) {
		s, err := mgr.Restart(ctx, input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IntakeSessionResponse `json:"body"`
		}{Body: intakeSessionResponse(s)}, nil
	})
}

func registerChallenges(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-challenges",
		Method:      http.MethodGet,
		Path:        "/challenges",
		Summary:     "List challenges",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" required:"false"`
		Email  string `query:"email" required:"false"`
		Limit  int    `query:"limit" required:"false"`
		Cursor string `query:"cursor" required:"false" doc:"Opaque cursor from a previous page"`
	}) (*struct {
		Body struct {
			Items      []ChallengeResponse `json:"items"`
			NextCursor string              `json:"next_cursor,omitempty"`
		} `json:"body"`
	}, error) {
		if input.Status != "" && !domain.KnownStatus(input.Status) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("unknown status %q", input.Status), nil)
		}
		limit := input.Limit
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		filters := repo.ChallengeFilters{Status: input.Status, Email: input.Email, Limit: limit}
		if input.Cursor != "" {
			submittedAt, id, ok := strings.Cut(input.Cursor, "|")
			if !ok {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "malformed cursor", nil)
			}
			filters.CursorSubmittedAt = submittedAt
			filters.CursorID = id
		}
		items, err := e.Repo.ListChallenges(ctx, filters)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items      []ChallengeResponse `json:"items"`
				NextCursor string              `json:"next_cursor,omitempty"`
			} `json:"body"`
		}{}
		out.Body.Items = mapChallenges(items)
		if len(items) == limit {
			last := items[len(items)-1]
			out.Body.NextCursor = last.SubmittedAt + "|" + last.ID
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-challenge",
		Method:      http.MethodGet,
		Path:        "/challenges/{challenge_id}",
		Summary:     "Get a challenge with its user and documents",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ChallengeID string `path:"challenge_id"`
	}) (*struct {
		Body ChallengeDetailsResponse `json:"body"`
	}, error) {
		details, err := e.LoadDetails(ctx, input.ChallengeID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := ChallengeDetailsResponse{
			Challenge: challengeResponse(details.Challenge),
			Documents: mapDocuments(details.Documents),
			Timeline:  domain.Timeline,
		}
		if details.User != nil {
			u := userResponse(*details.User)
			resp.User = &u
		}
		return &struct {
			Body ChallengeDetailsResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-challenge",
		Method:      http.MethodPatch,
		Path:        "/challenges/{challenge_id}",
		Summary:     "Update a challenge's status and/or notes",
		Errors: []int{
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ChallengeID string                 `path:"challenge_id"`
		Body        UpdateChallengeRequest `json:"body"`
	}) (*struct {
		Body ChallengeResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.UpdateStatusAndNotes(ctx, input.ChallengeID, engine.StatusUpdateOptions{
			Status:  input.Body.Status,
			Notes:   input.Body.Notes,
			ActorID: actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChallengeResponse `json:"body"`
		}{Body: challengeResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-challenge",
		Method:      http.MethodPost,
		Path:        "/challenges/{challenge_id}/verify",
		Summary:     "Verify a challenge email and provision its portal account",
		Errors: []int{
			http.StatusNotFound,
			http.StatusPreconditionFailed,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ChallengeID string                 `path:"challenge_id"`
		Body        VerifyChallengeRequest `json:"body"`
	}) (*struct {
		Body VerifyChallengeResponse `json:"body"`
	}, error) {
		res, err := e.VerifyChallenge(ctx, input.ChallengeID, input.Body.Email, "visitor")
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body VerifyChallengeResponse `json:"body"`
		}{Body: VerifyChallengeResponse{
			Challenge:    challengeResponse(res.Challenge),
			User:         userResponse(res.User),
			TempPassword: res.TempPassword,
			Provisioned:  res.Provisioned,
		}}, nil
	})
}

func registerDocuments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "attach-document",
		Method:        http.MethodPost,
		Path:          "/challenges/{challenge_id}/documents",
		Summary:       "Upload a document for a challenge",
		DefaultStatus: http.StatusCreated,
		MaxBodyBytes:  engine.MaxDocumentBytes + 1024,
		Errors: []int{
			http.StatusNotFound,
			http.StatusPreconditionFailed,
			http.StatusRequestEntityTooLarge,
			http.StatusUnprocessableEntity,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		ChallengeID  string `path:"challenge_id"`
		Filename     string `query:"filename"`
		DocumentType string `query:"document_type" required:"false" enum:"initial-submission,completion-document,supporting-document"`
		ContentType  string `header:"Content-Type"`
		RawBody      []byte
	}) (*struct {
		Body DocumentResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.AttachDocument(ctx, engine.DocumentAttachOptions{
			ChallengeID:  input.ChallengeID,
			Filename:     input.Filename,
			MimeType:     input.ContentType,
			Size:         int64(len(input.RawBody)),
			Content:      bytes.NewReader(input.RawBody),
			DocumentType: input.DocumentType,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DocumentResponse `json:"body"`
		}{Body: documentResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-challenge-documents",
		Method:      http.MethodGet,
		Path:        "/challenges/{challenge_id}/documents",
		Summary:     "List a challenge's documents",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ChallengeID string `path:"challenge_id"`
	}) (*struct {
		Body []DocumentResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetChallenge(ctx, input.ChallengeID); err != nil {
			return nil, handleError(err)
		}
		docs, err := e.Repo.ListChallengeDocuments(ctx, input.ChallengeID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []DocumentResponse `json:"body"`
		}{Body: mapDocuments(docs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-document",
		Method:      http.MethodGet,
		Path:        "/documents/{document_id}",
		Summary:     "Get document metadata",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DocumentID string `path:"document_id"`
	}) (*struct {
		Body DocumentResponse `json:"body"`
	}, error) {
		d, err := e.Repo.GetDocument(ctx, input.DocumentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DocumentResponse `json:"body"`
		}{Body: documentResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-document",
		Method:      http.MethodDelete,
		Path:        "/documents/{document_id}",
		Summary:     "Delete a document and its stored bytes",
		Errors: []int{
			http.StatusNotFound,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		DocumentID string `path:"document_id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok || p.ActorID == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		d, err := e.Repo.GetDocument(ctx, input.DocumentID)
		if err != nil {
			return nil, handleError(err)
		}
		if p.Role != domain.RoleAdmin && (d.RelatedUser == nil || *d.RelatedUser != p.ActorID) {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "not the document owner", nil)
		}
		if err := e.DeleteDocument(ctx, input.DocumentID, p.ActorID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "deleted"}}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List portal users",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []UserResponse `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		items, err := e.Repo.ListUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []UserResponse `json:"body"`
		}{Body: mapUsers(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create a portal user",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusForbidden,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.CreateUser(ctx, engine.UserCreateOptions{
			Username: input.Body.Username,
			Email:    input.Body.Email,
			Password: input.Body.Password,
			Role:     input.Body.Role,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Get the authenticated user",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.Repo.GetUser(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List audit events, newest first",
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type" required:"false"`
		EntityKind string `query:"entity_kind" required:"false"`
		EntityID   string `query:"entity_id" required:"false"`
		Limit      int    `query:"limit" required:"false"`
		Cursor     int64  `query:"cursor" required:"false" doc:"Return events with ids below this"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 || limit > 500 {
			limit = 100
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit, input.Cursor, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}
