package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bfflender/internal/app"
	"bfflender/internal/config"
	"bfflender/internal/db"
	"bfflender/internal/domain"
	"bfflender/internal/engine"
	"bfflender/internal/migrate"
	"bfflender/internal/storage"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	uploads, err := db.UploadsDir(workspace)
	if err != nil {
		t.Fatalf("uploads dir: %v", err)
	}
	store, err := storage.NewDiskStore(uploads)
	if err != nil {
		t.Fatalf("disk store: %v", err)
	}
	cfg := config.Default()
	e := engine.New(conn, store, cfg, zerolog.Nop())
	handler, err := New(Config{
		Engine:   e,
		Intake:   app.NewIntakeManager(e, cfg, zerolog.Nop()),
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour},
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
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
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

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

var intakeAnswers = []string{
	"Jane", "Doe", "jane@example.com", "skip",
	"Increase monthly income", "5-10 years", "6", "180", "4500",
	"Not enough margin on every closed loan to grow the team.",
}

// runIntake drives a full guided intake conversation over HTTP and returns
// the created challenge id.
func runIntake(t *testing.T, srv *testServer) string {
	t.Helper()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/intake/sessions", nil, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("start session: %d %s", res.StatusCode, string(data))
	}
	var session IntakeSessionResponse
	if err := json.Unmarshal(data, &session); err != nil {
		t.Fatalf("unmarshal session: %v", err)
	}
	for _, answer := range intakeAnswers {
		res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/intake/sessions/"+session.ID+"/messages", map[string]any{"text": answer}, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("submit %q: %d %s", answer, res.StatusCode, string(data))
		}
	}
	if err := json.Unmarshal(data, &session); err != nil {
		t.Fatalf("unmarshal final session: %v", err)
	}
	if !session.Completed || session.ChallengeID == "" {
		t.Fatalf("intake did not complete: %+v", session)
	}
	return session.ChallengeID
}

func TestHealthIsPublic(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, string(data))
	}
}

func TestChallengesRequireAuth(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/challenges", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
}

func TestIntakeToVerifiedPortalAccount(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	challengeID := runIntake(t, srv)

	// The emailed verification link needs no credentials.
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/challenges/"+challengeID+"/verify", map[string]any{
		"email": "jane@example.com",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("verify: %d %s", res.StatusCode, string(data))
	}
	var verified VerifyChallengeResponse
	if err := json.Unmarshal(data, &verified); err != nil {
		t.Fatalf("unmarshal verify: %v", err)
	}
	if !verified.Provisioned || verified.TempPassword == "" {
		t.Fatalf("expected provisioned account: %+v", verified)
	}
	if verified.Challenge.Status != domain.StatusVerified {
		t.Fatalf("status = %s", verified.Challenge.Status)
	}

	// The temp password logs in.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"login":    verified.User.Username,
		"password": verified.TempPassword,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login: %d %s", res.StatusCode, string(data))
	}
	var login LoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, bearer(login.Token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", res.StatusCode, string(data))
	}
	var me UserResponse
	_ = json.Unmarshal(data, &me)
	if me.Email != "jane@example.com" {
		t.Fatalf("me = %+v", me)
	}
}

func TestVerifyEmailMismatchRejected(t *testing.T) {
	srv := newTestServer(t)
	challengeID := runIntake(t, srv)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/challenges/"+challengeID+"/verify", map[string]any{
		"email": "intruder@example.com",
	}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, string(data))
	}
}

func adminToken(t *testing.T, srv *testServer) string {
	t.Helper()
	if _, err := srv.Engine.CreateUser(context.Background(), engine.UserCreateOptions{
		Username: "admin", Email: "admin@bfflender.com", Password: "admin-pass", Role: domain.RoleAdmin, ActorID: "seed",
	}); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"login": "admin", "password": "admin-pass",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin login: %d %s", res.StatusCode, string(data))
	}
	var login LoginResponse
	_ = json.Unmarshal(data, &login)
	return login.Token
}

func TestReviewerStatusUpdates(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	challengeID := runIntake(t, srv)
	token := adminToken(t, srv)

	res, data := doJSON(t, client, http.MethodPatch, srv.URL+"/v1/challenges/"+challengeID, map[string]any{
		"status": "bogus_status",
	}, bearer(token))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("bogus status: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/challenges/"+challengeID, map[string]any{
		"status": domain.StatusInProgress,
		"notes":  "docs received, review started",
	}, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update: %d %s", res.StatusCode, string(data))
	}
	var updated ChallengeResponse
	if err := json.Unmarshal(data, &updated); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if updated.Status != domain.StatusInProgress || updated.ProgressPercent != 75 {
		t.Fatalf("updated = %+v", updated)
	}
	if pos, ok := domain.TimelinePosition(updated.Status); pos != updated.TimelinePosition || ok != updated.OnTrack {
		t.Fatalf("timeline fields inconsistent: %+v", updated)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/challenges?status=in_progress", nil, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", res.StatusCode, string(data))
	}
	var page struct {
		Items []ChallengeResponse `json:"items"`
	}
	_ = json.Unmarshal(data, &page)
	if len(page.Items) != 1 || page.Items[0].ID != challengeID {
		t.Fatalf("list = %+v", page)
	}
}

func TestDocumentUploadOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	challengeID := runIntake(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/challenges/"+challengeID+"/verify", map[string]any{
		"email": "jane@example.com",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("verify: %d %s", res.StatusCode, string(data))
	}
	var verified VerifyChallengeResponse
	_ = json.Unmarshal(data, &verified)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"login": verified.User.Username, "password": verified.TempPassword,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login: %d %s", res.StatusCode, string(data))
	}
	var login LoginResponse
	_ = json.Unmarshal(data, &login)

	payload := []byte("%PDF-1.4 completion report")
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/challenges/"+challengeID+"/documents?filename=completion.pdf", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("Authorization", "Bearer "+login.Token)
	uploadRes, err := client.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	body, _ := io.ReadAll(uploadRes.Body)
	uploadRes.Body.Close()
	if uploadRes.StatusCode != http.StatusCreated {
		t.Fatalf("upload status: %d %s", uploadRes.StatusCode, string(body))
	}
	var doc DocumentResponse
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatalf("unmarshal document: %v", err)
	}
	if doc.Filesize != int64(len(payload)) || doc.DocumentType != domain.DocumentCompletion {
		t.Fatalf("document = %+v", doc)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/challenges/"+challengeID+"/documents", nil, bearer(login.Token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list documents: %d %s", res.StatusCode, string(data))
	}
	var docs []DocumentResponse
	_ = json.Unmarshal(data, &docs)
	if len(docs) != 1 || docs[0].ID != doc.ID {
		t.Fatalf("docs = %+v", docs)
	}

	// The owner can delete their own document.
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/documents/"+doc.ID, nil, bearer(login.Token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delete: %d %s", res.StatusCode, string(data))
	}
}

func TestUserAdminOnly(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	challengeID := runIntake(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/challenges/"+challengeID+"/verify", map[string]any{
		"email": "jane@example.com",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("verify: %d %s", res.StatusCode, string(data))
	}
	var verified VerifyChallengeResponse
	_ = json.Unmarshal(data, &verified)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"login": verified.User.Username, "password": verified.TempPassword,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login: %d %s", res.StatusCode, string(data))
	}
	var clientLogin LoginResponse
	_ = json.Unmarshal(data, &clientLogin)

	// A client cannot list or create users.
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/users", nil, bearer(clientLogin.Token))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("client listing users: %d", res.StatusCode)
	}

	token := adminToken(t, srv)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/users", map[string]any{
		"username": "reviewer",
		"email":    "reviewer@bfflender.com",
		"password": "reviewer-pass",
		"role":     domain.RoleAdmin,
	}, bearer(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create user: %d %s", res.StatusCode, string(data))
	}
}

func TestIntakeRestartOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/intake/sessions", nil, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("start: %d %s", res.StatusCode, string(data))
	}
	var session IntakeSessionResponse
	_ = json.Unmarshal(data, &session)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/intake/sessions/"+session.ID+"/messages", map[string]any{"text": "Jane"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("message: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/intake/sessions/"+session.ID+"/restart", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("restart: %d %s", res.StatusCode, string(data))
	}
	var restarted IntakeSessionResponse
	_ = json.Unmarshal(data, &restarted)
	if restarted.StepIndex != 0 || restarted.ErrorCount != 0 || restarted.Completed {
		t.Fatalf("restarted = %+v", restarted)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/intake/sessions/no-such-session", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session: %d", res.StatusCode)
	}
}
