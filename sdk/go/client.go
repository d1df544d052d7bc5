package bffsdk

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

// Client is a minimal BFFLender portal HTTP API client.
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

// Challenge represents the API challenge model.
type Challenge struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	Status           string `json:"status"`
	Notes            string `json:"notes,omitempty"`
	SubmittedAt      string `json:"submitted_at"`
	UpdatedAt        string `json:"updated_at"`
	TimelinePosition int    `json:"timeline_position"`
	OnTrack          bool   `json:"on_track"`
	ProgressPercent  int    `json:"progress_percent"`
}

// Document represents uploaded file metadata.
type Document struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	MimeType     string `json:"mime_type"`
	Filesize     int64  `json:"filesize"`
	DocumentType string `json:"document_type"`
	URL          string `json:"url"`
	CreatedAt    string `json:"created_at"`
}

// IntakeMessage is one transcript entry of an intake session.
type IntakeMessage struct {
	Actor       string   `json:"actor"`
	Text        string   `json:"text"`
	Timestamp   string   `json:"timestamp"`
	Suggestions []string `json:"suggestions,omitempty"`
	Error       bool     `json:"error,omitempty"`
}

// IntakeSession is the visible state of a guided intake conversation.
type IntakeSession struct {
	ID          string          `json:"id"`
	StepIndex   int             `json:"step_index"`
	Completed   bool            `json:"completed"`
	ChallengeID string          `json:"challenge_id,omitempty"`
	Messages    []IntakeMessage `json:"messages"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// StartIntake opens a new guided intake session.
func (c *Client) StartIntake(ctx context.Context) (IntakeSession, error) {
	var resp IntakeSession
	err := c.do(ctx, http.MethodPost, "v1/intake/sessions", nil, &resp)
	return resp, err
}

// SendIntakeMessage submits one visitor input to a session.
func (c *Client) SendIntakeMessage(ctx context.Context, sessionID, text string) (IntakeSession, error) {
	var resp IntakeSession
	endpoint := fmt.Sprintf("v1/intake/sessions/%s/messages", url.PathEscape(sessionID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"text": text}, &resp)
	return resp, err
}

// RestartIntake resets a session to a fresh conversation.
func (c *Client) RestartIntake(ctx context.Context, sessionID string) (IntakeSession, error) {
	var resp IntakeSession
	endpoint := fmt.Sprintf("v1/intake/sessions/%s/restart", url.PathEscape(sessionID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// GetChallenge fetches a challenge with its documents.
func (c *Client) GetChallenge(ctx context.Context, id string) (Challenge, error) {
	var resp struct {
		Challenge Challenge `json:"challenge"`
	}
	endpoint := fmt.Sprintf("v1/challenges/%s", url.PathEscape(id))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Challenge, err
}

// UpdateChallenge edits a challenge's status and/or notes. Nil fields are
// left unchanged.
func (c *Client) UpdateChallenge(ctx context.Context, id string, status, notes *string) (Challenge, error) {
	body := map[string]any{}
	if status != nil {
		body["status"] = *status
	}
	if notes != nil {
		body["notes"] = *notes
	}
	var resp Challenge
	endpoint := fmt.Sprintf("v1/challenges/%s", url.PathEscape(id))
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

// VerifyChallenge confirms a lead's email and provisions its portal account.
func (c *Client) VerifyChallenge(ctx context.Context, id, email string) (Challenge, error) {
	var resp struct {
		Challenge Challenge `json:"challenge"`
	}
	endpoint := fmt.Sprintf("v1/challenges/%s/verify", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"email": email}, &resp)
	return resp.Challenge, err
}

// UploadDocument attaches a file to a challenge.
func (c *Client) UploadDocument(ctx context.Context, challengeID, filename, mimeType string, data []byte) (Document, error) {
	endpoint := fmt.Sprintf("v1/challenges/%s/documents?filename=%s",
		url.PathEscape(challengeID), url.QueryEscape(filename))
	var resp Document
	err := c.doRaw(ctx, http.MethodPost, endpoint, mimeType, data, &resp)
	return resp, err
}

// ListDocuments lists a challenge's documents.
func (c *Client) ListDocuments(ctx context.Context, challengeID string) ([]Document, error) {
	var resp []Document
	endpoint := fmt.Sprintf("v1/challenges/%s/documents", url.PathEscape(challengeID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Login exchanges credentials for a bearer token and stores it on the
// client.
func (c *Client) Login(ctx context.Context, login, password string) error {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "v1/auth/login", map[string]any{
		"login":    login,
		"password": password,
	}, &resp)
	if err != nil {
		return err
	}
	c.BearerToken = resp.Token
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	return c.doReader(ctx, method, endpoint, "application/json", &buf, out)
}

func (c *Client) doRaw(ctx context.Context, method, endpoint, contentType string, data []byte, out any) error {
	return c.doReader(ctx, method, endpoint, contentType, bytes.NewReader(data), out)
}

func (c *Client) doReader(ctx context.Context, method, endpoint, contentType string, body io.Reader, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
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
