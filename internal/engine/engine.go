package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"bfflender/internal/config"
	"bfflender/internal/domain"
	"bfflender/internal/events"
	"bfflender/internal/repo"
	"bfflender/internal/storage"
)

// Engine is the application review workflow: it owns every state change a
// challenge goes through after intake hands it off.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Blobs  storage.BlobStore
	Config *config.Config
	Log    zerolog.Logger
	Now    func() time.Time
}

func New(db *sql.DB, blobs storage.BlobStore, cfg *config.Config, log zerolog.Logger) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Blobs:  blobs,
		Config: cfg,
		Log:    log,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// ChallengeSubmitOptions carry the answers collected by intake.
type ChallengeSubmitOptions struct {
	FirstName        string
	LastName         string
	Email            string
	Phone            string
	PrimaryGoal      string
	ExperienceLevel  string
	MonthlyVolume    string
	BiggestChallenge string
	ActorID          string
}

// SubmitChallenge persists a new lead. The record is created as submitted
// and immediately moved to pending_verification in the same transaction, so
// readers only ever observe it awaiting verification; both transitions are
// audited.
func (e Engine) SubmitChallenge(ctx context.Context, opts ChallengeSubmitOptions) (domain.Challenge, error) {
	name := strings.TrimSpace(opts.FirstName + " " + opts.LastName)
	if name == "" {
		return domain.Challenge{}, &ValidationError{Field: "name", Reason: "name is required"}
	}
	if opts.Email == "" {
		return domain.Challenge{}, &ValidationError{Field: "email", Reason: "email is required"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Challenge{}, err
	}
	defer tx.Rollback()

	ts := e.timestamp()
	c := domain.Challenge{
		ID:               uuid.NewString(),
		Name:             name,
		Email:            strings.ToLower(strings.TrimSpace(opts.Email)),
		Phone:            opts.Phone,
		PrimaryGoal:      opts.PrimaryGoal,
		ExperienceLevel:  opts.ExperienceLevel,
		MonthlyVolume:    opts.MonthlyVolume,
		BiggestChallenge: opts.BiggestChallenge,
		Status:           domain.StatusSubmitted,
		SubmittedAt:      ts,
		UpdatedAt:        ts,
	}
	if err := e.Repo.InsertChallenge(ctx, tx, c); err != nil {
		return domain.Challenge{}, fmt.Errorf("insert challenge: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "challenge.submitted", "challenge", c.ID, opts.ActorID, events.EventPayload{
		"email": c.Email,
		"name":  c.Name,
	}); err != nil {
		return domain.Challenge{}, err
	}

	c.Status = domain.StatusPendingVerification
	c.UpdatedAt = ts
	if err := e.Repo.UpdateChallenge(ctx, tx, c); err != nil {
		return domain.Challenge{}, fmt.Errorf("queue for verification: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "challenge.status_changed", "challenge", c.ID, opts.ActorID, events.EventPayload{
		"from": domain.StatusSubmitted,
		"to":   domain.StatusPendingVerification,
	}); err != nil {
		return domain.Challenge{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Challenge{}, err
	}
	e.Log.Info().Str("challenge_id", c.ID).Str("email", c.Email).Msg("challenge submitted")
	return c, nil
}

// ChallengeDetails bundle a challenge with its related records for display.
type ChallengeDetails struct {
	Challenge domain.Challenge  `json:"challenge"`
	User      *domain.User      `json:"user,omitempty"`
	Documents []domain.Document `json:"documents"`
}

// LoadDetails fetches a challenge with its portal user and documents.
func (e Engine) LoadDetails(ctx context.Context, challengeID string) (ChallengeDetails, error) {
	c, err := e.Repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return ChallengeDetails{}, err
	}
	details := ChallengeDetails{Challenge: c}
	if c.UserID != nil {
		u, err := e.Repo.GetUser(ctx, *c.UserID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return ChallengeDetails{}, err
		}
		if err == nil {
			details.User = &u
		}
	}
	docs, err := e.Repo.ListChallengeDocuments(ctx, challengeID)
	if err != nil {
		return ChallengeDetails{}, err
	}
	details.Documents = docs
	return details, nil
}

// StatusUpdateOptions carry a reviewer edit. Nil fields are left unchanged.
type StatusUpdateOptions struct {
	Status  *string
	Notes   *string
	ActorID string
}

// UpdateStatusAndNotes applies a reviewer's status and/or notes edit.
// Reviewers have override authority, so any recognized status value is
// accepted regardless of the current one. A write happens only when
// something actually changes.
func (e Engine) UpdateStatusAndNotes(ctx context.Context, challengeID string, opts StatusUpdateOptions) (domain.Challenge, error) {
	if opts.Status == nil && opts.Notes == nil {
		return domain.Challenge{}, &ValidationError{Reason: "nothing to update"}
	}
	if opts.Status != nil && !domain.KnownStatus(*opts.Status) {
		return domain.Challenge{}, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", *opts.Status)}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Challenge{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetChallengeTx(ctx, tx, challengeID)
	if err != nil {
		return domain.Challenge{}, err
	}

	before := c
	changed := false
	if opts.Status != nil && *opts.Status != c.Status {
		c.Status = *opts.Status
		changed = true
	}
	if opts.Notes != nil && *opts.Notes != c.Notes {
		c.Notes = *opts.Notes
		changed = true
	}
	if !changed {
		return c, nil
	}

	ts := e.timestamp()
	// Stage timestamps are set on first entry only, including entries made
	// by reviewer overrides.
	if c.Status == domain.StatusVerified && c.VerifiedAt == nil {
		c.VerifiedAt = &ts
	}
	if c.Status == domain.StatusCompleted && c.CompletedAt == nil {
		c.CompletedAt = &ts
	}
	c.UpdatedAt = ts

	if err := e.Repo.UpdateChallenge(ctx, tx, c); err != nil {
		return domain.Challenge{}, err
	}
	payload := events.EventPayload{}
	if before.Status != c.Status {
		payload["from"] = before.Status
		payload["to"] = c.Status
	}
	if before.Notes != c.Notes {
		payload["notes_changed"] = true
	}
	if err := e.Events.Append(ctx, tx, "challenge.updated", "challenge", c.ID, opts.ActorID, payload); err != nil {
		return domain.Challenge{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Challenge{}, err
	}
	e.Log.Info().Str("challenge_id", c.ID).Str("status", c.Status).Msg("challenge updated")
	return c, nil
}

// VerifyResult is returned once per provisioning; the temporary password is
// never stored in clear and cannot be retrieved again.
type VerifyResult struct {
	Challenge    domain.Challenge
	User         domain.User
	TempPassword string
	Provisioned  bool
}

// VerifyChallenge confirms a lead's email, provisions a portal account if
// one does not exist for that email, links it to the challenge, and moves
// the challenge to verified.
func (e Engine) VerifyChallenge(ctx context.Context, challengeID, email, actorID string) (VerifyResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return VerifyResult{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetChallengeTx(ctx, tx, challengeID)
	if err != nil {
		return VerifyResult{}, err
	}
	if email == "" || email != strings.ToLower(c.Email) {
		return VerifyResult{}, &ValidationError{Field: "email", Reason: "email does not match this challenge"}
	}
	if c.Status == domain.StatusRejected {
		return VerifyResult{}, &PreconditionFailed{Reason: "challenge has been rejected"}
	}

	res := VerifyResult{}
	u, err := e.Repo.GetUserByEmail(ctx, c.Email)
	switch {
	case err == nil:
		res.User = u
	case errors.Is(err, repo.ErrNotFound):
		username, err := e.pickUsername(ctx, tx, c.Email)
		if err != nil {
			return VerifyResult{}, err
		}
		tempPassword, err := generatePassword()
		if err != nil {
			return VerifyResult{}, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(tempPassword), bcrypt.DefaultCost)
		if err != nil {
			return VerifyResult{}, fmt.Errorf("hash password: %w", err)
		}
		u = domain.User{
			ID:           uuid.NewString(),
			Username:     username,
			Email:        c.Email,
			Role:         domain.RoleClient,
			PasswordHash: string(hash),
			CreatedAt:    e.timestamp(),
		}
		if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
			return VerifyResult{}, fmt.Errorf("provision user: %w", err)
		}
		if err := e.Events.Append(ctx, tx, "user.provisioned", "user", u.ID, actorID, events.EventPayload{
			"username": u.Username,
			"email":    u.Email,
		}); err != nil {
			return VerifyResult{}, err
		}
		res.User = u
		res.TempPassword = tempPassword
		res.Provisioned = true
	default:
		return VerifyResult{}, err
	}

	ts := e.timestamp()
	before := c.Status
	c.UserID = &res.User.ID
	c.Status = domain.StatusVerified
	if c.VerifiedAt == nil {
		c.VerifiedAt = &ts
	}
	c.UpdatedAt = ts
	if err := e.Repo.UpdateChallenge(ctx, tx, c); err != nil {
		return VerifyResult{}, err
	}
	if err := e.Repo.ReparentChallengeDocuments(ctx, tx, c.ID, res.User.ID); err != nil {
		return VerifyResult{}, fmt.Errorf("reparent documents: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "challenge.verified", "challenge", c.ID, actorID, events.EventPayload{
		"from":    before,
		"to":      c.Status,
		"user_id": res.User.ID,
	}); err != nil {
		return VerifyResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return VerifyResult{}, err
	}
	res.Challenge = c
	e.Log.Info().
		Str("challenge_id", c.ID).
		Str("user_id", res.User.ID).
		Bool("provisioned", res.Provisioned).
		Msg("challenge verified")
	return res, nil
}

// pickUsername derives a unique username from the email's local part,
// suffixing -2, -3, ... on collision.
func (e Engine) pickUsername(ctx context.Context, tx *sql.Tx, email string) (string, error) {
	base := email
	if i := strings.Index(base, "@"); i > 0 {
		base = base[:i]
	}
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return -1
	}, strings.ToLower(base))
	if base == "" {
		base = "client"
	}
	candidate := base
	for n := 2; ; n++ {
		taken, err := e.Repo.UsernameTakenTx(ctx, tx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
}

// DocumentAttachOptions describe one upload.
type DocumentAttachOptions struct {
	ChallengeID  string
	Filename     string
	MimeType     string
	Size         int64
	Content      io.Reader
	DocumentType string
	ActorID      string
}

// AttachDocument stores an upload and records its metadata against the
// challenge. Size is checked against the declared length before any bytes
// move; completion documents additionally require the challenge to have a
// portal account.
func (e Engine) AttachDocument(ctx context.Context, opts DocumentAttachOptions) (domain.Document, error) {
	if opts.DocumentType == "" {
		opts.DocumentType = domain.DocumentCompletion
	}
	if !domain.KnownDocumentType(opts.DocumentType) {
		return domain.Document{}, &ValidationError{Field: "document_type", Reason: fmt.Sprintf("unknown document type %q", opts.DocumentType)}
	}
	if opts.Filename == "" {
		return domain.Document{}, &ValidationError{Field: "filename", Reason: "filename is required"}
	}
	if opts.Size > MaxDocumentBytes {
		return domain.Document{}, &PayloadTooLarge{Size: opts.Size, Limit: MaxDocumentBytes}
	}

	c, err := e.Repo.GetChallenge(ctx, opts.ChallengeID)
	if err != nil {
		return domain.Document{}, err
	}
	if opts.DocumentType == domain.DocumentCompletion && c.UserID == nil {
		return domain.Document{}, &PreconditionFailed{Reason: "challenge has no portal account; verify it first"}
	}

	info, err := e.Blobs.Put(ctx, opts.Filename, io.LimitReader(opts.Content, MaxDocumentBytes+1))
	if err != nil {
		return domain.Document{}, &UploadFailed{Err: err}
	}
	if info.Size > MaxDocumentBytes {
		_ = e.Blobs.Delete(ctx, info.URL)
		return domain.Document{}, &PayloadTooLarge{Size: info.Size, Limit: MaxDocumentBytes}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		_ = e.Blobs.Delete(ctx, info.URL)
		return domain.Document{}, err
	}
	defer tx.Rollback()

	d := domain.Document{
		ID:               uuid.NewString(),
		Filename:         opts.Filename,
		MimeType:         opts.MimeType,
		Filesize:         info.Size,
		DocumentType:     opts.DocumentType,
		RelatedUser:      c.UserID,
		RelatedChallenge: &c.ID,
		URL:              info.URL,
		CreatedAt:        e.timestamp(),
	}
	if err := e.Repo.InsertDocument(ctx, tx, d); err != nil {
		_ = e.Blobs.Delete(ctx, info.URL)
		return domain.Document{}, fmt.Errorf("insert document: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "document.attached", "document", d.ID, opts.ActorID, events.EventPayload{
		"challenge_id":  c.ID,
		"document_type": d.DocumentType,
		"filename":      d.Filename,
		"filesize":      d.Filesize,
	}); err != nil {
		return domain.Document{}, err
	}
	if err := tx.Commit(); err != nil {
		_ = e.Blobs.Delete(ctx, info.URL)
		return domain.Document{}, err
	}
	e.Log.Info().Str("document_id", d.ID).Str("challenge_id", c.ID).Int64("filesize", d.Filesize).Msg("document attached")
	return d, nil
}

// DeleteDocument removes a document's metadata and its stored bytes. The
// row goes first; a blob orphaned by a late storage failure is only
// logged.
func (e Engine) DeleteDocument(ctx context.Context, documentID, actorID string) error {
	d, err := e.Repo.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteDocument(ctx, tx, documentID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "document.deleted", "document", d.ID, actorID, events.EventPayload{
		"filename": d.Filename,
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if err := e.Blobs.Delete(ctx, d.URL); err != nil {
		e.Log.Warn().Err(err).Str("document_id", d.ID).Msg("blob delete failed after row delete")
	}
	return nil
}

// UserCreateOptions create a portal account directly, bypassing intake.
type UserCreateOptions struct {
	Username string
	Email    string
	Password string
	Role     string
	ActorID  string
}

func (e Engine) CreateUser(ctx context.Context, opts UserCreateOptions) (domain.User, error) {
	if opts.Username == "" {
		return domain.User{}, &ValidationError{Field: "username", Reason: "username is required"}
	}
	if opts.Email == "" {
		return domain.User{}, &ValidationError{Field: "email", Reason: "email is required"}
	}
	if len(opts.Password) < 8 {
		return domain.User{}, &ValidationError{Field: "password", Reason: "password must be at least 8 characters"}
	}
	if opts.Role == "" {
		opts.Role = domain.RoleClient
	}
	if opts.Role != domain.RoleAdmin && opts.Role != domain.RoleClient {
		return domain.User{}, &ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", opts.Role)}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	u := domain.User{
		ID:           uuid.NewString(),
		Username:     strings.ToLower(opts.Username),
		Email:        strings.ToLower(opts.Email),
		Role:         opts.Role,
		PasswordHash: string(hash),
		CreatedAt:    e.timestamp(),
	}
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "user.created", "user", u.ID, opts.ActorID, events.EventPayload{
		"username": u.Username,
		"role":     u.Role,
	}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Authenticate checks a username (or email) and password against the stored
// hash. Failures are deliberately indistinct.
func (e Engine) Authenticate(ctx context.Context, login, password string) (domain.User, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	u, err := e.Repo.GetUserByUsername(ctx, login)
	if errors.Is(err, repo.ErrNotFound) {
		u, err = e.Repo.GetUserByEmail(ctx, login)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, &AuthError{Reason: "invalid credentials"}
	}
	if err != nil {
		return domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return domain.User{}, &AuthError{Reason: "invalid credentials"}
	}
	return u, nil
}

// CreateAPIKey mints a key for service callers. The clear key is returned
// once; only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name, actorID string) (domain.APIKey, string, error) {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return domain.APIKey{}, "", err
	}
	raw, err := generateKey()
	if err != nil {
		return domain.APIKey{}, "", err
	}
	k := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.timestamp(),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, k); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Events.Append(ctx, tx, "apikey.created", "user", userID, actorID, events.EventPayload{
		"name": name,
	}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return k, raw, nil
}

func generatePassword() (string, error) {
	b := make([]byte, 9)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func generateKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "bff_" + hex.EncodeToString(b), nil
}
