package server

import (
	"bfflender/internal/domain"
	"bfflender/internal/intake"
)

// --- challenges ---

type ChallengeResponse struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Email            string  `json:"email"`
	Phone            string  `json:"phone,omitempty"`
	PrimaryGoal      string  `json:"primary_goal,omitempty"`
	ExperienceLevel  string  `json:"experience_level,omitempty"`
	MonthlyVolume    string  `json:"monthly_volume,omitempty"`
	BiggestChallenge string  `json:"biggest_challenge,omitempty"`
	Status           string  `json:"status" enum:"submitted,pending_verification,verified,in_progress,completed,rejected"`
	Notes            string  `json:"notes,omitempty"`
	UserID           *string `json:"user_id,omitempty"`
	SubmittedAt      string  `json:"submitted_at"`
	VerifiedAt       *string `json:"verified_at,omitempty"`
	CompletedAt      *string `json:"completed_at,omitempty"`
	UpdatedAt        string  `json:"updated_at"`
	TimelinePosition int     `json:"timeline_position"`
	OnTrack          bool    `json:"on_track"`
	ProgressPercent  int     `json:"progress_percent"`
}

func challengeResponse(c domain.Challenge) ChallengeResponse {
	pos, onTrack := domain.TimelinePosition(c.Status)
	return ChallengeResponse{
		ID:               c.ID,
		Name:             c.Name,
		Email:            c.Email,
		Phone:            c.Phone,
		PrimaryGoal:      c.PrimaryGoal,
		ExperienceLevel:  c.ExperienceLevel,
		MonthlyVolume:    c.MonthlyVolume,
		BiggestChallenge: c.BiggestChallenge,
		Status:           c.Status,
		Notes:            c.Notes,
		UserID:           c.UserID,
		SubmittedAt:      c.SubmittedAt,
		VerifiedAt:       c.VerifiedAt,
		CompletedAt:      c.CompletedAt,
		UpdatedAt:        c.UpdatedAt,
		TimelinePosition: pos,
		OnTrack:          onTrack,
		ProgressPercent:  domain.ProgressPercent(c.Status),
	}
}

func mapChallenges(items []domain.Challenge) []ChallengeResponse {
	res := make([]ChallengeResponse, 0, len(items))
	for _, c := range items {
		res = append(res, challengeResponse(c))
	}
	return res
}

type ChallengeDetailsResponse struct {
	Challenge ChallengeResponse  `json:"challenge"`
	User      *UserResponse      `json:"user,omitempty"`
	Documents []DocumentResponse `json:"documents"`
	Timeline  []string           `json:"timeline"`
}

type UpdateChallengeRequest struct {
	Status *string `json:"status,omitempty"`
	Notes  *string `json:"notes,omitempty"`
}

type VerifyChallengeRequest struct {
	Email string `json:"email"`
}

type VerifyChallengeResponse struct {
	Challenge    ChallengeResponse `json:"challenge"`
	User         UserResponse      `json:"user"`
	TempPassword string            `json:"temp_password,omitempty"`
	Provisioned  bool              `json:"provisioned"`
}

// --- documents ---

type DocumentResponse struct {
	ID               string  `json:"id"`
	Filename         string  `json:"filename"`
	MimeType         string  `json:"mime_type"`
	Filesize         int64   `json:"filesize"`
	DocumentType     string  `json:"document_type" enum:"initial-submission,completion-document,supporting-document"`
	RelatedUser      *string `json:"related_user,omitempty"`
	RelatedChallenge *string `json:"related_challenge,omitempty"`
	URL              string  `json:"url"`
	CreatedAt        string  `json:"created_at"`
}

func documentResponse(d domain.Document) DocumentResponse {
	return DocumentResponse(d)
}

func mapDocuments(items []domain.Document) []DocumentResponse {
	res := make([]DocumentResponse, 0, len(items))
	for _, d := range items {
		res = append(res, documentResponse(d))
	}
	return res
}

// --- users ---

type UserResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role" enum:"admin,client"`
	CreatedAt string `json:"created_at"`
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

func mapUsers(items []domain.User) []UserResponse {
	res := make([]UserResponse, 0, len(items))
	for _, u := range items {
		res = append(res, userResponse(u))
	}
	return res
}

type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty" enum:"admin,client"`
}

type LoginRequest struct {
	Login    string `json:"login" doc:"Username or email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key" doc:"Shown once; only a hash is stored"`
	CreatedAt string `json:"created_at"`
}

// --- intake ---

type IntakeMessageResponse struct {
	Actor       string   `json:"actor" enum:"bot,user,system"`
	Text        string   `json:"text"`
	Timestamp   string   `json:"timestamp"`
	DelayMillis int64    `json:"delay_ms,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Error       bool     `json:"error,omitempty"`
}

type IntakeSessionResponse struct {
	ID          string                  `json:"id"`
	StepIndex   int                     `json:"step_index"`
	Completed   bool                    `json:"completed"`
	ErrorCount  int                     `json:"error_count"`
	ChallengeID string                  `json:"challenge_id,omitempty"`
	Messages    []IntakeMessageResponse `json:"messages"`
}

func intakeSessionResponse(s intake.Session) IntakeSessionResponse {
	c := s.Conversation
	msgs := make([]IntakeMessageResponse, 0, len(c.Log))
	for _, m := range c.Log {
		msgs = append(msgs, IntakeMessageResponse{
			Actor:       string(m.Actor),
			Text:        m.Text,
			Timestamp:   m.Timestamp,
			DelayMillis: m.Delay.Milliseconds(),
			Suggestions: m.Suggestions,
			Error:       m.Error,
		})
	}
	return IntakeSessionResponse{
		ID:          c.ID,
		StepIndex:   c.StepIndex,
		Completed:   c.Completed,
		ErrorCount:  c.ErrorCount,
		ChallengeID: s.ChallengeID,
		Messages:    msgs,
	}
}

type IntakeMessageRequest struct {
	Text string `json:"text"`
}

// --- events ---

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

func mapEvents(items []domain.Event) []EventResponse {
	res := make([]EventResponse, 0, len(items))
	for _, e := range items {
		res = append(res, EventResponse(e))
	}
	return res
}
