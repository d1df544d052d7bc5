package domain

// Challenge is a submitted P&L Challenge lead as it moves through review.
type Challenge struct {
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
	SubmittedAt      string  `json:"submitted_at" format:"date-time"`
	VerifiedAt       *string `json:"verified_at,omitempty" format:"date-time"`
	CompletedAt      *string `json:"completed_at,omitempty" format:"date-time"`
	UpdatedAt        string  `json:"updated_at" format:"date-time"`
}

type Document struct {
	ID               string  `json:"id"`
	Filename         string  `json:"filename"`
	MimeType         string  `json:"mime_type"`
	Filesize         int64   `json:"filesize"`
	DocumentType     string  `json:"document_type" enum:"initial-submission,completion-document,supporting-document"`
	RelatedUser      *string `json:"related_user,omitempty"`
	RelatedChallenge *string `json:"related_challenge,omitempty"`
	URL              string  `json:"url"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
}

type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	Role         string `json:"role" enum:"admin,client"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
