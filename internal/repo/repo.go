package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"bfflender/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// --- challenges ---

const challengeColumns = `id,name,email,phone,primary_goal,experience_level,monthly_volume,biggest_challenge,status,notes,user_id,submitted_at,verified_at,completed_at,updated_at`

func (r Repo) InsertChallenge(ctx context.Context, tx *sql.Tx, c domain.Challenge) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO challenges(`+challengeColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Name, c.Email, nullable(c.Phone), nullable(c.PrimaryGoal), nullable(c.ExperienceLevel),
		nullable(c.MonthlyVolume), nullable(c.BiggestChallenge), c.Status, nullable(c.Notes),
		nullableStringPtr(c.UserID), c.SubmittedAt, nullableStringPtr(c.VerifiedAt), nullableStringPtr(c.CompletedAt), c.UpdatedAt)
	return err
}

func (r Repo) UpdateChallenge(ctx context.Context, tx *sql.Tx, c domain.Challenge) error {
	res, err := tx.ExecContext(ctx, `UPDATE challenges SET name=?, email=?, phone=?, primary_goal=?, experience_level=?, monthly_volume=?, biggest_challenge=?, status=?, notes=?, user_id=?, verified_at=?, completed_at=?, updated_at=? WHERE id=?`,
		c.Name, c.Email, nullable(c.Phone), nullable(c.PrimaryGoal), nullable(c.ExperienceLevel),
		nullable(c.MonthlyVolume), nullable(c.BiggestChallenge), c.Status, nullable(c.Notes),
		nullableStringPtr(c.UserID), nullableStringPtr(c.VerifiedAt), nullableStringPtr(c.CompletedAt), c.UpdatedAt, c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanChallenge(scan func(dest ...any) error) (domain.Challenge, error) {
	var c domain.Challenge
	var phone, goal, experience, volume, biggest, notes, userID, verifiedAt, completedAt sql.NullString
	err := scan(&c.ID, &c.Name, &c.Email, &phone, &goal, &experience, &volume, &biggest,
		&c.Status, &notes, &userID, &c.SubmittedAt, &verifiedAt, &completedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if phone.Valid {
		c.Phone = phone.String
	}
	if goal.Valid {
		c.PrimaryGoal = goal.String
	}
	if experience.Valid {
		c.ExperienceLevel = experience.String
	}
	if volume.Valid {
		c.MonthlyVolume = volume.String
	}
	if biggest.Valid {
		c.BiggestChallenge = biggest.String
	}
	if notes.Valid {
		c.Notes = notes.String
	}
	if userID.Valid {
		c.UserID = &userID.String
	}
	if verifiedAt.Valid {
		c.VerifiedAt = &verifiedAt.String
	}
	if completedAt.Valid {
		c.CompletedAt = &completedAt.String
	}
	return c, nil
}

func (r Repo) GetChallenge(ctx context.Context, id string) (domain.Challenge, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id=?`, id)
	return scanChallenge(row.Scan)
}

func (r Repo) GetChallengeTx(ctx context.Context, tx *sql.Tx, id string) (domain.Challenge, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id=?`, id)
	return scanChallenge(row.Scan)
}

type ChallengeFilters struct {
	Status             string
	Email              string
	UserID             string
	Limit              int
	CursorSubmittedAt  string
	CursorID           string
}

func (r Repo) ListChallenges(ctx context.Context, f ChallengeFilters) ([]domain.Challenge, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Email != "" {
		clauses = append(clauses, "email=?")
		args = append(args, f.Email)
	}
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.CursorSubmittedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(submitted_at < ? OR (submitted_at = ? AND id < ?))")
		args = append(args, f.CursorSubmittedAt, f.CursorSubmittedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + challengeColumns + ` FROM challenges ` + where + ` ORDER BY submitted_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// --- documents ---

const documentColumns = `id,filename,mime_type,filesize,document_type,related_user,related_challenge,url,created_at`

func (r Repo) InsertDocument(ctx context.Context, tx *sql.Tx, d domain.Document) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO documents(`+documentColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		d.ID, d.Filename, d.MimeType, d.Filesize, d.DocumentType,
		nullableStringPtr(d.RelatedUser), nullableStringPtr(d.RelatedChallenge), d.URL, d.CreatedAt)
	return err
}

func scanDocument(scan func(dest ...any) error) (domain.Document, error) {
	var d domain.Document
	var relatedUser, relatedChallenge sql.NullString
	err := scan(&d.ID, &d.Filename, &d.MimeType, &d.Filesize, &d.DocumentType,
		&relatedUser, &relatedChallenge, &d.URL, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	if relatedUser.Valid {
		d.RelatedUser = &relatedUser.String
	}
	if relatedChallenge.Valid {
		d.RelatedChallenge = &relatedChallenge.String
	}
	return d, nil
}

func (r Repo) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=?`, id)
	return scanDocument(row.Scan)
}

// ListChallengeDocuments returns the documents attached to a challenge in
// attachment order.
func (r Repo) ListChallengeDocuments(ctx context.Context, challengeID string) ([]domain.Document, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE related_challenge=? ORDER BY created_at ASC, id ASC`, challengeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Document
	for rows.Next() {
		d, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) ListUserDocuments(ctx context.Context, userID string) ([]domain.Document, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE related_user=? ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Document
	for rows.Next() {
		d, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) DeleteDocument(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReparentChallengeDocuments points a challenge's documents at the given
// user. Used by verification once the portal account exists.
func (r Repo) ReparentChallengeDocuments(ctx context.Context, tx *sql.Tx, challengeID, userID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE documents SET related_user=? WHERE related_challenge=?`, userID, challengeID)
	return err
}

// --- users ---

const userColumns = `id,username,email,role,password_hash,created_at`

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO users(`+userColumns+`) VALUES (?,?,?,?,?,?)`,
		u.ID, u.Username, u.Email, u.Role, u.PasswordHash, u.CreatedAt)
	return err
}

func scanUser(scan func(dest ...any) error) (domain.User, error) {
	var u domain.User
	err := scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row.Scan)
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, email)
	return scanUser(row.Scan)
}

func (r Repo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=?`, username)
	return scanUser(row.Scan)
}

func (r Repo) UsernameTakenTx(ctx context.Context, tx *sql.Tx, username string) (bool, error) {
	row := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE username=? LIMIT 1`, username)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if entID.Valid {
			e.EntityID = entID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`
	rows, err := r.DB.QueryContext(ctx, query, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if entID.Valid {
			e.EntityID = entID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
