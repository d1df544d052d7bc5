package intake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HandoffFunc receives a completed conversation and turns it into a
// persisted lead record, returning the new record's id. It is called at most
// once per session.
type HandoffFunc func(ctx context.Context, c *Conversation) (string, error)

// Session pairs a conversation with the id of the record it produced, once
// handoff has happened.
type Session struct {
	Conversation *Conversation
	ChallengeID  string
}

type managedSession struct {
	mu          sync.Mutex
	conv        *Conversation
	challengeID string
	handedOff   bool
}

// Manager owns the live intake sessions. Sessions are in-memory only: a
// restart of the process forgets them, which matches the throwaway nature of
// an unfinished chat.
type Manager struct {
	engine  *Engine
	handoff HandoffFunc
	log     zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*managedSession
}

// NewManager wires an engine to a handoff target.
func NewManager(engine *Engine, handoff HandoffFunc, log zerolog.Logger) *Manager {
	return &Manager{
		engine:   engine,
		handoff:  handoff,
		log:      log,
		sessions: map[string]*managedSession{},
	}
}

// StartSession creates a fresh session, plays the welcome script, and
// returns its state.
func (m *Manager) StartSession(ctx context.Context) (Session, error) {
	id := uuid.NewString()
	conv := NewConversation(id, m.engine.Now())
	m.engine.Start(conv)

	s := &managedSession{conv: conv}
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.log.Info().Str("session", id).Msg("intake session started")
	return snapshot(s), nil
}

// GetSession returns the current state of a session.
func (m *Manager) GetSession(ctx context.Context, id string) (Session, error) {
	s, err := m.lookup(id)
	if err != nil {
		return Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s), nil
}

// Submit feeds one visitor input into a session. When the input completes
// the sequence, the conversation is handed off exactly once and the
// resulting record id is recorded on the session.
func (m *Manager) Submit(ctx context.Context, id, input string) (Session, error) {
	s, err := m.lookup(id)
	if err != nil {
		return Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m.engine.Submit(s.conv, input)

	if s.conv.Completed && !s.handedOff {
		s.handedOff = true
		challengeID, err := m.handoff(ctx, s.conv)
		if err != nil {
			// The visitor already saw the completion script; surface the
			// problem in the transcript rather than failing the request.
			s.conv.append(Message{
				Actor: ActorSystem,
				Text:  "We had trouble saving your submission. Please contact support and mention session " + s.conv.ID + ".",
				Error: true,
			}, m.engine.Now())
			m.log.Error().Err(err).Str("session", id).Msg("intake handoff failed")
		} else {
			s.challengeID = challengeID
			m.log.Info().Str("session", id).Str("challenge_id", challengeID).Msg("intake handoff complete")
		}
	}

	return snapshot(s), nil
}

// Restart resets a session to a fresh state. A session that already handed
// off keeps its challenge id; restarting begins a new lead in the same
// session.
func (m *Manager) Restart(ctx context.Context, id string) (Session, error) {
	s, err := m.lookup(id)
	if err != nil {
		return Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m.engine.Restart(s.conv)
	s.handedOff = false
	s.challengeID = ""
	m.log.Info().Str("session", id).Msg("intake session restarted")
	return snapshot(s), nil
}

// Prune drops sessions that have been idle since before the cutoff. Returns
// how many were removed.
func (m *Manager) Prune(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		s.mu.Lock()
		last := s.conv.StartedAt
		if n := len(s.conv.Log); n > 0 {
			last = s.conv.Log[n-1].Timestamp
		}
		s.mu.Unlock()
		t, err := time.Parse(time.RFC3339, last)
		if err == nil && t.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

func (m *Manager) lookup(id string) (*managedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("intake session %s: %w", id, ErrSessionNotFound)
	}
	return s, nil
}

// ErrSessionNotFound marks lookups of expired or never-created sessions.
var ErrSessionNotFound = errors.New("session not found")

func snapshot(s *managedSession) Session {
	conv := *s.conv
	conv.Answers = make(map[string]string, len(s.conv.Answers))
	for k, v := range s.conv.Answers {
		conv.Answers[k] = v
	}
	conv.Log = append([]Message(nil), s.conv.Log...)
	return Session{Conversation: &conv, ChallengeID: s.challengeID}
}
