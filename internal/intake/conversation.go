package intake

import (
	"strings"
	"time"
)

// Actor identifies who produced a message in the transcript.
type Actor string

const (
	ActorBot    Actor = "bot"
	ActorUser   Actor = "user"
	ActorSystem Actor = "system"
)

// Message is one entry in a conversation transcript. Error marks system
// messages that explain a rejected answer; Suggestions carry quick-reply
// chips for the presentation layer.
type Message struct {
	Actor       Actor         `json:"actor" enum:"bot,user,system"`
	Text        string        `json:"text"`
	Timestamp   string        `json:"timestamp"`
	Delay       time.Duration `json:"delay,omitempty"`
	Suggestions []string      `json:"suggestions,omitempty"`
	Error       bool          `json:"error,omitempty"`
}

// Conversation is the full state of one intake session. It is a plain value:
// the engine mutates it, the manager owns locking and persistence.
type Conversation struct {
	ID         string            `json:"id"`
	StepIndex  int               `json:"stepIndex"`
	Answers    map[string]string `json:"answers"`
	Log        []Message         `json:"log"`
	ErrorCount int               `json:"errorCount"`
	Completed  bool              `json:"completed"`
	StartedAt  string            `json:"startedAt"`
}

// NewConversation returns an empty session positioned before the first
// question.
func NewConversation(id string, now time.Time) *Conversation {
	return &Conversation{
		ID:        id,
		Answers:   map[string]string{},
		StartedAt: now.UTC().Format(time.RFC3339),
	}
}

// Started reports whether the scripted welcome has already been played.
func (c *Conversation) Started() bool {
	return len(c.Log) > 0
}

// CurrentStep returns the question the session is waiting on, or false when
// the sequence is exhausted.
func (c *Conversation) CurrentStep() (Step, bool) {
	if c.StepIndex < 0 || c.StepIndex >= len(Steps) {
		return Step{}, false
	}
	return Steps[c.StepIndex], true
}

// Interpolate replaces {field} placeholders with collected answers. Unknown
// placeholders are left intact so a bad template is visible, not silent.
func (c *Conversation) Interpolate(text string) string {
	if !strings.Contains(text, "{") {
		return text
	}
	out := text
	for field, value := range c.Answers {
		out = strings.ReplaceAll(out, "{"+field+"}", value)
	}
	return out
}

func (c *Conversation) append(m Message, now time.Time) {
	m.Timestamp = now.UTC().Format(time.RFC3339)
	c.Log = append(c.Log, m)
}
