package intake

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultEscalationThreshold is how many validation failures a session
// tolerates before the bot offers a way out.
const DefaultEscalationThreshold = 3

// Engine drives a Conversation through the fixed question sequence. It is
// stateless: all session state lives on the Conversation, so one Engine
// serves every session.
type Engine struct {
	EscalationThreshold int
	Log                 zerolog.Logger
	Now                 func() time.Time
}

// NewEngine returns an engine with the default threshold and clock.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{
		EscalationThreshold: DefaultEscalationThreshold,
		Log:                 log,
		Now:                 time.Now,
	}
}

func (e *Engine) threshold() int {
	if e.EscalationThreshold > 0 {
		return e.EscalationThreshold
	}
	return DefaultEscalationThreshold
}

// Start plays the scripted welcome and the first question. Calling it on a
// session that is already in progress is a no-op.
func (e *Engine) Start(c *Conversation) {
	if c.Started() {
		return
	}
	now := e.Now()
	for _, m := range Welcome {
		c.append(Message{Actor: ActorBot, Text: c.Interpolate(m.Text), Delay: m.Delay}, now)
	}
	e.prompt(c, now)
}

// Submit processes one visitor input: commands first, then validation, then
// advance. It never returns an error; problems become transcript messages.
func (e *Engine) Submit(c *Conversation, raw string) {
	if !c.Started() {
		e.Start(c)
	}
	now := e.Now()

	if c.Completed {
		c.append(Message{
			Actor: ActorSystem,
			Text:  "This session is already complete. Type restart if you'd like to begin again.",
		}, now)
		return
	}

	step, ok := c.CurrentStep()
	if !ok {
		return
	}

	trimmed := strings.TrimSpace(raw)

	if trimmed == "" && step.Validator != "" {
		e.fail(c, step, "I need an answer for this one before we can move on.", now)
		return
	}

	switch strings.ToLower(trimmed) {
	case "help":
		c.append(Message{
			Actor:       ActorBot,
			Text:        c.Interpolate(step.Help),
			Suggestions: step.Suggestions,
		}, now)
		return
	case "back":
		if c.StepIndex == 0 {
			return
		}
		c.StepIndex--
		prev := Steps[c.StepIndex]
		delete(c.Answers, prev.Field)
		e.prompt(c, now)
		return
	case "skip":
		if step.Validator != "" {
			e.fail(c, step, "This question is required, so I can't skip it — type help if you're stuck.", now)
			return
		}
		e.accept(c, step, trimmed, "", now)
		return
	}

	if v, ok := ValidatorByName(step.Validator); ok && v != nil {
		if err := v(trimmed); err != nil {
			e.fail(c, step, err.Error(), now)
			return
		}
	}

	e.accept(c, step, trimmed, trimmed, now)
}

// Restart wipes the session back to its initial state and plays the welcome
// again.
func (e *Engine) Restart(c *Conversation) {
	c.StepIndex = 0
	c.Answers = map[string]string{}
	c.Log = nil
	c.ErrorCount = 0
	c.Completed = false
	e.Start(c)
}

func (e *Engine) prompt(c *Conversation, now time.Time) {
	step, ok := c.CurrentStep()
	if !ok {
		return
	}
	c.append(Message{
		Actor:       ActorBot,
		Text:        c.Interpolate(step.Prompt),
		Suggestions: step.Suggestions,
	}, now)
}

func (e *Engine) fail(c *Conversation, step Step, reason string, now time.Time) {
	c.ErrorCount++
	msg := Message{Actor: ActorSystem, Text: reason, Error: true}
	if c.ErrorCount >= e.threshold() {
		msg.Suggestions = EscalationSuggestions
	}
	c.append(msg, now)
	e.Log.Debug().
		Str("session", c.ID).
		Str("field", step.Field).
		Int("error_count", c.ErrorCount).
		Msg("intake answer rejected")
}

func (e *Engine) accept(c *Conversation, step Step, echo, value string, now time.Time) {
	c.append(Message{Actor: ActorUser, Text: echo}, now)
	c.Answers[step.Field] = value

	if c.StepIndex == len(Steps)-1 {
		for _, m := range Completion {
			c.append(Message{Actor: ActorBot, Text: c.Interpolate(m.Text), Delay: m.Delay}, now)
		}
		c.Completed = true
		c.StepIndex++
		e.Log.Info().
			Str("session", c.ID).
			Str("email", c.Answers[FieldEmail]).
			Msg("intake session completed")
		return
	}

	c.StepIndex++
	e.prompt(c, now)
}
