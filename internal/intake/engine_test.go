package intake_test

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bfflender/internal/intake"
)

func newEngine() *intake.Engine {
	e := intake.NewEngine(zerolog.Nop())
	e.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return e
}

func newConversation(e *intake.Engine) *intake.Conversation {
	c := intake.NewConversation("sess-1", e.Now())
	e.Start(c)
	return c
}

// answers that satisfy every step, in step order.
var happyPath = []string{
	"Jane",
	"Doe",
	"jane@example.com",
	"555-0100",
	"Increase monthly income",
	"5-10 years",
	"6",
	"180",
	"4500",
	"Not enough margin on every closed loan to grow the team.",
}

func TestStartIdempotent(t *testing.T) {
	e := newEngine()
	c := newConversation(e)
	before := len(c.Log)
	e.Start(c)
	if len(c.Log) != before {
		t.Fatalf("second start appended messages: %d -> %d", before, len(c.Log))
	}
	if c.StepIndex != 0 {
		t.Fatalf("step index = %d, want 0", c.StepIndex)
	}
}

func TestWelcomeThenFirstPrompt(t *testing.T) {
	e := newEngine()
	c := newConversation(e)
	if len(c.Log) != len(intake.Welcome)+1 {
		t.Fatalf("expected %d welcome messages plus first prompt, got %d", len(intake.Welcome), len(c.Log))
	}
	for i, m := range c.Log {
		if m.Actor != intake.ActorBot {
			t.Fatalf("message %d actor = %s, want bot", i, m.Actor)
		}
	}
}

func TestHappyPathCompletes(t *testing.T) {
	e := newEngine()
	c := newConversation(e)
	for _, answer := range happyPath {
		e.Submit(c, answer)
	}
	if !c.Completed {
		t.Fatalf("conversation not completed after all answers")
	}
	if c.StepIndex != len(intake.Steps) {
		t.Fatalf("step index = %d, want %d", c.StepIndex, len(intake.Steps))
	}
	if got := c.Answers[intake.FieldFirstName]; got != "Jane" {
		t.Fatalf("firstName = %q, want Jane", got)
	}
	if c.ErrorCount != 0 {
		t.Fatalf("error count = %d, want 0", c.ErrorCount)
	}
	// Completion script is interpolated with collected answers.
	last := c.Log[len(c.Log)-1]
	if last.Actor != intake.ActorBot {
		t.Fatalf("last message actor = %s, want bot", last.Actor)
	}
}

func TestSubmitAfterCompletionRejected(t *testing.T) {
	e := newEngine()
	c := newConversation(e)
	for _, answer := range happyPath {
		e.Submit(c, answer)
	}
	answers := copyAnswers(c.Answers)
	e.Submit(c, "one more thing")
	if !reflect.DeepEqual(c.Answers, answers) {
		t.Fatalf("answers changed after completion")
	}
	last := c.Log[len(c.Log)-1]
	if last.Actor != intake.ActorSystem {
		t.Fatalf("expected a system message, got %s", last.Actor)
	}
}

func TestValidationFailureDoesNotAdvance(t *testing.T) {
	e := newEngine()
	c := newConversation(e)
	before := copyAnswers(c.Answers)
	e.Submit(c, "a")
	if c.StepIndex != 0 {
		t.Fatalf("step advanced on invalid answer: %d", c.StepIndex)
	}
	if c.ErrorCount != 1 {
		t.Fatalf("error count = %d, want 1", c.ErrorCount)
	}
	if !reflect.DeepEqual(c.Answers, before) {
		t.Fatalf("answers changed on invalid answer")
	}
	last := c.Log[len(c.Log)-1]
	if !last.Error || last.Actor != intake.ActorSystem {
		t.Fatalf("expected a system error message, got %+v", last)
	}
}

func TestEmptyRequiredRejected(t *testing.T) {
	e := newEngine()
	c := newConversation(e)
	e.Submit(c, "")
	if c.StepIndex != 0 || c.ErrorCount != 1 {
		t.Fatalf("empty input on required step: stepIndex=%d errorCount=%d", c.StepIndex, c.ErrorCount)
	}
}

func TestHelpShowsStepHelp(t *testing.T) {
	e := newEngine()
	c := newConversation(e)
	before := len(c.Log)
	e.Submit(c, "HELP")
	if c.StepIndex != 0 || c.ErrorCount != 0 {
		t.Fatalf("help changed state: stepIndex=%d errorCount=%d", c.StepIndex, c.ErrorCount)
	}
	if len(c.Log) != before+1 {
		t.Fatalf("expected exactly one help message")
	}
	if c.Log[len(c.Log)-1].Text != intake.Steps[0].Help {
		t.Fatalf("help text mismatch: %q", c.Log[len(c.Log)-1].Text)
	}
}

func TestBackNoOpAtFirstStep(t *testing.T) {
	e := newEngine()
	c := newConversation(e)
	logLen := len(c.Log)
	e.Submit(c, "back")
	if c.StepIndex != 0 || len(c.Log) != logLen {
		t.Fatalf("back at step 0 changed state")
	}
}

func TestBackThenResubmitRoundTrip(t *testing.T) {
	e := newEngine()
	c := newConversation(e)
	e.Submit(c, "Jane")
	e.Submit(c, "Doe")
	stepBefore := c.StepIndex
	answersBefore := copyAnswers(c.Answers)

	e.Submit(c, "Back")
	if c.StepIndex != stepBefore-1 {
		t.Fatalf("back did not decrement: %d", c.StepIndex)
	}
	if _, ok := c.Answers[intake.FieldLastName]; ok {
		t.Fatalf("back did not clear the returned-to answer")
	}
	e.Submit(c, "Doe")
	if c.StepIndex != stepBefore {
		t.Fatalf("step index after resubmit = %d, want %d", c.StepIndex, stepBefore)
	}
	if !reflect.DeepEqual(c.Answers, answersBefore) {
		t.Fatalf("answers after round trip = %v, want %v", c.Answers, answersBefore)
	}
}

func TestSkipOnlyOnOptionalStep(t *testing.T) {
	e := newEngine()
	c := newConversation(e)
	e.Submit(c, "skip")
	if c.StepIndex != 0 {
		t.Fatalf("skip on a required step advanced")
	}
	if c.ErrorCount != 1 {
		t.Fatalf("skip on a required step: errorCount=%d", c.ErrorCount)
	}

	e.Submit(c, "Jane")
	e.Submit(c, "Doe")
	e.Submit(c, "jane@example.com")
	// phone is optional
	e.Submit(c, "Skip")
	if c.StepIndex != 4 {
		t.Fatalf("skip on optional step did not advance: %d", c.StepIndex)
	}
	if got := c.Answers[intake.FieldPhone]; got != "" {
		t.Fatalf("skipped answer = %q, want empty", got)
	}
}

func TestEscalationAfterRepeatedFailures(t *testing.T) {
	e := newEngine()
	c := newConversation(e)
	for i := 0; i < intake.DefaultEscalationThreshold; i++ {
		e.Submit(c, "x")
	}
	last := c.Log[len(c.Log)-1]
	if !reflect.DeepEqual(last.Suggestions, intake.EscalationSuggestions) {
		t.Fatalf("expected escalation suggestions on failure %d, got %v", c.ErrorCount, last.Suggestions)
	}
	// Earlier failures carry no escalation offer.
	for _, m := range c.Log[:len(c.Log)-1] {
		if m.Error && len(m.Suggestions) > 0 {
			t.Fatalf("escalation offered before threshold: %+v", m)
		}
	}
}

func TestRestartMatchesFreshSession(t *testing.T) {
	e := newEngine()
	c := newConversation(e)
	e.Submit(c, "Jane")
	e.Submit(c, "not an email")
	e.Restart(c)

	fresh := newConversation(e)
	if c.StepIndex != fresh.StepIndex || c.ErrorCount != fresh.ErrorCount || c.Completed != fresh.Completed {
		t.Fatalf("restart state mismatch: %+v", c)
	}
	if len(c.Answers) != 0 {
		t.Fatalf("answers not cleared: %v", c.Answers)
	}
	if len(c.Log) != len(fresh.Log) {
		t.Fatalf("log length %d, want %d", len(c.Log), len(fresh.Log))
	}
	for i := range c.Log {
		if c.Log[i].Text != fresh.Log[i].Text || c.Log[i].Actor != fresh.Log[i].Actor {
			t.Fatalf("log entry %d differs: %+v vs %+v", i, c.Log[i], fresh.Log[i])
		}
	}
}

func TestPromptInterpolation(t *testing.T) {
	e := newEngine()
	c := newConversation(e)
	e.Submit(c, "Jane")
	prompt := c.Log[len(c.Log)-1]
	if prompt.Text != "Great to meet you, Jane! And your last name?" {
		t.Fatalf("interpolated prompt = %q", prompt.Text)
	}
}

func TestManagerHandsOffOnce(t *testing.T) {
	e := newEngine()
	calls := 0
	mgr := intake.NewManager(e, func(ctx context.Context, c *intake.Conversation) (string, error) {
		calls++
		return fmt.Sprintf("challenge-%d", calls), nil
	}, zerolog.Nop())

	ctx := context.Background()
	s, err := mgr.StartSession(ctx)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	id := s.Conversation.ID
	for _, answer := range happyPath {
		if s, err = mgr.Submit(ctx, id, answer); err != nil {
			t.Fatalf("submit %q: %v", answer, err)
		}
	}
	if calls != 1 {
		t.Fatalf("handoff calls = %d, want 1", calls)
	}
	if s.ChallengeID != "challenge-1" {
		t.Fatalf("challenge id = %q", s.ChallengeID)
	}

	// Further submits never re-trigger the handoff.
	if s, err = mgr.Submit(ctx, id, "again"); err != nil {
		t.Fatalf("post-completion submit: %v", err)
	}
	if calls != 1 {
		t.Fatalf("handoff re-fired: %d", calls)
	}

	// Restart begins a new lead in the same session.
	if _, err := mgr.Restart(ctx, id); err != nil {
		t.Fatalf("restart: %v", err)
	}
	for _, answer := range happyPath {
		if s, err = mgr.Submit(ctx, id, answer); err != nil {
			t.Fatalf("submit after restart: %v", err)
		}
	}
	if calls != 2 || s.ChallengeID != "challenge-2" {
		t.Fatalf("second handoff: calls=%d id=%q", calls, s.ChallengeID)
	}
}

func TestManagerUnknownSession(t *testing.T) {
	e := newEngine()
	mgr := intake.NewManager(e, nil, zerolog.Nop())
	if _, err := mgr.Submit(context.Background(), "nope", "hi"); err == nil {
		t.Fatalf("expected error for unknown session")
	}
}

func copyAnswers(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
