package app

import (
	"context"

	"github.com/rs/zerolog"

	"bfflender/internal/config"
	"bfflender/internal/engine"
	"bfflender/internal/intake"
)

// NewIntakeManager wires the guided intake engine to the review workflow:
// completed conversations become submitted challenges.
func NewIntakeManager(e engine.Engine, cfg *config.Config, log zerolog.Logger) *intake.Manager {
	ie := intake.NewEngine(log)
	if cfg != nil && cfg.Intake.EscalationThreshold > 0 {
		ie.EscalationThreshold = cfg.Intake.EscalationThreshold
	}
	if e.Now != nil {
		ie.Now = e.Now
	}
	return intake.NewManager(ie, Handoff(e), log)
}

// Handoff converts a finished conversation into a challenge submission.
func Handoff(e engine.Engine) intake.HandoffFunc {
	return func(ctx context.Context, c *intake.Conversation) (string, error) {
		challenge, err := e.SubmitChallenge(ctx, engine.ChallengeSubmitOptions{
			FirstName:        c.Answers[intake.FieldFirstName],
			LastName:         c.Answers[intake.FieldLastName],
			Email:            c.Answers[intake.FieldEmail],
			Phone:            c.Answers[intake.FieldPhone],
			PrimaryGoal:      c.Answers[intake.FieldPrimaryGoal],
			ExperienceLevel:  c.Answers[intake.FieldExperienceLevel],
			MonthlyVolume:    c.Answers[intake.FieldMonthlyVolume],
			BiggestChallenge: c.Answers[intake.FieldBiggestChallenge],
			ActorID:          "intake:" + c.ID,
		})
		if err != nil {
			return "", err
		}
		return challenge.ID, nil
	}
}
