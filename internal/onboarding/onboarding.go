// Package onboarding drives the conversational questionnaire as an explicit
// finite-state machine, then dispatches free-form intents once a profile is
// confirmed.
package onboarding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/FitPulse/internal/dispatch"
	"github.com/BTreeMap/FitPulse/internal/extract"
	"github.com/BTreeMap/FitPulse/internal/genai"
	"github.com/BTreeMap/FitPulse/internal/messaging"
	"github.com/BTreeMap/FitPulse/internal/models"
	"github.com/BTreeMap/FitPulse/internal/session"
	"github.com/BTreeMap/FitPulse/internal/store"
)

// SkipDirective is the literal utterance that advances a stage with defaults.
const SkipDirective = "skip"

// MaxConfirmationAttempts caps ambiguous replies during confirmation before
// the profile is auto-confirmed to guarantee forward progress.
const MaxConfirmationAttempts = 3

// Coordinator owns the conversation state machine. All turn handling for one
// identity runs under that identity's session lock.
type Coordinator struct {
	sessions  *session.Store
	store     store.Store
	extractor *extract.Extractor
	completer genai.Completer
	msg       messaging.Service
	jobs      *dispatch.Jobs
	now       func() time.Time
}

// Opts holds Coordinator configuration.
type Opts struct {
	Now func() time.Time
}

// Option configures the Coordinator.
type Option func(*Opts)

// WithClock overrides the wall clock (tests only).
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// NewCoordinator creates the conversation coordinator.
func NewCoordinator(sessions *session.Store, st store.Store, extractor *extract.Extractor, completer genai.Completer, msg messaging.Service, jobs *dispatch.Jobs, opts ...Option) *Coordinator {
	cfg := Opts{Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Coordinator{
		sessions:  sessions,
		store:     st,
		extractor: extractor,
		completer: completer,
		msg:       msg,
		jobs:      jobs,
		now:       cfg.Now,
	}
}

// HandleMessage processes one inbound utterance and returns the reply text.
// Unauthorized senders get a fixed rejection and no session.
func (c *Coordinator) HandleMessage(ctx context.Context, from, utterance string) (string, error) {
	user, err := c.store.GetUser(from)
	if err != nil {
		return "", fmt.Errorf("failed to check authorization for %s: %w", from, err)
	}
	if user == nil || !user.Authorized {
		slog.Warn("Coordinator rejecting unauthorized sender", "from", from)
		return "Sorry, this number isn't registered with FitPulse yet. Please contact support to get access.", nil
	}

	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return "I didn't catch that — could you say it again?", nil
	}

	var reply string
	err = c.sessions.WithSession(from, func(s *session.Session) error {
		c.rehydrate(s)
		reply = c.handleTurn(ctx, s, utterance)
		s.AppendTurn("user", utterance)
		s.AppendTurn("assistant", reply)
		return nil
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}

// rehydrate restores a fresh session from the durable profile so a confirmed
// user is never forced back through the questionnaire after a restart. The
// durable store is authoritative; the session is only a working copy.
func (c *Coordinator) rehydrate(s *session.Session) {
	if s.Stage != models.StageBasic || s.Profile.Name != "" || len(s.History) > 0 {
		return
	}
	stored, err := c.store.GetProfile(s.Identity)
	if err != nil {
		slog.Error("Coordinator rehydration lookup failed", "identity", s.Identity, "error", err)
		return
	}
	if stored == nil || !stored.Completed {
		return
	}
	s.Profile = *stored
	s.Stage = models.StageDone
	slog.Info("Coordinator rehydrated session from durable profile", "identity", s.Identity, "confirmed", stored.Confirmed)
}

// handleTurn routes one utterance by session stage.
func (c *Coordinator) handleTurn(ctx context.Context, s *session.Session, utterance string) string {
	if s.Stage == models.StageDone {
		if !s.Profile.Confirmed {
			return c.handleConfirmation(ctx, s, utterance)
		}
		return c.handleIntent(ctx, s, utterance)
	}
	return c.handleStage(ctx, s, utterance)
}

// handleStage runs one questionnaire turn: skip or extract-and-merge, then
// consult the transition table.
func (c *Coordinator) handleStage(ctx context.Context, s *session.Session, utterance string) string {
	if strings.EqualFold(utterance, SkipDirective) {
		applySkipDefaults(&s.Profile, s.Stage)
	} else {
		rec := c.extractor.Extract(ctx, s.Stage, utterance)
		s.Profile.Merge(rec)
	}
	deriveBMI(&s.Profile)

	if missing := s.Profile.MissingFields(s.Stage); len(missing) > 0 {
		// Partial progress persists; only the still-missing fields are named.
		return missingFieldsPrompt(s.Stage, missing)
	}

	next := advance(&s.Profile, s.Stage)
	if next == s.Stage {
		// Should not happen: the predicate passed but the table kept us here.
		return missingFieldsPrompt(s.Stage, s.Profile.MissingFields(s.Stage))
	}

	if next == models.StagePersonalize && s.Stage.After(models.StagePersonalize) {
		s.Stage = next
		return backwardPrompt(&s.Profile)
	}

	s.Stage = next
	if next == models.StageDone {
		return c.completeQuestionnaire(s)
	}
	return stageIntro(next)
}

// completeQuestionnaire persists the finished profile and opens the
// confirmation sub-protocol.
func (c *Coordinator) completeQuestionnaire(s *session.Session) string {
	s.Profile.Completed = true
	s.Profile.Confirmed = false
	s.ConfirmationAttempts = 0
	s.Profile.UpdatedAt = c.now()
	if s.Profile.CreatedAt.IsZero() {
		s.Profile.CreatedAt = s.Profile.UpdatedAt
	}
	if err := c.store.SaveProfile(s.Profile); err != nil {
		slog.Error("Coordinator failed to persist completed profile", "identity", s.Identity, "error", err)
	}
	return profileSummary(&s.Profile) + "\n\nDoes everything look right? (yes/no)"
}

// handleConfirmation classifies the reply as affirmative, negative or
// ambiguous. Three ambiguous replies in a row auto-confirm so the
// conversation can never stall indefinitely.
func (c *Coordinator) handleConfirmation(ctx context.Context, s *session.Session, utterance string) string {
	switch classifyConfirmation(utterance) {
	case confirmYes:
		return c.finalizeProfile(ctx, s)
	case confirmNo:
		s.ConfirmationAttempts = 0
		return "No problem! Tell me what to fix — for example \"my weight is 72kg\" or \"change my goal to weight loss\"."
	default:
		// An ambiguous reply may be a correction; try extracting one first.
		if rec := c.extractor.ExtractUpdate(ctx, utterance); hasValues(rec) {
			s.Profile.Merge(rec)
			deriveBMI(&s.Profile)
			s.Profile.UpdatedAt = c.now()
			if err := c.store.SaveProfile(s.Profile); err != nil {
				slog.Error("Coordinator failed to persist corrected profile", "identity", s.Identity, "error", err)
			}
			s.ConfirmationAttempts = 0
			return "Updated! Here's your profile now:\n\n" + profileSummary(&s.Profile) + "\n\nDoes everything look right? (yes/no)"
		}
		s.ConfirmationAttempts++
		if s.ConfirmationAttempts >= MaxConfirmationAttempts {
			slog.Info("Coordinator auto-confirming profile after repeated ambiguous replies", "identity", s.Identity)
			return c.finalizeProfile(ctx, s)
		}
		return "Just to be sure — is your profile correct? Please reply yes or no."
	}
}

// finalizeProfile marks the profile confirmed, registers the daily plan
// trigger at the user's preferred time, and delivers the first plan
// immediately.
func (c *Coordinator) finalizeProfile(ctx context.Context, s *session.Session) string {
	s.Profile.Confirmed = true
	s.Profile.UpdatedAt = c.now()
	s.ConfirmationAttempts = 0
	if err := c.store.SaveProfile(s.Profile); err != nil {
		slog.Error("Coordinator failed to persist confirmed profile", "identity", s.Identity, "error", err)
	}

	clock := models.NormalizeWorkoutTime(s.Profile.WorkoutTime)
	if err := c.jobs.RegisterDailyWorkout(s.Identity, clock, models.DefaultTimezone); err != nil {
		slog.Error("Coordinator failed to register daily plan", "identity", s.Identity, "error", err)
	}
	if err := c.jobs.SendDailyWorkout(ctx, s.Identity); err != nil {
		slog.Error("Coordinator first plan delivery failed", "identity", s.Identity, "error", err)
	}

	return fmt.Sprintf("🎉 You're all set! Your daily workout plan will arrive around %s. Your first plan is on its way right now.", clock)
}

// hasValues reports whether any field in a partial record was extracted.
func hasValues(rec models.PartialRecord) bool {
	for _, v := range rec {
		if v != nil && *v != "" {
			return true
		}
	}
	return false
}

// applySkipDefaults fills the stage's defaults without clobbering anything
// the user already provided.
func applySkipDefaults(p *models.Profile, stage models.Stage) {
	for field, value := range models.SkipDefaults(stage) {
		if p.Field(field) == "" {
			p.SetField(field, value)
		}
	}
}

// deriveBMI computes BMI once both weight and height are known.
func deriveBMI(p *models.Profile) {
	if p.BMI != nil || p.Weight == "" || p.Height == "" {
		return
	}
	p.BMI = models.ComputeBMI(p.Weight, p.Height)
}
