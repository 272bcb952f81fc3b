package onboarding

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/BTreeMap/FitPulse/internal/models"
	"github.com/BTreeMap/FitPulse/internal/session"
)

// OffTopicRefusal is the fixed reply for non-fitness chatter. Off-topic
// utterances never reach the LLM.
const OffTopicRefusal = "I'm your fitness assistant, so I stick to workouts, nutrition, and healthy habits. 💪 Ask me anything in that zone!"

// reminderUsage shows the two grammars the fallback parser accepts.
const reminderUsage = "I couldn't work out when to remind you. Try something like \"remind me to stretch in 30 minutes\" or \"remind me to go for a run at 6pm\"."

type intent int

const (
	intentChat intent = iota
	intentReminder
	intentProfileView
	intentProfileUpdate
	intentStreak
	intentStopTips
	intentStartTips
	intentStopPlan
	intentStartPlan
	intentPlan
	intentWorkoutDone
)

// classifyIntent is a flat keyword dispatch, not a further state machine.
func classifyIntent(utterance string) intent {
	lowered := strings.ToLower(utterance)
	switch {
	case strings.Contains(lowered, "stop tips"):
		return intentStopTips
	case strings.Contains(lowered, "start tips"):
		return intentStartTips
	case strings.Contains(lowered, "stop plan") || strings.Contains(lowered, "pause plan") ||
		strings.Contains(lowered, "stop my plan") || strings.Contains(lowered, "pause workouts") ||
		strings.Contains(lowered, "stop workouts"):
		return intentStopPlan
	case strings.Contains(lowered, "resume plan") || strings.Contains(lowered, "start plan") ||
		strings.Contains(lowered, "resume workouts"):
		return intentStartPlan
	case strings.Contains(lowered, "remind"):
		return intentReminder
	case strings.Contains(lowered, "streak"):
		return intentStreak
	case strings.Contains(lowered, "my profile") || strings.Contains(lowered, "view profile") || strings.Contains(lowered, "show profile"):
		return intentProfileView
	case strings.HasPrefix(lowered, "update") || strings.HasPrefix(lowered, "change my") || strings.HasPrefix(lowered, "set my"):
		return intentProfileUpdate
	case workoutDoneRe.MatchString(lowered):
		return intentWorkoutDone
	case strings.Contains(lowered, "plan") || strings.Contains(lowered, "today's workout") || strings.Contains(lowered, "todays workout"):
		return intentPlan
	default:
		return intentChat
	}
}

var workoutDoneRe = regexp.MustCompile(`\b(did|done|finished|completed)\b.*\bworkout\b|\bworkout\b.*\b(done|finished|completed)\b|^done[.!]*$`)

// fitnessKeywords gate general chat: only clearly fitness-adjacent questions
// are forwarded to the LLM, everything else gets the fixed refusal.
var fitnessKeywords = []string{
	"workout", "exercise", "gym", "fitness", "train", "muscle", "cardio",
	"yoga", "stretch", "run", "walk", "diet", "nutrition", "protein",
	"calorie", "weight", "fat", "meal", "eat", "food", "sleep", "rest",
	"injury", "sore", "recovery", "health", "hydrat", "water", "strength",
	"rep", "set", "squat", "push-up", "pushup", "plank", "bmi",
}

func isFitnessRelated(utterance string) bool {
	lowered := strings.ToLower(utterance)
	for _, kw := range fitnessKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

const chatSystemPrompt = `You are FitPulse, a friendly WhatsApp fitness coach. Answer fitness,
nutrition and healthy-lifestyle questions briefly and practically, in a warm
tone suited to a chat message. Decline non-fitness topics politely.`

// handleIntent dispatches one utterance from a confirmed user. Each intent
// maps to exactly one side-effecting action.
func (c *Coordinator) handleIntent(ctx context.Context, s *session.Session, utterance string) string {
	// A "yes" right after viewing the profile means "I want to change it".
	if s.JustViewedProfile {
		s.JustViewedProfile = false
		if classifyConfirmation(utterance) == confirmYes {
			return "Sure — what would you like to update? For example \"change my goal to weight loss\"."
		}
	}

	switch classifyIntent(utterance) {
	case intentReminder:
		return c.handleReminder(ctx, s, utterance)
	case intentProfileView:
		s.JustViewedProfile = true
		return profileSummary(&s.Profile) + "\n\nWant to change anything?"
	case intentProfileUpdate:
		return c.handleProfileUpdate(ctx, s, utterance)
	case intentStreak:
		return c.handleStreak(s)
	case intentStopTips:
		if err := c.store.SetTipPreference(s.Identity, false); err != nil {
			slog.Error("Coordinator failed to store tip opt-out", "identity", s.Identity, "error", err)
			return "Something went wrong saving that — please try again."
		}
		return "Got it, no more daily tips. Send \"START TIPS\" any time to turn them back on."
	case intentStartTips:
		if err := c.store.SetTipPreference(s.Identity, true); err != nil {
			slog.Error("Coordinator failed to store tip opt-in", "identity", s.Identity, "error", err)
			return "Something went wrong saving that — please try again."
		}
		return "Daily tips are back on! 💡 You'll get your next one tomorrow morning."
	case intentStopPlan:
		if err := c.jobs.CancelDailyWorkout(s.Identity); err != nil {
			slog.Error("Coordinator failed to pause daily plan", "identity", s.Identity, "error", err)
			return "Something went wrong saving that — please try again."
		}
		return "Okay, your daily workout plan is paused. Say \"resume plan\" whenever you want it back. 😊"
	case intentStartPlan:
		clock := models.NormalizeWorkoutTime(s.Profile.WorkoutTime)
		if err := c.jobs.RegisterDailyWorkout(s.Identity, clock, models.DefaultTimezone); err != nil {
			slog.Error("Coordinator failed to resume daily plan", "identity", s.Identity, "error", err)
			return "Something went wrong saving that — please try again."
		}
		return "Your daily plan is back on! 💪 Expect it around " + clock + "."
	case intentPlan:
		if err := c.jobs.SendDailyWorkout(ctx, s.Identity); err != nil {
			slog.Error("Coordinator on-demand plan failed", "identity", s.Identity, "error", err)
			return "I couldn't put your plan together just now — please try again in a bit."
		}
		return "On it! 💪 Your workout plan is on its way."
	case intentWorkoutDone:
		return c.handleWorkoutDone(s)
	default:
		return c.handleChat(ctx, s, utterance)
	}
}

// handleReminder parses and schedules a one-off reminder. Scheduling is a
// user-initiated action, so failures are surfaced rather than swallowed.
func (c *Coordinator) handleReminder(ctx context.Context, s *session.Session, utterance string) string {
	task, fireAt, ok := c.extractor.ParseReminder(ctx, utterance, c.now())
	if !ok {
		return reminderUsage
	}
	if _, err := c.jobs.ScheduleReminder(s.Identity, task, fireAt); err != nil {
		slog.Error("Coordinator reminder scheduling failed", "identity", s.Identity, "error", err)
		return "I couldn't set that reminder — please try again."
	}
	return fmt.Sprintf("✅ Reminder set: \"%s\" at %s.", task, fireAt.Format("3:04 PM, Jan 2"))
}

// handleProfileUpdate extracts changed fields, persists them, and re-registers
// the daily plan when the preferred workout time moved.
func (c *Coordinator) handleProfileUpdate(ctx context.Context, s *session.Session, utterance string) string {
	rec := c.extractor.ExtractUpdate(ctx, utterance)
	if !hasValues(rec) {
		return "Tell me what to change — for example \"update my weight to 72kg\" or \"change my workout time to evening\"."
	}

	previousTime := s.Profile.WorkoutTime
	s.Profile.Merge(rec)
	if weightOrHeightChanged(rec) {
		s.Profile.BMI = models.ComputeBMI(s.Profile.Weight, s.Profile.Height)
	}
	s.Profile.UpdatedAt = c.now()
	if err := c.store.SaveProfile(s.Profile); err != nil {
		slog.Error("Coordinator failed to persist profile update", "identity", s.Identity, "error", err)
		return "Something went wrong saving that — please try again."
	}

	if s.Profile.WorkoutTime != previousTime {
		clock := models.NormalizeWorkoutTime(s.Profile.WorkoutTime)
		if err := c.jobs.RegisterDailyWorkout(s.Identity, clock, models.DefaultTimezone); err != nil {
			slog.Error("Coordinator failed to move daily plan", "identity", s.Identity, "error", err)
		} else {
			return "Updated! Your daily plan now arrives around " + clock + ".\n\n" + profileSummary(&s.Profile)
		}
	}
	return "Updated! Here's your profile now:\n\n" + profileSummary(&s.Profile)
}

func weightOrHeightChanged(rec models.PartialRecord) bool {
	for _, f := range []string{models.FieldWeight, models.FieldHeight} {
		if v, ok := rec[f]; ok && v != nil && *v != "" {
			return true
		}
	}
	return false
}

// handleStreak reports the current and longest streaks.
func (c *Coordinator) handleStreak(s *session.Session) string {
	streak, err := c.store.GetStreak(s.Identity)
	if err != nil {
		slog.Error("Coordinator streak lookup failed", "identity", s.Identity, "error", err)
		return "I couldn't look up your streak just now — please try again."
	}
	if streak.CurrentStreak == 0 {
		return "No streak yet — finish a workout today and tell me \"done\" to start one! 🔥"
	}
	reply := fmt.Sprintf("🔥 Current streak: %d day(s).", streak.CurrentStreak)
	if streak.LongestStreak > streak.CurrentStreak {
		reply += fmt.Sprintf(" Your record is %d — keep going!", streak.LongestStreak)
	}
	return reply
}

// handleWorkoutDone logs today's workout and advances the streak.
func (c *Coordinator) handleWorkoutDone(s *session.Session) string {
	now := c.now()
	streak, err := c.store.GetStreak(s.Identity)
	if err != nil {
		slog.Error("Coordinator streak lookup failed", "identity", s.Identity, "error", err)
		return "I couldn't record that — please try again."
	}
	if streak.LastWorkoutDate != nil && models.SameCivilDay(*streak.LastWorkoutDate, now) {
		return "Already counted today's workout — rest up and come back tomorrow! 😴"
	}
	advanced, newRecord, broke := models.AdvanceStreak(streak, now)
	if advanced.Phone == "" {
		advanced.Phone = s.Identity
	}
	if err := c.store.SaveStreak(advanced); err != nil {
		slog.Error("Coordinator failed to save streak", "identity", s.Identity, "error", err)
		return "I couldn't record that — please try again."
	}
	if err := c.store.LogWorkout(models.WorkoutLog{
		Phone:       s.Identity,
		Minutes:     durationMinutes(s.Profile.WorkoutDuration),
		Goal:        s.Profile.FitnessGoal,
		CompletedAt: now,
	}); err != nil {
		slog.Error("Coordinator failed to log workout", "identity", s.Identity, "error", err)
	}

	switch {
	case newRecord && advanced.CurrentStreak > 1:
		return fmt.Sprintf("🏆 New record — %d days in a row! Incredible consistency.", advanced.CurrentStreak)
	case broke:
		return "💪 Logged! Your last streak broke, but today is day 1 of a new one. Let's build it back."
	default:
		return fmt.Sprintf("✅ Logged! You're on a %d-day streak. 🔥", advanced.CurrentStreak)
	}
}

var minutesRe = regexp.MustCompile(`(\d+)`)

// durationMinutes pulls the minute count out of a stored duration string
// like "30 minutes" or "45 min", defaulting to 30.
func durationMinutes(duration string) int {
	if m := minutesRe.FindStringSubmatch(duration); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 && n <= 600 {
			return n
		}
	}
	return 30
}

// handleChat answers fitness questions with conversation history as context.
// Everything else is refused without an LLM round trip.
func (c *Coordinator) handleChat(ctx context.Context, s *session.Session, utterance string) string {
	if !isFitnessRelated(utterance) {
		return OffTopicRefusal
	}
	answer, err := c.completer.CompleteWithHistory(ctx, chatSystemPrompt, s.History, utterance)
	if err != nil {
		slog.Error("Coordinator chat completion failed", "identity", s.Identity, "error", err)
		return "I'm having trouble thinking right now — please try again in a moment."
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "I'm having trouble thinking right now — please try again in a moment."
	}
	return answer
}
