package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/FitPulse/internal/messaging"
	"github.com/BTreeMap/FitPulse/internal/models"
)

const planSystemPrompt = `You are a friendly WhatsApp fitness coach. Produce a single-day workout
plan as a short WhatsApp message. Use plain text with *bold* section names,
no markdown headings. Include a warm-up, a main block sized to the user's
available time and location, and a cool-down. Respect listed injuries,
medical conditions and exercises to avoid.`

const motivationSystemPrompt = `You are a friendly WhatsApp fitness coach. Write one short, warm
motivational message (at most two sentences) checking in on whether the user
started the workout plan they received earlier today. No hashtags.`

// SendDailyWorkout generates and delivers today's plan for one user from
// durable state alone, then records the delivery and schedules a follow-up
// nudge.
func (j *Jobs) SendDailyWorkout(ctx context.Context, phone string) error {
	profile, err := j.store.GetProfile(phone)
	if err != nil {
		return fmt.Errorf("failed to load profile for %s: %w", phone, err)
	}
	if profile == nil || !profile.Completed {
		slog.Warn("Jobs daily workout: no completed profile, skipping", "phone", phone)
		return models.ErrNoProfile
	}

	plan, err := j.completer.Complete(ctx, planSystemPrompt, planRequest(profile))
	if err != nil {
		return fmt.Errorf("failed to generate plan for %s: %w", phone, err)
	}
	plan = messaging.CleanFormatting(plan)
	if plan == "" {
		return fmt.Errorf("empty plan generated for %s", phone)
	}

	header := "💪 Your workout plan for today"
	if profile.Name != "" {
		header = fmt.Sprintf("💪 %s, your workout plan for today", profile.Name)
	}
	if err := messaging.SendChunked(ctx, j.msg, phone, header+"\n\n"+plan); err != nil {
		return fmt.Errorf("failed to deliver plan to %s: %w", phone, err)
	}

	if err := j.store.MarkPlanSent(phone, j.now()); err != nil {
		slog.Error("Jobs daily workout: failed to mark plan sent", "phone", phone, "error", err)
	}
	j.ScheduleMotivationalFollowUp(phone, MotivationalDelay)
	return nil
}

// planRequest flattens the durable profile into the plan prompt.
func planRequest(p *models.Profile) string {
	var b strings.Builder
	b.WriteString("Create today's workout plan for this user:\n")
	write := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "- %s: %s\n", label, value)
		}
	}
	write("Name", p.Name)
	write("Age", p.Age)
	write("Gender", p.Gender)
	write("Weight", p.Weight)
	write("Height", p.Height)
	if p.BMI != nil {
		fmt.Fprintf(&b, "- BMI: %.1f\n", *p.BMI)
	}
	write("Goal", p.FitnessGoal)
	write("Medical conditions", p.MedicalConditions)
	write("Injuries", p.Injuries)
	write("Diet", p.DietPreference)
	write("Activity level", p.ActivityLevel)
	write("Stress level", p.StressLevel)
	write("Session length", p.WorkoutDuration)
	write("Location", p.WorkoutLocation)
	write("Exercises to avoid", p.ExercisesToAvoid)
	return b.String()
}

// SendMotivation delivers the post-plan nudge. It prefers an LLM-written
// message but falls back to a canned one so a capability outage never
// silences the follow-up.
func (j *Jobs) SendMotivation(ctx context.Context, phone string) error {
	body := "🔥 Quick check-in: have you started today's workout yet? Even 10 minutes counts!"
	prompt := "Write the check-in message."
	if profile, err := j.store.GetProfile(phone); err == nil && profile != nil && profile.Name != "" {
		prompt = fmt.Sprintf("Write the check-in message for %s, whose goal is %s.", profile.Name, profile.FitnessGoal)
	}
	if generated, err := j.completer.Complete(ctx, motivationSystemPrompt, prompt); err == nil {
		if cleaned := messaging.CleanFormatting(generated); cleaned != "" {
			body = cleaned
		}
	} else {
		slog.Warn("Jobs motivation: generation failed, using canned message", "phone", phone, "error", err)
	}
	return j.msg.SendMessage(ctx, phone, body)
}

// BroadcastDailyTips sends one tip to every authorized, opted-in user,
// rotating through the catalog so nobody sees a repeat within the rotation
// window. Per-user failures are tallied, never fatal.
func (j *Jobs) BroadcastDailyTips(ctx context.Context) (models.BroadcastSummary, error) {
	var summary models.BroadcastSummary

	users, err := j.store.ListAuthorizedUsers()
	if err != nil {
		return summary, fmt.Errorf("failed to list users for tip broadcast: %w", err)
	}
	tips, err := j.store.ListActiveTips()
	if err != nil {
		return summary, fmt.Errorf("failed to list tips: %w", err)
	}
	if len(tips) == 0 {
		slog.Warn("Jobs tip broadcast: no active tips")
		return summary, nil
	}

	since := j.now().Add(-TipRotationWindow)
	for _, user := range users {
		receive, err := j.store.GetTipPreference(user.Phone)
		if err != nil {
			slog.Error("Jobs tip broadcast: preference lookup failed", "phone", user.Phone, "error", err)
			summary.Failed++
			continue
		}
		if !receive {
			continue
		}

		tip := j.pickTip(user.Phone, tips, since)
		if err := j.msg.SendMessage(ctx, user.Phone, "💡 Daily tip: "+tip.Text); err != nil {
			if messaging.IsRateLimited(err) {
				summary.RateLimited++
			} else {
				summary.Failed++
			}
			slog.Error("Jobs tip broadcast: send failed", "phone", user.Phone, "error", err)
			continue
		}
		if err := j.store.LogTipSent(user.Phone, tip.ID, j.now()); err != nil {
			slog.Error("Jobs tip broadcast: failed to log tip", "phone", user.Phone, "error", err)
		}
		summary.Sent++
	}
	return summary, nil
}

// pickTip chooses the first active tip the user has not seen within the
// rotation window, wrapping to the least bad option when all were seen.
func (j *Jobs) pickTip(phone string, tips []models.Tip, since time.Time) models.Tip {
	recent, err := j.store.RecentTipIDs(phone, since)
	if err != nil {
		slog.Warn("Jobs tip rotation: history lookup failed, ignoring history", "phone", phone, "error", err)
		return tips[0]
	}
	seen := make(map[int64]bool, len(recent))
	for _, id := range recent {
		seen[id] = true
	}
	for _, tip := range tips {
		if !seen[tip.ID] {
			return tip
		}
	}
	return tips[0]
}

// SendWeeklyReports sends each authorized user with a completed profile a
// summary of the past week's logged workouts and their current streak.
func (j *Jobs) SendWeeklyReports(ctx context.Context) (models.BroadcastSummary, error) {
	var summary models.BroadcastSummary

	users, err := j.store.ListAuthorizedUsers()
	if err != nil {
		return summary, fmt.Errorf("failed to list users for weekly reports: %w", err)
	}

	since := j.now().Add(-7 * 24 * time.Hour)
	for _, user := range users {
		profile, err := j.store.GetProfile(user.Phone)
		if err != nil || profile == nil || !profile.Completed {
			continue
		}

		report, err := j.weeklyReport(user.Phone, profile, since)
		if err != nil {
			slog.Error("Jobs weekly report: build failed", "phone", user.Phone, "error", err)
			summary.Failed++
			continue
		}
		if err := messaging.SendChunked(ctx, j.msg, user.Phone, report); err != nil {
			if messaging.IsRateLimited(err) {
				summary.RateLimited++
			} else {
				summary.Failed++
			}
			slog.Error("Jobs weekly report: send failed", "phone", user.Phone, "error", err)
			continue
		}
		summary.Sent++
	}
	return summary, nil
}

func (j *Jobs) weeklyReport(phone string, profile *models.Profile, since time.Time) (string, error) {
	progress, err := j.store.WeeklyProgress(phone, since)
	if err != nil {
		return "", fmt.Errorf("failed to load weekly progress: %w", err)
	}
	streak, err := j.store.GetStreak(phone)
	if err != nil {
		return "", fmt.Errorf("failed to load streak: %w", err)
	}

	var b strings.Builder
	name := profile.Name
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "📊 Hi %s, here's your week in review!\n\n", name)
	fmt.Fprintf(&b, "Workouts completed: %d\n", progress.Workouts)
	if progress.TotalMinutes > 0 {
		fmt.Fprintf(&b, "Total active minutes: %d\n", progress.TotalMinutes)
	}
	fmt.Fprintf(&b, "Current streak: %d day(s)\n", streak.CurrentStreak)
	if streak.LongestStreak > streak.CurrentStreak {
		fmt.Fprintf(&b, "Longest streak: %d day(s)\n", streak.LongestStreak)
	}
	switch {
	case progress.Workouts == 0:
		b.WriteString("\nNo workouts logged this week. A fresh week starts now — you've got this! 💪")
	case progress.Workouts >= 5:
		b.WriteString("\nOutstanding consistency. Keep it rolling! 🏆")
	default:
		b.WriteString("\nSolid work. Try to add one more session next week! 🚀")
	}
	return b.String(), nil
}
