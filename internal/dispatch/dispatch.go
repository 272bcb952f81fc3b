// Package dispatch owns the scheduled job bodies and their registrations.
//
// Job bodies are side-effecting functions of durable state only. A recovered
// job may fire on a fresh process before any conversation session exists, so
// every body reconstructs the context it needs from the store and never
// reaches into in-memory session state.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/FitPulse/internal/genai"
	"github.com/BTreeMap/FitPulse/internal/messaging"
	"github.com/BTreeMap/FitPulse/internal/models"
	"github.com/BTreeMap/FitPulse/internal/scheduler"
	"github.com/BTreeMap/FitPulse/internal/store"
)

// TipRotationWindow is how far back tip history is consulted so a user does
// not see the same tip twice within the window.
const TipRotationWindow = 15 * 24 * time.Hour

// MotivationalDelay is how long after a daily plan the follow-up nudge fires.
const MotivationalDelay = 30 * time.Minute

// System job ids. These are process-wide singletons, not per-user.
const (
	JobIDDailyTips     = "daily_tips_broadcast"
	JobIDWeeklyReports = "weekly_reports"
	JobIDExpiryCleanup = "cleanup_expired_users"
)

// DailyWorkoutJobID derives the daily-plan job id from the identity alone, so
// re-registration during profile updates or restarts replaces rather than
// duplicates.
func DailyWorkoutJobID(phone string) string {
	return "daily_workout_" + phone
}

// ReminderJobID derives a one-off reminder id from identity plus registration
// instant, since multiple live reminders per user are legitimate. Nanosecond
// resolution keeps two reminders issued back to back from colliding.
func ReminderJobID(phone string, at time.Time) string {
	return fmt.Sprintf("reminder_%s_%d", phone, at.UnixNano())
}

// MotivationalJobID derives a one-off follow-up id the same way.
func MotivationalJobID(phone string, at time.Time) string {
	return fmt.Sprintf("motivational_%s_%d", phone, at.UnixNano())
}

// Jobs wires the scheduler engine to the store, transport and LLM client.
type Jobs struct {
	store     store.Store
	msg       messaging.Service
	completer genai.Completer
	engine    *scheduler.Engine
	now       func() time.Time
}

// Opts holds Jobs configuration.
type Opts struct {
	Now func() time.Time
}

// Option configures Jobs.
type Option func(*Opts)

// WithClock overrides the wall clock (tests only).
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// NewJobs creates the dispatch layer.
func NewJobs(st store.Store, msg messaging.Service, completer genai.Completer, engine *scheduler.Engine, opts ...Option) *Jobs {
	cfg := Opts{Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Jobs{store: st, msg: msg, completer: completer, engine: engine, now: cfg.Now}
}

// RegisterSystemJobs installs the process-wide recurring jobs: the daily tip
// broadcast, the weekly report fan-out and the expired-authorization sweep.
func (j *Jobs) RegisterSystemJobs() error {
	if err := j.engine.RegisterDaily(JobIDDailyTips, 1, 30, "UTC", func() {
		summary, err := j.BroadcastDailyTips(context.Background())
		if err != nil {
			slog.Error("Jobs daily tips broadcast failed", "error", err)
			return
		}
		slog.Info("Jobs daily tips broadcast finished", "sent", summary.Sent, "failed", summary.Failed, "rateLimited", summary.RateLimited)
	}); err != nil {
		return fmt.Errorf("failed to register daily tips job: %w", err)
	}

	if err := j.engine.RegisterWeekly(JobIDWeeklyReports, time.Sunday, 14, 30, "UTC", func() {
		summary, err := j.SendWeeklyReports(context.Background())
		if err != nil {
			slog.Error("Jobs weekly reports failed", "error", err)
			return
		}
		slog.Info("Jobs weekly reports finished", "sent", summary.Sent, "failed", summary.Failed, "rateLimited", summary.RateLimited)
	}); err != nil {
		return fmt.Errorf("failed to register weekly reports job: %w", err)
	}

	if err := j.engine.RegisterDaily(JobIDExpiryCleanup, 20, 30, "UTC", func() {
		n, err := j.store.DeactivateExpiredUsers(j.now())
		if err != nil {
			slog.Error("Jobs expiry cleanup failed", "error", err)
			return
		}
		if n > 0 {
			slog.Info("Jobs expiry cleanup deactivated users", "count", n)
		}
	}); err != nil {
		return fmt.Errorf("failed to register expiry cleanup job: %w", err)
	}

	return nil
}

// RegisterDailyWorkout persists a daily-plan schedule record and registers
// (or atomically replaces) its trigger at the user's civil time in their
// named timezone.
func (j *Jobs) RegisterDailyWorkout(phone, clock, tz string) error {
	hour, minute, err := models.ParseClock(clock)
	if err != nil {
		return fmt.Errorf("invalid preferred time for %s: %w", phone, err)
	}
	if tz == "" {
		tz = models.DefaultTimezone
	}

	jobID := DailyWorkoutJobID(phone)
	if err := j.engine.RegisterDaily(jobID, hour, minute, tz, func() {
		if err := j.SendDailyWorkout(context.Background(), phone); err != nil {
			slog.Error("Jobs daily workout delivery failed", "phone", phone, "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to register daily workout for %s: %w", phone, err)
	}

	if err := j.store.SaveWorkoutSchedule(models.WorkoutSchedule{
		Phone:         phone,
		PreferredTime: clock,
		Timezone:      tz,
		JobID:         jobID,
		Active:        true,
	}); err != nil {
		return fmt.Errorf("failed to persist workout schedule for %s: %w", phone, err)
	}
	slog.Info("Jobs daily workout registered", "phone", phone, "time", clock, "tz", tz)
	return nil
}

// CancelDailyWorkout removes the user's daily-plan trigger and deactivates
// the durable schedule record.
func (j *Jobs) CancelDailyWorkout(phone string) error {
	if err := j.engine.Cancel(DailyWorkoutJobID(phone)); err != nil {
		slog.Warn("Jobs cancel daily workout: no live registration", "phone", phone, "error", err)
	}
	if err := j.store.DeactivateWorkoutSchedule(phone); err != nil {
		return fmt.Errorf("failed to deactivate workout schedule for %s: %w", phone, err)
	}
	return nil
}

// ScheduleReminder registers a one-off reminder. The job closes over the task
// text and identity captured here; it re-reads nothing at fire time.
func (j *Jobs) ScheduleReminder(phone, task string, fireAt time.Time) (string, error) {
	jobID := ReminderJobID(phone, j.now())
	body := "⏰ Reminder: " + task
	err := j.engine.RegisterOneOff(jobID, fireAt, func() {
		if err := j.msg.SendMessage(context.Background(), phone, body); err != nil {
			slog.Error("Jobs reminder delivery failed", "phone", phone, "error", err)
		}
	})
	if err != nil {
		return "", fmt.Errorf("failed to schedule reminder for %s: %w", phone, err)
	}
	slog.Info("Jobs reminder scheduled", "phone", phone, "jobID", jobID, "at", fireAt)
	return jobID, nil
}

// ScheduleMotivationalFollowUp registers a one-off nudge that fires a while
// after a plan delivery, asking whether the user started their workout.
func (j *Jobs) ScheduleMotivationalFollowUp(phone string, delay time.Duration) string {
	fireAt := j.now().Add(delay)
	jobID := MotivationalJobID(phone, j.now())
	err := j.engine.RegisterOneOff(jobID, fireAt, func() {
		if err := j.SendMotivation(context.Background(), phone); err != nil {
			slog.Error("Jobs motivational follow-up failed", "phone", phone, "error", err)
		}
	})
	if err != nil {
		slog.Error("Jobs failed to schedule motivational follow-up", "phone", phone, "error", err)
		return ""
	}
	return jobID
}

// RecoverSchedules re-registers daily-plan triggers for every durable active
// schedule record. A bad record is logged and skipped so one user's broken
// timezone cannot abort startup for everyone else. It returns how many
// schedules were restored.
func (j *Jobs) RecoverSchedules() int {
	schedules, err := j.store.ListActiveWorkoutSchedules()
	if err != nil {
		slog.Error("Jobs recovery: failed to list active schedules", "error", err)
		return 0
	}

	recovered := 0
	for _, sched := range schedules {
		if err := j.RegisterDailyWorkout(sched.Phone, sched.PreferredTime, sched.Timezone); err != nil {
			slog.Error("Jobs recovery: failed to restore schedule", "phone", sched.Phone, "error", err)
			continue
		}
		recovered++
	}
	slog.Info("Jobs recovery complete", "restored", recovered, "total", len(schedules))
	return recovered
}
