// Package store provides storage backends for FitPulse.
//
// The durable store is the single source of truth across process restarts:
// authorization records, completed profiles, workout schedules, streaks, the
// tip catalog and per-user tip history all live here, keyed by phone number.
package store

import (
	"strings"
	"time"

	"github.com/BTreeMap/FitPulse/internal/models"
)

// DetectDSNType classifies a DSN as "postgres" or "sqlite" so callers can
// pick a backend from a single connection-string setting.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

// Opts holds configuration for store constructors.
type Opts struct {
	// DSN is the database connection string: a file path for SQLite, a
	// connection URL for Postgres.
	DSN string
}

// Option configures store constructors.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the Postgres connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// Store is the record CRUD capability consumed by the conversation and
// dispatch layers. All reads/writes are point operations keyed by phone
// number; enumeration methods exist only for broadcast fan-out and startup
// recovery.
type Store interface {
	// Authorization records.
	GetUser(phone string) (*models.User, error)
	SaveUser(u models.User) error
	ListAuthorizedUsers() ([]models.User, error)
	DeactivateExpiredUsers(now time.Time) (int, error)

	// Durable profiles.
	SaveProfile(p models.Profile) error
	GetProfile(phone string) (*models.Profile, error)

	// Tip catalog and rotation history.
	AddTip(text, category string) error
	ListActiveTips() ([]models.Tip, error)
	RecentTipIDs(phone string, since time.Time) ([]int64, error)
	LogTipSent(phone string, tipID int64, at time.Time) error
	SetTipPreference(phone string, receive bool) error
	GetTipPreference(phone string) (bool, error)

	// Workout streaks.
	GetStreak(phone string) (models.Streak, error)
	SaveStreak(s models.Streak) error

	// Daily-plan schedule records.
	SaveWorkoutSchedule(s models.WorkoutSchedule) error
	GetWorkoutSchedule(phone string) (*models.WorkoutSchedule, error)
	ListActiveWorkoutSchedules() ([]models.WorkoutSchedule, error)
	UpdateScheduleJobID(phone, jobID string) error
	MarkPlanSent(phone string, at time.Time) error
	DeactivateWorkoutSchedule(phone string) error

	// Workout completion logs.
	LogWorkout(l models.WorkoutLog) error
	WeeklyProgress(phone string, since time.Time) (models.WeeklyProgress, error)

	Close() error
}
