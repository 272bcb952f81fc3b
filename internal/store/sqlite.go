// Package store provides storage backends for FitPulse.
//
// This file implements the SQLite-backed store, the default backend.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/FitPulse/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

func (s *SQLiteStore) GetUser(phone string) (*models.User, error) {
	row := s.db.QueryRow(`SELECT phone, name, authorized, admin, expiry, created_at FROM users WHERE phone = ?`, phone)
	u, err := scanUserRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetUser failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to get user %s: %w", phone, err)
	}
	return u, nil
}

func (s *SQLiteStore) SaveUser(u models.User) error {
	_, err := s.db.Exec(`
		INSERT INTO users (phone, name, authorized, admin, expiry, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET
			name = excluded.name, authorized = excluded.authorized,
			admin = excluded.admin, expiry = excluded.expiry`,
		u.Phone, nilIfEmpty(u.Name), u.Authorized, u.Admin, nullableTime(u.Expiry), u.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveUser failed", "error", err, "phone", u.Phone)
		return fmt.Errorf("failed to save user %s: %w", u.Phone, err)
	}
	slog.Debug("SQLiteStore SaveUser succeeded", "phone", u.Phone, "authorized", u.Authorized)
	return nil
}

func (s *SQLiteStore) ListAuthorizedUsers() ([]models.User, error) {
	rows, err := s.db.Query(`SELECT phone, name, authorized, admin, expiry, created_at FROM users WHERE authorized = 1`)
	if err != nil {
		slog.Error("SQLiteStore ListAuthorizedUsers query failed", "error", err)
		return nil, fmt.Errorf("failed to query authorized users: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (s *SQLiteStore) DeactivateExpiredUsers(now time.Time) (int, error) {
	res, err := s.db.Exec(`UPDATE users SET authorized = 0 WHERE expiry IS NOT NULL AND expiry < ? AND authorized = 1`, now)
	if err != nil {
		slog.Error("SQLiteStore DeactivateExpiredUsers failed", "error", err)
		return 0, fmt.Errorf("failed to deactivate expired users: %w", err)
	}
	n, _ := res.RowsAffected()
	slog.Debug("SQLiteStore DeactivateExpiredUsers succeeded", "count", n)
	return int(n), nil
}

func (s *SQLiteStore) SaveProfile(p models.Profile) error {
	_, err := s.db.Exec(`
		INSERT INTO profiles (phone, name, age, gender, weight, height, bmi, fitness_goal,
			medical_conditions, injuries, allergies, diet_preference, activity_level, stress_level,
			workout_duration, workout_location, workout_time, exercises_to_avoid,
			completed, confirmed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET
			name = excluded.name, age = excluded.age, gender = excluded.gender,
			weight = excluded.weight, height = excluded.height, bmi = excluded.bmi,
			fitness_goal = excluded.fitness_goal, medical_conditions = excluded.medical_conditions,
			injuries = excluded.injuries, allergies = excluded.allergies,
			diet_preference = excluded.diet_preference, activity_level = excluded.activity_level,
			stress_level = excluded.stress_level, workout_duration = excluded.workout_duration,
			workout_location = excluded.workout_location, workout_time = excluded.workout_time,
			exercises_to_avoid = excluded.exercises_to_avoid,
			completed = excluded.completed, confirmed = excluded.confirmed,
			updated_at = excluded.updated_at`,
		p.Phone, nilIfEmpty(p.Name), nilIfEmpty(p.Age), nilIfEmpty(p.Gender),
		nilIfEmpty(p.Weight), nilIfEmpty(p.Height), p.BMI, nilIfEmpty(p.FitnessGoal),
		nilIfEmpty(p.MedicalConditions), nilIfEmpty(p.Injuries), nilIfEmpty(p.Allergies),
		nilIfEmpty(p.DietPreference), nilIfEmpty(p.ActivityLevel), nilIfEmpty(p.StressLevel),
		nilIfEmpty(p.WorkoutDuration), nilIfEmpty(p.WorkoutLocation), nilIfEmpty(p.WorkoutTime),
		nilIfEmpty(p.ExercisesToAvoid), p.Completed, p.Confirmed, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveProfile failed", "error", err, "phone", p.Phone)
		return fmt.Errorf("failed to save profile for %s: %w", p.Phone, err)
	}
	slog.Debug("SQLiteStore SaveProfile succeeded", "phone", p.Phone, "completed", p.Completed)
	return nil
}

func (s *SQLiteStore) GetProfile(phone string) (*models.Profile, error) {
	row := s.db.QueryRow(`
		SELECT phone, name, age, gender, weight, height, bmi, fitness_goal,
			medical_conditions, injuries, allergies, diet_preference, activity_level, stress_level,
			workout_duration, workout_location, workout_time, exercises_to_avoid,
			completed, confirmed, created_at, updated_at
		FROM profiles WHERE phone = ?`, phone)
	p, err := scanProfileRow(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetProfile not found", "phone", phone)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetProfile failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to get profile for %s: %w", phone, err)
	}
	return p, nil
}

func (s *SQLiteStore) AddTip(text, category string) error {
	_, err := s.db.Exec(`INSERT INTO tips (text, category, active) VALUES (?, ?, 1)`, text, category)
	if err != nil {
		slog.Error("SQLiteStore AddTip failed", "error", err)
		return fmt.Errorf("failed to add tip: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListActiveTips() ([]models.Tip, error) {
	rows, err := s.db.Query(`SELECT id, text, category, active FROM tips WHERE active = 1`)
	if err != nil {
		slog.Error("SQLiteStore ListActiveTips query failed", "error", err)
		return nil, fmt.Errorf("failed to query tips: %w", err)
	}
	defer rows.Close()

	var tips []models.Tip
	for rows.Next() {
		var t models.Tip
		if err := rows.Scan(&t.ID, &t.Text, &t.Category, &t.Active); err != nil {
			return nil, fmt.Errorf("failed to scan tip row: %w", err)
		}
		tips = append(tips, t)
	}
	return tips, rows.Err()
}

func (s *SQLiteStore) RecentTipIDs(phone string, since time.Time) ([]int64, error) {
	rows, err := s.db.Query(`SELECT DISTINCT tip_id FROM tip_history WHERE phone = ? AND sent_at >= ?`, phone, since)
	if err != nil {
		slog.Error("SQLiteStore RecentTipIDs query failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query tip history for %s: %w", phone, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tip id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) LogTipSent(phone string, tipID int64, at time.Time) error {
	_, err := s.db.Exec(`INSERT INTO tip_history (phone, tip_id, sent_at) VALUES (?, ?, ?)`, phone, tipID, at)
	if err != nil {
		slog.Error("SQLiteStore LogTipSent failed", "error", err, "phone", phone, "tipID", tipID)
		return fmt.Errorf("failed to log tip for %s: %w", phone, err)
	}
	return nil
}

func (s *SQLiteStore) SetTipPreference(phone string, receive bool) error {
	_, err := s.db.Exec(`
		INSERT INTO tip_preferences (phone, receive_tips) VALUES (?, ?)
		ON CONFLICT(phone) DO UPDATE SET receive_tips = excluded.receive_tips`, phone, receive)
	if err != nil {
		slog.Error("SQLiteStore SetTipPreference failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to set tip preference for %s: %w", phone, err)
	}
	slog.Debug("SQLiteStore SetTipPreference succeeded", "phone", phone, "receive", receive)
	return nil
}

// GetTipPreference returns whether the user receives daily tips. Users with
// no stored preference default to receiving.
func (s *SQLiteStore) GetTipPreference(phone string) (bool, error) {
	var receive bool
	err := s.db.QueryRow(`SELECT receive_tips FROM tip_preferences WHERE phone = ?`, phone).Scan(&receive)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetTipPreference failed", "error", err, "phone", phone)
		return false, fmt.Errorf("failed to get tip preference for %s: %w", phone, err)
	}
	return receive, nil
}

// GetStreak returns the user's streak record, zero-valued when absent.
func (s *SQLiteStore) GetStreak(phone string) (models.Streak, error) {
	st := models.Streak{Phone: phone}
	var last sql.NullTime
	err := s.db.QueryRow(`SELECT current_streak, longest_streak, last_workout_date FROM streaks WHERE phone = ?`, phone).
		Scan(&st.CurrentStreak, &st.LongestStreak, &last)
	if err == sql.ErrNoRows {
		return st, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetStreak failed", "error", err, "phone", phone)
		return st, fmt.Errorf("failed to get streak for %s: %w", phone, err)
	}
	if last.Valid {
		st.LastWorkoutDate = &last.Time
	}
	return st, nil
}

func (s *SQLiteStore) SaveStreak(st models.Streak) error {
	_, err := s.db.Exec(`
		INSERT INTO streaks (phone, current_streak, longest_streak, last_workout_date)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET
			current_streak = excluded.current_streak,
			longest_streak = excluded.longest_streak,
			last_workout_date = excluded.last_workout_date`,
		st.Phone, st.CurrentStreak, st.LongestStreak, nullableTime(st.LastWorkoutDate))
	if err != nil {
		slog.Error("SQLiteStore SaveStreak failed", "error", err, "phone", st.Phone)
		return fmt.Errorf("failed to save streak for %s: %w", st.Phone, err)
	}
	return nil
}

func (s *SQLiteStore) SaveWorkoutSchedule(ws models.WorkoutSchedule) error {
	_, err := s.db.Exec(`
		INSERT INTO workout_schedules (phone, preferred_time, timezone, job_id, active, last_plan_sent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET
			preferred_time = excluded.preferred_time, timezone = excluded.timezone,
			job_id = excluded.job_id, active = excluded.active`,
		ws.Phone, ws.PreferredTime, ws.Timezone, nilIfEmpty(ws.JobID), ws.Active,
		nullableTime(ws.LastPlanSent), ws.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveWorkoutSchedule failed", "error", err, "phone", ws.Phone)
		return fmt.Errorf("failed to save schedule for %s: %w", ws.Phone, err)
	}
	slog.Debug("SQLiteStore SaveWorkoutSchedule succeeded", "phone", ws.Phone, "time", ws.PreferredTime, "tz", ws.Timezone)
	return nil
}

func (s *SQLiteStore) GetWorkoutSchedule(phone string) (*models.WorkoutSchedule, error) {
	row := s.db.QueryRow(`
		SELECT phone, preferred_time, timezone, job_id, active, last_plan_sent, created_at
		FROM workout_schedules WHERE phone = ?`, phone)
	ws, err := scanScheduleRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetWorkoutSchedule failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to get schedule for %s: %w", phone, err)
	}
	return ws, nil
}

func (s *SQLiteStore) ListActiveWorkoutSchedules() ([]models.WorkoutSchedule, error) {
	rows, err := s.db.Query(`
		SELECT ws.phone, ws.preferred_time, ws.timezone, ws.job_id, ws.active, ws.last_plan_sent, ws.created_at
		FROM workout_schedules ws
		JOIN users u ON u.phone = ws.phone
		WHERE ws.active = 1 AND u.authorized = 1`)
	if err != nil {
		slog.Error("SQLiteStore ListActiveWorkoutSchedules query failed", "error", err)
		return nil, fmt.Errorf("failed to query active schedules: %w", err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

func (s *SQLiteStore) UpdateScheduleJobID(phone, jobID string) error {
	_, err := s.db.Exec(`UPDATE workout_schedules SET job_id = ? WHERE phone = ?`, jobID, phone)
	if err != nil {
		slog.Error("SQLiteStore UpdateScheduleJobID failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to update job id for %s: %w", phone, err)
	}
	return nil
}

func (s *SQLiteStore) MarkPlanSent(phone string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE workout_schedules SET last_plan_sent = ? WHERE phone = ?`, at, phone)
	if err != nil {
		slog.Error("SQLiteStore MarkPlanSent failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to mark plan sent for %s: %w", phone, err)
	}
	return nil
}

func (s *SQLiteStore) DeactivateWorkoutSchedule(phone string) error {
	_, err := s.db.Exec(`UPDATE workout_schedules SET active = 0 WHERE phone = ?`, phone)
	if err != nil {
		slog.Error("SQLiteStore DeactivateWorkoutSchedule failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to deactivate schedule for %s: %w", phone, err)
	}
	slog.Debug("SQLiteStore DeactivateWorkoutSchedule succeeded", "phone", phone)
	return nil
}

func (s *SQLiteStore) LogWorkout(l models.WorkoutLog) error {
	_, err := s.db.Exec(`
		INSERT INTO workout_logs (phone, minutes, calories_burned, goal, completed_at)
		VALUES (?, ?, ?, ?, ?)`,
		l.Phone, l.Minutes, l.CaloriesBurned, nilIfEmpty(l.Goal), l.CompletedAt)
	if err != nil {
		slog.Error("SQLiteStore LogWorkout failed", "error", err, "phone", l.Phone)
		return fmt.Errorf("failed to log workout for %s: %w", l.Phone, err)
	}
	return nil
}

func (s *SQLiteStore) WeeklyProgress(phone string, since time.Time) (models.WeeklyProgress, error) {
	wp := models.WeeklyProgress{Phone: phone}
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(minutes), 0), COALESCE(SUM(calories_burned), 0)
		FROM workout_logs WHERE phone = ? AND completed_at >= ?`, phone, since).
		Scan(&wp.Workouts, &wp.TotalMinutes, &wp.Calories)
	if err != nil {
		slog.Error("SQLiteStore WeeklyProgress failed", "error", err, "phone", phone)
		return wp, fmt.Errorf("failed to aggregate weekly progress for %s: %w", phone, err)
	}
	return wp, nil
}
