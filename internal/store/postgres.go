// Package store provides storage backends for FitPulse.
//
// This file implements the PostgreSQL-backed store, selected when a Postgres
// DSN is configured.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/FitPulse/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants.
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 25
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}

func (s *PostgresStore) GetUser(phone string) (*models.User, error) {
	row := s.db.QueryRow(`SELECT phone, name, authorized, admin, expiry, created_at FROM users WHERE phone = $1`, phone)
	u, err := scanUserRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUser failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to get user %s: %w", phone, err)
	}
	return u, nil
}

func (s *PostgresStore) SaveUser(u models.User) error {
	_, err := s.db.Exec(`
		INSERT INTO users (phone, name, authorized, admin, expiry, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (phone) DO UPDATE SET
			name = EXCLUDED.name, authorized = EXCLUDED.authorized,
			admin = EXCLUDED.admin, expiry = EXCLUDED.expiry`,
		u.Phone, nilIfEmpty(u.Name), u.Authorized, u.Admin, nullableTime(u.Expiry), u.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveUser failed", "error", err, "phone", u.Phone)
		return fmt.Errorf("failed to save user %s: %w", u.Phone, err)
	}
	return nil
}

func (s *PostgresStore) ListAuthorizedUsers() ([]models.User, error) {
	rows, err := s.db.Query(`SELECT phone, name, authorized, admin, expiry, created_at FROM users WHERE authorized = TRUE`)
	if err != nil {
		slog.Error("PostgresStore ListAuthorizedUsers query failed", "error", err)
		return nil, fmt.Errorf("failed to query authorized users: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (s *PostgresStore) DeactivateExpiredUsers(now time.Time) (int, error) {
	res, err := s.db.Exec(`UPDATE users SET authorized = FALSE WHERE expiry IS NOT NULL AND expiry < $1 AND authorized = TRUE`, now)
	if err != nil {
		slog.Error("PostgresStore DeactivateExpiredUsers failed", "error", err)
		return 0, fmt.Errorf("failed to deactivate expired users: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) SaveProfile(p models.Profile) error {
	_, err := s.db.Exec(`
		INSERT INTO profiles (phone, name, age, gender, weight, height, bmi, fitness_goal,
			medical_conditions, injuries, allergies, diet_preference, activity_level, stress_level,
			workout_duration, workout_location, workout_time, exercises_to_avoid,
			completed, confirmed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (phone) DO UPDATE SET
			name = EXCLUDED.name, age = EXCLUDED.age, gender = EXCLUDED.gender,
			weight = EXCLUDED.weight, height = EXCLUDED.height, bmi = EXCLUDED.bmi,
			fitness_goal = EXCLUDED.fitness_goal, medical_conditions = EXCLUDED.medical_conditions,
			injuries = EXCLUDED.injuries, allergies = EXCLUDED.allergies,
			diet_preference = EXCLUDED.diet_preference, activity_level = EXCLUDED.activity_level,
			stress_level = EXCLUDED.stress_level, workout_duration = EXCLUDED.workout_duration,
			workout_location = EXCLUDED.workout_location, workout_time = EXCLUDED.workout_time,
			exercises_to_avoid = EXCLUDED.exercises_to_avoid,
			completed = EXCLUDED.completed, confirmed = EXCLUDED.confirmed,
			updated_at = EXCLUDED.updated_at`,
		p.Phone, nilIfEmpty(p.Name), nilIfEmpty(p.Age), nilIfEmpty(p.Gender),
		nilIfEmpty(p.Weight), nilIfEmpty(p.Height), p.BMI, nilIfEmpty(p.FitnessGoal),
		nilIfEmpty(p.MedicalConditions), nilIfEmpty(p.Injuries), nilIfEmpty(p.Allergies),
		nilIfEmpty(p.DietPreference), nilIfEmpty(p.ActivityLevel), nilIfEmpty(p.StressLevel),
		nilIfEmpty(p.WorkoutDuration), nilIfEmpty(p.WorkoutLocation), nilIfEmpty(p.WorkoutTime),
		nilIfEmpty(p.ExercisesToAvoid), p.Completed, p.Confirmed, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveProfile failed", "error", err, "phone", p.Phone)
		return fmt.Errorf("failed to save profile for %s: %w", p.Phone, err)
	}
	return nil
}

func (s *PostgresStore) GetProfile(phone string) (*models.Profile, error) {
	row := s.db.QueryRow(`
		SELECT phone, name, age, gender, weight, height, bmi, fitness_goal,
			medical_conditions, injuries, allergies, diet_preference, activity_level, stress_level,
			workout_duration, workout_location, workout_time, exercises_to_avoid,
			completed, confirmed, created_at, updated_at
		FROM profiles WHERE phone = $1`, phone)
	p, err := scanProfileRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetProfile failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to get profile for %s: %w", phone, err)
	}
	return p, nil
}

func (s *PostgresStore) AddTip(text, category string) error {
	_, err := s.db.Exec(`INSERT INTO tips (text, category, active) VALUES ($1, $2, TRUE)`, text, category)
	if err != nil {
		slog.Error("PostgresStore AddTip failed", "error", err)
		return fmt.Errorf("failed to add tip: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActiveTips() ([]models.Tip, error) {
	rows, err := s.db.Query(`SELECT id, text, category, active FROM tips WHERE active = TRUE`)
	if err != nil {
		slog.Error("PostgresStore ListActiveTips query failed", "error", err)
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

func (s *PostgresStore) RecentTipIDs(phone string, since time.Time) ([]int64, error) {
	rows, err := s.db.Query(`SELECT DISTINCT tip_id FROM tip_history WHERE phone = $1 AND sent_at >= $2`, phone, since)
	if err != nil {
		slog.Error("PostgresStore RecentTipIDs query failed", "error", err, "phone", phone)
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

func (s *PostgresStore) LogTipSent(phone string, tipID int64, at time.Time) error {
	_, err := s.db.Exec(`INSERT INTO tip_history (phone, tip_id, sent_at) VALUES ($1, $2, $3)`, phone, tipID, at)
	if err != nil {
		slog.Error("PostgresStore LogTipSent failed", "error", err, "phone", phone, "tipID", tipID)
		return fmt.Errorf("failed to log tip for %s: %w", phone, err)
	}
	return nil
}

func (s *PostgresStore) SetTipPreference(phone string, receive bool) error {
	_, err := s.db.Exec(`
		INSERT INTO tip_preferences (phone, receive_tips) VALUES ($1, $2)
		ON CONFLICT (phone) DO UPDATE SET receive_tips = EXCLUDED.receive_tips`, phone, receive)
	if err != nil {
		slog.Error("PostgresStore SetTipPreference failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to set tip preference for %s: %w", phone, err)
	}
	return nil
}

func (s *PostgresStore) GetTipPreference(phone string) (bool, error) {
	var receive bool
	err := s.db.QueryRow(`SELECT receive_tips FROM tip_preferences WHERE phone = $1`, phone).Scan(&receive)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetTipPreference failed", "error", err, "phone", phone)
		return false, fmt.Errorf("failed to get tip preference for %s: %w", phone, err)
	}
	return receive, nil
}

func (s *PostgresStore) GetStreak(phone string) (models.Streak, error) {
	st := models.Streak{Phone: phone}
	var last sql.NullTime
	err := s.db.QueryRow(`SELECT current_streak, longest_streak, last_workout_date FROM streaks WHERE phone = $1`, phone).
		Scan(&st.CurrentStreak, &st.LongestStreak, &last)
	if err == sql.ErrNoRows {
		return st, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetStreak failed", "error", err, "phone", phone)
		return st, fmt.Errorf("failed to get streak for %s: %w", phone, err)
	}
	if last.Valid {
		st.LastWorkoutDate = &last.Time
	}
	return st, nil
}

func (s *PostgresStore) SaveStreak(st models.Streak) error {
	_, err := s.db.Exec(`
		INSERT INTO streaks (phone, current_streak, longest_streak, last_workout_date)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (phone) DO UPDATE SET
			current_streak = EXCLUDED.current_streak,
			longest_streak = EXCLUDED.longest_streak,
			last_workout_date = EXCLUDED.last_workout_date`,
		st.Phone, st.CurrentStreak, st.LongestStreak, nullableTime(st.LastWorkoutDate))
	if err != nil {
		slog.Error("PostgresStore SaveStreak failed", "error", err, "phone", st.Phone)
		return fmt.Errorf("failed to save streak for %s: %w", st.Phone, err)
	}
	return nil
}

func (s *PostgresStore) SaveWorkoutSchedule(ws models.WorkoutSchedule) error {
	_, err := s.db.Exec(`
		INSERT INTO workout_schedules (phone, preferred_time, timezone, job_id, active, last_plan_sent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (phone) DO UPDATE SET
			preferred_time = EXCLUDED.preferred_time, timezone = EXCLUDED.timezone,
			job_id = EXCLUDED.job_id, active = EXCLUDED.active`,
		ws.Phone, ws.PreferredTime, ws.Timezone, nilIfEmpty(ws.JobID), ws.Active,
		nullableTime(ws.LastPlanSent), ws.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveWorkoutSchedule failed", "error", err, "phone", ws.Phone)
		return fmt.Errorf("failed to save schedule for %s: %w", ws.Phone, err)
	}
	return nil
}

func (s *PostgresStore) GetWorkoutSchedule(phone string) (*models.WorkoutSchedule, error) {
	row := s.db.QueryRow(`
		SELECT phone, preferred_time, timezone, job_id, active, last_plan_sent, created_at
		FROM workout_schedules WHERE phone = $1`, phone)
	ws, err := scanScheduleRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetWorkoutSchedule failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to get schedule for %s: %w", phone, err)
	}
	return ws, nil
}

func (s *PostgresStore) ListActiveWorkoutSchedules() ([]models.WorkoutSchedule, error) {
	rows, err := s.db.Query(`
		SELECT ws.phone, ws.preferred_time, ws.timezone, ws.job_id, ws.active, ws.last_plan_sent, ws.created_at
		FROM workout_schedules ws
		JOIN users u ON u.phone = ws.phone
		WHERE ws.active = TRUE AND u.authorized = TRUE`)
	if err != nil {
		slog.Error("PostgresStore ListActiveWorkoutSchedules query failed", "error", err)
		return nil, fmt.Errorf("failed to query active schedules: %w", err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

func (s *PostgresStore) UpdateScheduleJobID(phone, jobID string) error {
	_, err := s.db.Exec(`UPDATE workout_schedules SET job_id = $1 WHERE phone = $2`, jobID, phone)
	if err != nil {
		slog.Error("PostgresStore UpdateScheduleJobID failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to update job id for %s: %w", phone, err)
	}
	return nil
}

func (s *PostgresStore) MarkPlanSent(phone string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE workout_schedules SET last_plan_sent = $1 WHERE phone = $2`, at, phone)
	if err != nil {
		slog.Error("PostgresStore MarkPlanSent failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to mark plan sent for %s: %w", phone, err)
	}
	return nil
}

func (s *PostgresStore) DeactivateWorkoutSchedule(phone string) error {
	_, err := s.db.Exec(`UPDATE workout_schedules SET active = FALSE WHERE phone = $1`, phone)
	if err != nil {
		slog.Error("PostgresStore DeactivateWorkoutSchedule failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to deactivate schedule for %s: %w", phone, err)
	}
	return nil
}

func (s *PostgresStore) LogWorkout(l models.WorkoutLog) error {
	_, err := s.db.Exec(`
		INSERT INTO workout_logs (phone, minutes, calories_burned, goal, completed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		l.Phone, l.Minutes, l.CaloriesBurned, nilIfEmpty(l.Goal), l.CompletedAt)
	if err != nil {
		slog.Error("PostgresStore LogWorkout failed", "error", err, "phone", l.Phone)
		return fmt.Errorf("failed to log workout for %s: %w", l.Phone, err)
	}
	return nil
}

func (s *PostgresStore) WeeklyProgress(phone string, since time.Time) (models.WeeklyProgress, error) {
	wp := models.WeeklyProgress{Phone: phone}
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(minutes), 0), COALESCE(SUM(calories_burned), 0)
		FROM workout_logs WHERE phone = $1 AND completed_at >= $2`, phone, since).
		Scan(&wp.Workouts, &wp.TotalMinutes, &wp.Calories)
	if err != nil {
		slog.Error("PostgresStore WeeklyProgress failed", "error", err, "phone", phone)
		return wp, fmt.Errorf("failed to aggregate weekly progress for %s: %w", phone, err)
	}
	return wp, nil
}
