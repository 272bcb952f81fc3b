package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/BTreeMap/FitPulse/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nullableTime converts an optional time into a driver-friendly value.
func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func scanUserRow(row *sql.Row) (*models.User, error) {
	var u models.User
	var name sql.NullString
	var expiry sql.NullTime
	if err := row.Scan(&u.Phone, &name, &u.Authorized, &u.Admin, &expiry, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Name = name.String
	if expiry.Valid {
		u.Expiry = &expiry.Time
	}
	return &u, nil
}

func collectUsers(rows *sql.Rows) ([]models.User, error) {
	var users []models.User
	for rows.Next() {
		var u models.User
		var name sql.NullString
		var expiry sql.NullTime
		if err := rows.Scan(&u.Phone, &name, &u.Authorized, &u.Admin, &expiry, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		u.Name = name.String
		if expiry.Valid {
			u.Expiry = &expiry.Time
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanProfileRow(row *sql.Row) (*models.Profile, error) {
	var p models.Profile
	var strs [16]sql.NullString
	var bmi sql.NullFloat64
	err := row.Scan(&p.Phone,
		&strs[0], &strs[1], &strs[2], &strs[3], &strs[4], &bmi, &strs[5],
		&strs[6], &strs[7], &strs[8], &strs[9], &strs[10], &strs[11],
		&strs[12], &strs[13], &strs[14], &strs[15],
		&p.Completed, &p.Confirmed, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Name, p.Age, p.Gender = strs[0].String, strs[1].String, strs[2].String
	p.Weight, p.Height, p.FitnessGoal = strs[3].String, strs[4].String, strs[5].String
	p.MedicalConditions, p.Injuries, p.Allergies = strs[6].String, strs[7].String, strs[8].String
	p.DietPreference, p.ActivityLevel, p.StressLevel = strs[9].String, strs[10].String, strs[11].String
	p.WorkoutDuration, p.WorkoutLocation, p.WorkoutTime = strs[12].String, strs[13].String, strs[14].String
	p.ExercisesToAvoid = strs[15].String
	if bmi.Valid {
		p.BMI = &bmi.Float64
	}
	return &p, nil
}

func scanScheduleRow(row *sql.Row) (*models.WorkoutSchedule, error) {
	var ws models.WorkoutSchedule
	var jobID sql.NullString
	var lastSent sql.NullTime
	if err := row.Scan(&ws.Phone, &ws.PreferredTime, &ws.Timezone, &jobID, &ws.Active, &lastSent, &ws.CreatedAt); err != nil {
		return nil, err
	}
	ws.JobID = jobID.String
	if lastSent.Valid {
		ws.LastPlanSent = &lastSent.Time
	}
	return &ws, nil
}

func collectSchedules(rows *sql.Rows) ([]models.WorkoutSchedule, error) {
	var schedules []models.WorkoutSchedule
	for rows.Next() {
		var ws models.WorkoutSchedule
		var jobID sql.NullString
		var lastSent sql.NullTime
		if err := rows.Scan(&ws.Phone, &ws.PreferredTime, &ws.Timezone, &jobID, &ws.Active, &lastSent, &ws.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan schedule row: %w", err)
		}
		ws.JobID = jobID.String
		if lastSent.Valid {
			ws.LastPlanSent = &lastSent.Time
		}
		schedules = append(schedules, ws)
	}
	return schedules, rows.Err()
}
