// Package models defines durable record types persisted by the store.
package models

import "time"

// User is an authorization record. Expiry of nil means no expiry.
type User struct {
	Phone      string     `json:"phone"`
	Name       string     `json:"name,omitempty"`
	Authorized bool       `json:"authorized"`
	Admin      bool       `json:"admin"`
	Expiry     *time.Time `json:"expiry,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Tip is one entry in the rotating daily tip catalog.
type Tip struct {
	ID       int64  `json:"id"`
	Text     string `json:"text"`
	Category string `json:"category"`
	Active   bool   `json:"active"`
}

// Streak tracks consecutive workout days for a user.
type Streak struct {
	Phone           string     `json:"phone"`
	CurrentStreak   int        `json:"current_streak"`
	LongestStreak   int        `json:"longest_streak"`
	LastWorkoutDate *time.Time `json:"last_workout_date,omitempty"`
}

// streakLocation returns the location used to bucket workouts into days.
// Streak days are civil days where the user lives, not UTC days.
func streakLocation() *time.Location {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CivilDate returns midnight of t's civil day in loc.
func CivilDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// SameCivilDay reports whether a and b fall on the same civil day in the
// product default timezone.
func SameCivilDay(a, b time.Time) bool {
	loc := streakLocation()
	return CivilDate(a, loc).Equal(CivilDate(b, loc))
}

// AdvanceStreak applies one completed workout on the given day to a streak
// record. The second return reports a new longest-streak record, the third
// that a previous streak was broken. A second workout on the same civil day
// leaves the streak unchanged.
func AdvanceStreak(s Streak, today time.Time) (Streak, bool, bool) {
	loc := streakLocation()
	day := CivilDate(today, loc)
	if s.LastWorkoutDate != nil && CivilDate(*s.LastWorkoutDate, loc).Equal(day) {
		return s, false, false
	}

	broke := false
	if s.LastWorkoutDate != nil && CivilDate(*s.LastWorkoutDate, loc).Equal(day.AddDate(0, 0, -1)) {
		s.CurrentStreak++
	} else {
		broke = s.CurrentStreak > 1
		s.CurrentStreak = 1
	}

	newRecord := s.CurrentStreak > s.LongestStreak
	if newRecord {
		s.LongestStreak = s.CurrentStreak
	}
	s.LastWorkoutDate = &day
	return s, newRecord, broke
}

// WorkoutSchedule is the durable record behind a user's daily-plan job.
// PreferredTime is normalized civil time "HH:MM"; Timezone is an IANA name
// so the trigger follows daylight-saving transitions.
type WorkoutSchedule struct {
	Phone         string     `json:"phone"`
	PreferredTime string     `json:"preferred_time"`
	Timezone      string     `json:"timezone"`
	JobID         string     `json:"job_id,omitempty"`
	Active        bool       `json:"active"`
	LastPlanSent  *time.Time `json:"last_plan_sent,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// WorkoutLog records one completed workout, feeding weekly reports.
type WorkoutLog struct {
	Phone          string    `json:"phone"`
	Minutes        int       `json:"minutes"`
	CaloriesBurned int       `json:"calories_burned"`
	Goal           string    `json:"goal,omitempty"`
	CompletedAt    time.Time `json:"completed_at"`
}

// WeeklyProgress aggregates a user's workout logs over the trailing week.
type WeeklyProgress struct {
	Phone        string `json:"phone"`
	Workouts     int    `json:"workouts"`
	TotalMinutes int    `json:"total_minutes"`
	Calories     int    `json:"calories"`
}
