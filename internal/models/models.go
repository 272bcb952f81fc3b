// Package models defines core data structures shared across FitPulse components.
package models

import (
	"errors"
	"time"
)

// Validation and dispatch errors shared across packages.
var (
	ErrEmptyRecipient = errors.New("recipient cannot be empty")
	ErrEmptyBody      = errors.New("message body cannot be empty")
	ErrNotAuthorized  = errors.New("phone number is not authorized")
	ErrNoProfile      = errors.New("no profile found for phone number")
)

// PartialRecord maps a stage's fixed field names to extracted values.
// A nil value means the field was not present in the utterance.
type PartialRecord map[string]*string

// Profile is the durable, authoritative record of a user's questionnaire
// answers. Weight and height keep the user's original unit strings verbatim
// ("75kg" stays "75kg"); BMI is derived, not user-supplied.
type Profile struct {
	Phone             string    `json:"phone"`
	Name              string    `json:"name,omitempty"`
	Age               string    `json:"age,omitempty"`
	Gender            string    `json:"gender,omitempty"`
	Weight            string    `json:"weight,omitempty"`
	Height            string    `json:"height,omitempty"`
	BMI               *float64  `json:"bmi,omitempty"`
	FitnessGoal       string    `json:"fitness_goal,omitempty"`
	MedicalConditions string    `json:"medical_conditions,omitempty"`
	Injuries          string    `json:"injuries,omitempty"`
	Allergies         string    `json:"allergies,omitempty"`
	DietPreference    string    `json:"diet_preference,omitempty"`
	ActivityLevel     string    `json:"activity_level,omitempty"`
	StressLevel       string    `json:"stress_level,omitempty"`
	WorkoutDuration   string    `json:"workout_duration,omitempty"`
	WorkoutLocation   string    `json:"workout_location,omitempty"`
	WorkoutTime       string    `json:"workout_time,omitempty"`
	ExercisesToAvoid  string    `json:"exercises_to_avoid,omitempty"`
	Completed         bool      `json:"completed"`
	Confirmed         bool      `json:"confirmed"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Field returns the value of the named profile field, or "" if unset or the
// name is not a known field.
func (p *Profile) Field(name string) string {
	switch name {
	case FieldName:
		return p.Name
	case FieldAge:
		return p.Age
	case FieldGender:
		return p.Gender
	case FieldWeight:
		return p.Weight
	case FieldHeight:
		return p.Height
	case FieldFitnessGoal:
		return p.FitnessGoal
	case FieldMedicalConditions:
		return p.MedicalConditions
	case FieldInjuries:
		return p.Injuries
	case FieldAllergies:
		return p.Allergies
	case FieldDietPreference:
		return p.DietPreference
	case FieldActivityLevel:
		return p.ActivityLevel
	case FieldStressLevel:
		return p.StressLevel
	case FieldWorkoutDuration:
		return p.WorkoutDuration
	case FieldWorkoutLocation:
		return p.WorkoutLocation
	case FieldWorkoutTime:
		return p.WorkoutTime
	case FieldExercisesToAvoid:
		return p.ExercisesToAvoid
	}
	return ""
}

// SetField sets the named profile field. Unknown names are ignored.
func (p *Profile) SetField(name, value string) {
	switch name {
	case FieldName:
		p.Name = value
	case FieldAge:
		p.Age = value
	case FieldGender:
		p.Gender = value
	case FieldWeight:
		p.Weight = value
	case FieldHeight:
		p.Height = value
	case FieldFitnessGoal:
		p.FitnessGoal = value
	case FieldMedicalConditions:
		p.MedicalConditions = value
	case FieldInjuries:
		p.Injuries = value
	case FieldAllergies:
		p.Allergies = value
	case FieldDietPreference:
		p.DietPreference = value
	case FieldActivityLevel:
		p.ActivityLevel = value
	case FieldStressLevel:
		p.StressLevel = value
	case FieldWorkoutDuration:
		p.WorkoutDuration = value
	case FieldWorkoutLocation:
		p.WorkoutLocation = value
	case FieldWorkoutTime:
		p.WorkoutTime = value
	case FieldExercisesToAvoid:
		p.ExercisesToAvoid = value
	}
}

// Merge folds a partial record into the profile. Non-nil values overwrite;
// nil values never clear an existing field. Merging is idempotent.
func (p *Profile) Merge(rec PartialRecord) {
	for name, val := range rec {
		if val == nil || *val == "" {
			continue
		}
		p.SetField(name, *val)
	}
}

// MissingFields returns the stage-required fields that are still unset, in
// the stage's canonical field order.
func (p *Profile) MissingFields(stage Stage) []string {
	var missing []string
	for _, f := range RequiredFields(stage) {
		if p.Field(f) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// BroadcastSummary tallies the outcome of a broadcast job run. Rate-limited
// sends are counted separately from generic failures for operational
// visibility.
type BroadcastSummary struct {
	Sent        int `json:"sent"`
	Failed      int `json:"failed"`
	RateLimited int `json:"rate_limited"`
}
