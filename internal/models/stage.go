// Package models defines onboarding stage definitions to avoid circular imports.
package models

// Stage represents one discrete step of the onboarding conversation.
type Stage string

// Onboarding stages, in conversation order.
const (
	StageBasic        Stage = "basic"
	StagePersonalize  Stage = "personalize"
	StageHealth       Stage = "health"
	StageLifestyle    Stage = "lifestyle"
	StageWorkoutPrefs Stage = "workout_prefs"
	StageDone         Stage = "done"
)

// Profile field names. These are the JSON keys the extractor asks the model
// for, so they must stay in sync with the extraction prompts.
const (
	FieldName              = "name"
	FieldAge               = "age"
	FieldGender            = "gender"
	FieldWeight            = "weight"
	FieldHeight            = "height"
	FieldFitnessGoal       = "fitness_goal"
	FieldMedicalConditions = "medical_conditions"
	FieldInjuries          = "injuries"
	FieldAllergies         = "allergies"
	FieldDietPreference    = "diet_preference"
	FieldActivityLevel     = "activity_level"
	FieldStressLevel       = "stress_level"
	FieldWorkoutDuration   = "workout_duration"
	FieldWorkoutLocation   = "workout_location"
	FieldWorkoutTime       = "workout_time"
	FieldExercisesToAvoid  = "exercises_to_avoid"
)

// stageFields is the fixed field set the extractor may return per stage.
var stageFields = map[Stage][]string{
	StageBasic:        {FieldName, FieldAge, FieldGender},
	StagePersonalize:  {FieldWeight, FieldHeight, FieldFitnessGoal},
	StageHealth:       {FieldMedicalConditions, FieldInjuries, FieldAllergies},
	StageLifestyle:    {FieldDietPreference, FieldActivityLevel, FieldStressLevel},
	StageWorkoutPrefs: {FieldWorkoutDuration, FieldWorkoutLocation, FieldWorkoutTime, FieldExercisesToAvoid},
}

// requiredFields is the subset of stageFields that must be non-null before
// the stage may advance. Health is fully optional; workout_time and
// exercises_to_avoid default rather than block.
var requiredFields = map[Stage][]string{
	StageBasic:        {FieldName, FieldAge, FieldGender},
	StagePersonalize:  {FieldWeight, FieldHeight, FieldFitnessGoal},
	StageHealth:       {},
	StageLifestyle:    {FieldDietPreference, FieldActivityLevel, FieldStressLevel},
	StageWorkoutPrefs: {FieldWorkoutDuration, FieldWorkoutLocation},
}

// skipDefaults substitutes for each stage when the user sends the skip
// directive. Health and exercises_to_avoid default to the literal "None".
var skipDefaults = map[Stage]map[string]string{
	StagePersonalize: {
		FieldWeight:      "70kg",
		FieldHeight:      "5'8\"",
		FieldFitnessGoal: "overall fitness",
	},
	StageHealth: {
		FieldMedicalConditions: "None",
		FieldInjuries:          "None",
		FieldAllergies:         "None",
	},
	StageLifestyle: {
		FieldDietPreference: "Mixed",
		FieldActivityLevel:  "Moderately Active",
		FieldStressLevel:    "Moderate",
	},
	StageWorkoutPrefs: {
		FieldWorkoutDuration:  "30 minutes",
		FieldWorkoutLocation:  "Home",
		FieldWorkoutTime:      "Flexible",
		FieldExercisesToAvoid: "None",
	},
}

// StageFields returns the fixed field set for a stage. The returned slice
// must not be modified.
func StageFields(stage Stage) []string {
	return stageFields[stage]
}

// RequiredFields returns the fields that must be set before stage advances.
func RequiredFields(stage Stage) []string {
	return requiredFields[stage]
}

// SkipDefaults returns the default values applied when a stage is skipped.
func SkipDefaults(stage Stage) map[string]string {
	return skipDefaults[stage]
}

// AllProfileFields returns every extractable profile field name, in stage
// order. Used by post-onboarding profile updates, which are not bound to a
// single stage's field set.
func AllProfileFields() []string {
	var fields []string
	for _, stage := range []Stage{StageBasic, StagePersonalize, StageHealth, StageLifestyle, StageWorkoutPrefs} {
		fields = append(fields, stageFields[stage]...)
	}
	return fields
}

var stageOrder = map[Stage]int{
	StageBasic:        0,
	StagePersonalize:  1,
	StageHealth:       2,
	StageLifestyle:    3,
	StageWorkoutPrefs: 4,
	StageDone:         5,
}

// After reports whether s comes later than other in the onboarding order.
func (s Stage) After(other Stage) bool {
	return stageOrder[s] > stageOrder[other]
}

// NextStage returns the stage that follows s in the onboarding order.
// StageDone is terminal and returns itself.
func NextStage(s Stage) Stage {
	switch s {
	case StageBasic:
		return StagePersonalize
	case StagePersonalize:
		return StageHealth
	case StageHealth:
		return StageLifestyle
	case StageLifestyle:
		return StageWorkoutPrefs
	case StageWorkoutPrefs:
		return StageDone
	}
	return StageDone
}

// EmptyRecord returns a PartialRecord with every field of the stage present
// and nil. Extraction failures degrade to this shape.
func EmptyRecord(stage Stage) PartialRecord {
	rec := make(PartialRecord, len(stageFields[stage]))
	for _, f := range stageFields[stage] {
		rec[f] = nil
	}
	return rec
}
