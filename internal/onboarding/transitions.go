package onboarding

import "github.com/BTreeMap/FitPulse/internal/models"

// transitionRule is one row of the state machine: from a stage, if the guard
// holds, move to the target stage, running the action on the way out.
type transitionRule struct {
	from   models.Stage
	guard  func(*models.Profile) bool
	to     models.Stage
	action func(*models.Profile)
}

// stageComplete builds a guard that passes when every required field of the
// stage is set.
func stageComplete(stage models.Stage) func(*models.Profile) bool {
	return func(p *models.Profile) bool {
		return len(p.MissingFields(stage)) == 0
	}
}

// missingCritical reports whether the upstream-critical personalize fields
// are absent. A fast skip through personalize can leave these null; the
// checkpoint routes the conversation back rather than persisting an unusable
// profile.
func missingCritical(p *models.Profile) bool {
	return p.Weight == "" || p.Height == "" || p.FitnessGoal == ""
}

// transitionTable is evaluated top to bottom; the first rule whose from-stage
// and guard match wins. The backward escape hatch out of workout_prefs is an
// ordinary row, deliberately listed before the forward one.
var transitionTable = []transitionRule{
	{from: models.StageBasic, guard: stageComplete(models.StageBasic), to: models.StagePersonalize},
	{from: models.StagePersonalize, guard: stageComplete(models.StagePersonalize), to: models.StageHealth},
	{from: models.StageHealth, guard: stageComplete(models.StageHealth), to: models.StageLifestyle},
	{from: models.StageLifestyle, guard: stageComplete(models.StageLifestyle), to: models.StageWorkoutPrefs},
	{
		from: models.StageWorkoutPrefs,
		guard: func(p *models.Profile) bool {
			return stageComplete(models.StageWorkoutPrefs)(p) && missingCritical(p)
		},
		to: models.StagePersonalize,
	},
	{
		from: models.StageWorkoutPrefs,
		guard: func(p *models.Profile) bool {
			return stageComplete(models.StageWorkoutPrefs)(p) && !missingCritical(p)
		},
		to:     models.StageDone,
		action: applyWorkoutPrefDefaults,
	},
}

// applyWorkoutPrefDefaults fills the non-blocking workout_prefs fields:
// workout_time falls back to the "Flexible" sentinel, exercises_to_avoid to
// "None".
func applyWorkoutPrefDefaults(p *models.Profile) {
	if p.WorkoutTime == "" {
		p.WorkoutTime = "Flexible"
	}
	if p.ExercisesToAvoid == "" {
		p.ExercisesToAvoid = "None"
	}
}

// advance consults the transition table. It returns the current stage
// unchanged when no rule fires.
func advance(p *models.Profile, stage models.Stage) models.Stage {
	for _, rule := range transitionTable {
		if rule.from != stage {
			continue
		}
		if !rule.guard(p) {
			continue
		}
		if rule.action != nil {
			rule.action(p)
		}
		return rule.to
	}
	return stage
}
