package onboarding

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/FitPulse/internal/models"
)

// stageIntros greet the user on entry to each stage. Reply "skip" anywhere to
// accept defaults for that step.
var stageIntros = map[models.Stage]string{
	models.StagePersonalize:  "Great, nice to meet you! 🏋️ Now tell me your weight, height, and main fitness goal (e.g. \"75kg, 180cm, build muscle\"). Reply \"skip\" to use defaults.",
	models.StageHealth:       "Thanks! Any medical conditions, injuries, or allergies I should know about? Reply \"skip\" if none.",
	models.StageLifestyle:    "Almost there! What's your diet preference (veg/non-veg/mixed), how active are you day to day, and how would you rate your stress level?",
	models.StageWorkoutPrefs: "Last step! 💪 How long can you work out per session, where will you train (home/gym/outdoors), and what time of day suits you? Mention any exercises to avoid.",
}

// WelcomePrompt opens the conversation for a brand-new user.
const WelcomePrompt = "👋 Welcome to FitPulse, your personal fitness coach on WhatsApp! Let's set up your profile. First, what's your name, age, and gender?"

// stageIntro returns the greeting for a stage the conversation just entered.
func stageIntro(stage models.Stage) string {
	if intro, ok := stageIntros[stage]; ok {
		return intro
	}
	return WelcomePrompt
}

// humanize turns a field name like "fitness_goal" into "fitness goal".
func humanize(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}

// missingFieldsPrompt names exactly the fields still needed, nothing else.
func missingFieldsPrompt(stage models.Stage, missing []string) string {
	labels := make([]string, len(missing))
	for i, f := range missing {
		labels[i] = humanize(f)
	}
	if len(labels) == 1 {
		return fmt.Sprintf("Almost! I still need your %s. Could you share it?", labels[0])
	}
	return fmt.Sprintf("Almost! I still need your %s and %s. Could you share them?",
		strings.Join(labels[:len(labels)-1], ", "), labels[len(labels)-1])
}

// backwardPrompt explains the jump back to the personalize step when the
// checkpoint finds critical fields missing.
func backwardPrompt(p *models.Profile) string {
	var missing []string
	if p.Weight == "" {
		missing = append(missing, "weight")
	}
	if p.Height == "" {
		missing = append(missing, "height")
	}
	if p.FitnessGoal == "" {
		missing = append(missing, "fitness goal")
	}
	return fmt.Sprintf("One thing before we finish — I can't build a good plan without your %s. Let's go back for a moment: please share %s.",
		strings.Join(missing, ", "), strings.Join(missing, ", "))
}

// profileSummary renders the profile as a WhatsApp-friendly card.
func profileSummary(p *models.Profile) string {
	var b strings.Builder
	b.WriteString("📋 *Your FitPulse profile*\n")
	write := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "• %s: %s\n", label, value)
		}
	}
	write("Name", p.Name)
	write("Age", p.Age)
	write("Gender", p.Gender)
	write("Weight", p.Weight)
	write("Height", p.Height)
	if p.BMI != nil {
		fmt.Fprintf(&b, "• BMI: %.1f\n", *p.BMI)
	}
	write("Goal", p.FitnessGoal)
	write("Medical conditions", p.MedicalConditions)
	write("Injuries", p.Injuries)
	write("Allergies", p.Allergies)
	write("Diet", p.DietPreference)
	write("Activity level", p.ActivityLevel)
	write("Stress level", p.StressLevel)
	write("Workout duration", p.WorkoutDuration)
	write("Workout location", p.WorkoutLocation)
	write("Workout time", p.WorkoutTime)
	write("Exercises to avoid", p.ExercisesToAvoid)
	return strings.TrimRight(b.String(), "\n")
}
