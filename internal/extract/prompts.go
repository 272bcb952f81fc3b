package extract

import "github.com/BTreeMap/FitPulse/internal/models"

// extractionSystemPrompt governs every stage-extraction request. The verbatim
// unit rule matters: downstream plan generation expects the user's own unit
// strings, so "75kg" must survive as "75kg", never "75".
const extractionSystemPrompt = `You extract structured fitness-profile fields from a single user message.
Respond with ONLY a JSON object, no prose and no code fences.
Use exactly the keys you are given. For any field the message does not mention, use null.
Never guess or invent values.
Keep weight and height EXACTLY as the user wrote them, including units:
"75kg" stays "75kg", "165 lbs" stays "165 lbs", "5'8" stays "5'8", "180cm" stays "180cm".`

// stagePrompts are the per-stage instructions sent with the utterance.
var stagePrompts = map[models.Stage]string{
	models.StageBasic: `Extract the user's basic details.
Keys: "name", "age", "gender".
Age may be written as digits or words; return it as the user gave it.`,

	models.StagePersonalize: `Extract the user's body metrics and goal.
Keys: "weight", "height", "fitness_goal".
Typical goals: weight loss, muscle gain, endurance, flexibility, overall fitness.`,

	models.StageHealth: `Extract the user's health background.
Keys: "medical_conditions", "injuries", "allergies".
If the user says they have none, return the string "None" for that key.`,

	models.StageLifestyle: `Extract the user's lifestyle details.
Keys: "diet_preference", "activity_level", "stress_level".
Diet examples: Vegetarian, Vegan, Non-Vegetarian, Mixed, Keto.
Activity examples: Sedentary, Lightly Active, Moderately Active, Very Active.
Stress examples: Low, Moderate, High.`,

	models.StageWorkoutPrefs: `Extract the user's workout preferences.
Keys: "workout_duration", "workout_location", "workout_time", "exercises_to_avoid".
Duration examples: "15 minutes", "30 minutes", "1 hour".
Location examples: Home, Gym, Outdoors.
workout_time is when they prefer to train, e.g. "7am", "evening", "Flexible".`,
}

// reminderPrompt asks for the reminder-parsing contract of reminder.go.
const reminderPrompt = `Parse a reminder request into JSON with exactly these keys:
"task": what to remind about, without the time phrase,
"time_type": "relative" or "absolute",
"relative_amount": number (only for relative, else null),
"relative_unit": "seconds", "minutes", "hours" or "days" (only for relative, else null),
"absolute_hour": 0-23 (only for absolute, else null),
"absolute_minute": 0-59 (only for absolute, else null),
"is_tomorrow": true if the user said tomorrow,
"confidence": 0.0-1.0, how sure you are about the parsed time.
Respond with ONLY the JSON object.`

// updatePrompt extracts profile-update fields from a post-onboarding message.
const updatePrompt = `The user wants to update their fitness profile. Extract only the fields they
mention. Keys: "name", "age", "gender", "weight", "height", "fitness_goal",
"medical_conditions", "injuries", "allergies", "diet_preference",
"activity_level", "stress_level", "workout_duration", "workout_location",
"workout_time", "exercises_to_avoid". Use null for everything not mentioned.
Keep weight and height exactly as written, including units.
Respond with ONLY the JSON object.`
