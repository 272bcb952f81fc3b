package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultTimezone is assumed for daily-plan schedules when a user never
// states one.
const DefaultTimezone = "Asia/Kolkata"

// DefaultWorkoutClock is the civil time used when a workout-time preference
// cannot be resolved.
const DefaultWorkoutClock = "07:00"

// workoutPresets maps textual time-of-day preferences to civil clock times.
var workoutPresets = []struct {
	keyword string
	clock   string
}{
	{"early morning", "05:00"},
	{"morning", "07:00"},
	{"afternoon", "14:00"},
	{"evening", "18:00"},
	{"night", "20:00"},
	{"flexible", "07:00"},
}

var clockRe = regexp.MustCompile(`(\d{1,2})(?::(\d{2}))?\s*(am|pm)?`)

// NormalizeWorkoutTime resolves a free-text workout-time preference
// ("morning", "around 6:30 pm", "Flexible") to a civil "HH:MM" string.
// Unresolvable input falls back to DefaultWorkoutClock.
func NormalizeWorkoutTime(pref string) string {
	lowered := strings.ToLower(strings.TrimSpace(pref))
	if lowered == "" {
		return DefaultWorkoutClock
	}
	for _, preset := range workoutPresets {
		if strings.Contains(lowered, preset.keyword) {
			return preset.clock
		}
	}
	if m := clockRe.FindStringSubmatch(lowered); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		switch m[3] {
		case "pm":
			if hour != 12 {
				hour += 12
			}
		case "am":
			if hour == 12 {
				hour = 0
			}
		}
		if hour >= 0 && hour <= 23 && minute >= 0 && minute <= 59 {
			return fmt.Sprintf("%02d:%02d", hour, minute)
		}
	}
	return DefaultWorkoutClock
}

// ParseClock splits a normalized "HH:MM" civil time into components.
func ParseClock(clock string) (hour, minute int, err error) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid clock time %q", clock)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid clock time %q", clock)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid clock time %q", clock)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("clock time %q out of range", clock)
	}
	return hour, minute, nil
}

var (
	weightRe   = regexp.MustCompile(`([\d.]+)\s*(kg|kgs|kilograms?|lb|lbs|pounds?)?`)
	heightFtRe = regexp.MustCompile(`(\d+)\s*(?:'|ft|feet)\s*(\d+)?`)
	heightRe   = regexp.MustCompile(`([\d.]+)\s*(cm|m|meters?|in|inches)?`)
)

// ComputeBMI derives a BMI value from the verbatim weight and height strings
// a user supplied, tolerating mixed units ("75kg", "165 lbs", "5'8", "180cm").
// It returns nil when either value cannot be interpreted.
func ComputeBMI(weight, height string) *float64 {
	kg := parseWeightKg(weight)
	meters := parseHeightMeters(height)
	if kg <= 0 || meters <= 0 {
		return nil
	}
	bmi := kg / (meters * meters)
	if bmi < 8 || bmi > 100 {
		return nil
	}
	rounded := float64(int(bmi*10+0.5)) / 10
	return &rounded
}

func parseWeightKg(weight string) float64 {
	m := weightRe.FindStringSubmatch(strings.ToLower(weight))
	if m == nil {
		return 0
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	if strings.HasPrefix(m[2], "lb") || strings.HasPrefix(m[2], "pound") {
		value *= 0.453592
	}
	return value
}

func parseHeightMeters(height string) float64 {
	lowered := strings.ToLower(height)
	if m := heightFtRe.FindStringSubmatch(lowered); m != nil {
		feet, _ := strconv.Atoi(m[1])
		inches := 0
		if m[2] != "" {
			inches, _ = strconv.Atoi(m[2])
		}
		return (float64(feet)*12 + float64(inches)) * 0.0254
	}
	m := heightRe.FindStringSubmatch(lowered)
	if m == nil {
		return 0
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	switch {
	case m[2] == "cm":
		return value / 100
	case strings.HasPrefix(m[2], "m"):
		return value
	case strings.HasPrefix(m[2], "in"):
		return value * 0.0254
	}
	// Unit omitted: values above 3 read as centimeters, below as meters.
	if value > 3 {
		return value / 100
	}
	return value
}
