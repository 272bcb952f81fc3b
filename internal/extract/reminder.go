package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultTaskLabel substitutes when a reminder's task text is empty after
// stripping the time phrase.
const DefaultTaskLabel = "Your reminder"

// MinReminderConfidence gates the LLM path: parses below this score fall
// through to the regex fallback even when the JSON was well-formed.
const MinReminderConfidence = 0.5

// ReminderSpec is the JSON contract the LLM returns for reminder requests.
type ReminderSpec struct {
	Task           string   `json:"task"`
	TimeType       string   `json:"time_type"` // "relative" or "absolute"
	RelativeAmount *float64 `json:"relative_amount"`
	RelativeUnit   string   `json:"relative_unit"`
	AbsoluteHour   *int     `json:"absolute_hour"`
	AbsoluteMinute *int     `json:"absolute_minute"`
	IsTomorrow     bool     `json:"is_tomorrow"`
	Confidence     float64  `json:"confidence"`
}

// ParseReminder resolves a reminder request into a task and fire time.
// The LLM path runs first; malformed output, resolution failure or a
// confidence below MinReminderConfidence falls back to the deterministic
// regex parser. Returns ok=false when neither path matches, which the caller
// must treat as a hard failure and answer with usage examples.
func (e *Extractor) ParseReminder(ctx context.Context, utterance string, now time.Time) (string, time.Time, bool) {
	raw, err := e.completer.Complete(ctx, reminderPrompt, utterance)
	if err != nil {
		slog.Warn("Extractor.ParseReminder: completion failed, using fallback", "error", err)
		return ParseReminderFallback(utterance, now)
	}

	spec, err := DecodeReminderSpec(raw)
	if err != nil {
		slog.Warn("Extractor.ParseReminder: decode failed, using fallback", "error", err)
		return ParseReminderFallback(utterance, now)
	}
	if spec.Confidence < MinReminderConfidence {
		slog.Debug("Extractor.ParseReminder: low confidence, using fallback", "confidence", spec.Confidence)
		return ParseReminderFallback(utterance, now)
	}

	fireAt, err := spec.Resolve(now)
	if err != nil {
		slog.Warn("Extractor.ParseReminder: unresolvable spec, using fallback", "error", err)
		return ParseReminderFallback(utterance, now)
	}

	task := strings.TrimSpace(spec.Task)
	if task == "" {
		task = DefaultTaskLabel
	}
	return task, fireAt, true
}

// DecodeReminderSpec strictly decodes the reminder JSON contract.
func DecodeReminderSpec(raw string) (ReminderSpec, error) {
	var spec ReminderSpec
	if err := json.Unmarshal([]byte(StripFences(raw)), &spec); err != nil {
		return spec, fmt.Errorf("reminder completion is not valid JSON: %w", err)
	}
	return spec, nil
}

// Resolve converts the spec into an absolute fire time relative to now.
// Absolute civil times already in the past roll forward one day.
func (spec ReminderSpec) Resolve(now time.Time) (time.Time, error) {
	switch spec.TimeType {
	case "relative":
		if spec.RelativeAmount == nil || *spec.RelativeAmount <= 0 {
			return time.Time{}, fmt.Errorf("relative reminder missing amount")
		}
		unit, err := reminderUnit(spec.RelativeUnit)
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(time.Duration(*spec.RelativeAmount * float64(unit))), nil

	case "absolute":
		if spec.AbsoluteHour == nil {
			return time.Time{}, fmt.Errorf("absolute reminder missing hour")
		}
		hour := *spec.AbsoluteHour
		minute := 0
		if spec.AbsoluteMinute != nil {
			minute = *spec.AbsoluteMinute
		}
		if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			return time.Time{}, fmt.Errorf("absolute reminder time out of range: %d:%d", hour, minute)
		}
		fireAt := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		if spec.IsTomorrow {
			fireAt = fireAt.AddDate(0, 0, 1)
		}
		if !fireAt.After(now) {
			fireAt = fireAt.AddDate(0, 0, 1)
		}
		return fireAt, nil
	}
	return time.Time{}, fmt.Errorf("unknown time_type %q", spec.TimeType)
}

func reminderUnit(unit string) (time.Duration, error) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(unit)), "s") {
	case "second":
		return time.Second, nil
	case "minute":
		return time.Minute, nil
	case "hour":
		return time.Hour, nil
	case "day":
		return 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unknown relative unit %q", unit)
}

// The two grammars the fallback recognizes, tried in order.
var (
	relativeRe = regexp.MustCompile(`(?i)\bin\s+(\d+)\s*(second|minute|hour|day)s?\b`)
	absoluteRe = regexp.MustCompile(`(?i)\bat\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)

	leadingImperativeRe = regexp.MustCompile(`(?i)^(please\s+)?(remind\s+me\s+to|remind\s+me|remind|set\s+a\s+reminder\s+to|set\s+a\s+reminder|set\s+reminder\s+to|set\s+reminder)\s*`)
	leadingConnectorRe  = regexp.MustCompile(`(?i)^(to|for|about)\s+`)
)

// ParseReminderFallback is the deterministic second-chance parser. It
// recognizes exactly two grammars: "in N <unit>" and "at H[:MM][am|pm]".
func ParseReminderFallback(utterance string, now time.Time) (string, time.Time, bool) {
	if m := relativeRe.FindStringSubmatch(utterance); m != nil {
		amount, err := strconv.Atoi(m[1])
		if err != nil || amount <= 0 {
			return "", time.Time{}, false
		}
		unit, err := reminderUnit(m[2])
		if err != nil {
			return "", time.Time{}, false
		}
		task := reminderTask(utterance, m[0])
		return task, now.Add(time.Duration(amount) * unit), true
	}

	if m := absoluteRe.FindStringSubmatch(utterance); m != nil {
		hour, err := strconv.Atoi(m[1])
		if err != nil {
			return "", time.Time{}, false
		}
		minute := 0
		if m[2] != "" {
			if minute, err = strconv.Atoi(m[2]); err != nil {
				return "", time.Time{}, false
			}
		}
		switch strings.ToLower(m[3]) {
		case "pm":
			if hour != 12 {
				hour += 12
			}
		case "am":
			if hour == 12 {
				hour = 0
			}
		}
		if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			return "", time.Time{}, false
		}
		fireAt := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		if !fireAt.After(now) {
			fireAt = fireAt.AddDate(0, 0, 1)
		}
		task := reminderTask(utterance, m[0])
		return task, fireAt, true
	}

	return "", time.Time{}, false
}

// reminderTask strips the matched time phrase and any leading imperative from
// the utterance, substituting DefaultTaskLabel when nothing is left.
func reminderTask(utterance, timePhrase string) string {
	task := strings.Replace(utterance, timePhrase, " ", 1)
	task = leadingImperativeRe.ReplaceAllString(strings.TrimSpace(task), "")
	task = leadingConnectorRe.ReplaceAllString(strings.TrimSpace(task), "")
	task = strings.Trim(strings.TrimSpace(task), ".,!")
	if task == "" {
		return DefaultTaskLabel
	}
	return task
}
