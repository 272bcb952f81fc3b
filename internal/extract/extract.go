// Package extract turns free-form user utterances into partial structured
// records for a given onboarding stage.
//
// The primary path asks the LLM capability for a strict JSON object with
// exactly the stage's field names as keys. Decoding is a separate step from
// prompt construction so the fallback and confidence-gating logic can be
// tested without invoking the capability. Parse failures degrade to an
// all-null record; only reminder parsing has a structured second chance
// (the deterministic regex fallback in reminder.go).
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/BTreeMap/FitPulse/internal/genai"
	"github.com/BTreeMap/FitPulse/internal/models"
)

// Extractor implements the field-extraction contract over a completion
// capability.
type Extractor struct {
	completer genai.Completer
}

// NewExtractor creates an extractor over the given completion capability.
func NewExtractor(c genai.Completer) *Extractor {
	return &Extractor{completer: c}
}

// Extract maps one utterance to a partial record for the stage. The returned
// record contains only keys in the stage's fixed field set; on any capability
// or parse failure every field is null. Repeated calls with identical input
// yield semantically equivalent output.
func (e *Extractor) Extract(ctx context.Context, stage models.Stage, utterance string) models.PartialRecord {
	prompt, ok := stagePrompts[stage]
	if !ok {
		slog.Warn("Extractor.Extract: no prompt for stage", "stage", stage)
		return models.EmptyRecord(stage)
	}

	raw, err := e.completer.Complete(ctx, extractionSystemPrompt, fmt.Sprintf("%s\n\nUser message: %q", prompt, utterance))
	if err != nil {
		slog.Error("Extractor.Extract: completion failed", "error", err, "stage", stage)
		return models.EmptyRecord(stage)
	}

	rec, err := DecodeRecord(raw, stage)
	if err != nil {
		slog.Warn("Extractor.Extract: decode failed, degrading to empty record", "error", err, "stage", stage)
		return models.EmptyRecord(stage)
	}
	return rec
}

// StripFences removes a surrounding markdown code fence, with or without a
// language tag, from a completion.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop a language tag like "json" on the opening fence line.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if len(first) <= 10 && !strings.ContainsAny(first, "{}[]") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ExtractUpdate maps a post-onboarding update request to a partial record
// over the full profile field set.
func (e *Extractor) ExtractUpdate(ctx context.Context, utterance string) models.PartialRecord {
	fields := models.AllProfileFields()
	raw, err := e.completer.Complete(ctx, extractionSystemPrompt, fmt.Sprintf("%s\n\nUser message: %q", updatePrompt, utterance))
	if err != nil {
		slog.Error("Extractor.ExtractUpdate: completion failed", "error", err)
		return emptyRecordFor(fields)
	}
	rec, err := decodeFields(raw, fields)
	if err != nil {
		slog.Warn("Extractor.ExtractUpdate: decode failed", "error", err)
		return emptyRecordFor(fields)
	}
	return rec
}

// DecodeRecord strictly decodes a completion into the stage's fixed field
// set. Keys outside the set are dropped; keys missing from the completion are
// null. Number values are converted to their decimal string form so "age": 29
// and "age": "29" are equivalent.
func DecodeRecord(raw string, stage models.Stage) (models.PartialRecord, error) {
	return decodeFields(raw, models.StageFields(stage))
}

func emptyRecordFor(fields []string) models.PartialRecord {
	rec := make(models.PartialRecord, len(fields))
	for _, f := range fields {
		rec[f] = nil
	}
	return rec
}

func decodeFields(raw string, fields []string) (models.PartialRecord, error) {
	cleaned := StripFences(raw)
	var parsed map[string]any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("completion is not a JSON object: %w", err)
	}

	rec := emptyRecordFor(fields)
	for _, field := range fields {
		val, ok := parsed[field]
		if !ok || val == nil {
			continue
		}
		switch v := val.(type) {
		case string:
			trimmed := strings.TrimSpace(v)
			if trimmed == "" || strings.EqualFold(trimmed, "null") {
				continue
			}
			rec[field] = &trimmed
		case float64:
			s := strconv.FormatFloat(v, 'f', -1, 64)
			rec[field] = &s
		default:
			// Booleans or nested objects mean the model drifted off
			// contract for this key; treat as absent.
			slog.Debug("decodeFields: dropping off-contract value", "field", field)
		}
	}
	return rec, nil
}
