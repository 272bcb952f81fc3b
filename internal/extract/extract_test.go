package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/FitPulse/internal/genai"
	"github.com/BTreeMap/FitPulse/internal/models"
)

// MockCompleter returns a scripted completion or error.
type MockCompleter struct {
	Response   string
	Err        error
	LastSystem string
	LastUser   string
}

func (m *MockCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.LastSystem = systemPrompt
	m.LastUser = userPrompt
	return m.Response, m.Err
}

func (m *MockCompleter) CompleteWithHistory(ctx context.Context, systemPrompt string, history []genai.Message, userPrompt string) (string, error) {
	return m.Complete(ctx, systemPrompt, userPrompt)
}

func TestExtractReturnsOnlyStageKeys(t *testing.T) {
	mock := &MockCompleter{Response: `{"name": "Asha", "age": 29, "gender": "female", "shoe_size": "9"}`}
	e := NewExtractor(mock)

	rec := e.Extract(context.Background(), models.StageBasic, "I'm Asha, 29, female")
	if len(rec) != len(models.StageFields(models.StageBasic)) {
		t.Fatalf("record has %d keys, want %d", len(rec), len(models.StageFields(models.StageBasic)))
	}
	if _, ok := rec["shoe_size"]; ok {
		t.Error("key outside the stage field set leaked through")
	}
	if rec["name"] == nil || *rec["name"] != "Asha" {
		t.Errorf("name not extracted: %v", rec["name"])
	}
	if rec["age"] == nil || *rec["age"] != "29" {
		t.Errorf("numeric age not converted to string: %v", rec["age"])
	}
}

func TestExtractStripsCodeFences(t *testing.T) {
	mock := &MockCompleter{Response: "```json\n{\"weight\": \"75kg\", \"height\": \"180cm\", \"fitness_goal\": null}\n```"}
	e := NewExtractor(mock)

	rec := e.Extract(context.Background(), models.StagePersonalize, "I'm 75kg and 180cm")
	if rec["weight"] == nil || *rec["weight"] != "75kg" {
		t.Errorf("weight should preserve units verbatim: %v", rec["weight"])
	}
	if rec["height"] == nil || *rec["height"] != "180cm" {
		t.Errorf("height should preserve units verbatim: %v", rec["height"])
	}
	if rec["fitness_goal"] != nil {
		t.Errorf("explicit null should stay null: %v", *rec["fitness_goal"])
	}
}

func TestExtractDegradesToAllNull(t *testing.T) {
	cases := []struct {
		name string
		mock *MockCompleter
	}{
		{"malformed JSON", &MockCompleter{Response: "sorry, I can't do that"}},
		{"capability error", &MockCompleter{Err: errors.New("rate limited")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := NewExtractor(tc.mock)
			rec := e.Extract(context.Background(), models.StageLifestyle, "whatever")
			for _, f := range models.StageFields(models.StageLifestyle) {
				v, ok := rec[f]
				if !ok {
					t.Errorf("field %s missing from degraded record", f)
				}
				if v != nil {
					t.Errorf("field %s should be null, got %q", f, *v)
				}
			}
		})
	}
}

func TestDecodeRecordDropsOffContractValues(t *testing.T) {
	rec, err := DecodeRecord(`{"medical_conditions": true, "injuries": "None", "allergies": "  "}`, models.StageHealth)
	if err != nil {
		t.Fatalf("DecodeRecord failed: %v", err)
	}
	if rec["medical_conditions"] != nil {
		t.Error("boolean value should be treated as absent")
	}
	if rec["injuries"] == nil || *rec["injuries"] != "None" {
		t.Errorf("injuries not decoded: %v", rec["injuries"])
	}
	if rec["allergies"] != nil {
		t.Error("whitespace-only value should be treated as absent")
	}
}

func TestStripFences(t *testing.T) {
	cases := []struct{ in, want string }{
		{"{\"a\":1}", "{\"a\":1}"},
		{"```json\n{\"a\":1}\n```", "{\"a\":1}"},
		{"```\n{\"a\":1}\n```", "{\"a\":1}"},
		{"  ```json\n{\"a\":1}\n```  ", "{\"a\":1}"},
	}
	for _, tc := range cases {
		if got := StripFences(tc.in); got != tc.want {
			t.Errorf("StripFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExtractUpdateCoversAllProfileFields(t *testing.T) {
	mock := &MockCompleter{Response: `{"weight": "80kg", "workout_time": "6am"}`}
	e := NewExtractor(mock)
	rec := e.ExtractUpdate(context.Background(), "change my weight to 80kg and move workouts to 6am")
	if len(rec) != len(models.AllProfileFields()) {
		t.Fatalf("record has %d keys, want %d", len(rec), len(models.AllProfileFields()))
	}
	if rec["weight"] == nil || *rec["weight"] != "80kg" {
		t.Errorf("weight not extracted: %v", rec["weight"])
	}
	if rec["name"] != nil {
		t.Error("unmentioned fields must stay null")
	}
}
