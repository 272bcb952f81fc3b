package models

import "testing"

func strPtr(s string) *string { return &s }

func TestProfileMergeNonNullOnly(t *testing.T) {
	p := Profile{Weight: "75kg"}
	p.Merge(PartialRecord{
		FieldWeight:      nil,
		FieldHeight:      strPtr("180cm"),
		FieldFitnessGoal: strPtr(""),
	})
	if p.Weight != "75kg" {
		t.Errorf("nil value overwrote existing field: got %q", p.Weight)
	}
	if p.Height != "180cm" {
		t.Errorf("expected height 180cm, got %q", p.Height)
	}
	if p.FitnessGoal != "" {
		t.Errorf("empty value should not set field, got %q", p.FitnessGoal)
	}
}

func TestProfileMergeIdempotent(t *testing.T) {
	rec := PartialRecord{
		FieldName:   strPtr("Asha"),
		FieldAge:    strPtr("29"),
		FieldGender: strPtr("female"),
	}
	var once, twice Profile
	once.Merge(rec)
	twice.Merge(rec)
	twice.Merge(rec)
	if once != twice {
		t.Errorf("merging twice diverged from merging once: %+v vs %+v", once, twice)
	}
}

func TestUnitStringsRoundTrip(t *testing.T) {
	var p Profile
	p.Merge(PartialRecord{FieldWeight: strPtr("75kg"), FieldHeight: strPtr("180cm")})
	if got := p.Field(FieldWeight); got != "75kg" {
		t.Errorf("weight round-trip: got %q, want 75kg", got)
	}
	if got := p.Field(FieldHeight); got != "180cm" {
		t.Errorf("height round-trip: got %q, want 180cm", got)
	}
}

func TestSkipDefaultsSatisfyRequiredFields(t *testing.T) {
	for _, stage := range []Stage{StagePersonalize, StageHealth, StageLifestyle, StageWorkoutPrefs} {
		var p Profile
		for f, v := range SkipDefaults(stage) {
			p.SetField(f, v)
		}
		if missing := p.MissingFields(stage); len(missing) != 0 {
			t.Errorf("stage %s: skip defaults leave required fields missing: %v", stage, missing)
		}
	}
}

func TestMissingFieldsOrder(t *testing.T) {
	p := Profile{Age: "30"}
	missing := p.MissingFields(StageBasic)
	if len(missing) != 2 || missing[0] != FieldName || missing[1] != FieldGender {
		t.Errorf("unexpected missing fields: %v", missing)
	}
}

func TestStageOrder(t *testing.T) {
	order := []Stage{StageBasic, StagePersonalize, StageHealth, StageLifestyle, StageWorkoutPrefs, StageDone}
	for i := 0; i < len(order)-1; i++ {
		if next := NextStage(order[i]); next != order[i+1] {
			t.Errorf("NextStage(%s) = %s, want %s", order[i], next, order[i+1])
		}
	}
	if NextStage(StageDone) != StageDone {
		t.Errorf("done stage must be terminal")
	}
}

func TestEmptyRecordCoversStageFields(t *testing.T) {
	rec := EmptyRecord(StageWorkoutPrefs)
	if len(rec) != len(StageFields(StageWorkoutPrefs)) {
		t.Fatalf("record has %d keys, want %d", len(rec), len(StageFields(StageWorkoutPrefs)))
	}
	for _, f := range StageFields(StageWorkoutPrefs) {
		v, ok := rec[f]
		if !ok {
			t.Errorf("missing key %s", f)
		}
		if v != nil {
			t.Errorf("key %s should be nil", f)
		}
	}
}
