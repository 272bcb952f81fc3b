package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/BTreeMap/FitPulse/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "fitpulse_test.db")
	s, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("failed to create SQLite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteProfileRoundTrip(t *testing.T) {
	s := newTestStore(t)

	bmi := 23.1
	now := time.Now().UTC().Truncate(time.Second)
	p := models.Profile{
		Phone:       "+15551234567",
		Name:        "Asha",
		Age:         "29",
		Weight:      "75kg",
		Height:      "180cm",
		BMI:         &bmi,
		FitnessGoal: "muscle gain",
		Completed:   true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.SaveProfile(p); err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}

	got, err := s.GetProfile(p.Phone)
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected profile, got nil")
	}
	if got.Weight != "75kg" || got.Height != "180cm" {
		t.Errorf("unit strings did not round-trip: weight=%q height=%q", got.Weight, got.Height)
	}
	if got.BMI == nil || *got.BMI != bmi {
		t.Errorf("BMI did not round-trip: %v", got.BMI)
	}
	if !got.Completed || got.Confirmed {
		t.Errorf("flags did not round-trip: completed=%v confirmed=%v", got.Completed, got.Confirmed)
	}

	// Upsert replaces rather than duplicates.
	p.FitnessGoal = "weight loss"
	if err := s.SaveProfile(p); err != nil {
		t.Fatalf("SaveProfile upsert failed: %v", err)
	}
	got, err = s.GetProfile(p.Phone)
	if err != nil {
		t.Fatalf("GetProfile after upsert failed: %v", err)
	}
	if got.FitnessGoal != "weight loss" {
		t.Errorf("upsert did not replace fitness_goal: got %q", got.FitnessGoal)
	}
}

func TestSQLiteGetProfileNotFound(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetProfile("+10000000000")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing profile, got %+v", got)
	}
}

func TestSQLiteExpiredUsers(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	users := []models.User{
		{Phone: "+15550000001", Authorized: true, Expiry: &past, CreatedAt: now},
		{Phone: "+15550000002", Authorized: true, Expiry: &future, CreatedAt: now},
		{Phone: "+15550000003", Authorized: true, CreatedAt: now},
	}
	for _, u := range users {
		if err := s.SaveUser(u); err != nil {
			t.Fatalf("SaveUser failed: %v", err)
		}
	}

	n, err := s.DeactivateExpiredUsers(now)
	if err != nil {
		t.Fatalf("DeactivateExpiredUsers failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deactivation, got %d", n)
	}
	remaining, err := s.ListAuthorizedUsers()
	if err != nil {
		t.Fatalf("ListAuthorizedUsers failed: %v", err)
	}
	if len(remaining) != 2 {
		t.Errorf("expected 2 authorized users, got %d", len(remaining))
	}
}

func TestSQLiteScheduleLifecycle(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	phone := "+15551112222"
	if err := s.SaveUser(models.User{Phone: phone, Authorized: true, CreatedAt: now}); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}
	ws := models.WorkoutSchedule{
		Phone: phone, PreferredTime: "07:00", Timezone: "Asia/Kolkata",
		Active: true, CreatedAt: now,
	}
	if err := s.SaveWorkoutSchedule(ws); err != nil {
		t.Fatalf("SaveWorkoutSchedule failed: %v", err)
	}

	active, err := s.ListActiveWorkoutSchedules()
	if err != nil {
		t.Fatalf("ListActiveWorkoutSchedules failed: %v", err)
	}
	if len(active) != 1 || active[0].PreferredTime != "07:00" {
		t.Fatalf("unexpected active schedules: %+v", active)
	}

	if err := s.UpdateScheduleJobID(phone, "daily_workout_"+phone); err != nil {
		t.Fatalf("UpdateScheduleJobID failed: %v", err)
	}
	if err := s.MarkPlanSent(phone, now); err != nil {
		t.Fatalf("MarkPlanSent failed: %v", err)
	}
	got, err := s.GetWorkoutSchedule(phone)
	if err != nil {
		t.Fatalf("GetWorkoutSchedule failed: %v", err)
	}
	if got.JobID != "daily_workout_"+phone {
		t.Errorf("job id not updated: %q", got.JobID)
	}
	if got.LastPlanSent == nil {
		t.Error("last_plan_sent not recorded")
	}

	if err := s.DeactivateWorkoutSchedule(phone); err != nil {
		t.Fatalf("DeactivateWorkoutSchedule failed: %v", err)
	}
	active, err = s.ListActiveWorkoutSchedules()
	if err != nil {
		t.Fatalf("ListActiveWorkoutSchedules failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected no active schedules after deactivation, got %d", len(active))
	}
}

func TestSQLiteTipRotationHistory(t *testing.T) {
	s := newTestStore(t)
	phone := "+15553334444"
	for _, txt := range []string{"drink water", "stretch daily", "sleep well"} {
		if err := s.AddTip(txt, "general"); err != nil {
			t.Fatalf("AddTip failed: %v", err)
		}
	}
	tips, err := s.ListActiveTips()
	if err != nil {
		t.Fatalf("ListActiveTips failed: %v", err)
	}
	if len(tips) != 3 {
		t.Fatalf("expected 3 tips, got %d", len(tips))
	}

	now := time.Now().UTC()
	if err := s.LogTipSent(phone, tips[0].ID, now.Add(-20*24*time.Hour)); err != nil {
		t.Fatalf("LogTipSent failed: %v", err)
	}
	if err := s.LogTipSent(phone, tips[1].ID, now.Add(-2*24*time.Hour)); err != nil {
		t.Fatalf("LogTipSent failed: %v", err)
	}

	recent, err := s.RecentTipIDs(phone, now.Add(-15*24*time.Hour))
	if err != nil {
		t.Fatalf("RecentTipIDs failed: %v", err)
	}
	if len(recent) != 1 || recent[0] != tips[1].ID {
		t.Errorf("expected only the recent tip, got %v", recent)
	}
}

func TestSQLiteTipPreferenceDefaultsToReceive(t *testing.T) {
	s := newTestStore(t)
	receive, err := s.GetTipPreference("+15559990000")
	if err != nil {
		t.Fatalf("GetTipPreference failed: %v", err)
	}
	if !receive {
		t.Error("users with no stored preference should receive tips")
	}
	if err := s.SetTipPreference("+15559990000", false); err != nil {
		t.Fatalf("SetTipPreference failed: %v", err)
	}
	receive, err = s.GetTipPreference("+15559990000")
	if err != nil {
		t.Fatalf("GetTipPreference failed: %v", err)
	}
	if receive {
		t.Error("opt-out was not persisted")
	}
}

func TestSQLiteWeeklyProgress(t *testing.T) {
	s := newTestStore(t)
	phone := "+15557778888"
	now := time.Now().UTC()
	logs := []models.WorkoutLog{
		{Phone: phone, Minutes: 30, CaloriesBurned: 200, CompletedAt: now.Add(-2 * 24 * time.Hour)},
		{Phone: phone, Minutes: 45, CaloriesBurned: 300, CompletedAt: now.Add(-4 * 24 * time.Hour)},
		{Phone: phone, Minutes: 60, CaloriesBurned: 400, CompletedAt: now.Add(-10 * 24 * time.Hour)},
	}
	for _, l := range logs {
		if err := s.LogWorkout(l); err != nil {
			t.Fatalf("LogWorkout failed: %v", err)
		}
	}
	wp, err := s.WeeklyProgress(phone, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("WeeklyProgress failed: %v", err)
	}
	if wp.Workouts != 2 || wp.TotalMinutes != 75 || wp.Calories != 500 {
		t.Errorf("unexpected weekly progress: %+v", wp)
	}
}

func TestInMemoryStoreMatchesInterface(t *testing.T) {
	var _ Store = NewInMemoryStore()
	var _ Store = (*SQLiteStore)(nil)
	var _ Store = (*PostgresStore)(nil)
}
