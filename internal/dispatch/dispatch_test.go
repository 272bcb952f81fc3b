package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/FitPulse/internal/genai"
	"github.com/BTreeMap/FitPulse/internal/models"
	"github.com/BTreeMap/FitPulse/internal/scheduler"
	"github.com/BTreeMap/FitPulse/internal/store"
)

type sentMessage struct {
	To   string
	Body string
}

// stubService records sends and can fail selectively per recipient.
type stubService struct {
	mu       sync.Mutex
	sent     []sentMessage
	failWith map[string]error
}

func newStubService() *stubService {
	return &stubService{failWith: map[string]error{}}
}

func (s *stubService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return recipient, nil
}

func (s *stubService) SendMessage(ctx context.Context, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failWith[to]; ok {
		return err
	}
	s.sent = append(s.sent, sentMessage{To: to, Body: body})
	return nil
}

func (s *stubService) Start(ctx context.Context) error   { return nil }
func (s *stubService) Stop() error                       { return nil }
func (s *stubService) Receipts() <-chan models.Receipt   { return nil }
func (s *stubService) Responses() <-chan models.Response { return nil }

func (s *stubService) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

// stubCompleter returns a scripted completion.
type stubCompleter struct {
	response string
	err      error
}

func (c *stubCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.response, c.err
}

func (c *stubCompleter) CompleteWithHistory(ctx context.Context, systemPrompt string, history []genai.Message, userPrompt string) (string, error) {
	return c.response, c.err
}

func newTestJobs(t *testing.T, svc *stubService, completer *stubCompleter) (*Jobs, store.Store) {
	t.Helper()
	st := store.NewInMemoryStore()
	engine := scheduler.NewEngine()
	t.Cleanup(engine.Stop)
	return NewJobs(st, svc, completer, engine), st
}

func seedUser(t *testing.T, st store.Store, phone string, completed bool) {
	t.Helper()
	if err := st.SaveUser(models.User{Phone: phone, Authorized: true}); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}
	if err := st.SaveProfile(models.Profile{
		Phone:           phone,
		Name:            "Asha",
		FitnessGoal:     "muscle gain",
		Weight:          "75kg",
		Height:          "180cm",
		WorkoutDuration: "30 minutes",
		WorkoutLocation: "Home",
		Completed:       completed,
		Confirmed:       completed,
	}); err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}
}

func TestSendDailyWorkoutDeliversAndMarksSent(t *testing.T) {
	svc := newStubService()
	jobs, st := newTestJobs(t, svc, &stubCompleter{response: "**Warm-up**\nJumping jacks\n\n**Main**\nSquats"})
	seedUser(t, st, "+15551230001", true)
	// A clock far from now keeps the trigger from firing during the test.
	clock := time.Now().UTC().Add(6 * time.Hour).Format("15:04")
	if err := jobs.RegisterDailyWorkout("+15551230001", clock, "UTC"); err != nil {
		t.Fatalf("RegisterDailyWorkout failed: %v", err)
	}

	if err := jobs.SendDailyWorkout(context.Background(), "+15551230001"); err != nil {
		t.Fatalf("SendDailyWorkout failed: %v", err)
	}

	msgs := svc.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].Body, "*Warm-up*") {
		t.Errorf("plan formatting not cleaned: %q", msgs[0].Body)
	}
	if !strings.Contains(msgs[0].Body, "Asha") {
		t.Errorf("plan header missing name: %q", msgs[0].Body)
	}

	sched, err := st.GetWorkoutSchedule("+15551230001")
	if err != nil || sched == nil {
		t.Fatalf("schedule not persisted: %v", err)
	}
	if sched.LastPlanSent == nil {
		t.Error("LastPlanSent not recorded")
	}
}

func TestSendDailyWorkoutSkipsIncompleteProfile(t *testing.T) {
	svc := newStubService()
	jobs, st := newTestJobs(t, svc, &stubCompleter{response: "plan"})
	seedUser(t, st, "+15551230002", false)

	err := jobs.SendDailyWorkout(context.Background(), "+15551230002")
	if !errors.Is(err, models.ErrNoProfile) {
		t.Errorf("expected ErrNoProfile, got %v", err)
	}
	if len(svc.messages()) != 0 {
		t.Error("no message should be sent for incomplete profile")
	}
}

func TestBroadcastDailyTipsRespectsPreferencesAndRateLimits(t *testing.T) {
	svc := newStubService()
	svc.failWith["+15551230012"] = errors.New("twilio: 429 too many requests")
	jobs, st := newTestJobs(t, svc, &stubCompleter{})

	for _, phone := range []string{"+15551230010", "+15551230011", "+15551230012"} {
		if err := st.SaveUser(models.User{Phone: phone, Authorized: true}); err != nil {
			t.Fatalf("SaveUser failed: %v", err)
		}
	}
	if err := st.SetTipPreference("+15551230011", false); err != nil {
		t.Fatalf("SetTipPreference failed: %v", err)
	}
	if err := st.AddTip("Drink water before every meal.", "hydration"); err != nil {
		t.Fatalf("AddTip failed: %v", err)
	}

	summary, err := jobs.BroadcastDailyTips(context.Background())
	if err != nil {
		t.Fatalf("BroadcastDailyTips failed: %v", err)
	}
	if summary.Sent != 1 {
		t.Errorf("expected 1 sent, got %d", summary.Sent)
	}
	if summary.RateLimited != 1 {
		t.Errorf("expected 1 rate limited, got %d", summary.RateLimited)
	}
	if summary.Failed != 0 {
		t.Errorf("expected 0 failed, got %d", summary.Failed)
	}

	msgs := svc.messages()
	if len(msgs) != 1 || msgs[0].To != "+15551230010" {
		t.Errorf("tip should reach only the opted-in user: %v", msgs)
	}
}

func TestTipRotationAvoidsRecentTips(t *testing.T) {
	svc := newStubService()
	jobs, st := newTestJobs(t, svc, &stubCompleter{})

	if err := st.AddTip("Tip one", "general"); err != nil {
		t.Fatal(err)
	}
	if err := st.AddTip("Tip two", "general"); err != nil {
		t.Fatal(err)
	}
	tips, err := st.ListActiveTips()
	if err != nil || len(tips) != 2 {
		t.Fatalf("expected 2 tips: %v %v", tips, err)
	}

	phone := "+15551230020"
	if err := st.LogTipSent(phone, tips[0].ID, time.Now()); err != nil {
		t.Fatal(err)
	}

	since := time.Now().Add(-TipRotationWindow)
	picked := jobs.pickTip(phone, tips, since)
	if picked.ID != tips[1].ID {
		t.Errorf("expected rotation to skip recently sent tip, picked %d", picked.ID)
	}
}

func TestSendWeeklyReportsSummarizesProgress(t *testing.T) {
	svc := newStubService()
	jobs, st := newTestJobs(t, svc, &stubCompleter{})
	seedUser(t, st, "+15551230030", true)

	now := time.Now()
	for i := 0; i < 3; i++ {
		if err := st.LogWorkout(models.WorkoutLog{
			Phone:       "+15551230030",
			Minutes:     30,
			CompletedAt: now.Add(-time.Duration(i) * 24 * time.Hour),
		}); err != nil {
			t.Fatalf("LogWorkout failed: %v", err)
		}
	}

	summary, err := jobs.SendWeeklyReports(context.Background())
	if err != nil {
		t.Fatalf("SendWeeklyReports failed: %v", err)
	}
	if summary.Sent != 1 {
		t.Fatalf("expected 1 report sent, got %d", summary.Sent)
	}

	msgs := svc.messages()
	if !strings.Contains(msgs[0].Body, "Workouts completed: 3") {
		t.Errorf("report missing workout count: %q", msgs[0].Body)
	}
	if !strings.Contains(msgs[0].Body, "Total active minutes: 90") {
		t.Errorf("report missing minutes: %q", msgs[0].Body)
	}
}

func TestScheduleReminderFiresOnce(t *testing.T) {
	svc := newStubService()
	jobs, _ := newTestJobs(t, svc, &stubCompleter{})

	jobID, err := jobs.ScheduleReminder("+15551230040", "drink water", time.Now().Add(30*time.Millisecond))
	if err != nil {
		t.Fatalf("ScheduleReminder failed: %v", err)
	}
	if !strings.HasPrefix(jobID, "reminder_+15551230040_") {
		t.Errorf("unexpected job id %q", jobID)
	}

	deadline := time.After(3 * time.Second)
	for {
		msgs := svc.messages()
		if len(msgs) == 1 {
			if !strings.Contains(msgs[0].Body, "drink water") {
				t.Errorf("reminder body missing task: %q", msgs[0].Body)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("reminder did not fire")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestReminderJobIDsDiffer(t *testing.T) {
	a := ReminderJobID("+15551230050", time.Unix(0, 1))
	b := ReminderJobID("+15551230050", time.Unix(0, 2))
	if a == b {
		t.Error("ids for distinct instants must differ")
	}
	if DailyWorkoutJobID("+15551230050") != "daily_workout_+15551230050" {
		t.Errorf("unexpected daily job id %q", DailyWorkoutJobID("+15551230050"))
	}
}

func TestRecoverSchedulesIsolatesBadRecords(t *testing.T) {
	svc := newStubService()
	jobs, st := newTestJobs(t, svc, &stubCompleter{})

	good := models.WorkoutSchedule{Phone: "+15551230060", PreferredTime: "07:00", Timezone: "Asia/Kolkata", Active: true}
	bad := models.WorkoutSchedule{Phone: "+15551230061", PreferredTime: "07:00", Timezone: "Mars/Olympus", Active: true}
	for _, rec := range []models.WorkoutSchedule{good, bad} {
		if err := st.SaveUser(models.User{Phone: rec.Phone, Authorized: true}); err != nil {
			t.Fatal(err)
		}
		if err := st.SaveWorkoutSchedule(rec); err != nil {
			t.Fatal(err)
		}
	}

	if recovered := jobs.RecoverSchedules(); recovered != 1 {
		t.Errorf("expected 1 recovered schedule, got %d", recovered)
	}
}
