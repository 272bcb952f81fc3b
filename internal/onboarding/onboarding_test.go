package onboarding

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/FitPulse/internal/dispatch"
	"github.com/BTreeMap/FitPulse/internal/extract"
	"github.com/BTreeMap/FitPulse/internal/genai"
	"github.com/BTreeMap/FitPulse/internal/models"
	"github.com/BTreeMap/FitPulse/internal/scheduler"
	"github.com/BTreeMap/FitPulse/internal/session"
	"github.com/BTreeMap/FitPulse/internal/store"
)

const testPhone = "+15557770001"

// fakeCompleter routes completions by prompt shape: extraction calls pop a
// scripted queue, plan and chat calls return fixed texts.
type fakeCompleter struct {
	mu          sync.Mutex
	extractions []string
	updates     []string
	reminder    string
	planText    string
	chatText    string
	planCalls   int
	err         error
}

func (f *fakeCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	switch {
	case strings.Contains(systemPrompt, "reminder request"):
		return f.reminder, nil
	case strings.Contains(userPrompt, "update their fitness profile"):
		if len(f.updates) == 0 {
			return "{}", nil
		}
		next := f.updates[0]
		f.updates = f.updates[1:]
		return next, nil
	case strings.Contains(systemPrompt, "extract structured"):
		if len(f.extractions) == 0 {
			return "{}", nil
		}
		next := f.extractions[0]
		f.extractions = f.extractions[1:]
		return next, nil
	case strings.Contains(systemPrompt, "workout\nplan") || strings.Contains(systemPrompt, "single-day workout"):
		f.planCalls++
		return f.planText, nil
	default:
		return f.chatText, nil
	}
}

func (f *fakeCompleter) CompleteWithHistory(ctx context.Context, systemPrompt string, history []genai.Message, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.chatText, nil
}

func (f *fakeCompleter) planCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.planCalls
}

type sentMessage struct {
	To   string
	Body string
}

type stubService struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (s *stubService) ValidateAndCanonicalizeRecipient(r string) (string, error) { return r, nil }
func (s *stubService) SendMessage(ctx context.Context, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
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

type fixture struct {
	coord     *Coordinator
	store     store.Store
	svc       *stubService
	completer *fakeCompleter
	engine    *scheduler.Engine
}

func newFixture(t *testing.T, completer *fakeCompleter) *fixture {
	t.Helper()
	st := store.NewInMemoryStore()
	if err := st.SaveUser(models.User{Phone: testPhone, Authorized: true}); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}
	svc := &stubService{}
	engine := scheduler.NewEngine()
	t.Cleanup(engine.Stop)
	jobs := dispatch.NewJobs(st, svc, completer, engine)
	sessions := session.NewStore()
	coord := NewCoordinator(sessions, st, extract.NewExtractor(completer), completer, svc, jobs)
	return &fixture{coord: coord, store: st, svc: svc, completer: completer, engine: engine}
}

func send(t *testing.T, f *fixture, text string) string {
	t.Helper()
	reply, err := f.coord.HandleMessage(context.Background(), testPhone, text)
	if err != nil {
		t.Fatalf("HandleMessage(%q) failed: %v", text, err)
	}
	return reply
}

func TestUnauthorizedSenderRejected(t *testing.T) {
	f := newFixture(t, &fakeCompleter{})
	reply, err := f.coord.HandleMessage(context.Background(), "+15550009999", "hi")
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if !strings.Contains(reply, "isn't registered") {
		t.Errorf("expected rejection, got %q", reply)
	}
}

func TestFullOnboardingFlow(t *testing.T) {
	completer := &fakeCompleter{
		extractions: []string{
			`{"name": "Asha", "age": 29, "gender": "female"}`,
			`{"weight": "75kg", "height": "180cm", "fitness_goal": "build muscle"}`,
			`{"medical_conditions": "None", "injuries": "None", "allergies": "None"}`,
			`{"diet_preference": "Mixed", "activity_level": "Moderately Active", "stress_level": "Low"}`,
			`{"workout_duration": "45 minutes", "workout_location": "Home", "workout_time": "morning"}`,
		},
		planText: "Warm-up\nSquats\nCool-down",
	}
	f := newFixture(t, completer)

	send(t, f, "Hi, I'm Asha, 29, female")
	send(t, f, "75kg, 180cm, I want to build muscle")
	send(t, f, "no conditions")
	send(t, f, "mixed diet, moderately active, low stress")
	reply := send(t, f, "45 minutes at home in the mornings")

	if !strings.Contains(reply, "Your FitPulse profile") || !strings.Contains(reply, "yes/no") {
		t.Fatalf("expected summary plus confirmation question, got %q", reply)
	}
	if !strings.Contains(reply, "75kg") || !strings.Contains(reply, "180cm") {
		t.Errorf("summary must keep verbatim units: %q", reply)
	}
	if !strings.Contains(reply, "BMI") {
		t.Errorf("summary missing derived BMI: %q", reply)
	}

	// Profile persisted completed but not yet confirmed.
	stored, err := f.store.GetProfile(testPhone)
	if err != nil || stored == nil {
		t.Fatalf("profile not persisted: %v", err)
	}
	if !stored.Completed || stored.Confirmed {
		t.Errorf("expected completed && !confirmed, got %+v", stored)
	}

	// Affirmative reply finalizes: schedule registered, first plan delivered.
	reply = send(t, f, "yes")
	if !strings.Contains(reply, "all set") {
		t.Errorf("expected finalize message, got %q", reply)
	}
	stored, _ = f.store.GetProfile(testPhone)
	if !stored.Confirmed {
		t.Error("profile should be confirmed")
	}

	found := false
	for _, js := range f.engine.Snapshot() {
		if js.ID == dispatch.DailyWorkoutJobID(testPhone) {
			found = true
			if !strings.Contains(js.Description, "07:00") {
				t.Errorf("morning preference should map to 07:00, got %q", js.Description)
			}
		}
	}
	if !found {
		t.Error("daily workout job not registered")
	}

	if completer.planCallCount() != 1 {
		t.Errorf("expected exactly one immediate plan generation, got %d", completer.planCallCount())
	}
}

func TestRepromptNamesMissingFields(t *testing.T) {
	completer := &fakeCompleter{
		extractions: []string{`{"name": "Ben"}`},
	}
	f := newFixture(t, completer)

	reply := send(t, f, "I'm Ben")
	if !strings.Contains(reply, "age") || !strings.Contains(reply, "gender") {
		t.Errorf("re-prompt must name missing fields, got %q", reply)
	}
	if strings.Contains(reply, "name") {
		t.Errorf("re-prompt must not ask for already-known fields, got %q", reply)
	}
}

func TestSkipAppliesDefaultsAndAdvances(t *testing.T) {
	completer := &fakeCompleter{
		extractions: []string{`{"name": "Cara", "age": "31", "gender": "female"}`},
	}
	f := newFixture(t, completer)

	send(t, f, "Cara, 31, female")
	reply := send(t, f, "skip")
	if !strings.Contains(strings.ToLower(reply), "medical") {
		t.Errorf("skip at personalize should advance to health stage, got %q", reply)
	}

	err := f.coord.sessions.WithSession(testPhone, func(s *session.Session) error {
		if s.Stage != models.StageHealth {
			t.Errorf("expected health stage, got %s", s.Stage)
		}
		if s.Profile.Weight != "70kg" || s.Profile.FitnessGoal != "overall fitness" {
			t.Errorf("skip defaults not applied: %+v", s.Profile)
		}
		if len(s.Profile.MissingFields(models.StagePersonalize)) != 0 {
			t.Error("skip defaults must satisfy the stage predicate")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestBackwardGuardForcesPersonalize(t *testing.T) {
	completer := &fakeCompleter{
		extractions: []string{`{"workout_duration": "30 minutes", "workout_location": "Gym"}`},
	}
	f := newFixture(t, completer)

	// Simulate an earlier fast-skip that left critical fields null.
	err := f.coord.sessions.WithSession(testPhone, func(s *session.Session) error {
		s.Stage = models.StageWorkoutPrefs
		s.Profile.Name = "Dev"
		s.Profile.Age = "40"
		s.Profile.Gender = "male"
		s.Profile.DietPreference = "Mixed"
		s.Profile.ActivityLevel = "Sedentary"
		s.Profile.StressLevel = "High"
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	reply := send(t, f, "30 minutes at the gym")
	if !strings.Contains(reply, "weight") || !strings.Contains(reply, "height") || !strings.Contains(reply, "fitness goal") {
		t.Errorf("backward prompt must name the critical fields, got %q", reply)
	}

	err = f.coord.sessions.WithSession(testPhone, func(s *session.Session) error {
		if s.Stage != models.StagePersonalize {
			t.Errorf("expected backward transition to personalize, got %s", s.Stage)
		}
		if s.Profile.Completed {
			t.Error("profile must not be marked completed")
		}
		if s.Profile.WorkoutDuration != "30 minutes" {
			t.Error("extracted fields must survive the backward transition")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if stored, _ := f.store.GetProfile(testPhone); stored != nil && stored.Completed {
		t.Error("no completed profile may be persisted")
	}
}

func TestThreeAmbiguousRepliesAutoConfirm(t *testing.T) {
	completer := &fakeCompleter{planText: "Plan body"}
	f := newFixture(t, completer)

	err := f.coord.sessions.WithSession(testPhone, func(s *session.Session) error {
		s.Stage = models.StageDone
		s.Profile = completedProfile()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.store.SaveProfile(completedProfile()); err != nil {
		t.Fatal(err)
	}

	send(t, f, "hmm")
	send(t, f, "maybe")
	reply := send(t, f, "what")

	if !strings.Contains(reply, "all set") {
		t.Fatalf("third ambiguous reply must auto-confirm, got %q", reply)
	}
	stored, _ := f.store.GetProfile(testPhone)
	if stored == nil || !stored.Confirmed {
		t.Error("profile should be auto-confirmed")
	}
	if completer.planCallCount() != 1 {
		t.Errorf("auto-confirm must trigger plan generation exactly once, got %d", completer.planCallCount())
	}
}

func TestNegativeConfirmationAllowsCorrection(t *testing.T) {
	completer := &fakeCompleter{
		updates: []string{`{"weight": "72kg"}`},
	}
	f := newFixture(t, completer)

	err := f.coord.sessions.WithSession(testPhone, func(s *session.Session) error {
		s.Stage = models.StageDone
		s.Profile = completedProfile()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	reply := send(t, f, "no")
	if !strings.Contains(reply, "fix") {
		t.Errorf("negative reply should invite corrections, got %q", reply)
	}

	reply = send(t, f, "my weight is 72kg")
	if !strings.Contains(reply, "72kg") || !strings.Contains(reply, "yes/no") {
		t.Errorf("correction should update and re-ask, got %q", reply)
	}
	stored, _ := f.store.GetProfile(testPhone)
	if stored == nil || stored.Weight != "72kg" {
		t.Errorf("corrected weight not persisted: %+v", stored)
	}
	if stored.Confirmed {
		t.Error("profile must stay unconfirmed until an explicit yes")
	}
}

func completedProfile() models.Profile {
	return models.Profile{
		Phone:           testPhone,
		Name:            "Asha",
		Age:             "29",
		Gender:          "female",
		Weight:          "75kg",
		Height:          "180cm",
		FitnessGoal:     "build muscle",
		DietPreference:  "Mixed",
		ActivityLevel:   "Moderately Active",
		StressLevel:     "Low",
		WorkoutDuration: "45 minutes",
		WorkoutLocation: "Home",
		WorkoutTime:     "morning",
		Completed:       true,
	}
}

func confirmedFixture(t *testing.T, completer *fakeCompleter) *fixture {
	t.Helper()
	f := newFixture(t, completer)
	p := completedProfile()
	p.Confirmed = true
	if err := f.store.SaveProfile(p); err != nil {
		t.Fatal(err)
	}
	err := f.coord.sessions.WithSession(testPhone, func(s *session.Session) error {
		s.Stage = models.StageDone
		s.Profile = p
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestRehydrationSkipsQuestionnaire(t *testing.T) {
	completer := &fakeCompleter{}
	f := newFixture(t, completer)
	p := completedProfile()
	p.Confirmed = true
	if err := f.store.SaveProfile(p); err != nil {
		t.Fatal(err)
	}

	reply := send(t, f, "show my profile")
	if !strings.Contains(reply, "Your FitPulse profile") {
		t.Errorf("rehydrated user should get profile view, not onboarding, got %q", reply)
	}
}

func TestReminderIntentUsesFallbackParser(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("capability down")}
	f := confirmedFixture(t, &fakeCompleter{})
	f.coord.extractor = extract.NewExtractor(completer)

	reply := send(t, f, "remind me to drink water in 10 minutes")
	if !strings.Contains(reply, "Reminder set") || !strings.Contains(reply, "drink water") {
		t.Fatalf("expected reminder confirmation, got %q", reply)
	}

	found := false
	for _, js := range f.engine.Snapshot() {
		if strings.HasPrefix(js.ID, "reminder_"+testPhone) {
			found = true
			fireIn := time.Until(js.NextRun)
			if fireIn < 9*time.Minute || fireIn > 11*time.Minute {
				t.Errorf("reminder should fire in ~10 minutes, fires in %s", fireIn)
			}
		}
	}
	if !found {
		t.Error("reminder job not registered")
	}
}

func TestReminderIntentHardFailureShowsUsage(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("capability down")}
	f := confirmedFixture(t, &fakeCompleter{})
	f.coord.extractor = extract.NewExtractor(completer)

	reply := send(t, f, "remind me about the thing sometime soon")
	if !strings.Contains(reply, "Try something like") {
		t.Errorf("unparsable reminder should show usage examples, got %q", reply)
	}
}

func TestTipOptOutAndIn(t *testing.T) {
	f := confirmedFixture(t, &fakeCompleter{})

	send(t, f, "STOP TIPS")
	receive, err := f.store.GetTipPreference(testPhone)
	if err != nil || receive {
		t.Errorf("expected opt-out recorded, got receive=%v err=%v", receive, err)
	}

	send(t, f, "start tips please")
	receive, _ = f.store.GetTipPreference(testPhone)
	if !receive {
		t.Error("expected opt-in recorded")
	}
}

func TestWorkoutDoneAdvancesStreak(t *testing.T) {
	f := confirmedFixture(t, &fakeCompleter{})

	reply := send(t, f, "done with my workout")
	if !strings.Contains(reply, "1-day streak") {
		t.Errorf("first workout should start a streak, got %q", reply)
	}

	reply = send(t, f, "workout done")
	if !strings.Contains(reply, "Already counted") {
		t.Errorf("same-day repeat should not double count, got %q", reply)
	}

	streak, err := f.store.GetStreak(testPhone)
	if err != nil || streak.CurrentStreak != 1 {
		t.Errorf("expected streak of 1, got %+v (%v)", streak, err)
	}

	progress, _ := f.store.WeeklyProgress(testPhone, time.Now().Add(-time.Hour))
	if progress.Workouts != 1 {
		t.Errorf("expected 1 logged workout, got %d", progress.Workouts)
	}
}

func TestOffTopicGetsFixedRefusal(t *testing.T) {
	completer := &fakeCompleter{chatText: "should never appear"}
	f := confirmedFixture(t, completer)

	reply := send(t, f, "who won the football match last night?")
	if reply != OffTopicRefusal {
		t.Errorf("off-topic chat must get the fixed refusal, got %q", reply)
	}
}

func TestFitnessChatUsesLLM(t *testing.T) {
	completer := &fakeCompleter{chatText: "Protein helps muscles recover after training."}
	f := confirmedFixture(t, completer)

	reply := send(t, f, "how much protein should I eat?")
	if reply != completer.chatText {
		t.Errorf("fitness chat should return LLM answer, got %q", reply)
	}
}

func TestClassifyIntentTable(t *testing.T) {
	cases := []struct {
		in   string
		want intent
	}{
		{"remind me to stretch at 6pm", intentReminder},
		{"show my profile", intentProfileView},
		{"update my weight to 80kg", intentProfileUpdate},
		{"what's my streak?", intentStreak},
		{"STOP TIPS", intentStopTips},
		{"start tips", intentStartTips},
		{"stop plan", intentStopPlan},
		{"pause workouts please", intentStopPlan},
		{"resume plan", intentStartPlan},
		{"send me today's plan", intentPlan},
		{"I finished my workout", intentWorkoutDone},
		{"done", intentWorkoutDone},
		{"how do I do a squat?", intentChat},
	}
	for _, tc := range cases {
		if got := classifyIntent(strings.ToLower(tc.in)); got != tc.want {
			t.Errorf("classifyIntent(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestClassifyConfirmation(t *testing.T) {
	yes := []string{"yes", "Yes!", "yep", "looks good", "yes that's right"}
	no := []string{"no", "Nope", "wrong", "no it's not"}
	ambiguous := []string{"hmm", "maybe", "what do you mean", "tell me more about the plan first"}

	for _, in := range yes {
		if classifyConfirmation(in) != confirmYes {
			t.Errorf("classifyConfirmation(%q) should be yes", in)
		}
	}
	for _, in := range no {
		if classifyConfirmation(in) != confirmNo {
			t.Errorf("classifyConfirmation(%q) should be no", in)
		}
	}
	for _, in := range ambiguous {
		if classifyConfirmation(in) != confirmAmbiguous {
			t.Errorf("classifyConfirmation(%q) should be ambiguous", in)
		}
	}
}

func TestDurationMinutes(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"30 minutes", 30},
		{"45 min", 45},
		{"an hour", 30},
		{"", 30},
	}
	for _, tc := range cases {
		if got := durationMinutes(tc.in); got != tc.want {
			t.Errorf("durationMinutes(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestStopAndResumePlanIntents(t *testing.T) {
	f := confirmedFixture(t, &fakeCompleter{})
	jobID := dispatch.DailyWorkoutJobID(testPhone)

	reply := send(t, f, "resume plan")
	if !strings.Contains(reply, "back on") {
		t.Fatalf("expected resume confirmation, got %q", reply)
	}
	sched, err := f.store.GetWorkoutSchedule(testPhone)
	if err != nil || sched == nil || !sched.Active {
		t.Fatalf("expected active schedule after resume, got %+v err=%v", sched, err)
	}
	if !snapshotHasJob(f, jobID) {
		t.Fatal("expected daily workout job registered after resume")
	}

	reply = send(t, f, "stop plan")
	if !strings.Contains(reply, "paused") {
		t.Fatalf("expected pause confirmation, got %q", reply)
	}
	sched, err = f.store.GetWorkoutSchedule(testPhone)
	if err != nil || sched == nil || sched.Active {
		t.Fatalf("expected deactivated schedule after stop, got %+v err=%v", sched, err)
	}
	if snapshotHasJob(f, jobID) {
		t.Fatal("expected daily workout job removed after stop")
	}
}

func snapshotHasJob(f *fixture, jobID string) bool {
	for _, js := range f.engine.Snapshot() {
		if js.ID == jobID {
			return true
		}
	}
	return false
}
