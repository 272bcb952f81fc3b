// Package store provides storage backends for FitPulse.
//
// This file implements an in-memory store used by tests and ephemeral runs.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/FitPulse/internal/models"
)

// InMemoryStore keeps all records in process memory. It is safe for
// concurrent use.
type InMemoryStore struct {
	mu         sync.RWMutex
	users      map[string]models.User
	profiles   map[string]models.Profile
	tips       []models.Tip
	nextTipID  int64
	tipHistory map[string][]tipSent
	tipPrefs   map[string]bool
	streaks    map[string]models.Streak
	schedules  map[string]models.WorkoutSchedule
	logs       map[string][]models.WorkoutLog
}

type tipSent struct {
	tipID int64
	at    time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:      make(map[string]models.User),
		profiles:   make(map[string]models.Profile),
		nextTipID:  1,
		tipHistory: make(map[string][]tipSent),
		tipPrefs:   make(map[string]bool),
		streaks:    make(map[string]models.Streak),
		schedules:  make(map[string]models.WorkoutSchedule),
		logs:       make(map[string][]models.WorkoutLog),
	}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) GetUser(phone string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[phone]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *InMemoryStore) SaveUser(u models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Phone] = u
	return nil
}

func (s *InMemoryStore) ListAuthorizedUsers() ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var users []models.User
	for _, u := range s.users {
		if u.Authorized {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Phone < users[j].Phone })
	return users, nil
}

func (s *InMemoryStore) DeactivateExpiredUsers(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for phone, u := range s.users {
		if u.Authorized && u.Expiry != nil && u.Expiry.Before(now) {
			u.Authorized = false
			s.users[phone] = u
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) SaveProfile(p models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.Phone] = p
	return nil
}

func (s *InMemoryStore) GetProfile(phone string) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[phone]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *InMemoryStore) AddTip(text, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tips = append(s.tips, models.Tip{ID: s.nextTipID, Text: text, Category: category, Active: true})
	s.nextTipID++
	return nil
}

func (s *InMemoryStore) ListActiveTips() ([]models.Tip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var tips []models.Tip
	for _, t := range s.tips {
		if t.Active {
			tips = append(tips, t)
		}
	}
	return tips, nil
}

func (s *InMemoryStore) RecentTipIDs(phone string, since time.Time) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]bool)
	var ids []int64
	for _, h := range s.tipHistory[phone] {
		if !h.at.Before(since) && !seen[h.tipID] {
			seen[h.tipID] = true
			ids = append(ids, h.tipID)
		}
	}
	return ids, nil
}

func (s *InMemoryStore) LogTipSent(phone string, tipID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tipHistory[phone] = append(s.tipHistory[phone], tipSent{tipID: tipID, at: at})
	return nil
}

func (s *InMemoryStore) SetTipPreference(phone string, receive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tipPrefs[phone] = receive
	return nil
}

func (s *InMemoryStore) GetTipPreference(phone string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	receive, ok := s.tipPrefs[phone]
	if !ok {
		return true, nil
	}
	return receive, nil
}

func (s *InMemoryStore) GetStreak(phone string) (models.Streak, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.streaks[phone]
	if !ok {
		return models.Streak{Phone: phone}, nil
	}
	return st, nil
}

func (s *InMemoryStore) SaveStreak(st models.Streak) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaks[st.Phone] = st
	return nil
}

func (s *InMemoryStore) SaveWorkoutSchedule(ws models.WorkoutSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[ws.Phone] = ws
	return nil
}

func (s *InMemoryStore) GetWorkoutSchedule(phone string) (*models.WorkoutSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws, ok := s.schedules[phone]
	if !ok {
		return nil, nil
	}
	return &ws, nil
}

func (s *InMemoryStore) ListActiveWorkoutSchedules() ([]models.WorkoutSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var schedules []models.WorkoutSchedule
	for _, ws := range s.schedules {
		u, hasUser := s.users[ws.Phone]
		if ws.Active && hasUser && u.Authorized {
			schedules = append(schedules, ws)
		}
	}
	sort.Slice(schedules, func(i, j int) bool { return schedules[i].Phone < schedules[j].Phone })
	return schedules, nil
}

func (s *InMemoryStore) UpdateScheduleJobID(phone, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ws, ok := s.schedules[phone]; ok {
		ws.JobID = jobID
		s.schedules[phone] = ws
	}
	return nil
}

func (s *InMemoryStore) MarkPlanSent(phone string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ws, ok := s.schedules[phone]; ok {
		ws.LastPlanSent = &at
		s.schedules[phone] = ws
	}
	return nil
}

func (s *InMemoryStore) DeactivateWorkoutSchedule(phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ws, ok := s.schedules[phone]; ok {
		ws.Active = false
		s.schedules[phone] = ws
	}
	return nil
}

func (s *InMemoryStore) LogWorkout(l models.WorkoutLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[l.Phone] = append(s.logs[l.Phone], l)
	return nil
}

func (s *InMemoryStore) WeeklyProgress(phone string, since time.Time) (models.WeeklyProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wp := models.WeeklyProgress{Phone: phone}
	for _, l := range s.logs[phone] {
		if !l.CompletedAt.Before(since) {
			wp.Workouts++
			wp.TotalMinutes += l.Minutes
			wp.Calories += l.CaloriesBurned
		}
	}
	return wp, nil
}
