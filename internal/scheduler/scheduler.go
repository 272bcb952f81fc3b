// Package scheduler provides the time-based dispatch engine for FitPulse.
//
// An Engine is a process-wide registry mapping job ids to triggers. Three
// trigger kinds exist: fixed daily recurrence, weekly recurrence (both
// evaluated as cron schedules in the user's named timezone, so DST
// transitions are handled by the trigger evaluator), and one-off absolute
// instants. Job bodies run on a bounded worker pool, never on the trigger
// evaluation loop.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultWorkerCount bounds concurrent job executions.
const DefaultWorkerCount = 3

// DefaultGraceWindow is how late a missed firing may still run. Misfires
// older than this are dropped, and multiple missed firings coalesce into a
// single catch-up run.
const DefaultGraceWindow = 5 * time.Minute

// ErrJobNotFound is returned when cancelling or triggering an unknown job id.
var ErrJobNotFound = errors.New("job not found")

// JobFunc is a job body. It must tolerate being invoked on a fresh process
// with no in-memory conversation state.
type JobFunc func()

// JobStatus describes one registered job for operational inspection.
type JobStatus struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	NextRun     time.Time `json:"next_run"`
	Running     bool      `json:"running"`
}

type jobEntry struct {
	id          string
	description string
	fn          JobFunc
	running     bool

	// Exactly one of these is set: cron entry for recurring jobs, timer
	// plus fire time for one-offs.
	entryID cron.EntryID
	isCron  bool
	timer   *time.Timer
	fireAt  time.Time
}

// Engine is the job registry plus its dispatcher.
type Engine struct {
	cron    *cron.Cron
	parser  cron.Parser
	workers chan struct{}
	grace   time.Duration
	now     func() time.Time

	mu   sync.Mutex
	jobs map[string]*jobEntry
}

// Opts holds Engine configuration.
type Opts struct {
	WorkerCount int
	GraceWindow time.Duration
	Now         func() time.Time
}

// Option configures the Engine.
type Option func(*Opts)

// WithWorkerCount sets the worker pool size.
func WithWorkerCount(n int) Option {
	return func(o *Opts) { o.WorkerCount = n }
}

// WithGraceWindow sets the misfire grace window.
func WithGraceWindow(d time.Duration) Option {
	return func(o *Opts) { o.GraceWindow = d }
}

// WithClock overrides the engine's wall clock (tests only).
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// NewEngine creates and starts a dispatch engine.
func NewEngine(opts ...Option) *Engine {
	cfg := Opts{WorkerCount: DefaultWorkerCount, GraceWindow: DefaultGraceWindow, Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	// Standard 5-field cron parser (min, hour, dom, month, dow). Specs may
	// carry a CRON_TZ= prefix for per-entry timezones.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()

	e := &Engine{
		cron:    c,
		parser:  parser,
		workers: make(chan struct{}, cfg.WorkerCount),
		grace:   cfg.GraceWindow,
		now:     cfg.Now,
		jobs:    make(map[string]*jobEntry),
	}
	slog.Info("Engine started", "workers", cfg.WorkerCount, "graceWindow", cfg.GraceWindow)
	return e
}

// RegisterDaily registers (or atomically replaces) a daily job firing at the
// given civil time in the named timezone. If the most recent scheduled firing
// was missed by no more than the grace window, a single catch-up run fires
// immediately.
func (e *Engine) RegisterDaily(jobID string, hour, minute int, tz string, fn JobFunc) error {
	spec := fmt.Sprintf("CRON_TZ=%s %d %d * * *", tz, minute, hour)
	desc := fmt.Sprintf("daily at %02d:%02d %s", hour, minute, tz)
	return e.registerCron(jobID, spec, desc, fn)
}

// RegisterWeekly registers (or atomically replaces) a weekly job firing at
// the given civil time on the given weekday in the named timezone.
func (e *Engine) RegisterWeekly(jobID string, weekday time.Weekday, hour, minute int, tz string, fn JobFunc) error {
	spec := fmt.Sprintf("CRON_TZ=%s %d %d * * %d", tz, minute, hour, int(weekday))
	desc := fmt.Sprintf("weekly on %s at %02d:%02d %s", weekday, hour, minute, tz)
	return e.registerCron(jobID, spec, desc, fn)
}

func (e *Engine) registerCron(jobID, spec, desc string, fn JobFunc) error {
	sched, err := e.parser.Parse(spec)
	if err != nil {
		slog.Error("Engine.registerCron: invalid schedule", "jobID", jobID, "spec", spec, "error", err)
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	e.mu.Lock()
	e.removeLocked(jobID)
	entry := &jobEntry{id: jobID, description: desc, fn: fn, isCron: true}
	entry.entryID = e.cron.Schedule(sched, cron.FuncJob(func() { e.dispatch(entry) }))
	e.jobs[jobID] = entry
	e.mu.Unlock()
	slog.Info("Engine.registerCron: job registered", "jobID", jobID, "schedule", desc)

	if missedWithinGrace(sched, e.now(), e.grace) {
		slog.Info("Engine.registerCron: missed firing within grace window, coalescing to one catch-up run", "jobID", jobID)
		e.dispatch(entry)
	}
	return nil
}

// RegisterOneOff registers (or atomically replaces) a single-shot job firing
// at an absolute instant. The job self-retires after firing. A fire time
// already in the past runs immediately if within the grace window and is
// dropped otherwise.
func (e *Engine) RegisterOneOff(jobID string, at time.Time, fn JobFunc) error {
	now := e.now()
	if delay := at.Sub(now); delay <= 0 {
		if -delay > e.grace {
			slog.Warn("Engine.RegisterOneOff: fire time beyond grace window, dropping", "jobID", jobID, "at", at)
			return nil
		}
		e.mu.Lock()
		e.removeLocked(jobID)
		entry := &jobEntry{id: jobID, description: fmt.Sprintf("once at %s", at.Format(time.RFC3339)), fn: fn, fireAt: at}
		e.jobs[jobID] = entry
		e.mu.Unlock()
		slog.Info("Engine.RegisterOneOff: missed fire time within grace window, running now", "jobID", jobID, "at", at)
		e.dispatchOneOff(entry)
		return nil
	}

	e.mu.Lock()
	e.removeLocked(jobID)
	entry := &jobEntry{id: jobID, description: fmt.Sprintf("once at %s", at.Format(time.RFC3339)), fn: fn, fireAt: at}
	entry.timer = time.AfterFunc(at.Sub(now), func() { e.dispatchOneOff(entry) })
	e.jobs[jobID] = entry
	e.mu.Unlock()
	slog.Info("Engine.RegisterOneOff: job registered", "jobID", jobID, "at", at)
	return nil
}

// Cancel removes a job's registration. In-flight executions are not
// interrupted; they run to completion.
func (e *Engine) Cancel(jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.jobs[jobID]; !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	e.removeLocked(jobID)
	slog.Info("Engine.Cancel: job cancelled", "jobID", jobID)
	return nil
}

// RunNow fires a registered job through the normal dispatch path, honoring
// the at-most-one-concurrent-execution guarantee.
func (e *Engine) RunNow(jobID string) error {
	e.mu.Lock()
	entry, ok := e.jobs[jobID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if entry.isCron {
		e.dispatch(entry)
	} else {
		e.dispatchOneOff(entry)
	}
	return nil
}

// Snapshot returns the currently registered jobs, their trigger descriptions
// and next-fire times.
func (e *Engine) Snapshot() []JobStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	statuses := make([]JobStatus, 0, len(e.jobs))
	for _, entry := range e.jobs {
		st := JobStatus{ID: entry.id, Description: entry.description, Running: entry.running}
		if entry.isCron {
			st.NextRun = e.cron.Entry(entry.entryID).Next
		} else {
			st.NextRun = entry.fireAt
		}
		statuses = append(statuses, st)
	}
	return statuses
}

// Stop halts trigger evaluation and pending one-off timers. Running job
// bodies are not interrupted.
func (e *Engine) Stop() {
	e.cron.Stop()
	e.mu.Lock()
	for id, entry := range e.jobs {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(e.jobs, id)
	}
	e.mu.Unlock()
	slog.Info("Engine stopped")
}

// removeLocked detaches a job's trigger. Caller holds e.mu.
func (e *Engine) removeLocked(jobID string) {
	entry, ok := e.jobs[jobID]
	if !ok {
		return
	}
	if entry.isCron {
		e.cron.Remove(entry.entryID)
	} else if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(e.jobs, jobID)
}

// dispatch runs a recurring job's body on the worker pool, skipping the
// firing if a previous execution of the same job id is still running.
func (e *Engine) dispatch(entry *jobEntry) {
	e.mu.Lock()
	if entry.running {
		e.mu.Unlock()
		slog.Warn("Engine.dispatch: previous execution still running, skipping firing", "jobID", entry.id)
		return
	}
	entry.running = true
	e.mu.Unlock()

	go func() {
		e.workers <- struct{}{}
		defer func() {
			<-e.workers
			e.mu.Lock()
			entry.running = false
			e.mu.Unlock()
		}()
		entry.fn()
	}()
}

// dispatchOneOff runs a one-off job's body and retires its registration.
func (e *Engine) dispatchOneOff(entry *jobEntry) {
	e.mu.Lock()
	if entry.running {
		e.mu.Unlock()
		slog.Warn("Engine.dispatchOneOff: already running, skipping", "jobID", entry.id)
		return
	}
	entry.running = true
	e.mu.Unlock()

	go func() {
		e.workers <- struct{}{}
		defer func() {
			<-e.workers
			e.mu.Lock()
			entry.running = false
			// Self-retire unless a replacement registration took the id.
			if current, ok := e.jobs[entry.id]; ok && current == entry {
				delete(e.jobs, entry.id)
			}
			e.mu.Unlock()
			slog.Debug("Engine.dispatchOneOff: job retired", "jobID", entry.id)
		}()
		entry.fn()
	}()
}

// missedWithinGrace reports whether a scheduled firing fell inside
// (now-grace, now]. However many firings were missed, the caller runs at
// most one catch-up.
func missedWithinGrace(sched cron.Schedule, now time.Time, grace time.Duration) bool {
	next := sched.Next(now.Add(-grace))
	return !next.After(now)
}
