// Package tasks provides a bounded background task runner with observable results.
//
// Webhook handlers acknowledge inbound messages immediately and hand the real
// work to a Runner, so slow LLM calls never block the HTTP response. The
// Runner bounds concurrency and reports completions on a channel instead of
// losing panics and errors inside detached goroutines.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultMaxConcurrent bounds how many tasks run at once.
const DefaultMaxConcurrent = 8

// ErrRunnerClosed is returned when submitting to a closed runner.
var ErrRunnerClosed = errors.New("task runner is closed")

// Result describes a finished task.
type Result struct {
	Name     string
	Err      error
	Duration time.Duration
}

// Task is a unit of background work.
type Task func(ctx context.Context) error

// Opts holds configuration options for the Runner.
type Opts struct {
	MaxConcurrent int
	ResultBuffer  int
}

// Option defines a configuration option for the Runner.
type Option func(*Opts)

// WithMaxConcurrent sets the concurrency bound.
func WithMaxConcurrent(n int) Option {
	return func(o *Opts) { o.MaxConcurrent = n }
}

// WithResultBuffer sets the buffer size of the results channel.
func WithResultBuffer(n int) Option {
	return func(o *Opts) { o.ResultBuffer = n }
}

// Runner executes tasks in the background with bounded concurrency.
type Runner struct {
	sem     chan struct{}
	results chan Result
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
}

// NewRunner creates a Runner with the given options.
func NewRunner(opts ...Option) *Runner {
	cfg := Opts{MaxConcurrent: DefaultMaxConcurrent, ResultBuffer: 64}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	return &Runner{
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		results: make(chan Result, cfg.ResultBuffer),
	}
}

// Submit schedules a task for background execution. It returns immediately;
// the outcome is delivered on Results. Panics inside a task are recovered and
// surfaced as errors.
func (r *Runner) Submit(ctx context.Context, name string, task Task) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRunnerClosed
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()

		select {
		case r.sem <- struct{}{}:
		case <-ctx.Done():
			r.emit(Result{Name: name, Err: ctx.Err()})
			return
		}
		defer func() { <-r.sem }()

		start := time.Now()
		err := runRecovered(ctx, task)
		result := Result{Name: name, Err: err, Duration: time.Since(start)}
		if err != nil {
			slog.Error("Runner task failed", "task", name, "error", err, "duration", result.Duration)
		} else {
			slog.Debug("Runner task completed", "task", name, "duration", result.Duration)
		}
		r.emit(result)
	}()
	return nil
}

// Results returns the channel of task outcomes. Consumers that fall behind do
// not block task execution; overflowing results are dropped.
func (r *Runner) Results() <-chan Result {
	return r.results
}

// Close stops accepting tasks, waits for in-flight tasks to finish, and then
// closes the results channel.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.wg.Wait()
	close(r.results)
}

func (r *Runner) emit(result Result) {
	select {
	case r.results <- result:
	default:
		slog.Warn("Runner results channel full, dropping result", "task", result.Name, "error", result.Err)
	}
}

func runRecovered(ctx context.Context, task Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task panicked: %v", rec)
		}
	}()
	return task(ctx)
}
