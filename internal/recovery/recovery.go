// Package recovery rebuilds in-memory scheduling state after an application
// restart. Steps are registered by the components that own durable state and
// run once at startup; a failing step is logged and skipped so one bad
// component cannot keep the rest of the application from coming up.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
)

// Step restores one component's runtime state from durable storage.
type Step func(ctx context.Context) error

type namedStep struct {
	name string
	fn   Step
}

// Manager orchestrates recovery of all registered components.
type Manager struct {
	steps []namedStep
}

// NewManager creates an empty recovery manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a recovery step. Steps run in registration order.
func (m *Manager) Register(name string, fn Step) {
	m.steps = append(m.steps, namedStep{name: name, fn: fn})
}

// RecoverAll runs every registered step. Failures are isolated per step; the
// returned error summarizes how many steps failed.
func (m *Manager) RecoverAll(ctx context.Context) error {
	slog.Info("Manager.RecoverAll: starting application recovery", "steps", len(m.steps))

	recovered := 0
	failed := 0
	for _, step := range m.steps {
		if err := step.fn(ctx); err != nil {
			slog.Error("Manager.RecoverAll: step failed", "error", err, "step", step.name)
			failed++
			continue
		}
		slog.Debug("Manager.RecoverAll: step completed", "step", step.name)
		recovered++
	}

	slog.Info("Manager.RecoverAll: application recovery completed", "recovered", recovered, "errors", failed)
	if failed > 0 {
		return fmt.Errorf("recovery completed with %d errors out of %d steps", failed, len(m.steps))
	}
	return nil
}
