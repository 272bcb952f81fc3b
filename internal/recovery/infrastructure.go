package recovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/FitPulse/internal/dispatch"
)

// RegisterJobRecovery wires the dispatch layer's startup work into the
// manager: system broadcast jobs first, then per-user workout schedules
// rebuilt from durable storage.
func RegisterJobRecovery(m *Manager, jobs *dispatch.Jobs) {
	m.Register("system_jobs", func(ctx context.Context) error {
		if err := jobs.RegisterSystemJobs(); err != nil {
			return fmt.Errorf("failed to register system jobs: %w", err)
		}
		return nil
	})
	m.Register("workout_schedules", func(ctx context.Context) error {
		count := jobs.RecoverSchedules()
		slog.Info("RegisterJobRecovery: workout schedules recovered", "count", count)
		return nil
	})
}
