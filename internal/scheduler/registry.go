package scheduler

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/flemzord/uplink/internal/config"
	"github.com/flemzord/uplink/internal/job"
)

// Factory constructs a job variant from its specification and the shared
// read-only agent registry.
type Factory func(spec config.JobSpec, agents map[string]config.Agent, logger *slog.Logger) (job.Job, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a job type available to the scheduler. It panics on a
// duplicate type tag. Intended to be called from init() functions of the
// implementing packages.
func Register(jobType string, f Factory) {
	if jobType == "" {
		panic("scheduler: job type must not be empty")
	}
	if f == nil {
		panic(fmt.Sprintf("scheduler: job type %s: factory must not be nil", jobType))
	}

	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if _, exists := factories[jobType]; exists {
		panic("scheduler: job type already registered: " + jobType)
	}
	factories[jobType] = f
}

// newJob resolves the factory for spec.Type and constructs the job.
func newJob(spec config.JobSpec, agents map[string]config.Agent, logger *slog.Logger) (job.Job, error) {
	factoriesMu.RLock()
	f, ok := factories[spec.Type]
	factoriesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, spec.Type)
	}
	return f(spec, agents, logger)
}
