// Package job defines the contract shared by all scheduled worker jobs:
// the Job interface, the Result record produced by each run, and the
// State value that tracks a job's due/last-run bookkeeping.
package job

import (
	"context"
	"time"
)

// Job is a named, independently scheduled unit of recurring work.
type Job interface {
	// ID returns the unique job identifier from configuration.
	ID() string

	// Type returns the job variant tag (e.g. "session_upload").
	Type() string

	// Enabled reports whether the scheduler should run this job.
	Enabled() bool

	// IsDue reports whether the job should run at now. Pure function of
	// state; no side effects.
	IsDue(now time.Time) bool

	// MarkRun records an execution attempt at now. The scheduler calls it
	// exactly once per attempt, success or failure, so a systematically
	// failing job still waits out its interval instead of retrying in a
	// tight loop.
	MarkRun(now time.Time)

	// LastRun returns the time of the last execution attempt, or the zero
	// time if the job has never run.
	LastRun() time.Time

	// Run executes the job's domain logic. Failures are captured in the
	// returned Result rather than propagated; the scheduler additionally
	// guards against panics.
	Run(ctx context.Context, endpoint, apiKey string) Result
}

// Result is the immutable outcome of one job execution.
type Result struct {
	JobID          string   `json:"job_id"`
	Success        bool     `json:"success"`
	Message        string   `json:"message"`
	ItemsProcessed int      `json:"items_processed"`
	Errors         []string `json:"errors,omitempty"`
}
