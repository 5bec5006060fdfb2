// Package scheduler instantiates jobs from configuration and drives
// their periodic execution: a single-threaded poll loop that runs due
// jobs sequentially, plus a one-shot mode for on-demand invocation.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/uplink/internal/config"
	"github.com/flemzord/uplink/internal/job"
)

// pollInterval is the pause between passes over the job list.
const pollInterval = 60 * time.Second

// Sentinel errors for scheduler operations.
var (
	ErrNoJobs         = errors.New("scheduler: no jobs configured")
	ErrUnknownJobType = errors.New("scheduler: unknown job type")
	ErrJobNotFound    = errors.New("scheduler: job not found")
)

// Recorder receives every job result, for metrics export. Implementations
// must be safe for concurrent use if shared with other readers.
type Recorder interface {
	RecordRun(res job.Result)
}

// Scheduler owns the instantiated jobs and the poll loop. All job
// execution happens on the goroutine that calls Run; jobs never run
// concurrently with each other.
type Scheduler struct {
	cfg      *config.Config
	jobs     []job.Job
	logger   *slog.Logger
	recorder Recorder // optional

	// Overridable in tests.
	now  func() time.Time
	poll time.Duration
}

// New instantiates all configured jobs. Specs whose type is unknown or
// whose construction fails are logged and skipped; startup only fails
// when no job could be instantiated at all. rec may be nil.
func New(cfg *config.Config, logger *slog.Logger, rec Recorder) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		cfg:      cfg,
		logger:   logger,
		recorder: rec,
		now:      time.Now,
		poll:     pollInterval,
	}

	for _, spec := range cfg.Jobs {
		j, err := newJob(spec, cfg.Agents, logger)
		if err != nil {
			logger.Error("scheduler: skipping job", "job", spec.ID, "error", err)
			continue
		}
		s.jobs = append(s.jobs, j)
		logger.Info("scheduler: loaded job",
			"job", j.ID(),
			"type", j.Type(),
			"enabled", j.Enabled(),
		)
	}

	if len(s.jobs) == 0 {
		return nil, ErrNoJobs
	}

	logger.Info("scheduler: loaded jobs", "count", len(s.jobs))
	return s, nil
}

// Run executes the poll loop until ctx is cancelled: one pass over the
// job list in configuration order, then a fixed pause. The loop never
// terminates on job failures.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler: started", "jobs", len(s.jobs))

	for {
		s.runPass(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler: stopped")
			return nil
		case <-time.After(s.poll):
		}
	}
}

// runPass runs every enabled, due job once, sequentially.
func (s *Scheduler) runPass(ctx context.Context) {
	for _, j := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		if !j.Enabled() {
			continue
		}
		if !j.IsDue(s.now()) {
			continue
		}
		s.RunOne(ctx, j)
	}
}

// RunOne executes a single job, converting a panic into a failed Result.
// MarkRun is always called, so a crashing job still reports "not due"
// for its full interval afterwards.
func (s *Scheduler) RunOne(ctx context.Context, j job.Job) (res job.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler: job panicked", "job", j.ID(), "panic", r)
			res = job.Result{
				JobID:   j.ID(),
				Success: false,
				Message: fmt.Sprintf("panic: %v", r),
				Errors:  []string{fmt.Sprint(r)},
			}
		}
		j.MarkRun(s.now())
		s.report(res)
	}()

	s.logger.Info("scheduler: running job", "job", j.ID())
	res = j.Run(ctx, s.cfg.Endpoint, s.cfg.APIKey)
	return res
}

// report logs a result and forwards it to the recorder.
func (s *Scheduler) report(res job.Result) {
	s.logger.Info("scheduler: job finished",
		"job", res.JobID,
		"success", res.Success,
		"items", res.ItemsProcessed,
		"message", res.Message,
	)
	for _, e := range res.Errors {
		s.logger.Warn("scheduler: job error", "job", res.JobID, "error", e)
	}

	if s.recorder != nil {
		s.recorder.RecordRun(res)
	}
}

// RunSingle instantiates and runs one job by id, bypassing the enabled
// flag and the due check. Used for on-demand invocation; the poll loop
// is never entered.
func RunSingle(ctx context.Context, cfg *config.Config, logger *slog.Logger, jobID string) (job.Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	for _, spec := range cfg.Jobs {
		if spec.ID != jobID {
			continue
		}

		j, err := newJob(spec, cfg.Agents, logger)
		if err != nil {
			return job.Result{}, err
		}

		s := &Scheduler{cfg: cfg, logger: logger, now: time.Now}
		return s.RunOne(ctx, j), nil
	}

	return job.Result{}, fmt.Errorf("%w: %q", ErrJobNotFound, jobID)
}
