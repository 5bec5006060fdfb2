package job

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// State holds the scheduling bookkeeping shared by every job variant.
// Concrete jobs embed it to satisfy the identity and due-check half of
// the Job interface. The scheduler is the only writer; the admin server
// reads concurrently, hence the mutex around lastRun.
type State struct {
	id       string
	typ      string
	enabled  bool
	interval time.Duration
	sched    cron.Schedule // non-nil when a cron expression overrides the interval

	mu      sync.Mutex
	lastRun time.Time
}

// NewState builds the scheduling state for a job. scheduleExpr, when
// non-empty, must be a valid 5-field cron expression; it takes precedence
// over the minute interval for the due check.
func NewState(id, typ string, enabled bool, intervalMinutes int, scheduleExpr string) (*State, error) {
	st := &State{
		id:       id,
		typ:      typ,
		enabled:  enabled,
		interval: time.Duration(intervalMinutes) * time.Minute,
	}

	if scheduleExpr != "" {
		sched, err := cron.ParseStandard(scheduleExpr)
		if err != nil {
			return nil, fmt.Errorf("job: invalid schedule for %q: %w", id, err)
		}
		st.sched = sched
	}

	return st, nil
}

// ID implements Job.
func (s *State) ID() string { return s.id }

// Type implements Job.
func (s *State) Type() string { return s.typ }

// Enabled implements Job.
func (s *State) Enabled() bool { return s.enabled }

// IsDue implements Job. A job that has never run is always due. An
// interval job is due once interval_minutes have elapsed since the last
// attempt; a cron job is due once the next activation after the last
// attempt has passed.
func (s *State) IsDue(now time.Time) bool {
	last := s.LastRun()
	if last.IsZero() {
		return true
	}
	if s.sched != nil {
		return !now.Before(s.sched.Next(last))
	}
	return now.Sub(last) >= s.interval
}

// MarkRun implements Job.
func (s *State) MarkRun(now time.Time) {
	s.mu.Lock()
	s.lastRun = now
	s.mu.Unlock()
}

// LastRun implements Job.
func (s *State) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}
