package scheduler

import "time"

// JobStatus is a point-in-time view of one scheduled job, served by the
// admin status endpoint.
type JobStatus struct {
	ID      string     `json:"id"`
	Type    string     `json:"type"`
	Enabled bool       `json:"enabled"`
	Due     bool       `json:"due"`
	LastRun *time.Time `json:"last_run,omitempty"`
}

// Snapshot returns the current state of every instantiated job, in
// configuration order. Safe to call while the poll loop is running.
func (s *Scheduler) Snapshot() []JobStatus {
	now := s.now()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		st := JobStatus{
			ID:      j.ID(),
			Type:    j.Type(),
			Enabled: j.Enabled(),
			Due:     j.IsDue(now),
		}
		if last := j.LastRun(); !last.IsZero() {
			st.LastRun = &last
		}
		out = append(out, st)
	}
	return out
}
