// Package session implements the session_upload job: it scans agent
// session directories for completed transcript files, uploads each to
// the remote ingestion endpoint, and archives successfully handled
// files so they are never reprocessed.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/flemzord/uplink/internal/config"
	"github.com/flemzord/uplink/internal/job"
	"github.com/flemzord/uplink/internal/scheduler"
)

func init() {
	scheduler.Register("session_upload", func(spec config.JobSpec, agents map[string]config.Agent, logger *slog.Logger) (job.Job, error) {
		return NewUploadJob(spec, agents, logger)
	})
}

// Options is the session_upload job configuration, decoded from the
// job spec's opaque config node.
type Options struct {
	// Agents lists the agent identifiers to process, in order. Empty
	// means the job is a no-op success.
	Agents []string `yaml:"agents"`
}

// UploadJob uploads completed session transcripts for a set of agents.
type UploadJob struct {
	*job.State
	opts   Options
	agents map[string]config.Agent
	client *Client
	logger *slog.Logger
}

// Interface guard.
var _ job.Job = (*UploadJob)(nil)

// NewUploadJob constructs the job from its spec and the shared agent
// registry.
func NewUploadJob(spec config.JobSpec, agents map[string]config.Agent, logger *slog.Logger) (*UploadJob, error) {
	state, err := job.NewState(spec.ID, spec.Type, spec.IsEnabled(), spec.IntervalMinutes, spec.Schedule)
	if err != nil {
		return nil, err
	}

	var opts Options
	if !spec.Config.IsZero() {
		if err := spec.Config.Decode(&opts); err != nil {
			return nil, fmt.Errorf("session: decoding job %q config: %w", spec.ID, err)
		}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &UploadJob{
		State:  state,
		opts:   opts,
		agents: agents,
		client: NewClient(logger),
		logger: logger,
	}, nil
}

// Run implements job.Job. It processes each configured agent in order,
// aggregating the upload count and per-item errors into one Result.
// Partial success counts as success: the run fails only when nothing was
// uploaded and at least one error occurred.
func (u *UploadJob) Run(ctx context.Context, endpoint, apiKey string) job.Result {
	if len(u.opts.Agents) == 0 {
		return job.Result{
			JobID:   u.ID(),
			Success: true,
			Message: "no agents configured",
		}
	}

	var uploaded int
	var errs []string

	for _, agentID := range u.opts.Agents {
		agent, ok := u.agents[agentID]
		if !ok {
			errs = append(errs, fmt.Sprintf("agent not found in config: %s", agentID))
			continue
		}

		if _, err := os.Stat(agent.SessionsDir); err != nil {
			// The agent may simply not have produced sessions yet.
			u.logger.Warn("session: sessions directory not found",
				"agent", agentID,
				"dir", agent.SessionsDir,
			)
			continue
		}

		n, agentErrs := u.processAgent(ctx, agentID, agent.SessionsDir, endpoint, apiKey)
		uploaded += n
		errs = append(errs, agentErrs...)
	}

	message := fmt.Sprintf("uploaded %d sessions", uploaded)
	if len(errs) > 0 {
		message = fmt.Sprintf("uploaded %d sessions, %d errors", uploaded, len(errs))
	}

	return job.Result{
		JobID:          u.ID(),
		Success:        len(errs) == 0 || uploaded > 0,
		Message:        message,
		ItemsProcessed: uploaded,
		Errors:         errs,
	}
}

// processAgent uploads every completed session found in one agent's
// sessions directory. Per-file failures are recorded and do not stop the
// remaining files.
func (u *UploadJob) processAgent(ctx context.Context, agentID, dir, endpoint, apiKey string) (int, []string) {
	active := u.activeSessions(dir)
	candidates, errs := u.findCompleted(dir, active)

	if len(candidates) == 0 {
		if len(errs) == 0 {
			u.logger.Debug("session: no completed sessions", "agent", agentID)
		}
		return 0, errs
	}

	u.logger.Info("session: found completed sessions",
		"agent", agentID,
		"count", len(candidates),
	)

	var uploaded int
	for _, c := range candidates {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Sprintf("cancelled before uploading %s", c.id))
			return uploaded, errs
		}

		if err := u.uploadOne(ctx, agentID, c, endpoint, apiKey); err != nil {
			errs = append(errs, fmt.Sprintf("upload failed for %s: %v", c.id, err))
			continue
		}

		if err := archive(c.path, dir); err != nil {
			errs = append(errs, fmt.Sprintf("archiving %s: %v", c.id, err))
			continue
		}

		uploaded++
		u.logger.Info("session: uploaded and archived", "agent", agentID, "session", c.id)
	}

	return uploaded, errs
}

// uploadOne reads one transcript and posts it, enforcing the local size
// limit first so oversized files never hit the network.
func (u *UploadJob) uploadOne(ctx context.Context, agentID string, c candidate, endpoint, apiKey string) error {
	if c.size > MaxTranscriptBytes {
		u.logger.Warn("session: transcript too large, refusing upload",
			"session", c.id,
			"bytes", c.size,
			"max", MaxTranscriptBytes,
		)
		return fmt.Errorf("%w: %d bytes", ErrTranscriptTooLarge, c.size)
	}

	transcript, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("reading transcript: %w", err)
	}

	return u.client.Upload(ctx, endpoint, apiKey, UploadRequest{
		AgentID:    agentID,
		SessionID:  c.id,
		Transcript: string(transcript),
	})
}
