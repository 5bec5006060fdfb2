package config

import (
	"errors"
	"fmt"
)

// Validate checks the structural validity of a Config. It verifies the
// remote endpoint settings, per-agent directories, and job specs. Job
// types are not checked here; the scheduler resolves them against its
// registry and skips unknown ones at startup.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Endpoint == "" {
		errs = append(errs, errors.New("config: endpoint is required"))
	}
	if cfg.APIKey == "" {
		errs = append(errs, errors.New("config: api_key is required"))
	}

	for id, agent := range cfg.Agents {
		if agent.SessionsDir == "" {
			errs = append(errs, fmt.Errorf("config: agent %q: sessions_dir is required", id))
		}
	}

	seen := make(map[string]struct{}, len(cfg.Jobs))
	for i, spec := range cfg.Jobs {
		if spec.ID == "" {
			errs = append(errs, fmt.Errorf("config: job #%d: id is required", i))
			continue
		}
		if _, dup := seen[spec.ID]; dup {
			errs = append(errs, fmt.Errorf("config: duplicate job id %q", spec.ID))
		}
		seen[spec.ID] = struct{}{}

		if spec.Type == "" {
			errs = append(errs, fmt.Errorf("config: job %q: type is required", spec.ID))
		}
		if spec.IntervalMinutes < 1 {
			errs = append(errs, fmt.Errorf("config: job %q: interval_minutes must be >= 1", spec.ID))
		}
	}

	return errors.Join(errs...)
}
