// Package config handles configuration loading, environment variable
// expansion, and structural validation for the uplink worker.
package config

import "gopkg.in/yaml.v3"

// Config is the top-level configuration structure.
type Config struct {
	// Endpoint is the base URL of the remote ingestion service.
	Endpoint string `yaml:"endpoint"`

	// APIKey authenticates upload requests (sent as a query parameter).
	APIKey string `yaml:"api_key"`

	// Admin configures the optional local admin HTTP server.
	Admin AdminConfig `yaml:"admin,omitempty"`

	// Agents maps agent identifiers to their directory configuration.
	Agents map[string]Agent `yaml:"agents"`

	// Jobs lists the scheduled jobs in execution order.
	Jobs []JobSpec `yaml:"jobs"`
}

// AdminConfig configures the admin HTTP server. An empty Listen
// address disables the server entirely.
type AdminConfig struct {
	Listen string `yaml:"listen"`
}

// Agent describes one agent runtime's on-disk layout.
type Agent struct {
	// Workspace is the agent's working directory (informational).
	Workspace string `yaml:"workspace"`

	// SessionsDir is where the agent writes session transcript files.
	SessionsDir string `yaml:"sessions_dir"`
}

// JobSpec describes one scheduled job. The Config node is opaque here;
// the job factory registered for Type decodes it into its own options.
type JobSpec struct {
	ID   string `yaml:"id"`
	Type string `yaml:"type"`

	// Enabled defaults to true when unset. Use IsEnabled to read it.
	Enabled *bool `yaml:"enabled"`

	// IntervalMinutes is the minimum gap between execution attempts.
	// Defaults to 60 when unset. Ignored when Schedule is set.
	IntervalMinutes int `yaml:"interval_minutes"`

	// Schedule is an optional 5-field cron expression overriding the
	// interval (e.g. "*/15 * * * *").
	Schedule string `yaml:"schedule,omitempty"`

	Config yaml.Node `yaml:"config"`
}

// IsEnabled reports the enabled flag, defaulting to true when unset.
func (j *JobSpec) IsEnabled() bool {
	return j.Enabled == nil || *j.Enabled
}

// defaults fills in zero-value fields after unmarshalling.
func (c *Config) defaults() {
	for i := range c.Jobs {
		if c.Jobs[i].IntervalMinutes == 0 {
			c.Jobs[i].IntervalMinutes = 60
		}
	}
}
