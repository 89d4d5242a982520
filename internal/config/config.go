package config

import (
	"fmt"

	"github.com/codewatchers/reviewd/internal/consensus"
	"github.com/codewatchers/reviewd/internal/domain"
	"github.com/codewatchers/reviewd/internal/triage"
	"github.com/codewatchers/reviewd/internal/units"
	"github.com/codewatchers/reviewd/internal/workflow"
)

// Config represents the full application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Queue         QueueConfig         `yaml:"queue"`
	Workflow      WorkflowConfig      `yaml:"workflow"`
	Triage        TriageConfig        `yaml:"triage"`
	Consensus     consensus.Config    `yaml:"consensus"`
	Scanners      ScannersConfig      `yaml:"scanners"`
	Publish       PublishConfig       `yaml:"publish"`
	Store         StoreConfig         `yaml:"store"`
	Git           GitConfig           `yaml:"git"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig configures the admission HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// QueueConfig bounds the intake queue and worker pool.
type QueueConfig struct {
	Capacity int `yaml:"capacity"`
	Workers  int `yaml:"workers"`
}

// WorkflowConfig configures the pipeline engine.
type WorkflowConfig struct {
	Timeouts   workflow.Timeouts `yaml:"timeouts"`
	UnitPolicy string            `yaml:"unitPolicy"`
}

// Policy maps the configured unit policy name onto units.Policy.
func (w WorkflowConfig) Policy() units.Policy {
	if w.UnitPolicy == string(units.PolicyLabeled) {
		return units.PolicyLabeled
	}
	return units.PolicyPerFile
}

// TriageConfig holds the risk weights and per-track selection policies.
type TriageConfig struct {
	Weights triage.Weights                `yaml:"weights"`
	Tracks  map[string]triage.TrackPolicy `yaml:"tracks"`
}

// Policies returns the per-track policies keyed by domain.Track.
func (t TriageConfig) Policies() map[domain.Track]triage.TrackPolicy {
	out := make(map[domain.Track]triage.TrackPolicy, len(t.Tracks))
	for name, policy := range t.Tracks {
		out[domain.Track(name)] = policy
	}
	return out
}

// ScannersConfig configures the evidence scanners.
type ScannersConfig struct {
	Semgrep SemgrepConfig        `yaml:"semgrep"`
	Builtin BuiltinScannerConfig `yaml:"builtin"`
}

// SemgrepConfig configures the external semgrep scanner.
type SemgrepConfig struct {
	Enabled bool   `yaml:"enabled"`
	Binary  string `yaml:"binary"`
	Rules   string `yaml:"rules"`
	Timeout string `yaml:"timeout"`
}

// BuiltinScannerConfig configures the built-in pattern scanner.
type BuiltinScannerConfig struct {
	Enabled bool `yaml:"enabled"`
}

// PublishConfig configures report delivery.
type PublishConfig struct {
	Enabled bool                 `yaml:"enabled"`
	GitHub  GitHubConfig         `yaml:"github"`
	Retry   workflow.RetryConfig `yaml:"retry"`
}

// GitHubConfig configures the GitHub publishing client.
type GitHubConfig struct {
	Token       string `yaml:"token"`
	BaseURL     string `yaml:"baseURL"`
	BotUsername string `yaml:"botUsername"`
}

// StoreConfig configures the run archive.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// GitConfig configures local-clone reviews.
type GitConfig struct {
	RepositoryDir string `yaml:"repositoryDir"`
}

// ObservabilityConfig configures logging.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig controls log verbosity and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Validate checks the configuration for values the pipeline cannot run
// with.
func (c Config) Validate() error {
	if c.Queue.Capacity < 1 {
		return fmt.Errorf("queue.capacity must be at least 1, got %d", c.Queue.Capacity)
	}
	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue.workers must be at least 1, got %d", c.Queue.Workers)
	}
	for name, policy := range c.Triage.Tracks {
		if policy.MinScore < 0 || policy.MinScore > 100 {
			return fmt.Errorf("triage.tracks.%s.minScore must be within [0,100], got %d", name, policy.MinScore)
		}
		if policy.MaxUnits < 0 {
			return fmt.Errorf("triage.tracks.%s.maxUnits must not be negative, got %d", name, policy.MaxUnits)
		}
	}
	for _, bound := range []struct {
		name  string
		value float64
	}{
		{"consensus.relevanceMin", c.Consensus.RelevanceMin},
		{"consensus.severityMin", c.Consensus.SeverityMin},
		{"consensus.confidenceMin", c.Consensus.ConfidenceMin},
		{"consensus.titleSimilarity", c.Consensus.TitleSimilarity},
	} {
		if bound.value < 0 || bound.value > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", bound.name, bound.value)
		}
	}
	if c.Publish.Enabled && c.Publish.GitHub.Token == "" {
		return fmt.Errorf("publish.github.token is required when publishing is enabled")
	}
	return nil
}
