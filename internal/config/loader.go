package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"github.com/codewatchers/reviewd/internal/consensus"
	"github.com/codewatchers/reviewd/internal/triage"
	"github.com/codewatchers/reviewd/internal/workflow"
)

const (
	// FileName is the config file basename searched for on disk.
	FileName = "reviewd"

	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "REVIEWD"
)

// LoaderOptions controls where configuration is loaded from.
type LoaderOptions struct {
	// ConfigFile is an explicit path to a config file. When set, search
	// paths are ignored and a missing file is an error.
	ConfigFile string

	// SearchPaths are directories searched for reviewd.yaml, in order.
	// Defaults to ~/.config/reviewd and the working directory.
	SearchPaths []string
}

// Load reads configuration from file and environment, applying
// defaults for anything not set.
func Load(opts LoaderOptions) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(false)

	setDefaults(v)

	path, err := locateConfigFile(opts)
	if err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	expandEnvVars(&cfg)

	if cfg.Store.Path == "" {
		cfg.Store.Path = defaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// locateConfigFile resolves the config file to read, or "" when no
// file exists and defaults alone should be used.
func locateConfigFile(opts LoaderOptions) (string, error) {
	if opts.ConfigFile != "" {
		if _, err := os.Stat(opts.ConfigFile); err != nil {
			return "", fmt.Errorf("config file not found: %s", opts.ConfigFile)
		}
		return opts.ConfigFile, nil
	}

	paths := opts.SearchPaths
	if len(paths) == 0 {
		if home, err := os.UserHomeDir(); err == nil {
			paths = append(paths, filepath.Join(home, ".config", "reviewd"))
		}
		paths = append(paths, ".")
	}

	for _, dir := range paths {
		candidate := filepath.Join(dir, FileName+".yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("queue.capacity", 100)
	v.SetDefault("queue.workers", 4)

	timeouts := workflow.DefaultTimeouts()
	v.SetDefault("workflow.timeouts.parsing", timeouts.Parsing)
	v.SetDefault("workflow.timeouts.riskAnalysis", timeouts.RiskAnalysis)
	v.SetDefault("workflow.timeouts.scanning", timeouts.Scanning)
	v.SetDefault("workflow.timeouts.triage", timeouts.Triage)
	v.SetDefault("workflow.timeouts.analysis", timeouts.Analysis)
	v.SetDefault("workflow.timeouts.correlation", timeouts.Correlation)
	v.SetDefault("workflow.timeouts.aggregation", timeouts.Aggregation)
	v.SetDefault("workflow.timeouts.publishing", timeouts.Publishing)
	v.SetDefault("workflow.unitPolicy", "per-file")

	weights := triage.DefaultWeights()
	v.SetDefault("triage.weights.linesChanged", weights.LinesChanged)
	v.SetDefault("triage.weights.controlFlow", weights.ControlFlow)
	v.SetDefault("triage.weights.defectDensity", weights.DefectDensity)
	v.SetDefault("triage.weights.pathWeights", weights.PathWeights)
	for track, policy := range triage.DefaultPolicies() {
		v.SetDefault(fmt.Sprintf("triage.tracks.%s.minScore", track), policy.MinScore)
		v.SetDefault(fmt.Sprintf("triage.tracks.%s.maxUnits", track), policy.MaxUnits)
	}

	cc := consensus.DefaultConfig()
	v.SetDefault("consensus.titleSimilarity", cc.TitleSimilarity)
	v.SetDefault("consensus.relevanceMin", cc.RelevanceMin)
	v.SetDefault("consensus.severityMin", cc.SeverityMin)
	v.SetDefault("consensus.confidenceMin", cc.ConfidenceMin)

	v.SetDefault("scanners.semgrep.enabled", false)
	v.SetDefault("scanners.semgrep.binary", "semgrep")
	v.SetDefault("scanners.semgrep.timeout", "90s")
	v.SetDefault("scanners.builtin.enabled", true)

	retry := workflow.DefaultRetryConfig()
	v.SetDefault("publish.enabled", false)
	v.SetDefault("publish.retry.maxRetries", retry.MaxRetries)
	v.SetDefault("publish.retry.initialBackoff", retry.InitialBackoff)
	v.SetDefault("publish.retry.maxBackoff", retry.MaxBackoff)
	v.SetDefault("publish.retry.multiplier", retry.Multiplier)

	v.SetDefault("store.enabled", true)

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "human")
}

// envVarPattern matches ${VAR} and $VAR references in string values.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars substitutes environment variable references in the
// string fields that commonly carry secrets or machine-local paths.
func expandEnvVars(cfg *Config) {
	cfg.Publish.GitHub.Token = expandString(cfg.Publish.GitHub.Token)
	cfg.Publish.GitHub.BaseURL = expandString(cfg.Publish.GitHub.BaseURL)
	cfg.Store.Path = expandString(cfg.Store.Path)
	cfg.Git.RepositoryDir = expandString(cfg.Git.RepositoryDir)
	cfg.Scanners.Semgrep.Binary = expandString(cfg.Scanners.Semgrep.Binary)
	cfg.Scanners.Semgrep.Rules = expandString(cfg.Scanners.Semgrep.Rules)
}

func expandString(s string) string {
	if s == "" || !strings.Contains(s, "$") {
		return s
	}
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "$")
		name = strings.TrimPrefix(name, "{")
		name = strings.TrimSuffix(name, "}")
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "reviewd.db")
	}
	return filepath.Join(home, ".config", "reviewd", "reviewd.db")
}
