// Copyright 2026 The Gitcell Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the gitcell
// runner.
//
// Configuration is loaded from a single YAML file specified by the
// GITCELL_CONFIG environment variable or the --config flag. There are
// no fallbacks or automatic discovery: the file is the single source
// of truth, loaded once at startup and threaded explicitly through
// every component. Nothing re-reads configuration at runtime.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable that points at the config
// file.
const EnvVar = "GITCELL_CONFIG"

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the runner configuration.
type Config struct {
	// Identity is the worker's identity, used to resolve its slot
	// directory inside the repository and to tag commits and result
	// files. Required; there is no default.
	Identity string `yaml:"identity"`

	// Repository configures the shared coordination repository.
	Repository RepositoryConfig `yaml:"repository"`

	// PollInterval is how long the runner idles between poll cycles.
	PollInterval Duration `yaml:"poll_interval"`

	// Execute configures job execution.
	Execute ExecuteConfig `yaml:"execute"`

	// Publish configures the push retry policy.
	Publish PublishConfig `yaml:"publish"`

	// StateDir is where the runner keeps its own state: the persisted
	// poll state file and the local result archive. Must be outside
	// the repository checkout so it is never committed.
	StateDir string `yaml:"state_dir"`
}

// RepositoryConfig configures the shared repository checkout.
type RepositoryConfig struct {
	// Dir is the path of the local working tree. Required.
	Dir string `yaml:"dir"`

	// Branch is the tracked branch all workers share.
	Branch string `yaml:"branch"`

	// OpTimeout bounds each individual git operation; expiry is
	// treated as a network failure.
	OpTimeout Duration `yaml:"op_timeout"`
}

// ExecuteConfig configures job execution.
type ExecuteConfig struct {
	// Command is the interpreter invocation; the job artifact path is
	// appended as the final argument. The command must rewrite the
	// artifact in place with outputs captured.
	Command []string `yaml:"command"`

	// Timeout bounds a single job execution. On expiry the process
	// group is killed and the job is recorded as a timed-out failure.
	Timeout Duration `yaml:"timeout"`

	// SetupHook is an optional shell command run in the slot
	// directory before execution, typically dependency installation.
	// A setup failure aborts the job as a failure outcome.
	SetupHook string `yaml:"setup_hook"`

	// TeardownHook is an optional shell command run in the slot
	// directory after execution, success or failure. Failures are
	// logged and non-fatal.
	TeardownHook string `yaml:"teardown_hook"`
}

// PublishConfig configures the publish retry policy.
type PublishConfig struct {
	// MaxAttempts is the push attempt budget per outcome. Exhaustion
	// is logged and swallowed; the unpushed commit rides along to a
	// later cycle's reconciliation.
	MaxAttempts int `yaml:"max_attempts"`

	// PrePushDelayMin/Max bound the randomized delay before the first
	// push attempt. The delay widens the window for a peer's own
	// pull/commit/push cycle to finish first, cutting collision
	// probability.
	PrePushDelayMin Duration `yaml:"pre_push_delay_min"`
	PrePushDelayMax Duration `yaml:"pre_push_delay_max"`

	// RetryBackoffMin/Max bound the fresh randomized backoff applied
	// before retrying after an unclassified push failure.
	RetryBackoffMin Duration `yaml:"retry_backoff_min"`
	RetryBackoffMax Duration `yaml:"retry_backoff_max"`
}

// Default returns the default configuration. Identity and the
// repository directory have no defaults — the config file must
// provide them.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Repository: RepositoryConfig{
			Branch:    "main",
			OpTimeout: Duration(60 * time.Second),
		},
		PollInterval: Duration(30 * time.Second),
		Execute: ExecuteConfig{
			Command: []string{"jupyter", "nbconvert", "--to", "notebook", "--execute", "--inplace"},
			Timeout: Duration(5000 * time.Second),
		},
		Publish: PublishConfig{
			MaxAttempts:     3,
			PrePushDelayMin: Duration(30 * time.Second),
			PrePushDelayMax: Duration(180 * time.Second),
			RetryBackoffMin: Duration(10 * time.Second),
			RetryBackoffMax: Duration(90 * time.Second),
		},
		StateDir: filepath.Join(homeDir, ".cache", "gitcell"),
	}
}

// Load loads configuration from the file named by GITCELL_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your gitcell.yaml config file, or use --config", EnvVar)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merging it
// over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors. A missing identity or
// repository directory is fatal at startup — never a runtime
// condition.
func (c *Config) Validate() error {
	var errs []error

	if c.Identity == "" {
		errs = append(errs, fmt.Errorf("identity is required"))
	}
	if c.Repository.Dir == "" {
		errs = append(errs, fmt.Errorf("repository.dir is required"))
	}
	if c.Repository.Branch == "" {
		errs = append(errs, fmt.Errorf("repository.branch is required"))
	}
	if c.Repository.OpTimeout <= 0 {
		errs = append(errs, fmt.Errorf("repository.op_timeout must be positive"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive"))
	}
	if len(c.Execute.Command) == 0 {
		errs = append(errs, fmt.Errorf("execute.command is required"))
	}
	if c.Execute.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("execute.timeout must be positive"))
	}
	if c.Publish.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("publish.max_attempts must be at least 1"))
	}
	if c.Publish.PrePushDelayMin < 0 || c.Publish.PrePushDelayMax < c.Publish.PrePushDelayMin {
		errs = append(errs, fmt.Errorf("publish pre-push delay bounds are inverted"))
	}
	if c.Publish.RetryBackoffMin < 0 || c.Publish.RetryBackoffMax < c.Publish.RetryBackoffMin {
		errs = append(errs, fmt.Errorf("publish retry backoff bounds are inverted"))
	}
	if c.StateDir == "" {
		errs = append(errs, fmt.Errorf("state_dir is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
