// Package config holds the options file shared by the CLI and the
// meta-solvers.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/robustopt/internal/solver"
)

// Adjustable transformations selectable in the options file.
const (
	AdjustableLDR     = "ldr"
	AdjustableNominal = "nominal"
)

// Config is the options file.
type Config struct {
	// Solver is the master solver; Subsolver defaults to it.
	Solver    string `yaml:"solver" json:"solver"`
	Subsolver string `yaml:"subsolver" json:"subsolver"`
	MaxIter   int    `yaml:"max_iter" json:"max_iter"`
	// Adjustable selects the decision-rule transformation run first.
	Adjustable string `yaml:"adjustable" json:"adjustable"`
	Tee        bool   `yaml:"tee" json:"tee"`
	// TimeLimit is per solve, in seconds; zero means none.
	TimeLimit float64 `yaml:"time_limit" json:"time_limit"`

	Root            bool `yaml:"root" json:"root"`
	GenericDual     bool `yaml:"generic_dual" json:"generic_dual"`
	InitializeWolfe bool `yaml:"initialize_wolfe" json:"initialize_wolfe"`
	Parallel        bool `yaml:"parallel" json:"parallel"`
	Recheck         bool `yaml:"recheck" json:"recheck"`

	DataDir string `yaml:"data_dir" json:"data_dir"`

	Options          map[string]any `yaml:"options,omitempty" json:"options,omitempty"`
	SubsolverOptions map[string]any `yaml:"subsolver_options,omitempty" json:"subsolver_options,omitempty"`
}

// Default returns the built-in options.
func Default() *Config {
	return &Config{
		Solver:     "bnb",
		MaxIter:    300,
		Adjustable: AdjustableLDR,
		DataDir:    "./data",
	}
}

// Load reads a YAML file on top of the defaults. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config as YAML, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if s := os.Getenv("ROBUSTOPT_SOLVER"); s != "" {
		c.Solver = s
	}
	if dir := os.Getenv("ROBUSTOPT_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Solver == "" {
		return fmt.Errorf("solver must be set")
	}
	if c.MaxIter < 1 {
		return fmt.Errorf("max_iter must be at least 1, got %d", c.MaxIter)
	}
	if c.Adjustable != AdjustableLDR && c.Adjustable != AdjustableNominal {
		return fmt.Errorf("invalid adjustable transformation: %s (valid: %s, %s)", c.Adjustable, AdjustableLDR, AdjustableNominal)
	}
	if c.TimeLimit < 0 {
		return fmt.Errorf("time_limit must not be negative, got %g", c.TimeLimit)
	}
	return nil
}

// SubsolverName returns the separation solver name.
func (c *Config) SubsolverName() string {
	if c.Subsolver == "" {
		return c.Solver
	}
	return c.Subsolver
}

// SolverOptions returns the options forwarded to master solves.
func (c *Config) SolverOptions() solver.Options {
	return solver.Options{
		TimeLimit: time.Duration(c.TimeLimit * float64(time.Second)),
		Tee:       c.Tee,
		Params:    c.Options,
	}
}

// SeparationOptions returns the options forwarded to separation solves.
// They default to the master options.
func (c *Config) SeparationOptions() solver.Options {
	opts := c.SolverOptions()
	if c.SubsolverOptions != nil {
		opts.Params = c.SubsolverOptions
	}
	return opts
}
