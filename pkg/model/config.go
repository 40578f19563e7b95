// Package model provides the core transformer sub-layer components from
// "Attention Is All You Need": configuration, the position-wise feed-forward
// block, and the layer composition contract shared with the attention
// package.
//
// All components are pure functions of their parameters and input: a forward
// pass never mutates state, and training-dependent behavior (dropout) is
// selected by an explicit flag rather than ambient mode.
package model

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the dimensional hyperparameters shared by the attention and
// feed-forward sub-layers.
type Config struct {
	// ModelDim is the uniform feature width of every sub-layer's input and
	// output (512 in the base transformer).
	ModelDim int `yaml:"model_dim"`

	// NumHeads is the number of attention heads (8 in the base transformer).
	// ModelDim must be divisible by NumHeads.
	NumHeads int `yaml:"num_heads"`

	// HiddenDim is the inner width of the feed-forward block (2048 in the
	// base transformer, a 4x expansion).
	HiddenDim int `yaml:"hidden_dim"`

	// Dropout is the dropout probability applied by the feed-forward block
	// during training. Must be in [0, 1).
	Dropout float32 `yaml:"dropout"`
}

// ConfigError reports an invalid dimensional configuration. It is returned
// at construction time, before any parameters are allocated.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("model: invalid %s: %s", e.Field, e.Reason)
}

func configErrorf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NewConfigError constructs a ConfigError for the given field. It exists so
// sub-layer packages report configuration violations with the same type.
func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

// DefaultConfig returns the base transformer configuration from the paper:
// model_dim 512, 8 heads of 64 dimensions each, hidden_dim 2048.
func DefaultConfig() Config {
	return Config{
		ModelDim:  512,
		NumHeads:  8,
		HiddenDim: 2048,
		Dropout:   0.1,
	}
}

// LoadConfig reads a yaml configuration file. Fields missing from the file
// keep their DefaultConfig values. The result is validated before being
// returned.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the dimensional invariants. It returns a *ConfigError
// naming the first violated field.
func (c Config) Validate() error {
	if c.ModelDim <= 0 {
		return configErrorf("model_dim", "must be positive, got %d", c.ModelDim)
	}
	if c.NumHeads <= 0 {
		return configErrorf("num_heads", "must be positive, got %d", c.NumHeads)
	}
	if c.ModelDim%c.NumHeads != 0 {
		return configErrorf("num_heads", "model_dim (%d) must be divisible by num_heads (%d)",
			c.ModelDim, c.NumHeads)
	}
	if c.HiddenDim <= 0 {
		return configErrorf("hidden_dim", "must be positive, got %d", c.HiddenDim)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return configErrorf("dropout", "must be in [0, 1), got %g", c.Dropout)
	}
	return nil
}

// HeadDim returns the per-head feature width ModelDim / NumHeads.
func (c Config) HeadDim() int {
	return c.ModelDim / c.NumHeads
}
