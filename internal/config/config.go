// Package config loads a Scan run's configuration: confidence, precision,
// worker count, seed, an optional wall-clock deadline, and where to write
// traces.
package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// OuterConfig is the top-level YAML envelope: a kind discriminator plus an
// opaque, kind-specific body re-marshaled into RunConfig.
type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// RunConfig holds the statistical scheduler's stopping criteria and
// concurrency/tracing parameters. viper lower-cases every key it reads, so
// the yaml tags here are lower-case; a file may spell them in any case.
type RunConfig struct {
	// Confidence is the target confidence level (0,1), e.g. 0.95.
	Confidence float64 `yaml:"confidence"`
	// Precision is the target half-width of the confidence interval.
	Precision float64 `yaml:"precision"`
	// Workers is the number of concurrent run-generating goroutines.
	Workers int `yaml:"workers"`
	// Seed seeds the first worker's RNG; subsequent workers derive from it.
	Seed int64 `yaml:"seed"`
	// MaxSteps caps the number of transitions any single run may take
	// before it is declared Incomplete; 0 means unbounded.
	MaxSteps uint64 `yaml:"maxsteps"`
	// MaxDuration caps a single run's simulated model time (the
	// TransitionSystem's own Time(), not wall-clock); 0 means unbounded.
	MaxDuration uint64 `yaml:"maxduration"`
	// Deadline optionally bounds the whole experiment's wall-clock duration.
	Deadline map[string]string `yaml:"deadline"`
	// TraceDir, if set, is where per-run traces are written.
	TraceDir string `yaml:"tracedir"`
}

// WithDeadline returns a context extended by the configured deadline, if
// one is specified.
func (cfg *RunConfig) WithDeadline(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if val, ok := cfg.Deadline["duration"]; ok {
		duration, err := time.ParseDuration(val)
		if err != nil {
			return nil, nil, err
		}
		innerCtx, cancel := context.WithTimeout(ctx, duration)
		return innerCtx, cancel, nil
	}
	defaultCtx, cancel := context.WithCancel(ctx)
	return defaultCtx, cancel, nil
}

// FromYaml reads a run configuration from a YAML file shaped as
// `kind: scan` / `def: {...RunConfig fields...}`.
func FromYaml(path string) (*RunConfig, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Dir(path))
	if err := vp.ReadInConfig(); err != nil {
		return nil, err
	}

	outer := &OuterConfig{}
	if err := vp.Unmarshal(outer); err != nil {
		return nil, err
	}

	spec, err := yaml.Marshal(outer.Def)
	if err != nil {
		return nil, err
	}

	inner := &RunConfig{Workers: 1, Confidence: 0.95, Precision: 0.1}
	if err := yaml.Unmarshal(spec, inner); err != nil {
		return nil, err
	}
	return inner, nil
}
