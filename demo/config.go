package demo

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"

	"github.com/llxisdsh/parlab/team"
)

// ErrInvalidConfig is wrapped by every Config validation error.
var ErrInvalidConfig = errors.New("demo: invalid config")

// Config is the on-disk run configuration.
type Config struct {
	// Threads is the team size. 0 means GOMAXPROCS.
	Threads int `yaml:"threads"`
	// Iterations scales every demo's problem size.
	Iterations int `yaml:"iterations"`
	// ThreadLimit caps live workers across nested teams. 0 means no limit.
	ThreadLimit     int    `yaml:"thread_limit"`
	MaxActiveLevels int    `yaml:"max_active_levels"`
	ProcBind        string `yaml:"proc_bind"`
	LogLevel        string `yaml:"log_level"`
	// Demos lists the demos to run. Empty means all of them.
	Demos []string `yaml:"demos"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Threads:         runtime.GOMAXPROCS(0),
		Iterations:      100_000,
		MaxActiveLevels: 1,
		ProcBind:        "none",
		LogLevel:        "info",
	}
}

// LoadConfig reads a YAML config from path on top of DefaultConfig.
// Unknown keys are an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var err error
	if c.Threads < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: threads %d is negative", ErrInvalidConfig, c.Threads))
	}
	if c.Iterations < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: iterations %d is negative", ErrInvalidConfig, c.Iterations))
	}
	if c.ThreadLimit < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: thread_limit %d is negative", ErrInvalidConfig, c.ThreadLimit))
	}
	if c.MaxActiveLevels < 1 {
		err = multierr.Append(err, fmt.Errorf("%w: max_active_levels must be at least 1", ErrInvalidConfig))
	}
	if _, ok := team.ParseProcBind(c.ProcBind); !ok {
		err = multierr.Append(err, fmt.Errorf("%w: proc_bind %q", ErrInvalidConfig, c.ProcBind))
	}
	if _, lerr := zapcore.ParseLevel(c.LogLevel); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("%w: log_level: %v", ErrInvalidConfig, lerr))
	}
	for _, name := range c.Demos {
		if _, lerr := Lookup(name); lerr != nil {
			err = multierr.Append(err, fmt.Errorf("%w: %v", ErrInvalidConfig, lerr))
		}
	}
	return err
}

// Level returns the configured log level, or info when it does not parse.
func (c Config) Level() zapcore.Level {
	l, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// TeamOptions returns the team options c describes. Invalid values are
// skipped; call Validate first.
func (c Config) TeamOptions(logger *zap.Logger) []team.Option {
	opts := []team.Option{
		team.WithMaxActiveLevels(c.MaxActiveLevels),
		team.WithThreadLimit(c.ThreadLimit),
		team.WithLogger(logger),
	}
	if bind, ok := team.ParseProcBind(c.ProcBind); ok {
		opts = append(opts, team.WithProcBind(bind))
	}
	return opts
}

// Env returns the environment c describes.
func (c Config) Env(logger *zap.Logger) Env {
	return Env{
		Threads:    c.Threads,
		Iterations: c.Iterations,
		Logger:     logger,
		Team:       c.TeamOptions(logger),
	}
}
