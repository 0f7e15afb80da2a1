package team

import (
	"go.uber.org/zap"
)

// ProcBind selects how the workers of the outermost team are placed on
// CPUs.
type ProcBind int

const (
	// ProcBindNone leaves placement to the Go scheduler.
	ProcBindNone ProcBind = iota
	// ProcBindClose pins consecutive workers to consecutive CPUs.
	ProcBindClose
	// ProcBindSpread pins workers evenly across the available CPUs.
	ProcBindSpread
)

func (p ProcBind) String() string {
	switch p {
	case ProcBindNone:
		return "none"
	case ProcBindClose:
		return "close"
	case ProcBindSpread:
		return "spread"
	default:
		return "unknown"
	}
}

// ParseProcBind parses "none", "close" or "spread". The empty string is none.
func ParseProcBind(s string) (ProcBind, bool) {
	switch s {
	case "", "none", "false":
		return ProcBindNone, true
	case "close":
		return ProcBindClose, true
	case "spread":
		return ProcBindSpread, true
	default:
		return ProcBindNone, false
	}
}

type config struct {
	maxActiveLevels int
	threadLimit     int
	procBind        ProcBind
	logger          *zap.Logger
}

func defaultConfig() config {
	return config{
		maxActiveLevels: 1,
		logger:          zap.NewNop(),
	}
}

// Option configures Run.
type Option func(*config)

// WithMaxActiveLevels sets how many nested teams with more than one worker
// may be active at once. The default is 1, which serializes nested regions.
func WithMaxActiveLevels(n int) Option {
	return func(c *config) {
		c.maxActiveLevels = max(n, 1)
	}
}

// WithThreadLimit caps the number of workers running at once across the
// outermost team and all nested teams. n <= 0 means no limit.
func WithThreadLimit(n int) Option {
	return func(c *config) {
		c.threadLimit = n
	}
}

// WithProcBind sets the placement policy of the outermost team.
func WithProcBind(p ProcBind) Option {
	return func(c *config) {
		c.procBind = p
	}
}

// WithLogger sets the logger for fork, join and failure events.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
