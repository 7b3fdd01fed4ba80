package probe

import (
	"time"

	"gpubw/internal/pinning"
)

// RawOutput is what one probe invocation printed.
type RawOutput struct {
	Pinning    pinning.Pinning `json:"pinning"`
	Command    []string        `json:"command,omitempty"`
	Stdout     string          `json:"stdout"`
	Stderr     string          `json:"stderr,omitempty"`
	CapturedAt time.Time       `json:"captured_at"`
	Duration   time.Duration   `json:"duration"`
}

// Runner executes one pinning at a time and blocks until the probe exits or its own
// timeout fires. Implementations never retry.
type Runner interface {
	Run(p pinning.Pinning) (*RawOutput, error)
}

type RunnerFunc func(p pinning.Pinning) (*RawOutput, error)

func (f RunnerFunc) Run(p pinning.Pinning) (*RawOutput, error) {
	return f(p)
}
