package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"gpubw/cmd"
	"gpubw/internal/config"
	"gpubw/internal/matrix"
	"gpubw/internal/pinning"
	"gpubw/internal/probe"
	"gpubw/internal/topology"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "invalid arguments", err: fmt.Errorf("%w: --output is required", cmd.ErrInvalidArguments), want: 1},
		{name: "invalid config", err: fmt.Errorf("%w: bad", config.ErrInvalidConfig), want: 1},
		{name: "scenario", err: fmt.Errorf("%w: 3 devices", pinning.ErrConfiguration), want: 1},
		{name: "probe failures", err: fmt.Errorf("%w: 1 failed pinnings", cmd.ErrProbeFailures), want: 2},
		{name: "cancelled", err: context.Canceled, want: 2},
		{name: "permission denied", err: fmt.Errorf("run: %w", fmt.Errorf("%w: fork/exec", probe.ErrPermissionDenied)), want: 2},
		{name: "topology", err: fmt.Errorf("%w: 3 packages", topology.ErrTopology), want: 3},
		{name: "duplicate", err: &matrix.DuplicateMeasurementError{Key: matrix.Key{Package: 1, Device: 2}}, want: 4},
		{name: "other", err: errors.New("boom"), want: 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}
