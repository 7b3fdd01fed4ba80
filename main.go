package main

import (
	"context"
	"errors"
	"os"

	"gpubw/cmd"
	"gpubw/internal/config"
	"gpubw/internal/matrix"
	"gpubw/internal/pinning"
	"gpubw/internal/probe"
	"gpubw/internal/topology"
	"gpubw/internal/ui"
)

func main() {
	if err := cmd.NewRootCmd(cmd.DefaultDeps()).Execute(); err != nil {
		exitWithError(err)
	}
}

func exitWithError(err error) {
	if err == nil {
		return
	}
	ui.PrintError(os.Stderr, err)
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	var dup *matrix.DuplicateMeasurementError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &dup):
		return 4
	case errors.Is(err, topology.ErrTopology):
		return 3
	case errors.Is(err, cmd.ErrProbeFailures),
		errors.Is(err, probe.ErrPermissionDenied),
		errors.Is(err, context.Canceled):
		return 2
	case errors.Is(err, cmd.ErrInvalidArguments),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, pinning.ErrConfiguration):
		return 1
	default:
		return 1
	}
}
