//go:build !linux

package probe

import (
	"errors"
	"os/exec"

	"gpubw/internal/topology"
)

type SchedBinder struct{}

func (SchedBinder) Name() string { return "sched" }

func (SchedBinder) Prefix(topology.Package) []string { return nil }

func (SchedBinder) Start(*exec.Cmd, topology.Package) error {
	return errors.New("sched affinity binding requires linux")
}
