//go:build linux

package probe

import (
	"fmt"
	"os/exec"
	"runtime"

	"golang.org/x/sys/unix"

	"gpubw/internal/topology"
)

// SchedBinder sets the CPU mask of a locked OS thread and forks the probe from it, so the
// child inherits the package's CPUs. Memory placement is left to the kernel.
type SchedBinder struct{}

func (SchedBinder) Name() string { return "sched" }

func (SchedBinder) Prefix(topology.Package) []string { return nil }

func (SchedBinder) Start(cmd *exec.Cmd, pkg topology.Package) error {
	if len(pkg.CPUs) == 0 {
		return fmt.Errorf("package %d has no cpus to bind", pkg.ID)
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var previous unix.CPUSet
	if err := unix.SchedGetaffinity(0, &previous); err != nil {
		return fmt.Errorf("read thread affinity: %w", err)
	}

	var mask unix.CPUSet
	for _, cpu := range pkg.CPUs {
		mask.Set(cpu)
	}
	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		return fmt.Errorf("bind thread to package %d: %w", pkg.ID, err)
	}
	startErr := cmd.Start()

	if err := unix.SchedSetaffinity(0, &previous); err != nil && startErr == nil {
		return fmt.Errorf("restore thread affinity: %w", err)
	}
	return startErr
}
