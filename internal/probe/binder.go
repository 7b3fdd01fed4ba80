package probe

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"gpubw/internal/topology"
)

// Binder is the affinity primitive: it makes the probe process start inside a
// package's CPU/memory domain.
type Binder interface {
	Name() string
	Prefix(pkg topology.Package) []string
	Start(cmd *exec.Cmd, pkg topology.Package) error
}

type prefixStart struct{}

func (prefixStart) Start(cmd *exec.Cmd, _ topology.Package) error {
	return cmd.Start()
}

// NumactlBinder binds both CPUs and memory to the package's NUMA node.
type NumactlBinder struct {
	prefixStart
	Path string
}

func (b NumactlBinder) Name() string { return "numactl" }

func (b NumactlBinder) Prefix(pkg topology.Package) []string {
	path := b.Path
	if path == "" {
		path = "numactl"
	}
	node := strconv.Itoa(pkg.ID)
	return []string{path, "--cpunodebind=" + node, "--membind=" + node}
}

// TasksetBinder restricts CPUs only; memory follows first touch.
type TasksetBinder struct {
	prefixStart
	Path string
}

func (b TasksetBinder) Name() string { return "taskset" }

func (b TasksetBinder) Prefix(pkg topology.Package) []string {
	path := b.Path
	if path == "" {
		path = "taskset"
	}
	return []string{path, "-c", topology.FormatCPUList(pkg.CPUs)}
}

func NewBinder(method string) (Binder, error) {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "", "numactl":
		return NumactlBinder{}, nil
	case "taskset":
		return TasksetBinder{}, nil
	case "sched":
		return SchedBinder{}, nil
	default:
		return nil, fmt.Errorf("unknown affinity method %q (valid: numactl, taskset, sched)", method)
	}
}
