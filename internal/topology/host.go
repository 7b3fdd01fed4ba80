package topology

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/shirou/gopsutil/cpu"
	"github.com/spf13/afero"
)

const NodeSysfsPath = "/sys/devices/system/node"

var logicalCPUCount = func() (int, error) {
	return cpu.Counts(true)
}

func nodeCPUListPath(node int) string {
	return filepath.Join(NodeSysfsPath, "node"+strconv.Itoa(node), "cpulist")
}

// VerifyHost checks that the configured packages match the NUMA nodes exposed by the
// running host. Package IDs are taken as NUMA node numbers.
func VerifyHost(fs afero.Fs, topo *Topology) error {
	for _, pkg := range topo.Packages {
		path := nodeCPUListPath(pkg.ID)
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return fmt.Errorf("%w: read %s: %v", ErrTopology, path, err)
		}
		cpus, err := ParseCPUList(string(data))
		if err != nil {
			return fmt.Errorf("%w: parse %s: %v", ErrTopology, path, err)
		}
		if FormatCPUList(cpus) != FormatCPUList(pkg.CPUs) {
			return fmt.Errorf("%w: package %d declares cpus %s, host node has %s",
				ErrTopology, pkg.ID, FormatCPUList(pkg.CPUs), FormatCPUList(cpus))
		}
	}

	count, err := logicalCPUCount()
	if err != nil {
		return fmt.Errorf("%w: count logical cpus: %v", ErrTopology, err)
	}
	if count != topo.TotalCPUs() {
		return fmt.Errorf("%w: packages declare %d cpus, host has %d", ErrTopology, topo.TotalCPUs(), count)
	}
	return nil
}
