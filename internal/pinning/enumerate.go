package pinning

import (
	"fmt"
	"strconv"
	"strings"

	"gpubw/internal/topology"
)

// Pinning is one probe invocation. A nil Package means the scheduler picks it and
// an empty Devices means whatever the job ends up seeing.
type Pinning struct {
	Index       int   `json:"index"`
	Job         int   `json:"job"`
	Package     *int  `json:"package,omitempty"`
	Devices     []int `json:"devices,omitempty"`
	DeviceCount int   `json:"device_count"`
}

func (p Pinning) Bound() bool {
	return p.Package != nil
}

func (p Pinning) String() string {
	if p.Package == nil {
		return fmt.Sprintf("job%d:%dgpu", p.Job, p.DeviceCount)
	}
	devices := make([]string, 0, len(p.Devices))
	for _, d := range p.Devices {
		devices = append(devices, "g"+strconv.Itoa(d))
	}
	return fmt.Sprintf("p%d->%s", *p.Package, strings.Join(devices, ","))
}

// HalfCap is the default per-job claim limit: a job may take at most half of each resource.
func HalfCap(topo *topology.Topology) int {
	return len(topo.Devices) / 2
}

// Enumerate returns the work list for a scenario. Exclusive work is package-major so the
// order matches the reference baseline capture. capDevices <= 0 selects HalfCap.
func Enumerate(sc Scenario, topo *topology.Topology, capDevices int) ([]Pinning, error) {
	if topo == nil {
		return nil, fmt.Errorf("%w: topology is required", ErrConfiguration)
	}

	switch s := sc.(type) {
	case Exclusive:
		return enumerateExclusive(topo), nil
	case SharedFixedDeviceCount:
		return enumerateShared(s, topo, capDevices)
	default:
		return nil, fmt.Errorf("%w: unsupported scenario %T", ErrConfiguration, sc)
	}
}

func enumerateExclusive(topo *topology.Topology) []Pinning {
	pinnings := make([]Pinning, 0, len(topo.Packages)*len(topo.Devices))
	for _, pkg := range topo.Packages {
		for _, dev := range topo.Devices {
			id := pkg.ID
			pinnings = append(pinnings, Pinning{
				Index:       len(pinnings),
				Package:     &id,
				Devices:     []int{dev.ID},
				DeviceCount: 1,
			})
		}
	}
	return pinnings
}

func enumerateShared(s SharedFixedDeviceCount, topo *topology.Topology, capDevices int) ([]Pinning, error) {
	total := len(topo.Devices)
	if capDevices <= 0 {
		capDevices = HalfCap(topo)
	}
	if capDevices > total {
		return nil, fmt.Errorf("%w: per-job cap %d exceeds the %d devices on the node", ErrConfiguration, capDevices, total)
	}

	n := s.DevicesPerJob
	if n <= 0 {
		return nil, fmt.Errorf("%w: devices per job must be positive, got %d", ErrConfiguration, n)
	}
	if n > capDevices {
		return nil, fmt.Errorf("%w: %d devices per job exceeds the per-job cap of %d", ErrConfiguration, n, capDevices)
	}

	jobs := s.Jobs
	if jobs == 0 {
		jobs = total / n
	}
	if total%n != 0 || n*jobs != total {
		return nil, fmt.Errorf("%w: %d jobs of %d devices do not partition %d devices",
			ErrConfiguration, jobs, n, total)
	}

	pinnings := make([]Pinning, 0, jobs)
	for job := 0; job < jobs; job++ {
		pinnings = append(pinnings, Pinning{
			Index:       job,
			Job:         job,
			DeviceCount: n,
		})
	}
	return pinnings, nil
}
