package probe

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"gpubw/internal/pinning"
	"gpubw/internal/topology"
)

// Synthetic fabricates probe output from the reference topology: local pairs report
// Local GB/s and remote pairs Remote GB/s. Scheduler-placed jobs are placed round-robin,
// job j landing on package j mod P and on the next DeviceCount devices, the way a
// non NUMA-aware scheduler hands out GRES slots.
type Synthetic struct {
	Topology *topology.Topology
	Local    float64
	Remote   float64
	Now      func() time.Time

	mu    sync.Mutex
	calls []pinning.Pinning
}

func (s *Synthetic) Run(p pinning.Pinning) (*RawOutput, error) {
	s.mu.Lock()
	s.calls = append(s.calls, p)
	s.mu.Unlock()

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	var b strings.Builder
	b.WriteString("# synthetic bandwidth probe\n")
	b.WriteString("source\tdestination\tbandwidth\tunit\n")

	pkg, devices := s.place(p)
	if !p.Bound() {
		fmt.Fprintf(&b, "cpubind: %d\n", pkg)
		fmt.Fprintf(&b, "CUDA_VISIBLE_DEVICES: %s\n", joinInts(devices))
	}
	for i, dev := range devices {
		value := s.Remote
		if s.Topology.IsLocal(pkg, dev) {
			value = s.Local
		}
		src := "p" + strconv.Itoa(pkg)
		dst := "g" + strconv.Itoa(dev)
		if !p.Bound() {
			src = "*"
			dst = "g" + strconv.Itoa(i)
		}
		fmt.Fprintf(&b, "%s\t%s\t%s\tGB/s\n", src, dst, strconv.FormatFloat(value, 'f', -1, 64))
	}

	return &RawOutput{Pinning: p, Stdout: b.String(), CapturedAt: now()}, nil
}

func (s *Synthetic) Calls() []pinning.Pinning {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pinning.Pinning, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Synthetic) place(p pinning.Pinning) (int, []int) {
	if p.Bound() {
		return *p.Package, p.Devices
	}
	ids := s.Topology.PackageIDs()
	pkg := ids[p.Job%len(ids)]

	all := s.Topology.DeviceIDs()
	devices := make([]int, 0, p.DeviceCount)
	for i := 0; i < p.DeviceCount; i++ {
		devices = append(devices, all[(p.Job*p.DeviceCount+i)%len(all)])
	}
	return pkg, devices
}

func joinInts(values []int) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, strconv.Itoa(v))
	}
	return strings.Join(parts, ",")
}
