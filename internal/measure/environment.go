package measure

import (
	"regexp"
	"strconv"
	"strings"

	"gpubw/internal/probe"
)

var (
	cpubindPattern = regexp.MustCompile(`(?m)^[ \t]*cpubind:[ \t]*([\d \t]+?)[ \t]*$`)
	visiblePattern = regexp.MustCompile(`(?m)^[ \t]*CUDA_VISIBLE_DEVICES[ \t]*[:=][ \t]*([\d, \t]*?)[ \t]*$`)
)

// Environment is what a job printed about its own placement: numactl --show's cpubind
// line and the device list the scheduler exposed.
type Environment struct {
	ReportedPackage *int  `json:"reported_package,omitempty"`
	Visible         []int `json:"visible,omitempty"`
}

func ParseEnvironment(raw *probe.RawOutput) Environment {
	if raw == nil {
		return Environment{}
	}
	return ParseEnvironmentText(raw.Stdout)
}

func ParseEnvironmentText(text string) Environment {
	var env Environment

	if match := cpubindPattern.FindStringSubmatch(text); match != nil {
		nodes := strings.Fields(match[1])
		if len(nodes) == 1 {
			if id, err := strconv.Atoi(nodes[0]); err == nil {
				env.ReportedPackage = &id
			}
		}
	}

	if match := visiblePattern.FindStringSubmatch(text); match != nil {
		for _, part := range strings.Split(match[1], ",") {
			id, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				env.Visible = nil
				break
			}
			env.Visible = append(env.Visible, id)
		}
	}
	return env
}

// Remap translates job-local device ordinals to physical ids using the visible list,
// since the scheduler renumbers devices inside a job starting at zero.
func (e Environment) Remap(ms []Measurement) ([]Measurement, bool) {
	if len(e.Visible) == 0 {
		return ms, true
	}
	out := make([]Measurement, 0, len(ms))
	for _, m := range ms {
		if m.Device < 0 || m.Device >= len(e.Visible) {
			return nil, false
		}
		m.Device = e.Visible[m.Device]
		out = append(out, m)
	}
	return out, true
}
