package pinning

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var ErrConfiguration = errors.New("invalid scenario configuration")

type Kind string

const (
	KindExclusive Kind = "exclusive"
	KindShared    Kind = "shared"
)

// Scenario is closed over Exclusive and SharedFixedDeviceCount; switch on the concrete type.
type Scenario interface {
	Kind() Kind
	Name() string
	isScenario()
}

// Exclusive runs on a fully reserved node where the caller controls placement.
type Exclusive struct{}

func (Exclusive) Kind() Kind   { return KindExclusive }
func (Exclusive) Name() string { return "exclusive" }
func (Exclusive) isScenario()  {}

// SharedFixedDeviceCount submits Jobs concurrent jobs to a GRES-shared queue, each asking for
// DevicesPerJob devices. The scheduler picks the package. Jobs == 0 means one job per slice.
type SharedFixedDeviceCount struct {
	DevicesPerJob int
	Jobs          int
}

func (s SharedFixedDeviceCount) Kind() Kind   { return KindShared }
func (s SharedFixedDeviceCount) Name() string { return fmt.Sprintf("shared-%dgpu", s.DevicesPerJob) }
func (SharedFixedDeviceCount) isScenario()    {}

var sharedPattern = regexp.MustCompile(`^shared-(\d+)gpu$`)

func ParseScenario(name string, jobs int) (Scenario, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == string(KindExclusive) {
		if jobs > 1 {
			return nil, fmt.Errorf("%w: exclusive scenario runs a single job, got %d", ErrConfiguration, jobs)
		}
		return Exclusive{}, nil
	}
	match := sharedPattern.FindStringSubmatch(normalized)
	if match == nil {
		return nil, fmt.Errorf("%w: unknown scenario %q (valid: exclusive, shared-1gpu, shared-2gpu)",
			ErrConfiguration, name)
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return nil, fmt.Errorf("%w: scenario %q: %v", ErrConfiguration, name, err)
	}
	if jobs < 0 {
		return nil, fmt.Errorf("%w: job count must not be negative", ErrConfiguration)
	}
	return SharedFixedDeviceCount{DevicesPerJob: n, Jobs: jobs}, nil
}
