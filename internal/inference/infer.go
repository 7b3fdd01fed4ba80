package inference

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gpubw/internal/matrix"
	"gpubw/internal/measure"
	"gpubw/internal/topology"
)

var (
	ErrAmbiguousAffinity = errors.New("ambiguous affinity")
	ErrUnknownDevice     = errors.New("measurement names a device outside the topology")
)

// DefaultTolerance is the relative gap under which two bandwidths count as equal.
// Remote links on the reference class differ by a few percent run to run.
const DefaultTolerance = 0.10

type Prediction string

const (
	FromBaseline  Prediction = "baseline"
	FromAdjacency Prediction = "adjacency"
)

type Candidate struct {
	Package    int        `json:"package"`
	Distance   int        `json:"distance"`
	Locality   float64    `json:"locality"`
	Prediction Prediction `json:"prediction"`
}

type Result struct {
	Package    int         `json:"package"`
	Candidates []Candidate `json:"candidates"`
}

type AmbiguousError struct {
	Tied   []int
	Reason string
}

func (e *AmbiguousError) Error() string {
	ids := make([]string, 0, len(e.Tied))
	for _, id := range e.Tied {
		ids = append(ids, fmt.Sprintf("p%d", id))
	}
	return fmt.Sprintf("%v: %s (candidates %s)", ErrAmbiguousAffinity, e.Reason, strings.Join(ids, ","))
}

func (e *AmbiguousError) Is(target error) bool {
	return target == ErrAmbiguousAffinity
}

type Inferrer struct {
	Topology  *topology.Topology
	Baseline  *matrix.AffinityMatrix
	Tolerance float64
}

func Infer(observed []measure.Measurement, topo *topology.Topology, baseline *matrix.AffinityMatrix) (Result, error) {
	inf := Inferrer{Topology: topo, Baseline: baseline, Tolerance: DefaultTolerance}
	return inf.Infer(observed)
}

// Infer picks the package whose predicted bandwidth ordering over the probed devices is
// closest, in Kendall-tau distance, to the observed ordering. Ties go to the candidate
// whose local devices carry the most bandwidth that looks local; a remaining tie is
// reported as ambiguous instead of guessed.
func (inf Inferrer) Infer(observed []measure.Measurement) (Result, error) {
	obs, devices, err := inf.observedByDevice(observed)
	if err != nil {
		return Result{}, err
	}
	if len(devices) == 0 {
		return Result{}, &AmbiguousError{Tied: inf.Topology.PackageIDs(), Reason: "no measurements"}
	}

	candidates := make([]Candidate, 0, len(inf.Topology.Packages))
	for _, pkg := range inf.Topology.Packages {
		predicted, source := inf.predict(pkg.ID, devices)
		candidates = append(candidates, Candidate{
			Package:    pkg.ID,
			Distance:   inf.kendallDistance(predicted, obs, devices),
			Prediction: source,
		})
	}

	for i := range candidates {
		candidates[i].Locality = inf.locality(candidates[i].Package, obs, devices)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].Locality > candidates[j].Locality
	})

	best := candidates[0]
	var tied []int
	for _, c := range candidates {
		if c.Distance == best.Distance && c.Locality == best.Locality {
			tied = append(tied, c.Package)
		}
	}
	result := Result{Package: best.Package, Candidates: candidates}
	if len(tied) > 1 {
		sort.Ints(tied)
		return result, &AmbiguousError{Tied: tied, Reason: "equal rank distance and locality"}
	}
	return result, nil
}

func (inf Inferrer) observedByDevice(observed []measure.Measurement) (map[int]float64, []int, error) {
	obs := make(map[int]float64, len(observed))
	for _, m := range observed {
		if _, ok := inf.Topology.Device(m.Device); !ok {
			return nil, nil, fmt.Errorf("%w: g%d", ErrUnknownDevice, m.Device)
		}
		if _, dup := obs[m.Device]; dup {
			return nil, nil, fmt.Errorf("device g%d measured twice in one job", m.Device)
		}
		obs[m.Device] = m.Bandwidth
	}
	devices := make([]int, 0, len(obs))
	for d := range obs {
		devices = append(devices, d)
	}
	sort.Ints(devices)
	return obs, devices, nil
}

// predict uses the baseline row when it covers every probed device, else adjacency alone.
func (inf Inferrer) predict(pkg int, devices []int) (map[int]float64, Prediction) {
	if inf.Baseline != nil {
		row := inf.Baseline.Row(pkg)
		covered := true
		for _, d := range devices {
			if _, ok := row[d]; !ok {
				covered = false
				break
			}
		}
		if covered {
			return row, FromBaseline
		}
	}

	predicted := make(map[int]float64, len(devices))
	for _, d := range devices {
		if inf.Topology.IsLocal(pkg, d) {
			predicted[d] = 1
		} else {
			predicted[d] = 0
		}
	}
	return predicted, FromAdjacency
}

// kendallDistance counts device pairs ordered one way by the prediction and the other
// way by the observation. Pairs within tolerance on either side are not counted.
func (inf Inferrer) kendallDistance(predicted, observed map[int]float64, devices []int) int {
	distance := 0
	for i := 0; i < len(devices); i++ {
		for j := i + 1; j < len(devices); j++ {
			a, b := devices[i], devices[j]
			sp := inf.compare(predicted[a], predicted[b])
			so := inf.compare(observed[a], observed[b])
			if sp != 0 && so != 0 && sp != so {
				distance++
			}
		}
	}
	return distance
}

func (inf Inferrer) locality(pkg int, observed map[int]float64, devices []int) float64 {
	total := 0.0
	for _, d := range devices {
		if inf.Topology.IsLocal(pkg, d) && inf.looksLocal(d, observed, devices) {
			total += observed[d]
		}
	}
	return total
}

// looksLocal decides whether the bandwidth seen on a device is a local-link signature.
// With a baseline the cut is halfway between the device's local and mean remote value.
// Without one the device has to be the clear maximum among at least two probed devices.
func (inf Inferrer) looksLocal(device int, observed map[int]float64, devices []int) bool {
	if threshold, ok := inf.localThreshold(device); ok {
		return observed[device] >= threshold
	}
	if len(devices) < 2 {
		return false
	}
	for _, other := range devices {
		if other != device && inf.compare(observed[device], observed[other]) <= 0 {
			return false
		}
	}
	return true
}

func (inf Inferrer) localThreshold(device int) (float64, bool) {
	if inf.Baseline == nil {
		return 0, false
	}
	owner, ok := inf.Topology.PackageOf(device)
	if !ok {
		return 0, false
	}
	local, ok := inf.Baseline.Get(matrix.Key{Package: owner, Device: device})
	if !ok {
		return 0, false
	}

	sum, n := 0.0, 0
	for _, pkg := range inf.Topology.Packages {
		if pkg.ID == owner {
			continue
		}
		if remote, ok := inf.Baseline.Get(matrix.Key{Package: pkg.ID, Device: device}); ok {
			sum += remote.Bandwidth
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	meanRemote := sum / float64(n)
	if inf.compare(local.Bandwidth, meanRemote) <= 0 {
		return 0, false
	}
	return (local.Bandwidth + meanRemote) / 2, true
}

func (inf Inferrer) compare(a, b float64) int {
	tol := inf.Tolerance
	if tol < 0 {
		tol = 0
	}
	if math.Abs(a-b) <= tol*math.Max(math.Abs(a), math.Abs(b)) {
		return 0
	}
	if a > b {
		return 1
	}
	return -1
}
