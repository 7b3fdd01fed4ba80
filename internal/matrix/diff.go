package matrix

import (
	"encoding/json"
)

type Status string

const (
	StatusMatched    Status = "Matched"
	StatusMissing    Status = "Missing"
	StatusUnresolved Status = "Unresolved"
)

type Cell struct {
	Package  int      `json:"package"`
	Device   int      `json:"device"`
	Baseline *float64 `json:"baseline"`
	Observed *float64 `json:"observed"`
	Delta    *float64 `json:"delta"`
	Relative *float64 `json:"relative"`
	Status   Status   `json:"status"`
}

func (c Cell) Key() Key {
	return Key{Package: c.Package, Device: c.Device}
}

// ComparisonReport is keyed like AffinityMatrix over the union of both key sets.
type ComparisonReport struct {
	Baseline *AffinityMatrix
	Observed *AffinityMatrix
	Cells    map[Key]Cell
}

// Diff compares observed against baseline. Keys present on one side only are Missing,
// never dropped. Relative is nil when the baseline is zero and the delta is not.
func Diff(baseline, observed *AffinityMatrix) *ComparisonReport {
	if baseline == nil {
		baseline = New()
	}
	if observed == nil {
		observed = New()
	}
	report := &ComparisonReport{
		Baseline: baseline,
		Observed: observed,
		Cells:    make(map[Key]Cell),
	}

	for _, key := range baseline.Keys() {
		b, _ := baseline.Get(key)
		cell := Cell{Package: key.Package, Device: key.Device, Baseline: ptr(b.Bandwidth), Status: StatusMissing}
		if o, ok := observed.Get(key); ok {
			delta := o.Bandwidth - b.Bandwidth
			cell.Observed = ptr(o.Bandwidth)
			cell.Delta = ptr(delta)
			switch {
			case b.Bandwidth != 0:
				cell.Relative = ptr(delta / b.Bandwidth)
			case delta == 0:
				cell.Relative = ptr(0)
			}
			cell.Status = StatusMatched
		}
		report.Cells[key] = cell
	}

	for _, key := range observed.Keys() {
		if _, ok := report.Cells[key]; ok {
			continue
		}
		o, _ := observed.Get(key)
		report.Cells[key] = Cell{Package: key.Package, Device: key.Device, Observed: ptr(o.Bandwidth), Status: StatusMissing}
	}
	return report
}

// MarkMissing adds an empty Missing cell for an expected key that has none.
func (r *ComparisonReport) MarkMissing(key Key) {
	if _, ok := r.Cells[key]; ok {
		return
	}
	r.Cells[key] = Cell{Package: key.Package, Device: key.Device, Status: StatusMissing}
}

// MarkUnresolved flags cells of a device that only unresolved jobs measured: the value
// exists but its package could not be determined. With packages given, only the cells
// of those packages are flagged.
func (r *ComparisonReport) MarkUnresolved(device int, packages ...int) {
	only := make(map[int]bool, len(packages))
	for _, pkg := range packages {
		only[pkg] = true
	}
	for key, cell := range r.Cells {
		if key.Device != device || cell.Status != StatusMissing || cell.Observed != nil {
			continue
		}
		if len(only) > 0 && !only[key.Package] {
			continue
		}
		cell.Status = StatusUnresolved
		r.Cells[key] = cell
	}
}

func (r *ComparisonReport) SortedCells() []Cell {
	keys := make([]Key, 0, len(r.Cells))
	for k := range r.Cells {
		keys = append(keys, k)
	}
	sortKeys(keys)

	cells := make([]Cell, 0, len(keys))
	for _, k := range keys {
		cells = append(cells, r.Cells[k])
	}
	return cells
}

func (r *ComparisonReport) Count(status Status) int {
	n := 0
	for _, c := range r.Cells {
		if c.Status == status {
			n++
		}
	}
	return n
}

func (r *ComparisonReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Baseline *AffinityMatrix `json:"baseline"`
		Observed *AffinityMatrix `json:"observed"`
		Cells    []Cell          `json:"cells"`
	}{
		Baseline: r.Baseline,
		Observed: r.Observed,
		Cells:    r.SortedCells(),
	})
}

func (r *ComparisonReport) UnmarshalJSON(data []byte) error {
	var wire struct {
		Baseline *AffinityMatrix `json:"baseline"`
		Observed *AffinityMatrix `json:"observed"`
		Cells    []Cell          `json:"cells"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.Baseline = wire.Baseline
	r.Observed = wire.Observed
	r.Cells = make(map[Key]Cell, len(wire.Cells))
	for _, c := range wire.Cells {
		r.Cells[c.Key()] = c
	}
	return nil
}

func ptr(v float64) *float64 {
	return &v
}
