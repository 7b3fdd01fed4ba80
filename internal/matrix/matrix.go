package matrix

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"gpubw/internal/measure"
)

var (
	ErrFrozen  = errors.New("affinity matrix is read-only")
	ErrUnbound = errors.New("measurement has no package")
)

type Key struct {
	Package int `json:"package"`
	Device  int `json:"device"`
}

func (k Key) String() string {
	return fmt.Sprintf("p%d/g%d", k.Package, k.Device)
}

func KeyOf(m measure.Measurement) Key {
	return Key{Package: m.Package, Device: m.Device}
}

type DuplicateMeasurementError struct {
	Key      Key
	Existing measure.Measurement
	Incoming measure.Measurement
}

func (e *DuplicateMeasurementError) Error() string {
	return fmt.Sprintf("duplicate measurement for %s: have %.3f %s, got %.3f %s",
		e.Key, e.Existing.Bandwidth, e.Existing.Unit, e.Incoming.Bandwidth, e.Incoming.Unit)
}

// AffinityMatrix holds at most one measurement per (package, device). It is not safe for
// concurrent writers; each job fills its own matrix and a single goroutine merges them.
type AffinityMatrix struct {
	cells  map[Key]measure.Measurement
	frozen bool
}

func New() *AffinityMatrix {
	return &AffinityMatrix{cells: make(map[Key]measure.Measurement)}
}

// Build assembles measurements into a matrix. The result does not depend on input order.
func Build(ms []measure.Measurement) (*AffinityMatrix, error) {
	m := New()
	for _, item := range ms {
		if err := m.Add(item); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *AffinityMatrix) Add(item measure.Measurement) error {
	if m.frozen {
		return ErrFrozen
	}
	if !item.Bound() {
		return fmt.Errorf("%w: %s", ErrUnbound, item)
	}
	key := KeyOf(item)
	if existing, ok := m.cells[key]; ok {
		return &DuplicateMeasurementError{Key: key, Existing: existing, Incoming: item}
	}
	m.cells[key] = item
	return nil
}

func (m *AffinityMatrix) Merge(other *AffinityMatrix) error {
	if other == nil {
		return nil
	}
	for _, item := range other.Measurements() {
		if err := m.Add(item); err != nil {
			return err
		}
	}
	return nil
}

func (m *AffinityMatrix) Freeze() {
	m.frozen = true
}

func (m *AffinityMatrix) Frozen() bool {
	return m.frozen
}

func (m *AffinityMatrix) Get(key Key) (measure.Measurement, bool) {
	if m == nil {
		return measure.Measurement{}, false
	}
	item, ok := m.cells[key]
	return item, ok
}

func (m *AffinityMatrix) Len() int {
	if m == nil {
		return 0
	}
	return len(m.cells)
}

// Keys are ordered package-major.
func (m *AffinityMatrix) Keys() []Key {
	if m == nil {
		return nil
	}
	keys := make([]Key, 0, len(m.cells))
	for k := range m.cells {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

func (m *AffinityMatrix) Measurements() []measure.Measurement {
	keys := m.Keys()
	out := make([]measure.Measurement, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.cells[k])
	}
	return out
}

// Row returns the bandwidth from one package to every device it has a cell for.
func (m *AffinityMatrix) Row(pkg int) map[int]float64 {
	row := make(map[int]float64)
	if m == nil {
		return row
	}
	for k, item := range m.cells {
		if k.Package == pkg {
			row[k.Device] = item.Bandwidth
		}
	}
	return row
}

func (m *AffinityMatrix) Equal(other *AffinityMatrix) bool {
	if m.Len() != other.Len() {
		return false
	}
	for k, item := range m.cells {
		o, ok := other.cells[k]
		if !ok || !o.Timestamp.Equal(item.Timestamp) {
			return false
		}
		o.Timestamp = item.Timestamp
		if o != item {
			return false
		}
	}
	return true
}

func (m *AffinityMatrix) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Measurements())
}

func (m *AffinityMatrix) UnmarshalJSON(data []byte) error {
	var ms []measure.Measurement
	if err := json.Unmarshal(data, &ms); err != nil {
		return err
	}
	built, err := Build(ms)
	if err != nil {
		return err
	}
	*m = *built
	return nil
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Package == keys[j].Package {
			return keys[i].Device < keys[j].Device
		}
		return keys[i].Package < keys[j].Package
	})
}
