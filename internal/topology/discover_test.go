package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscover_ReferenceSpec(t *testing.T) {
	t.Parallel()

	topo, err := Discover(ReferenceSpec("gh200-01"))
	require.NoError(t, err)

	assert.Equal(t, "gh200-01", topo.Node)
	assert.Equal(t, []int{0, 1, 2, 3}, topo.PackageIDs())
	assert.Equal(t, []int{0, 1, 2, 3}, topo.DeviceIDs())
	assert.Equal(t, 288, topo.TotalCPUs())

	for _, pkg := range topo.Packages {
		assert.Equal(t, pkg.ID, pkg.Ordinal)
		assert.Equal(t, []int{pkg.ID}, topo.DevicesOf(pkg.ID))
		assert.True(t, topo.IsLocal(pkg.ID, pkg.ID))
	}
	assert.False(t, topo.IsLocal(0, 3))
	owner, ok := topo.PackageOf(2)
	assert.True(t, ok)
	assert.Equal(t, 2, owner)
}

func TestDiscover_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Spec)
	}{
		{
			name:   "too few packages",
			mutate: func(s *Spec) { s.Packages = s.Packages[:3] },
		},
		{
			name:   "too many devices",
			mutate: func(s *Spec) { s.Devices = append(s.Devices, DeviceSpec{ID: 4, Package: 0}) },
		},
		{
			name:   "duplicate package",
			mutate: func(s *Spec) { s.Packages[1].ID = 0 },
		},
		{
			name:   "duplicate device",
			mutate: func(s *Spec) { s.Devices[3].ID = 2 },
		},
		{
			name:   "unknown package",
			mutate: func(s *Spec) { s.Devices[0].Package = 9 },
		},
		{
			name:   "overlapping cpus",
			mutate: func(s *Spec) { s.Packages[1].CPUs = "70-143" },
		},
		{
			name:   "bad cpu list",
			mutate: func(s *Spec) { s.Packages[2].CPUs = "10-2" },
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			spec := ReferenceSpec("node")
			tt.mutate(&spec)

			_, err := Discover(spec)
			assert.ErrorIs(t, err, ErrTopology)
		})
	}
}

func TestDiscover_UncheckedCounts(t *testing.T) {
	t.Parallel()

	spec := Spec{
		Node:     "small",
		Packages: []PackageSpec{{ID: 1, CPUs: "8-15"}, {ID: 0, CPUs: "0-7"}},
		Devices:  []DeviceSpec{{ID: 1, Package: 0}, {ID: 0, Package: 1}},
	}
	topo, err := Discover(spec)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, topo.PackageIDs())
	assert.Equal(t, 1, topo.Packages[1].Ordinal)
	assert.Equal(t, []int{1}, topo.DevicesOf(0))
}
