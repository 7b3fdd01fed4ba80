package pinning

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpubw/internal/topology"
)

func testTopology(t *testing.T, packages, devices int) *topology.Topology {
	t.Helper()
	spec := topology.Spec{Node: "test"}
	for i := 0; i < packages; i++ {
		spec.Packages = append(spec.Packages, topology.PackageSpec{ID: i, CPUs: fmt.Sprintf("%d-%d", i*4, i*4+3)})
	}
	for i := 0; i < devices; i++ {
		spec.Devices = append(spec.Devices, topology.DeviceSpec{ID: i, Package: i % packages})
	}
	topo, err := topology.Discover(spec)
	require.NoError(t, err)
	return topo
}

func TestEnumerate_ExclusiveCrossProduct(t *testing.T) {
	t.Parallel()

	shapes := []struct{ packages, devices int }{{1, 1}, {2, 3}, {4, 4}, {3, 6}}
	for _, shape := range shapes {
		shape := shape
		t.Run(fmt.Sprintf("%dx%d", shape.packages, shape.devices), func(t *testing.T) {
			t.Parallel()
			topo := testTopology(t, shape.packages, shape.devices)

			pinnings, err := Enumerate(Exclusive{}, topo, 0)
			require.NoError(t, err)
			require.Len(t, pinnings, shape.packages*shape.devices)

			seen := map[string]bool{}
			for i, p := range pinnings {
				require.True(t, p.Bound())
				require.Len(t, p.Devices, 1)
				assert.Equal(t, i, p.Index)
				assert.Equal(t, i/shape.devices, *p.Package, "package-major order")
				assert.Equal(t, i%shape.devices, p.Devices[0])

				key := p.String()
				assert.False(t, seen[key], "duplicate pinning %s", key)
				seen[key] = true
			}
		})
	}
}

func TestEnumerate_Shared(t *testing.T) {
	t.Parallel()
	topo := testTopology(t, 4, 4)

	tests := []struct {
		name     string
		scenario SharedFixedDeviceCount
		cap      int
		wantJobs int
		wantErr  bool
	}{
		{name: "two gpus at half cap", scenario: SharedFixedDeviceCount{DevicesPerJob: 2}, cap: 2, wantJobs: 2},
		{name: "one gpu derived jobs", scenario: SharedFixedDeviceCount{DevicesPerJob: 1}, wantJobs: 4},
		{name: "three gpus over cap", scenario: SharedFixedDeviceCount{DevicesPerJob: 3}, cap: 2, wantErr: true},
		{name: "three gpus default cap", scenario: SharedFixedDeviceCount{DevicesPerJob: 3}, wantErr: true},
		{name: "zero gpus", scenario: SharedFixedDeviceCount{DevicesPerJob: 0}, wantErr: true},
		{name: "jobs do not partition", scenario: SharedFixedDeviceCount{DevicesPerJob: 1, Jobs: 3}, wantErr: true},
		{name: "cap larger than node", scenario: SharedFixedDeviceCount{DevicesPerJob: 1}, cap: 8, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pinnings, err := Enumerate(tt.scenario, topo, tt.cap)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConfiguration)
				return
			}
			require.NoError(t, err)
			require.Len(t, pinnings, tt.wantJobs)
			for i, p := range pinnings {
				assert.False(t, p.Bound())
				assert.Empty(t, p.Devices)
				assert.Equal(t, i, p.Job)
				assert.Equal(t, tt.scenario.DevicesPerJob, p.DeviceCount)
			}
		})
	}
}

func TestEnumerate_NilTopology(t *testing.T) {
	t.Parallel()
	_, err := Enumerate(Exclusive{}, nil, 0)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestParseScenario(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		jobs    int
		want    Scenario
		wantErr bool
	}{
		{name: "exclusive", want: Exclusive{}},
		{name: " Exclusive ", want: Exclusive{}},
		{name: "shared-1gpu", want: SharedFixedDeviceCount{DevicesPerJob: 1}},
		{name: "shared-2gpu", jobs: 2, want: SharedFixedDeviceCount{DevicesPerJob: 2, Jobs: 2}},
		{name: "exclusive", jobs: 3, wantErr: true},
		{name: "shared", wantErr: true},
		{name: "shared-2gpu", jobs: -1, wantErr: true},
		{name: "mixed", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseScenario(tt.name, tt.jobs)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	sc, err := ParseScenario("shared-2gpu", 0)
	require.NoError(t, err)
	assert.Equal(t, "shared-2gpu", sc.Name())
	assert.Equal(t, KindShared, sc.Kind())
}

func TestPinningString(t *testing.T) {
	t.Parallel()
	pkg := 2
	assert.Equal(t, "p2->g3", Pinning{Package: &pkg, Devices: []int{3}}.String())
	assert.Equal(t, "job1:2gpu", Pinning{Job: 1, DeviceCount: 2}.String())
}
