package measure

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpubw/internal/probe"
)

var capturedAt = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func TestParse_ToleratesHeadersAndFooters(t *testing.T) {
	t.Parallel()

	out := `bandwidth probe v2.1
numactl --show
cpubind: 1
source   destination  bandwidth  unit
p1       g0           41.5       GB/s
numa1    gpu1         201250     MB/s
g3       cpu1         38         GiB/s
Done. 3 rows.
`
	ms, err := Parse(&probe.RawOutput{Stdout: out, CapturedAt: capturedAt})
	require.NoError(t, err)
	require.Len(t, ms, 3)

	assert.Equal(t, Measurement{Package: 1, Device: 0, Direction: HostToDevice, Bandwidth: 41.5, Unit: "GB/s", Timestamp: capturedAt}, ms[0])
	assert.Equal(t, 1, ms[1].Package)
	assert.Equal(t, 1, ms[1].Device)
	assert.InDelta(t, 201.25, ms[1].Bandwidth, 1e-9)
	assert.Equal(t, DeviceToHost, ms[2].Direction)
	assert.Equal(t, 1, ms[2].Package)
	assert.Equal(t, 3, ms[2].Device)
	assert.InDelta(t, 38*1.073741824, ms[2].Bandwidth, 1e-9)
}

func TestParse_UnboundSource(t *testing.T) {
	t.Parallel()

	ms, err := ParseText("*\tg0\t199.9\tGB/s\nauto g1 40 gb/s\n", capturedAt)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	for _, m := range ms {
		assert.False(t, m.Bound())
		assert.Equal(t, UnboundPackage, m.Package)
	}
}

func TestParse_Units(t *testing.T) {
	t.Parallel()

	tests := []struct {
		unit string
		want float64
	}{
		{"B/s", 1e-9},
		{"KB/s", 1e-6},
		{"MB/s", 1e-3},
		{"GB/s", 1},
		{"TB/s", 1e3},
		{"KiB/s", 1.024e-6},
		{"MiB/s", 1.048576e-3},
		{"GiB/s", 1.073741824},
		{"TiB/s", 1099.511627776},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.unit, func(t *testing.T) {
			t.Parallel()
			ms, err := ParseText("p0 g0 1 "+tt.unit, capturedAt)
			require.NoError(t, err)
			require.Len(t, ms, 1)
			assert.InDelta(t, tt.want, ms[0].Bandwidth, tt.want*1e-12)
			assert.Equal(t, CanonicalUnit, ms[0].Unit)
		})
	}
}

func TestParse_StrictRows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		line int
	}{
		{name: "missing unit", text: "header\np0 g1 12.5\n", line: 2},
		{name: "extra column", text: "p0 g1 12.5 GB/s x", line: 1},
		{name: "not a number", text: "p0 g1 fast GB/s", line: 1},
		{name: "negative", text: "p0 g1 -3 GB/s", line: 1},
		{name: "nan", text: "p0 g1 NaN GB/s", line: 1},
		{name: "unknown unit", text: "p0 g1 3 furlongs", line: 1},
		{name: "two packages", text: "p0 p1 3 GB/s", line: 1},
		{name: "two devices", text: "g0 g1 3 GB/s", line: 1},
		{name: "device then header word", text: "g0 somewhere 3 GB/s", line: 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseText(tt.text, capturedAt)
			var pe *ParseError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, tt.line, pe.LineNo)
			assert.NotEmpty(t, pe.Line)
		})
	}
}

func TestParse_EmptyOutput(t *testing.T) {
	t.Parallel()

	ms, err := Parse(&probe.RawOutput{Stdout: "no rows today\n"})
	assert.NoError(t, err)
	assert.Empty(t, ms)

	ms, err = Parse(nil)
	assert.NoError(t, err)
	assert.Nil(t, ms)
}

func TestParse_RenderRoundTrip(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 50; iter++ {
		var ms []Measurement
		n := rng.Intn(12)
		for i := 0; i < n; i++ {
			m := Measurement{
				Package:   rng.Intn(5) - 1,
				Device:    rng.Intn(8),
				Direction: HostToDevice,
				Bandwidth: float64(rng.Intn(500000)) / 1000,
				Unit:      CanonicalUnit,
				Timestamp: capturedAt,
			}
			if m.Bound() && rng.Intn(2) == 0 {
				m.Direction = DeviceToHost
			}
			ms = append(ms, m)
		}

		got, err := ParseText(Render(ms), capturedAt)
		require.NoError(t, err)
		assert.Equal(t, ms, got)
	}
}

func TestParseEnvironment(t *testing.T) {
	t.Parallel()

	env := ParseEnvironmentText("policy: bind\ncpubind: 2 \nnodebind: 2\nCUDA_VISIBLE_DEVICES: 2,3\n")
	require.NotNil(t, env.ReportedPackage)
	assert.Equal(t, 2, *env.ReportedPackage)
	assert.Equal(t, []int{2, 3}, env.Visible)

	env = ParseEnvironmentText("cpubind: 0 1 2 3\nCUDA_VISIBLE_DEVICES=GPU-8a1f\n")
	assert.Nil(t, env.ReportedPackage)
	assert.Nil(t, env.Visible)

	env = ParseEnvironment(&probe.RawOutput{Stdout: "CUDA_VISIBLE_DEVICES=1"})
	assert.Equal(t, []int{1}, env.Visible)
}

func TestEnvironmentRemap(t *testing.T) {
	t.Parallel()

	env := Environment{Visible: []int{2, 3}}
	ms := []Measurement{{Package: UnboundPackage, Device: 0}, {Package: UnboundPackage, Device: 1}}

	got, ok := env.Remap(ms)
	require.True(t, ok)
	assert.Equal(t, 2, got[0].Device)
	assert.Equal(t, 3, got[1].Device)
	assert.Equal(t, 0, ms[0].Device, "input is not modified")

	_, ok = env.Remap([]Measurement{{Device: 2}})
	assert.False(t, ok)

	got, ok = Environment{}.Remap(ms)
	assert.True(t, ok)
	assert.Equal(t, ms, got)
}
