package probe

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpubw/internal/pinning"
	"gpubw/internal/topology"
)

type plainBinder struct {
	prefixStart
}

func (plainBinder) Name() string                     { return "plain" }
func (plainBinder) Prefix(topology.Package) []string { return nil }

func referenceTopology(t *testing.T) *topology.Topology {
	t.Helper()
	topo, err := topology.Discover(topology.ReferenceSpec("gh200"))
	require.NoError(t, err)
	return topo
}

func bound(pkg int, devices ...int) pinning.Pinning {
	return pinning.Pinning{Package: &pkg, Devices: devices, DeviceCount: len(devices)}
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh on this host")
	}
}

func TestExpand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		p    pinning.Pinning
		want []string
	}{
		{
			name: "bound",
			p:    bound(2, 3),
			want: []string{"--source", "2", "--devices", "3", "--count", "1", "--queue", "gpu"},
		},
		{
			name: "bound to two devices",
			p:    bound(0, 0, 1),
			want: []string{"--source", "0", "--devices", "0,1", "--count", "2", "--queue", "gpu"},
		},
		{
			name: "scheduler placed",
			p:    pinning.Pinning{Job: 1, DeviceCount: 2},
			want: []string{"--source", "auto", "--devices", "visible", "--count", "2", "--queue", "gpu"},
		},
	}
	template := []string{"--source", "{package}", "--devices", "{devices}", "--count", "{count}", "--queue", "{queue}"}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, expand(template, tt.p, "gpu"))
		})
	}
}

func TestCommandLine(t *testing.T) {
	t.Parallel()
	topo := referenceTopology(t)
	cfg := ExecConfig{Binary: "gpubw-probe", Args: []string{"--source", "{package}", "--devices", "{devices}"}}
	launcher := &Launcher{Args: []string{"srun", "--partition={queue}", "--gres=gpu:{count}"}, Queue: "shared"}

	tests := []struct {
		name   string
		binder Binder
		p      pinning.Pinning
		want   []string
	}{
		{
			name:   "numactl",
			binder: NumactlBinder{},
			p:      bound(1, 2),
			want:   []string{"numactl", "--cpunodebind=1", "--membind=1", "gpubw-probe", "--source", "1", "--devices", "2"},
		},
		{
			name:   "taskset",
			binder: TasksetBinder{Path: "/usr/bin/taskset"},
			p:      bound(1, 0),
			want:   []string{"/usr/bin/taskset", "-c", "72-143", "gpubw-probe", "--source", "1", "--devices", "0"},
		},
		{
			name:   "sched has no prefix",
			binder: SchedBinder{},
			p:      bound(3, 3),
			want:   []string{"gpubw-probe", "--source", "3", "--devices", "3"},
		},
		{
			name:   "launcher for scheduler placed jobs",
			binder: NumactlBinder{},
			p:      pinning.Pinning{Job: 0, DeviceCount: 2},
			want:   []string{"srun", "--partition=shared", "--gres=gpu:2", "gpubw-probe", "--source", "auto", "--devices", "visible"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, err := NewExecRunner(cfg, topo, tt.binder, launcher)
			require.NoError(t, err)
			argv, err := r.CommandLine(tt.p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, argv)
		})
	}

	r, err := NewExecRunner(cfg, topo, nil, nil)
	require.NoError(t, err)
	_, err = r.CommandLine(bound(7, 0))
	assert.Error(t, err)

	argv, err := r.CommandLine(pinning.Pinning{DeviceCount: 1})
	require.NoError(t, err)
	assert.Equal(t, "gpubw-probe", argv[0])
}

func TestNewExecRunner_Validation(t *testing.T) {
	t.Parallel()
	topo := referenceTopology(t)

	_, err := NewExecRunner(ExecConfig{}, topo, nil, nil)
	assert.Error(t, err)
	_, err = NewExecRunner(ExecConfig{Binary: "probe"}, nil, nil, nil)
	assert.Error(t, err)

	r, err := NewExecRunner(ExecConfig{Binary: "probe"}, topo, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, r.cfg.Timeout)
	assert.Equal(t, "numactl", r.binder.Name())
}

func TestNewBinder(t *testing.T) {
	t.Parallel()

	for method, want := range map[string]string{"": "numactl", "NUMACTL": "numactl", "taskset": "taskset", " sched ": "sched"} {
		b, err := NewBinder(method)
		require.NoError(t, err, method)
		assert.Equal(t, want, b.Name())
	}
	_, err := NewBinder("cgroup")
	assert.Error(t, err)
}

func TestExecRunner_Run(t *testing.T) {
	requireShell(t)
	t.Parallel()
	topo := referenceTopology(t)

	tests := []struct {
		name    string
		script  string
		env     []string
		timeout time.Duration
		stdout  string
		check   func(t *testing.T, err error)
	}{
		{
			name:   "success",
			script: `printf 'p%s\tg%s\t200\tGB/s\n' {package} {devices}`,
			stdout: "p1\tg2\t200\tGB/s\n",
			check:  func(t *testing.T, err error) { assert.NoError(t, err) },
		},
		{
			name:   "environment",
			script: `echo "$GPUBW_PROBE_MODE"`,
			env:    []string{"GPUBW_PROBE_MODE=pinned"},
			stdout: "pinned\n",
			check:  func(t *testing.T, err error) { assert.NoError(t, err) },
		},
		{
			name:   "non-zero exit",
			script: `echo partial; echo 'cuda init failed' >&2; exit 3`,
			stdout: "partial\n",
			check: func(t *testing.T, err error) {
				var fe *FailureError
				require.ErrorAs(t, err, &fe)
				assert.Equal(t, 3, fe.ExitCode)
				assert.Equal(t, "cuda init failed", fe.Stderr)
				assert.True(t, IsFailure(err))
				assert.False(t, IsTimeout(err))
			},
		},
		{
			name:    "timeout",
			script:  `exec sleep 5`,
			timeout: 100 * time.Millisecond,
			check: func(t *testing.T, err error) {
				var te *TimeoutError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, "p1->g2", te.Pinning)
				assert.True(t, IsTimeout(err))
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, err := NewExecRunner(ExecConfig{
				Binary:  "/bin/sh",
				Args:    []string{"-c", tt.script},
				Timeout: tt.timeout,
				Env:     tt.env,
			}, topo, plainBinder{}, nil)
			require.NoError(t, err)

			raw, err := r.Run(bound(1, 2))
			tt.check(t, err)
			require.NotNil(t, raw)
			assert.Equal(t, tt.stdout, raw.Stdout)
			assert.Equal(t, "/bin/sh", raw.Command[0])
			assert.False(t, raw.CapturedAt.IsZero())
		})
	}
}

func TestExecRunner_MissingBinary(t *testing.T) {
	t.Parallel()
	r, err := NewExecRunner(ExecConfig{Binary: "/nonexistent/gpubw-probe"}, referenceTopology(t), plainBinder{}, nil)
	require.NoError(t, err)

	raw, err := r.Run(bound(0, 0))
	assert.Nil(t, raw)
	var fe *FailureError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, -1, fe.ExitCode)
}

func TestSynthetic(t *testing.T) {
	t.Parallel()
	topo := referenceTopology(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := &Synthetic{Topology: topo, Local: 200, Remote: 40, Now: func() time.Time { return at }}

	raw, err := s.Run(bound(2, 2))
	require.NoError(t, err)
	assert.Contains(t, raw.Stdout, "p2\tg2\t200\tGB/s")
	assert.Equal(t, at, raw.CapturedAt)

	raw, err = s.Run(bound(2, 1))
	require.NoError(t, err)
	assert.Contains(t, raw.Stdout, "p2\tg1\t40\tGB/s")

	// job 1 of a two-device scenario lands on p1 with g2,g3, numbered g0,g1 inside the job.
	raw, err = s.Run(pinning.Pinning{Job: 1, DeviceCount: 2})
	require.NoError(t, err)
	assert.Contains(t, raw.Stdout, "cpubind: 1\n")
	assert.Contains(t, raw.Stdout, "CUDA_VISIBLE_DEVICES: 2,3\n")
	assert.Contains(t, raw.Stdout, "*\tg0\t40\tGB/s")
	assert.False(t, strings.Contains(raw.Stdout, "p1\t"))

	assert.Len(t, s.Calls(), 3)
}

func TestWrapStartError(t *testing.T) {
	t.Parallel()

	err := wrapStartError("p0->g0", os.ErrPermission)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = wrapStartError("p0->g0", os.ErrNotExist)
	var fe *FailureError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, -1, fe.ExitCode)
	assert.Equal(t, "p0->g0", fe.Pinning)
}
