package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"gpubw/internal/logger"
	"gpubw/internal/pinning"
	"gpubw/internal/topology"
)

const (
	DefaultTimeout = 2 * time.Minute
	waitDelay      = 5 * time.Second
)

// Launcher is the scheduler submission prefix used for pinnings whose package is chosen
// by the scheduler, e.g. "srun --partition={queue} --gres=gpu:{count}".
type Launcher struct {
	Args  []string
	Queue string
}

func (l *Launcher) Prefix(p pinning.Pinning) []string {
	if l == nil {
		return nil
	}
	return expand(l.Args, p, l.Queue)
}

type ExecConfig struct {
	Binary  string
	Args    []string
	Timeout time.Duration
	Env     []string
}

// ExecRunner runs the external probe binary under a binder (caller-placed pinnings) or
// a launcher (scheduler-placed pinnings).
type ExecRunner struct {
	cfg      ExecConfig
	topo     *topology.Topology
	binder   Binder
	launcher *Launcher
	log      *zap.Logger
}

func NewExecRunner(cfg ExecConfig, topo *topology.Topology, binder Binder, launcher *Launcher) (*ExecRunner, error) {
	if strings.TrimSpace(cfg.Binary) == "" {
		return nil, errors.New("probe binary is required")
	}
	if topo == nil {
		return nil, errors.New("topology is required")
	}
	if binder == nil {
		binder = NumactlBinder{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &ExecRunner{
		cfg:      cfg,
		topo:     topo,
		binder:   binder,
		launcher: launcher,
		log:      logger.New("probe"),
	}, nil
}

func (r *ExecRunner) CommandLine(p pinning.Pinning) ([]string, error) {
	probeArgv := append([]string{r.cfg.Binary}, expand(r.cfg.Args, p, "")...)

	if !p.Bound() {
		return append(r.launcher.Prefix(p), probeArgv...), nil
	}
	pkg, ok := r.topo.Package(*p.Package)
	if !ok {
		return nil, fmt.Errorf("pinning %s: unknown package %d", p, *p.Package)
	}
	return append(r.binder.Prefix(pkg), probeArgv...), nil
}

// Run deliberately ignores any caller context: an interrupted probe could leave the
// binding of the external process half applied, so only the timeout stops it.
func (r *ExecRunner) Run(p pinning.Pinning) (*RawOutput, error) {
	argv, err := r.CommandLine(p)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.WaitDelay = waitDelay
	if len(r.cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.cfg.Env...)
	}
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.log.Debug("starting probe", zap.Stringer("pinning", p), zap.Strings("argv", argv))

	started := time.Now()
	if p.Bound() {
		pkg, _ := r.topo.Package(*p.Package)
		err = r.binder.Start(cmd, pkg)
	} else {
		err = cmd.Start()
	}
	if err != nil {
		return nil, wrapStartError(p.String(), err)
	}
	waitErr := cmd.Wait()

	raw := &RawOutput{
		Pinning:    p,
		Command:    argv,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		CapturedAt: started,
		Duration:   time.Since(started),
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return raw, &TimeoutError{Pinning: p.String(), Timeout: r.cfg.Timeout}
	}
	if waitErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return raw, &FailureError{
			Pinning:  p.String(),
			ExitCode: exitCode,
			Stderr:   strings.TrimSpace(stderr.String()),
		}
	}

	r.log.Debug("probe finished", zap.Stringer("pinning", p), zap.Duration("duration", raw.Duration))
	return raw, nil
}

func expand(template []string, p pinning.Pinning, queue string) []string {
	pkg := "auto"
	if p.Package != nil {
		pkg = strconv.Itoa(*p.Package)
	}
	devices := "visible"
	if len(p.Devices) > 0 {
		ids := make([]string, 0, len(p.Devices))
		for _, d := range p.Devices {
			ids = append(ids, strconv.Itoa(d))
		}
		devices = strings.Join(ids, ",")
	}
	replacer := strings.NewReplacer(
		"{package}", pkg,
		"{devices}", devices,
		"{count}", strconv.Itoa(p.DeviceCount),
		"{job}", strconv.Itoa(p.Job),
		"{queue}", queue,
	)

	out := make([]string, 0, len(template))
	for _, arg := range template {
		out = append(out, replacer.Replace(arg))
	}
	return out
}
