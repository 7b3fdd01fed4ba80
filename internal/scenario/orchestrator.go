package scenario

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/sets"

	"gpubw/internal/inference"
	"gpubw/internal/logger"
	"gpubw/internal/matrix"
	"gpubw/internal/measure"
	"gpubw/internal/pinning"
	"gpubw/internal/probe"
	"gpubw/internal/topology"
)

var ErrNoRunner = errors.New("probe runner is required")

type Options struct {
	Topology *topology.Topology
	Runner   probe.Runner
	Baseline *matrix.AffinityMatrix

	// Cap is the per-job device cap for shared scenarios; <= 0 selects half the node.
	Cap            int
	Direction      measure.Direction
	LocalDeviceIDs bool
	RetryOnTimeout bool
	Tolerance      float64

	Node  string
	Queue string

	Now func() time.Time
}

type Orchestrator struct {
	opts Options
	log  *zap.Logger
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Topology == nil {
		return nil, fmt.Errorf("%w: topology is required", pinning.ErrConfiguration)
	}
	if opts.Runner == nil {
		return nil, ErrNoRunner
	}
	if opts.Direction == "" {
		opts.Direction = measure.HostToDevice
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = inference.DefaultTolerance
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{opts: opts, log: logger.New("scenario")}, nil
}

// run carries the mutable state of one Run call. Only the orchestrator goroutine
// touches it; shared jobs write to their own *Job.
type run struct {
	o        *Orchestrator
	report   *Report
	scenario pinning.Scenario
}

// Run drives one scenario to Diffed or Failed. The returned report is never nil; on a
// fatal error it carries whatever jobs and cells were collected before the failure.
func (o *Orchestrator) Run(ctx context.Context, sc pinning.Scenario) (*Report, error) {
	r := &run{
		o:        o,
		scenario: sc,
		report: &Report{
			RunID:     uuid.NewString(),
			Node:      o.opts.Topology.Node,
			Queue:     o.opts.Queue,
			Direction: o.opts.Direction,
			State:     StateInitialized,
			StartedAt: o.opts.Now(),
		},
	}
	if r.report.Node == "" {
		r.report.Node = o.opts.Node
	}
	if sc != nil {
		r.report.Scenario = sc.Name()
	}
	o.log.Info("starting run",
		zap.String("run_id", r.report.RunID),
		zap.String("scenario", r.report.Scenario),
		zap.String("node", r.report.Node))

	err := r.execute(ctx)
	r.report.FinishedAt = o.opts.Now()
	if err != nil {
		r.salvage()
		r.fail(err)
		return r.report, err
	}
	o.log.Info("run finished",
		zap.String("run_id", r.report.RunID),
		zap.Int("matched", r.report.Comparison.Count(matrix.StatusMatched)),
		zap.Int("missing", r.report.Comparison.Count(matrix.StatusMissing)),
		zap.Int("unresolved", r.report.Comparison.Count(matrix.StatusUnresolved)),
		zap.Int("failures", len(r.report.Failures)))
	return r.report, nil
}

func (r *run) execute(ctx context.Context) error {
	if err := r.move(StateEnumerating, ""); err != nil {
		return err
	}
	if r.scenario == nil {
		return fmt.Errorf("%w: scenario is required", pinning.ErrConfiguration)
	}
	pinnings, err := pinning.Enumerate(r.scenario, r.o.opts.Topology, r.o.opts.Cap)
	if err != nil {
		return err
	}
	r.report.Pinnings = len(pinnings)
	r.report.Jobs = r.plan(pinnings)

	if err := r.move(StateProbing, fmt.Sprintf("%d pinnings", len(pinnings))); err != nil {
		return err
	}
	if err := r.probe(ctx); err != nil {
		return err
	}

	if err := r.move(StateParsing, ""); err != nil {
		return err
	}
	for _, job := range r.report.Jobs {
		r.parse(job)
	}

	if r.shared() {
		if err := r.move(StateInferring, ""); err != nil {
			return err
		}
		for _, job := range r.report.Jobs {
			r.infer(job)
		}
	}

	if err := r.move(StateBuilding, ""); err != nil {
		return err
	}
	observed, err := r.build(true)
	if err != nil {
		return err
	}

	r.report.Comparison = r.diff(observed)
	r.collectFailures()
	return r.move(StateDiffed, "")
}

func (r *run) shared() bool {
	return r.scenario != nil && r.scenario.Kind() == pinning.KindShared
}

// plan groups pinnings into jobs: one job for an exclusive sweep, one job per
// scheduler-placed pinning otherwise.
func (r *run) plan(pinnings []pinning.Pinning) []*Job {
	if !r.shared() {
		return []*Job{{ID: 0, Pinnings: pinnings}}
	}
	jobs := make([]*Job, 0, len(pinnings))
	for _, p := range pinnings {
		jobs = append(jobs, &Job{ID: p.Job, Pinnings: []pinning.Pinning{p}})
	}
	return jobs
}

func (r *run) probe(ctx context.Context) error {
	if !r.shared() {
		return r.probeJob(ctx, r.report.Jobs[0])
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, job := range r.report.Jobs {
		job := job
		g.Go(func() error {
			return r.probeJob(ctx, job)
		})
	}
	return g.Wait()
}

// probeJob runs a job's pinnings in order. Cancellation is checked between pinnings;
// a probe already started runs to completion or to its own timeout.
func (r *run) probeJob(ctx context.Context, job *Job) error {
	for _, p := range job.Pinnings {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.probeOne(job, p); err != nil {
			return err
		}
	}
	return nil
}

// probeOne records a failed pinning and moves on. A denied launch is returned and
// stops the job.
func (r *run) probeOne(job *Job, p pinning.Pinning) error {
	log := r.o.log.With(zap.Int("job", job.ID), zap.String("pinning", p.String()))
	for attempt := 1; ; attempt++ {
		raw, err := r.o.opts.Runner.Run(p)
		if err == nil {
			job.Outputs = append(job.Outputs, Output{Pinning: p, Raw: raw, Attempts: attempt})
			return nil
		}
		if probe.IsTimeout(err) && r.o.opts.RetryOnTimeout && attempt == 1 {
			log.Warn("probe timed out, retrying", zap.Error(err))
			continue
		}
		log.Error("probe failed", zap.Int("attempts", attempt), zap.Error(err))
		job.Failures = append(job.Failures, newFailure(job.ID, p, err, attempt))
		if errors.Is(err, probe.ErrPermissionDenied) {
			return err
		}
		return nil
	}
}

func (r *run) parse(job *Job) {
	job.parsed = true
	visible := sets.New[int]()
	for _, out := range job.Outputs {
		ms, err := measure.Parse(out.Raw)
		if err != nil {
			job.Failures = append(job.Failures, newFailure(job.ID, out.Pinning, err, out.Attempts))
			continue
		}
		ms = filterDirection(ms, r.o.opts.Direction)

		if out.Pinning.Bound() {
			ms, err = checkBound(out.Pinning, ms)
			if err != nil {
				job.Failures = append(job.Failures, newFailure(job.ID, out.Pinning, err, out.Attempts))
				continue
			}
			for _, m := range ms {
				visible.Insert(m.Device)
			}
			job.Measurements = append(job.Measurements, ms...)
			continue
		}

		env := measure.ParseEnvironment(out.Raw)
		if r.o.opts.LocalDeviceIDs {
			remapped, ok := env.Remap(ms)
			if !ok {
				perr := &measure.ParseError{Reason: fmt.Sprintf("device ordinal outside CUDA_VISIBLE_DEVICES %v", env.Visible)}
				job.Failures = append(job.Failures, newFailure(job.ID, out.Pinning, perr, out.Attempts))
				continue
			}
			ms = remapped
		}
		for i := range ms {
			if ms[i].Bound() && env.ReportedPackage == nil {
				pkg := ms[i].Package
				env.ReportedPackage = &pkg
			}
			ms[i].Package = measure.UnboundPackage
		}
		job.ReportedPackage = env.ReportedPackage
		if len(env.Visible) > 0 {
			visible.Insert(env.Visible...)
		}
		for _, m := range ms {
			visible.Insert(m.Device)
		}
		job.Measurements = append(job.Measurements, ms...)

		if seen := visible.Len(); seen != out.Pinning.DeviceCount {
			job.Notes = append(job.Notes, fmt.Sprintf("job saw %d devices, requested %d", seen, out.Pinning.DeviceCount))
		}
	}
	job.Visible = sets.List(visible)
}

// checkBound keeps the rows of a pinned probe, which must all belong to its
// package and devices and cover every device.
func checkBound(p pinning.Pinning, ms []measure.Measurement) ([]measure.Measurement, error) {
	want := sets.New(p.Devices...)
	got := sets.New[int]()
	for _, m := range ms {
		if m.Bound() && m.Package != *p.Package {
			return nil, &measure.ParseError{Reason: fmt.Sprintf("row %s does not belong to %s", m, p)}
		}
		if !want.Has(m.Device) {
			return nil, &measure.ParseError{Reason: fmt.Sprintf("row %s names a device outside %s", m, p)}
		}
		got.Insert(m.Device)
	}
	if missing := want.Difference(got); missing.Len() > 0 {
		return nil, &measure.ParseError{Reason: fmt.Sprintf("no rows for devices %v", sets.List(missing))}
	}

	out := make([]measure.Measurement, 0, len(ms))
	for _, m := range ms {
		m.Package = *p.Package
		out = append(out, m)
	}
	return out, nil
}

func filterDirection(ms []measure.Measurement, dir measure.Direction) []measure.Measurement {
	out := ms[:0:0]
	for _, m := range ms {
		if m.Direction == dir {
			out = append(out, m)
		}
	}
	return out
}

func (r *run) infer(job *Job) {
	if len(job.Measurements) == 0 {
		job.Unresolved = true
		return
	}

	inf := inference.Inferrer{
		Topology:  r.o.opts.Topology,
		Baseline:  r.o.opts.Baseline,
		Tolerance: r.o.opts.Tolerance,
	}
	result, err := inf.Infer(job.Measurements)
	job.Candidates = result.Candidates
	if err != nil {
		job.Unresolved = true
		var amb *inference.AmbiguousError
		if errors.As(err, &amb) {
			job.Tied = amb.Tied
		}
		if !errors.Is(err, inference.ErrAmbiguousAffinity) {
			job.Notes = append(job.Notes, err.Error())
		}
		r.o.log.Warn("job left unresolved", zap.Int("job", job.ID), zap.Error(err))
		return
	}

	pkg := result.Package
	job.Resolved = &pkg
	for i := range job.Measurements {
		job.Measurements[i].Package = pkg
	}
	r.report.Placements = append(r.report.Placements, r.placement(job, pkg))
	r.o.log.Info("inferred job package", zap.Int("job", job.ID), zap.Int("package", pkg))
}

func (r *run) placement(job *Job, pkg int) Placement {
	pl := Placement{
		Job:             job.ID,
		Package:         pkg,
		Visible:         job.Visible,
		ReportedPackage: job.ReportedPackage,
	}
	for _, dev := range job.Visible {
		if r.o.opts.Topology.IsLocal(pkg, dev) {
			pl.LocalDevices++
		}
	}
	pl.Aligned = pl.LocalDevices > 0
	if job.ReportedPackage != nil {
		match := *job.ReportedPackage == pkg
		pl.ReportedMatch = &match
		if !match {
			job.Notes = append(job.Notes, fmt.Sprintf("inferred p%d but the job reported p%d", pkg, *job.ReportedPackage))
		}
	}
	return pl
}

// build assembles the observed matrix from every job that produced bound rows.
// With strict unset, duplicates are skipped instead of failing the run.
func (r *run) build(strict bool) (*matrix.AffinityMatrix, error) {
	observed := matrix.New()
	for _, job := range r.report.Jobs {
		if job.Unresolved || len(job.Measurements) == 0 || !job.Measurements[0].Bound() {
			continue
		}
		partial := matrix.New()
		for _, m := range job.Measurements {
			if err := partial.Add(m); err != nil && strict {
				return nil, err
			}
		}
		job.Partial = partial
		for _, m := range partial.Measurements() {
			if err := observed.Add(m); err != nil && strict {
				return nil, err
			}
		}
	}
	observed.Freeze()
	return observed, nil
}

func (r *run) diff(observed *matrix.AffinityMatrix) *matrix.ComparisonReport {
	cmp := matrix.Diff(r.o.opts.Baseline, observed)
	for _, job := range r.report.Jobs {
		for _, p := range job.Pinnings {
			if !p.Bound() {
				continue
			}
			for _, dev := range p.Devices {
				cmp.MarkMissing(matrix.Key{Package: *p.Package, Device: dev})
			}
		}
		if !job.Unresolved {
			continue
		}
		for _, dev := range job.Visible {
			cmp.MarkUnresolved(dev, job.Tied...)
		}
	}
	return cmp
}

func (r *run) collectFailures() {
	r.report.Failures = r.report.Failures[:0]
	for _, job := range r.report.Jobs {
		r.report.Failures = append(r.report.Failures, job.Failures...)
	}
	sort.SliceStable(r.report.Failures, func(i, j int) bool {
		return r.report.Failures[i].Job < r.report.Failures[j].Job
	})
}

// salvage builds a best-effort comparison from whatever was collected before a fatal
// error, so a cancelled or conflicting run still reports its finished cells.
func (r *run) salvage() {
	if len(r.report.Jobs) == 0 {
		return
	}
	for _, job := range r.report.Jobs {
		if !job.parsed {
			r.parse(job)
		}
		if r.shared() && job.Resolved == nil && !job.Unresolved && len(job.Measurements) > 0 {
			r.infer(job)
		}
	}
	observed, _ := r.build(false)
	r.report.Comparison = r.diff(observed)
	r.collectFailures()
}

func (r *run) move(to State, reason string) error {
	from := r.report.State
	if err := canMove(from, to); err != nil {
		return err
	}
	r.report.State = to
	r.report.History = append(r.report.History, Transition{From: from, To: to, At: r.o.opts.Now(), Reason: reason})
	r.o.log.Debug("state transition", zap.String("from", string(from)), zap.String("to", string(to)))
	return nil
}

func (r *run) fail(err error) {
	r.report.Error = err.Error()
	if moveErr := r.move(StateFailed, err.Error()); moveErr != nil {
		r.o.log.Error("cannot record failure", zap.Error(moveErr))
	}
	r.o.log.Error("run failed", zap.String("run_id", r.report.RunID), zap.Error(err))
}
