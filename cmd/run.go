package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gpubw/internal/config"
	"gpubw/internal/matrix"
	"gpubw/internal/measure"
	"gpubw/internal/pinning"
	"gpubw/internal/probe"
	"gpubw/internal/scenario"
	"gpubw/internal/topology"
	"gpubw/internal/ui"
)

type runOptions struct {
	scenario   string
	baseline   string
	timeout    int
	output     string
	saveMatrix string
	dryRun     bool
}

func NewRunCmd(deps Deps) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a benchmark scenario and compare it with a baseline",
		Long: `Run enumerates the pinnings of a scenario, probes each one, builds the observed affinity
matrix and writes a comparison report. Scheduler-placed scenarios infer the package each
job ran on from its bandwidth signature.`,
		Example: `  gpubw run --scenario exclusive --output baseline-report.json --save-matrix baseline.json
  gpubw run --scenario shared-2gpu --baseline baseline.json --timeout 300 --output shared.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd, deps, opts)
		},
	}

	cmd.Flags().StringVar(&opts.scenario, "scenario", "exclusive", "scenario: exclusive, shared-1gpu, shared-2gpu or shared-<n>gpu")
	cmd.Flags().StringVar(&opts.baseline, "baseline", "", "baseline matrix (JSON list or raw probe output)")
	cmd.Flags().IntVar(&opts.timeout, "timeout", 0, "per-probe timeout in seconds (default from probe.timeout)")
	cmd.Flags().StringVar(&opts.output, "output", "gpubw-report.json", "report output path")
	cmd.Flags().StringVar(&opts.saveMatrix, "save-matrix", "", "also write the observed matrix to this path")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print the probe commands and run against synthetic output")
	return cmd
}

func runScenario(cmd *cobra.Command, deps Deps, opts *runOptions) error {
	if opts.timeout < 0 {
		return fmt.Errorf("%w: --timeout must not be negative", ErrInvalidArguments)
	}
	if opts.output == "" {
		return fmt.Errorf("%w: --output is required", ErrInvalidArguments)
	}

	cfg, err := loadConfig(cmd, deps)
	if err != nil {
		return err
	}
	if opts.timeout > 0 {
		cfg.Probe.Timeout = time.Duration(opts.timeout) * time.Second
	}

	sc, err := pinning.ParseScenario(opts.scenario, cfg.Scenario.Jobs)
	if err != nil {
		return err
	}
	topo, err := discover(cfg, deps)
	if err != nil {
		return err
	}

	var baseline *matrix.AffinityMatrix
	if opts.baseline != "" {
		baseline, err = matrix.LoadMatrix(deps.Fs, opts.baseline)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
		}
	}

	runner, err := buildRunner(cmd, deps, cfg, topo, sc, opts.dryRun)
	if err != nil {
		return err
	}

	o, err := scenario.New(scenario.Options{
		Topology:       topo,
		Runner:         runner,
		Baseline:       baseline,
		Cap:            cfg.Node.HalfResourceCap,
		Direction:      measure.Direction(cfg.Probe.Direction),
		LocalDeviceIDs: cfg.Probe.LocalDeviceIDs,
		RetryOnTimeout: cfg.Retry.OnTimeout,
		Node:           cfg.Node.Name,
		Queue:          cfg.Node.Queue,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, runErr := o.Run(ctx, sc)
	if err := scenario.WriteReport(deps.Fs, opts.output, report); err != nil {
		return err
	}
	if opts.saveMatrix != "" && report.Comparison != nil && report.Comparison.Observed != nil {
		if err := matrix.SaveMatrix(deps.Fs, opts.saveMatrix, report.Comparison.Observed); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	ui.PrintReport(out, report)
	if report.Comparison != nil {
		ui.PrintReportTable(out, report)
	}
	fmt.Fprintf(out, "report written to %s\n", opts.output)

	if runErr != nil {
		return runErr
	}
	if report.HasFailures() {
		return fmt.Errorf("%w: %d failed pinnings", ErrProbeFailures, len(report.Failures))
	}
	return nil
}

// buildRunner returns the configured runner, or for a dry run prints the command lines
// that would execute and hands back a synthetic runner instead.
func buildRunner(cmd *cobra.Command, deps Deps, cfg *config.Config, topo *topology.Topology, sc pinning.Scenario, dryRun bool) (probe.Runner, error) {
	if !dryRun {
		return deps.NewRunner(cfg, topo)
	}

	pinnings, err := pinning.Enumerate(sc, topo, cfg.Node.HalfResourceCap)
	if err != nil {
		return nil, err
	}
	execRunner, err := newExecRunner(cfg, topo)
	if err != nil {
		return nil, err
	}
	commands := make([][]string, 0, len(pinnings))
	for _, p := range pinnings {
		argv, err := execRunner.CommandLine(p)
		if err != nil {
			return nil, err
		}
		commands = append(commands, argv)
	}
	ui.PrintPinnings(cmd.OutOrStdout(), pinnings, commands)

	return &probe.Synthetic{Topology: topo, Local: syntheticLocal, Remote: syntheticRemote}, nil
}

const (
	syntheticLocal  = 200.0
	syntheticRemote = 40.0
)
