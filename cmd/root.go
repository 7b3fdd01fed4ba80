package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"gpubw/internal/config"
	"gpubw/internal/logger"
	"gpubw/internal/probe"
	"gpubw/internal/scenario"
	"gpubw/internal/topology"
	"gpubw/internal/ui"
)

var (
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrProbeFailures    = errors.New("one or more probes failed")
)

// Deps are the side-effecting pieces the commands need, swappable in tests.
type Deps struct {
	Fs        afero.Fs
	NewRunner func(cfg *config.Config, topo *topology.Topology) (probe.Runner, error)
	Browse    func(report *scenario.Report) error
}

func DefaultDeps() Deps {
	return Deps{
		Fs: afero.NewOsFs(),
		NewRunner: func(cfg *config.Config, topo *topology.Topology) (probe.Runner, error) {
			r, err := newExecRunner(cfg, topo)
			if err != nil {
				return nil, err
			}
			return r, nil
		},
		Browse: ui.Browse,
	}
}

func NewRootCmd(deps Deps) *cobra.Command {
	root := &cobra.Command{
		Use:   "gpubw",
		Short: "Topology-aware GPU bandwidth affinity benchmarks",
		Long: `gpubw probes host-to-device bandwidth for every CPU package and GPU pairing of a node,
assembles the results into an affinity matrix and compares it with a baseline capture.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().String("config", "", "config file (default ./gpubw.yaml)")
	root.PersistentFlags().Bool("debug", false, "enable debug logging")

	root.AddCommand(NewRunCmd(deps))
	root.AddCommand(NewTopologyCmd(deps))
	root.AddCommand(NewReportCmd(deps))
	return root
}

func loadConfig(cmd *cobra.Command, deps Deps) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(deps.Fs, path)
	if err != nil {
		return nil, err
	}
	debug, _ := cmd.Flags().GetBool("debug")
	logger.SetDebug(debug || cfg.General.Debug)
	return cfg, nil
}

func discover(cfg *config.Config, deps Deps) (*topology.Topology, error) {
	topo, err := topology.Discover(cfg.Node.TopologySpec())
	if err != nil {
		return nil, err
	}
	if cfg.Node.VerifyHost {
		if err := topology.VerifyHost(deps.Fs, topo); err != nil {
			return nil, err
		}
	}
	return topo, nil
}

func newExecRunner(cfg *config.Config, topo *topology.Topology) (*probe.ExecRunner, error) {
	binder, err := probe.NewBinder(cfg.Affinity.Method)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	launcher := &probe.Launcher{Args: cfg.Scheduler.Launcher, Queue: cfg.Node.Queue}
	return probe.NewExecRunner(probe.ExecConfig{
		Binary:  cfg.Probe.Binary,
		Args:    cfg.Probe.Args,
		Timeout: cfg.Probe.Timeout,
		Env:     cfg.Probe.Env,
	}, topo, binder, launcher)
}
