package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"gpubw/internal/topology"
	"gpubw/internal/ui"
)

func NewTopologyCmd(deps Deps) *cobra.Command {
	var verify, asJSON bool
	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Show the configured node topology",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, deps)
			if err != nil {
				return err
			}
			topo, err := topology.Discover(cfg.Node.TopologySpec())
			if err != nil {
				return err
			}
			if verify {
				if err := topology.VerifyHost(deps.Fs, topo); err != nil {
					return err
				}
			}

			if asJSON {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(topo)
			}
			ui.PrintTopology(cmd.OutOrStdout(), topo)
			return nil
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "check the configuration against the host's sysfs NUMA layout")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output in JSON format")
	return cmd
}
