package cmd

import (
	"github.com/spf13/cobra"

	"gpubw/internal/scenario"
	"gpubw/internal/ui"
)

func NewReportCmd(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Inspect a saved run report",
	}
	cmd.AddCommand(newReportShowCmd(deps))
	cmd.AddCommand(newReportBrowseCmd(deps))
	return cmd
}

func newReportShowCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "show <report.json>",
		Short: "Print a report summary and its cells",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := scenario.LoadReport(deps.Fs, args[0])
			if err != nil {
				return err
			}
			ui.PrintReport(cmd.OutOrStdout(), report)
			ui.PrintReportTable(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func newReportBrowseCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "browse <report.json>",
		Short: "Browse a report interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := scenario.LoadReport(deps.Fs, args[0])
			if err != nil {
				return err
			}
			return deps.Browse(report)
		},
	}
}
