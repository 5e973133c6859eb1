package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show daemon health and item counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			report, err := client.Health()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, report)
			}

			fmt.Fprintf(out, "Daemon:     %s\n", report.Status)
			if report.Worker != nil {
				fmt.Fprintf(out, "Worker:     running=%v passes=%d\n", report.Worker.Running, report.Worker.Passes)
				if pass := report.Worker.LastPass; pass != nil {
					fmt.Fprintf(out, "Last pass:  %s (%d items, %d failures)\n",
						formatTime(pass.CompletedAt), pass.Discovered, pass.Failures)
				}
				if report.Worker.LastError != "" {
					fmt.Fprintf(out, "Last error: %s\n", report.Worker.LastError)
				}
			}
			rows := [][]string{
				{"pending", fmt.Sprintf("%d", report.Items.Pending)},
				{"processing", fmt.Sprintf("%d", report.Items.Processing)},
				{"completed", fmt.Sprintf("%d", report.Items.Completed)},
				{"failed", fmt.Sprintf("%d", report.Items.Failed)},
				{"total", fmt.Sprintf("%d", report.Items.Total)},
			}
			fmt.Fprintln(out, renderTable([]string{"Items", "Count"}, rows, 2))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print health as JSON")
	return cmd
}
