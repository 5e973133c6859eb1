package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pixelmill/internal/store"
)

func newBatchesCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var statusFilters []string

	cmd := &cobra.Command{
		Use:   "batches",
		Short: "List all known batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := normalizeStatusFilters(statusFilters)
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			batches, err := client.ListBatches(statuses...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON || !stdoutIsTTY() {
				return printJSON(out, batches)
			}
			if len(batches) == 0 {
				fmt.Fprintln(out, "No batches found")
				return nil
			}
			rows := make([][]string, 0, len(batches))
			for _, batch := range batches {
				rows = append(rows, []string{
					batch.BatchID,
					batch.Status,
					formatProgress(batch.ProcessedItems, batch.TotalItems),
					formatTime(batch.CreatedAt),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Batch", "Status", "Progress", "Created"},
				rows,
				3,
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print batches as JSON")
	cmd.Flags().StringSliceVar(&statusFilters, "status", nil, "Only list batches in the given statuses")
	return cmd
}

// normalizeStatusFilters validates --status values before they reach the
// daemon so a typo fails with the valid set instead of an HTTP error.
func normalizeStatusFilters(values []string) ([]string, error) {
	statuses := make([]string, 0, len(values))
	for _, value := range values {
		status, ok := store.ParseStatus(value)
		if !ok {
			all := store.AllStatuses()
			names := make([]string, len(all))
			for i, s := range all {
				names[i] = string(s)
			}
			return nil, fmt.Errorf("unknown status %q (valid: %s)", value, strings.Join(names, ", "))
		}
		statuses = append(statuses, string(status))
	}
	return statuses, nil
}
