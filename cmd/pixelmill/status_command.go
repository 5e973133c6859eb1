package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asCSV bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <batch-id>",
		Short: "Show the processing state of a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asCSV {
				return client.BatchCSV(args[0], out)
			}
			detail, err := client.BatchStatus(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(out, detail)
			}
			renderBatchDetail(out, detail)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asCSV, "csv", false, "Export the batch as CSV")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the batch as JSON")
	return cmd
}

func renderBatchDetail(out io.Writer, detail *batchDetail) {
	fmt.Fprintf(out, "Batch %s\n", detail.BatchID)
	fmt.Fprintf(out, "Status:   %s\n", detail.Status)
	fmt.Fprintf(out, "Progress: %s\n", formatProgress(detail.ProcessedItems, detail.TotalItems))
	fmt.Fprintf(out, "Created:  %s\n", formatTime(detail.CreatedAt))
	fmt.Fprintf(out, "Updated:  %s\n", formatTime(detail.UpdatedAt))

	if len(detail.Items) == 0 {
		return
	}
	rows := make([][]string, 0, len(detail.Items))
	for _, item := range detail.Items {
		detailCol := truncateList(item.OutputURLs, 60)
		if item.Error != "" {
			detailCol = item.Error
		}
		rows = append(rows, []string{
			item.SerialNumber,
			item.ProductName,
			fmt.Sprintf("%d", len(item.InputURLs)),
			item.Status,
			detailCol,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Serial", "Product", "Sources", "Status", "Outputs / Error"},
		rows,
		3,
	))
}
