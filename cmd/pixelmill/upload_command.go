package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <csv-file>",
		Short: "Upload a product CSV for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			batchID, total, err := client.UploadCSV(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Accepted batch %s with %d items\n", batchID, total)
			fmt.Fprintf(out, "Track progress with `pixelmill status %s`\n", batchID)
			return nil
		},
	}
}
