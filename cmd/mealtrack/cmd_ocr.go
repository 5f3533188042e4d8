package main

import (
	"github.com/spf13/cobra"
)

func newOCRCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ocr <image>",
		Short: "Read the nutrient values off a nutrition label photo",
		Long: `Upload a nutrition label photo to the meal service's scanner and print the
values it could read. Use "meals add --from-label" to log a meal from a label.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := opts.commandContext(cmd)
			defer cancel()

			scan, err := scanFile(ctx, a, args[0])
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), scan)
			}
			return printScan(cmd.OutOrStdout(), scan)
		},
	}
}
