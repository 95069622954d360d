package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"sheetdash/internal/app"
)

var (
	dataLimit   int
	dataMetrics []string
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Print the newest rows of the sheet",
	RunE: func(cmd *cobra.Command, args []string) error {
		if dataLimit < 0 {
			return fmt.Errorf("--limit must not be negative")
		}

		opts := app.DataOptions{
			Limit:   dataLimit,
			Metrics: dataMetrics,
		}
		return getApp().Data(cmd.Context(), opts)
	},
}

func init() {
	dataCmd.Flags().IntVar(&dataLimit, "limit", 14, "Number of rows to display (0 for all)")
	dataCmd.Flags().StringSliceVar(&dataMetrics, "metric", nil, "Metric columns to display (repeatable)")
}
