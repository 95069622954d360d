package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"sheetdash/internal/app"
)

var queryUser string

var queryCmd = &cobra.Command{
	Use:     "query <question>",
	Short:   "Answer one question against the sheet",
	Example: `  sheetdash query "compare orders yesterday vs today"`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.QueryOptions{
			Text: strings.Join(args, " "),
			User: queryUser,
		}
		return getApp().Query(cmd.Context(), opts)
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryUser, "user", "", "User recorded in the query log (defaults to cli)")
}
