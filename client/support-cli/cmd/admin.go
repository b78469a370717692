package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative commands (requires an admin token)",
}

var adminOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "List every open case and whether it is being monitored",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var out struct {
			Cases []supportCase `json:"cases"`
			Count int           `json:"count"`
		}
		if err := newClient().do(http.MethodGet, "/api/v1/admin/cases/open", nil, &out, nil); err != nil {
			return err
		}
		printCases(cmd.OutOrStdout(), out.Cases, true)
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d open case(s)\n", out.Count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminOpenCmd)
}
