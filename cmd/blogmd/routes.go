package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/euforicio/blogmd/internal/site"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "List the pages a build would generate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, err := newServices()
		if err != nil {
			return err
		}
		routes, err := site.Routes(cmd.Context(), svc.repo)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PATH\tOUTPUT\tPAGE")
		for _, r := range routes {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Path, r.Output, r.Kind)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(routesCmd)
}
