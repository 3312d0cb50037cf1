package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/euforicio/blogmd/internal/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	// skip config loading so version works outside a blog directory
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), buildinfo.Summary())
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
