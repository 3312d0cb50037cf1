package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/euforicio/blogmd/internal/exporter"
)

var exportOpts struct {
	format string
	out    string
}

var exportCmd = &cobra.Command{
	Use:   "export <post-id>",
	Short: "Export a single post",
	Long: `Export writes one post as html, markdown, txt or pdf. Output goes to
stdout unless --out names a file.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	names := make([]string, 0, 4)
	for _, f := range exporter.ValidFormats() {
		names = append(names, string(f))
	}
	exportCmd.Flags().StringVarP(&exportOpts.format, "format", "f", string(exporter.FormatHTML),
		"output format: "+strings.Join(names, ", "))
	exportCmd.Flags().StringVarP(&exportOpts.out, "out", "o", "", "write to this file instead of stdout")
}

func runExport(cmd *cobra.Command, args []string) (err error) {
	format, err := exporter.ParseFormat(exportOpts.format)
	if err != nil {
		return err
	}
	svc, err := newServices()
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if exportOpts.out != "" {
		f, createErr := os.Create(exportOpts.out)
		if createErr != nil {
			return fmt.Errorf("create %s: %w", exportOpts.out, createErr)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		w = f
	}

	return svc.exporter.ExportPost(cmd.Context(), args[0], format, w)
}
