// Package main prints the syntax-highlighting stylesheet for a theme, the same
// one the server and builds publish as css/chroma-<theme>.css.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/euforicio/blogmd/internal/site"
	"github.com/euforicio/blogmd/internal/theme"
)

func main() {
	name := pflag.String("theme", theme.Default.String(), "theme to generate: light or dark")
	pflag.Parse()

	t, ok := theme.Parse(*name)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown theme %q\n", *name)
		os.Exit(2)
	}
	css, err := site.ChromaCSS(t)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating CSS: %v\n", err)
		os.Exit(1)
	}
	if _, err := os.Stdout.Write(css); err != nil {
		os.Exit(1)
	}
}
