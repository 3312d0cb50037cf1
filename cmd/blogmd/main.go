// Package main provides the blogmd command line: static builds, the preview
// server and single-post exports.
package main

func main() {
	Execute()
}
