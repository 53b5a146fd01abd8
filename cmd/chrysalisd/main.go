// Package main is the single-binary entrypoint for the Lifespan
// Engine runtime.
package main

import "github.com/chrysalis-run/chrysalis/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
