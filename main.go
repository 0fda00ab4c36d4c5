package main

import (
	"github.com/cdanielmachado/smetana/cmd"
)

// main is the entry point for the smetana CLI.
func main() {
	// The root command handles all command-line parsing, configuration,
	// and execution.
	cmd.Execute()
}
