// Package main is the entry point for the workdir command-line tool.
package main

import (
	"os"

	"github.com/Norgate-AV/workdir/cmd"
)

func main() {
	if err := cmd.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
