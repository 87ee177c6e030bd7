// Package main provides the entry point for the docsweep batch converter CLI.
package main

import (
	"os"

	"github.com/jamesainslie/docsweep/pkg/docsweep/logging"
)

func main() {
	err := Execute()
	_ = logging.Close()
	if err != nil {
		os.Exit(1)
	}
}
