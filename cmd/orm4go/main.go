// Package main provides the orm4go command for inspecting table metadata and records.
package main

import (
	"os"

	"github.com/ammar0144/orm4go/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
