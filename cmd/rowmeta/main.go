// Package main is the entry point for the rowmeta binary.
package main

import (
	"os"

	"github.com/rowmeta/rowmeta/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
