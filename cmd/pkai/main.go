package main

import (
	"os"

	"pkai/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(cli.Report(os.Stderr, err))
	}
}
