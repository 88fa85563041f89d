package main

import (
	"fmt"
	"os"

	"github.com/idohaver7/PatrolVision/internal/cli"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	cli.Version = version
	cli.BuildTime = buildTime

	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
