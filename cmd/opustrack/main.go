package main // Entry point package

import (
	"os"

	"github.com/opustrack/opustrack/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
