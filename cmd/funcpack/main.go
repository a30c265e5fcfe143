package main

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/fluxbase-eu/funcpack/cli/cmd"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if err := cmd.Execute(); err != nil {
		cmd.PrintError(err)
		os.Exit(1)
	}
}
