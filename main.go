package main

import (
	"os"

	"github.com/arach/fabric/cmd"
	"github.com/arach/fabric/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(errors.GetExitCode(err))
	}
}
