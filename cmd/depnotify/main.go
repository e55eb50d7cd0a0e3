package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/depnotify/internal/cli"
)

// Version information set at build time.
var version = "dev"

func main() {
	cmd := cli.NewRootCommand()
	cmd.Version = version
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	if err := cmd.Execute(); err != nil {
		// Commands that already reported in the requested format return a
		// bare ExitError; anything else still needs printing.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
