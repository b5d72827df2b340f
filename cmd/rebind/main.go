// Command rebind recompresses the images inside EPUB archives.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/inkfold-io/rebind/cli/cmd"
	"github.com/inkfold-io/rebind/types"
)

// commit is injected at build time via ldflags.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:    "rebind",
		Usage:   "EPUB image recompressor",
		Version: types.Version,
		Commands: []*cli.Command{
			cmd.CompressCommand(),
			cmd.InspectCommand(),
			cmd.VersionCommand(commit),
		},
		ExitErrHandler: func(_ *cli.Context, err error) {
			if err == nil {
				return
			}
			// Preserve explicit exit codes; everything else is a usage error.
			if exitErr, ok := err.(cli.ExitCoder); ok {
				if msg := exitErr.Error(); msg != "" {
					fmt.Fprintln(os.Stderr, msg)
				}
				os.Exit(exitErr.ExitCode())
			}
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
