// Command tracked validates entity schemas and moves records between
// schema-typed entities and a record store.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/tracked/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// ExitErrors were already reported through the output formatter.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
