// Command reprotrace merges execution traces of repeated runs and rebuilds
// their call graphs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/reprotrace/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}
