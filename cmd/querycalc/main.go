// Command querycalc evaluates the fixed inequality-join query over three
// table files.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/querycalc/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
