// Command paneldiff detects structural change in configurable panels and
// reconciles rendered output against stored session data.
package main

import (
	"fmt"
	"os"

	"github.com/paneldiff/paneldiff/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
