// Command harpi runs and inspects HAPCAN rule configurations.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/harpi/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "harpi: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
