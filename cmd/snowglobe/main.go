// Command snowglobe is the warehouse metadata manager CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/snowglobe/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
