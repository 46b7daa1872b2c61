// Package main provides the structon command line tool.
package main

import (
	"os"

	"github.com/leapstack-labs/structon/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
