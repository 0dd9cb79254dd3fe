// Package main provides the entry point for the chathub server and client.
package main

import (
	"fmt"
	"os"

	"github.com/MikeSquared-Agency/chathub/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
