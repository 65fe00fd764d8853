package main

import (
	"fmt"
	"os"

	"github.com/kbforge-labs/kbforge-cli/internal/adapters/driving/cli"
)

func main() {
	cleanup, err := cli.Bootstrap()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kbforge: %v\n", err)
		os.Exit(1)
	}

	err = cli.Execute()
	cleanup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
