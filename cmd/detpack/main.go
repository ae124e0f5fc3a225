package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/turbokube/detpack/pkg/failure"
)

// main only delegates to the root cobra command defined in root.go
func main() {
	cmd, err := rootCmd.ExecuteC()
	if err != nil {
		if errors.Is(err, failure.ErrUsage) {
			fmt.Fprint(os.Stderr, cmd.UsageString())
		}
		os.Exit(1)
	}
}
