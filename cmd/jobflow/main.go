package main

import (
	"os"

	"github.com/jobflow/jobflow/cmd/jobflow/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
