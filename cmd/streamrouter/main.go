package main

import (
	"os"

	"github.com/solatis/streamrouter/cmd/streamrouter/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
