package main

import (
	"os"

	"github.com/quantfoundry/foresight/cmd/foresight/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
