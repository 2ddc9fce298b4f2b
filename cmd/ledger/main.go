package main

import (
	"os"
	_ "time/tzdata"

	"ledger/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
