package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/warrenhq/warren/cmd/warren/commands"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Local development convenience; tokens usually live in .env. A missing
	// file is fine.
	_ = godotenv.Load()

	// Set version information on root command
	commands.SetVersionInfo(version, commit, date)

	// Execute root command
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
