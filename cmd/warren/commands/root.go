package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string

	// configPath is shared by all subcommands.
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "warren",
	Short: "Warren - workflow coordination for autonomous development agents",
	Long: `Warren coordinates a pipeline of autonomous development agents over a
shared issue tracker: requirements analysis, frontend and backend code
generation, and QA review.

All durable workflow state lives in the tracker's labels; agents exchange
coordination events over Redis so humans can watch the pipeline in real
time.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "warren.yml", "Path to the configuration file")
}
