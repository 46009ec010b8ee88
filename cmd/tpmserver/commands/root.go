// Package commands implements the tpmserver command line.
package commands

import (
	"github.com/spf13/cobra"
)

var configPath string

// rootCmd is the tpmserver root command.
var rootCmd = &cobra.Command{
	Use:   "tpmserver",
	Short: "QWICS transaction processing monitor",
	Long: `tpmserver executes preprocessed business programs on behalf of remote
clients: it loads program artifacts, runs them as tasks, and mediates their
transactional side effects against the relational store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the command line.
func Execute() error {
	return rootCmd.Execute()
}
