package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile  string
	debugFlag   bool
	verboseFlag bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "emrchat",
	Short: "Conversational assistant over FHIR clinical records",
	Long: `Answer clinicians' natural-language questions about patients.

emrchat serves a chat API backed by an LLM. The model decides which record
lookups to make; each lookup runs as a tool call in a worker that queries the
FHIR record server and returns normalized records.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_ = HandleCommandError(err, os.Stderr)
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ./emrchat.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug mode")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log debug output to the console")
}
