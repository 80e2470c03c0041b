// Package cli implements the pawsd command line interface.
package cli

import (
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pawsd",
	Short: "Paws - WhatsApp veterinary assistant",
	Long: `Paws is a WhatsApp assistant for pet owners: it keeps pet records,
consultation history and vaccine cards, and finds nearby veterinary
clinics, driven by a tool-calling conversation loop.`,
	Version: version,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.paws/paws.json)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}
