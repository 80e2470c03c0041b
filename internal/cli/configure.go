package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/HackAi2025-Paws/paws-wpp-sub000/internal/config"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write a starter configuration file",
	Long: `Write a configuration file with default values to edit by hand.
An existing file is left untouched unless --force is given.`,
	RunE: runConfigure,
}

var configureForce bool

func init() {
	configureCmd.Flags().BoolVar(&configureForce, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	path := loader.GetConfigPath()
	if path == "" {
		return fmt.Errorf("failed to determine config path")
	}

	if _, err := os.Stat(path); err == nil && !configureForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	if err := loader.Save(config.DefaultConfig()); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote starter config to %s\n", path)
	fmt.Fprintln(cmd.OutOrStdout(), "Fill in whatsapp and model credentials before running serve.")
	return nil
}
