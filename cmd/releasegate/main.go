package main

import (
	"os"

	"github.com/spf13/cobra"

	"releasegate/internal/config"
)

var configFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "releasegate",
		Short: "Publish a Python package when a tag is pushed",
		Long: `releasegate runs the release workflow for a tag push: checkout, Python
setup, poetry install, build and publish. Steps run in order and the
first failure stops the run.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(keygenCmd())
	return rootCmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	cfg.SetupLogging()
	return cfg, nil
}
