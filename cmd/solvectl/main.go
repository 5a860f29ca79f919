// Command solvectl drives the pool engine: it replays operation scenarios,
// serves a bootstrapped engine with health and metrics endpoints, and
// answers address, tick and quote questions.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/solve3fi/contracts/internal/platform/config"
)

// version is set at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "solvectl",
		Short:        "Concentrated liquidity pool engine",
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "", "override the configured log level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(),
		newServeCmd(),
		newQuoteCmd(),
		newAddressCmd(),
		newTickCmd(),
	)
	return root
}

// loadConfig reads the file named by --config and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Observability.Logging.Level = level
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
