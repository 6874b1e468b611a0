// Command redisgatewayctl runs and exercises the Redis gateway transport:
// serve a service's request queue, fire a one-shot call at it, or check
// that its backend is reachable.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relaygate/transport/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "redisgatewayctl",
	Short: "Redis gateway transport CLI",
	Long: `redisgatewayctl drives the Redis gateway transport: run a service's
Server Transport loop, fire a one-shot request through the Client
Transport, or check that the configured backend is reachable.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}

		loaded, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML)")
	rootCmd.AddCommand(serveCmd, callCmd, doctorCmd)
}
