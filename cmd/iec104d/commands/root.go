// Package commands implements the iec104d CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/iec104d/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	configDir string
	envName   string
)

var rootCmd = &cobra.Command{
	Use:   "iec104d",
	Short: "IEC 60870-5-104 transport framing server",
	Long: `iec104d accepts IEC 60870-5-104 connections over TCP, delimits each
byte stream into APDUs and forwards the classified frames to the configured
sinks (log, NATS, Redis).

Configuration is read from <config-dir>/default.yaml, overlaid with
<config-dir>/<env>.yaml when present, then with APP_* environment variables
(for example APP_SERVER_PORT=2405).

Use "iec104d [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", config.DefaultDir, "directory holding default.yaml and <env>.yaml")
	rootCmd.PersistentFlags().StringVar(&envName, "env", "", "environment overlay to load (default: $APP_ENV or development)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(clientCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads the layered configuration selected by the global flags.
func loadConfig() (*config.Config, error) {
	return config.Load(configDir, envName)
}
