// Package cmd implements the CLI commands for framewire.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/framewire/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// rootCmd represents the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:     "framewire",
	Short:   "Reactor-driven V4L2 capture, streaming and recording daemon",
	Version: version.Short(),
	Long: `framewire captures video from a V4L2 device, runs it through a
single-threaded typed pipeline and serves the result over HTTP as
MPEG-TS or MJPEG, with on-demand MPEG-TS file recording driven by a
command endpoint.`,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	// These flags are NOT bound to viper. Overrides are applied only
	// when Changed(), preserving flag > env > config > default order.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./framewire.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}
