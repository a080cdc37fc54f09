package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bridge-autosave",
	Short: "Edit WordPress settings screens with debounced autosave",
	Long: `bridge-autosave signs into a WordPress dashboard, loads a settings form and
saves every change in the background, the way the Elodin Bridge settings
screen does in the browser.

Credentials come from the config file, a .env file beside it, or the
BRIDGE_SITE, BRIDGE_USER and BRIDGE_PASSWORD environment variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(setCmd)

	rootCmd.PersistentFlags().StringP("config", "c", "", "configuration file (YAML)")
	rootCmd.PersistentFlags().String("log-level", "", "console log level: none|normal|debug (overrides the config)")
	rootCmd.PersistentFlags().String("color", "", "colorize status output: auto|always|never (overrides the config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
