package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lunaralarm/internal/config"
	appLog "lunaralarm/internal/log"
)

const version = "0.3.0"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "lunaralarm",
		Short:         "Lunar anniversary notifier",
		Long:          "Checks calendar feeds every day and sends reminders for anniversaries kept on the Korean lunar calendar",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/lunaralarm/config.yaml", "Config file path")

	rootCmd.AddCommand(serveCmd(), checkCmd(), convertCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and initializes logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	appLog.Init(appLog.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	return cfg, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "lunaralarm", version)
		},
	}
}
