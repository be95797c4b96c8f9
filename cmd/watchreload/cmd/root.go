package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/watchreload"
	"github.com/GoCodeAlone/watchreload/config"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// PrintVersion returns the version line.
func PrintVersion() string {
	return fmt.Sprintf("watchreload v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

// NewRootCommand creates the root command of the watchreload CLI
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watchreload",
		Short: "watchreload - live reload and hot module replacement",
		Long: `watchreload serves a directory and pushes changes to connected clients,
which hot swap changed modules, refresh stylesheets and images, or reload the page.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	cmd.PersistentFlags().StringP("config", "c", "", "Config file (yaml, toml or json). Defaults to watchreload.* in the working directory")
	cmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewClientCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), PrintVersion())
		},
	}
}

// loadConfig reads the config named by --config, or the one discovered in
// the working directory, and applies --log-level.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.Discover(".")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *watchreload.SlogLogger {
	return watchreload.NewSlogLogger(cmd.ErrOrStderr(), cfg.LogLevel)
}
