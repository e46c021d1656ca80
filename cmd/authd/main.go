// Command authd runs the authcore session service and its operator tasks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

type globalFlags struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "authd",
		Short:         "Refresh-token session service",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `authd issues short-lived access tokens and rotating refresh tokens,
detects refresh token reuse, and contains compromised accounts.`,
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file (skipped when missing)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "log format override (text, json)")

	cmd.AddCommand(
		serveCmd(g),
		migrateCmd(g),
		gcCmd(g),
		revokeUserCmd(g),
		loadtestCmd(),
		hashPasswordCmd(),
		versionCmd(),
	)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "authd version %s (build: %s)\n", version, buildTime)
		},
	}
}
