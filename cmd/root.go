package main

import (
	"github.com/spf13/cobra"

	"studentauth/internal/config"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the studentauth CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "studentauth",
		Short: "Student account and credential service",
		Long: `studentauth registers student accounts, verifies their email addresses,
issues bearer tokens on login and runs the OTP password reset flow.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewIndexesCmd())

	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(configFile, cmd.Flags(), envFile)
}
