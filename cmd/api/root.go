package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command. Running it without a subcommand
// starts the server.
func NewRootCmd() *cobra.Command {
	serve := NewServeCmd()

	cmd := &cobra.Command{
		Use:   "sessionauth",
		Short: "Username/password accounts with cookie sessions",
		Long: `sessionauth serves user registration, login, logout and session
lookup over GraphQL and JSON, backed by PostgreSQL or MySQL.`,
		RunE:         serve.RunE,
		SilenceUsage: true,
	}

	cmd.AddCommand(serve)
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
