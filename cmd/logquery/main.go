// Package main is the entry point for the log query service.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("Service failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "logquery",
		Short:         "Read-only query service for persisted log records",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: ./config.yaml if present)")

	root.AddCommand(serveCmd())
	root.AddCommand(queryCmd())
	return root
}
