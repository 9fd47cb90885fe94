package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/godilite/surveydash/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard over HTTP and gRPC",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		return application.Run(cmd.Context())
	},
}
