package main

import (
	"github.com/spf13/cobra"

	"github.com/reviewloop/reviewloop/internal/pipeline"
	"github.com/reviewloop/reviewloop/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server",
	Long: `Starts an HTTP server that accepts PR review requests on /review and
runs the pipeline against a local checkout. Configure server.addr and
server.webhook_secret in the config file.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		driver, err := pipeline.NewDriver(cfg)
		if err != nil {
			log.Fatalf("pipeline setup: %v", err)
		}
		if err := server.New(cfg, driver).ListenAndServe(); err != nil {
			log.Fatalf("server: %v", err)
		}
	},
}
