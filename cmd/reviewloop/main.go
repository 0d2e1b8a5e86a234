package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/reviewloop/reviewloop/internal/config"
	"github.com/reviewloop/reviewloop/internal/logging"
)

var (
	cfgFile string
	verbose bool

	log = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "reviewloop",
	Short: "LLM-driven pull request review",
	Long: `reviewloop reviews a pull request against a repository and produces a
ranked list of confirmed code-quality issues plus a Markdown report.

Candidate risks come from per-file intent analysis and external linters;
each survivor is validated by an expert LLM loop with read-only tool
access to the working tree before anything reaches the report.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		}
		if err := logging.Initialize(logging.DefaultConfig(verbose)); err != nil {
			log.Warnf("file logging disabled: %v", err)
		}
	},
}

func loadConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	return cfg
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./reviewloop.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(assetsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
