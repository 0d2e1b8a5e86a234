package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reviewloop/reviewloop/internal/lint"
	"github.com/reviewloop/reviewloop/internal/models"
	"github.com/reviewloop/reviewloop/internal/pipeline"
)

var (
	reviewRepo       string
	reviewBase       string
	reviewHead       string
	reviewLintReport string
	reviewCheckout   bool
	reviewJSON       bool
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Run a full review of base...head in a repository",
	Example: `  reviewloop review --repo . --base main --head feature/login
  reviewloop review --repo /src/app --base main --head pr-142 --lint-report lint.json --json`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		var lintErrors []models.LintError
		if reviewLintReport != "" {
			var err error
			lintErrors, err = lint.LoadReport(reviewLintReport)
			if err != nil {
				log.Fatalf("lint report: %v", err)
			}
			log.Infof("loaded %d lint finding(s)", len(lintErrors))
		}

		driver, err := pipeline.NewDriver(cfg)
		if err != nil {
			log.Fatalf("pipeline setup: %v", err)
		}

		state, err := driver.Run(context.Background(), pipeline.Request{
			RepoPath:   reviewRepo,
			BaseRef:    reviewBase,
			HeadRef:    reviewHead,
			LintErrors: lintErrors,
			Checkout:   reviewCheckout,
		})
		if err != nil {
			log.Fatalf("review: %v", err)
		}

		if reviewJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(state); err != nil {
				log.Fatalf("output: %v", err)
			}
			return
		}

		fmt.Println(state.FinalReport)
		if n := len(state.ConfirmedIssues); n > 0 {
			log.Infof("%d confirmed issue(s)", n)
		}
	},
}

func init() {
	reviewCmd.Flags().StringVar(&reviewRepo, "repo", ".", "path to the git repository")
	reviewCmd.Flags().StringVar(&reviewBase, "base", "", "base ref of the pull request")
	reviewCmd.Flags().StringVar(&reviewHead, "head", "", "head ref of the pull request")
	reviewCmd.Flags().StringVar(&reviewLintReport, "lint-report", "", "path to a JSON or YAML linter report")
	reviewCmd.Flags().BoolVar(&reviewCheckout, "checkout", false, "check out the head ref before reviewing")
	reviewCmd.Flags().BoolVar(&reviewJSON, "json", false, "emit the full run state as JSON")
	reviewCmd.MarkFlagRequired("base")
	reviewCmd.MarkFlagRequired("head")
}
