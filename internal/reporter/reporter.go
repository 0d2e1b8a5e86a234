// Package reporter implements the final stage: confidence-threshold
// filtering of expert verdicts and Markdown report rendering via one LLM
// call with a deterministic fallback formatter.
package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/reviewloop/reviewloop/internal/config"
	"github.com/reviewloop/reviewloop/internal/llm"
	"github.com/reviewloop/reviewloop/internal/models"
	"github.com/reviewloop/reviewloop/internal/prompts"
)

// NoIssuesReport is the deterministic text emitted when nothing survives
// the confidence gate
const NoIssuesReport = "No issues found. Code review completed successfully."

// Reporter runs the reporting stage
type Reporter struct {
	gateway llm.Gateway
	library *prompts.Library
	cfg     config.ReporterConfig
	logger  *slog.Logger
}

// New builds a reporter
func New(gateway llm.Gateway, library *prompts.Library, cfg config.ReporterConfig) *Reporter {
	return &Reporter{
		gateway: gateway,
		library: library,
		cfg:     cfg,
		logger:  slog.Default().With("component", "reporter"),
	}
}

// Report filters expert verdicts by per-type confidence thresholds and
// renders the final Markdown report. It returns the confirmed issues in
// canonical order and the report text. The LLM render is best effort; the
// deterministic formatter covers every failure.
func (r *Reporter) Report(ctx context.Context, expertResults map[models.RiskType][]models.RiskItem) ([]models.RiskItem, string) {
	confirmed := r.filter(expertResults)
	if len(confirmed) == 0 {
		return []models.RiskItem{}, NoIssuesReport
	}

	report, err := r.renderLLM(ctx, confirmed)
	if err != nil {
		r.logger.Warn("llm report render failed, using fallback", "error", err)
		report = RenderFallback(confirmed)
	}
	return confirmed, report
}

// filter flattens and gates the verdicts, then sorts them canonically:
// severity rank descending, then file path, line start, description hash
func (r *Reporter) filter(expertResults map[models.RiskType][]models.RiskItem) []models.RiskItem {
	var confirmed []models.RiskItem
	for rt, verdicts := range expertResults {
		threshold := r.cfg.ThresholdFor(rt)
		for _, v := range verdicts {
			if v.Confidence >= threshold {
				confirmed = append(confirmed, v)
			}
		}
	}

	sort.Slice(confirmed, func(i, j int) bool {
		a, b := confirmed[i], confirmed[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.LineNumber.Start != b.LineNumber.Start {
			return a.LineNumber.Start < b.LineNumber.Start
		}
		return a.DescriptionHash() < b.DescriptionHash()
	})
	return confirmed
}

func (r *Reporter) renderLLM(ctx context.Context, issues []models.RiskItem) (string, error) {
	issuesJSON, err := json.MarshalIndent(issues, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode issues: %w", err)
	}

	prompt, err := r.library.Render("reporter", map[string]string{
		"issues_json": string(issuesJSON),
	})
	if err != nil {
		return "", err
	}

	reply, err := r.gateway.Invoke(ctx, []llm.Message{
		llm.SystemMessage("You are a precise technical writer for code-review reports."),
		llm.UserMessage(prompt),
	})
	if err != nil {
		return "", err
	}
	report := strings.TrimSpace(reply.Content)
	if report == "" {
		return "", fmt.Errorf("empty report from model")
	}
	return report, nil
}

// RenderFallback is the deterministic Markdown formatter: issues grouped
// by severity, then by file
func RenderFallback(issues []models.RiskItem) string {
	var b strings.Builder
	b.WriteString("# Code Review Report\n\n")
	fmt.Fprintf(&b, "%d issue(s) found.\n", len(issues))

	for _, sev := range []models.Severity{models.SeverityError, models.SeverityWarning, models.SeverityInfo} {
		var group []models.RiskItem
		for _, issue := range issues {
			if issue.Severity == sev {
				group = append(group, issue)
			}
		}
		if len(group) == 0 {
			continue
		}

		fmt.Fprintf(&b, "\n## %s\n", strings.ToUpper(string(sev)))
		currentFile := ""
		for _, issue := range group {
			if issue.FilePath != currentFile {
				currentFile = issue.FilePath
				fmt.Fprintf(&b, "\n### %s\n\n", currentFile)
			}
			fmt.Fprintf(&b, "- **Lines %s** (%s): %s\n",
				issue.LineNumber.String(), issue.RiskType, strings.ReplaceAll(issue.Description, "\n\n", " "))
			if issue.Suggestion != nil && *issue.Suggestion != "" {
				fmt.Fprintf(&b, "  - Suggestion: %s\n", *issue.Suggestion)
			}
		}
	}
	return b.String()
}
