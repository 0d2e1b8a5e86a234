// Package intent implements the map stage: one LLM call per changed file
// producing a FileAnalysis, with a chunked degraded mode for PRs too large
// to analyze file by file.
package intent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/reviewloop/reviewloop/internal/config"
	"github.com/reviewloop/reviewloop/internal/diffctx"
	"github.com/reviewloop/reviewloop/internal/llm"
	"github.com/reviewloop/reviewloop/internal/models"
	"github.com/reviewloop/reviewloop/internal/prompts"
)

const maxFileContentChars = 24000

// Analyzer runs the intent stage
type Analyzer struct {
	gateway llm.Gateway
	library *prompts.Library
	cfg     *config.Config
	sem     *semaphore.Weighted
	root    string
	logger  *slog.Logger
}

// New builds an analyzer. sem is the pipeline-wide LLM semaphore shared
// with the expert stage.
func New(gateway llm.Gateway, library *prompts.Library, cfg *config.Config, sem *semaphore.Weighted, root string) *Analyzer {
	return &Analyzer{
		gateway: gateway,
		library: library,
		cfg:     cfg,
		sem:     sem,
		root:    root,
		logger:  slog.Default().With("component", "intent"),
	}
}

// Analyze runs one LLM call per changed file under the shared semaphore.
// Per-file failures produce a diagnostic FileAnalysis, never an error; the
// result is sorted by file path.
func (a *Analyzer) Analyze(ctx context.Context, dc *diffctx.DiffContext, changedFiles []string) []models.FileAnalysis {
	results := make([]models.FileAnalysis, len(changedFiles))

	var wg sync.WaitGroup
	for i, path := range changedFiles {
		if ctx.Err() != nil {
			results[i] = failedAnalysis(path, fmt.Errorf("deadline exceeded before analysis"))
			continue
		}
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			results[i] = a.analyzeFile(ctx, dc, path)
		}(i, path)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool {
		return results[i].FilePath < results[j].FilePath
	})
	return results
}

func (a *Analyzer) analyzeFile(ctx context.Context, dc *diffctx.DiffContext, path string) models.FileAnalysis {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return failedAnalysis(path, fmt.Errorf("cancelled before analysis: %w", err))
	}
	defer a.sem.Release(1)

	fileDiff := diffctx.Truncate(dc.ExtractFileDiff(path), a.cfg.Chunk.MaxFileDiffChars)
	content := a.readFileContent(path)

	prompt, err := a.library.Render("intent_analysis", map[string]string{
		"file_path":    path,
		"file_diff":    fileDiff,
		"file_content": content,
	})
	if err != nil {
		return failedAnalysis(path, err)
	}

	reply, err := a.gateway.Invoke(ctx, []llm.Message{
		llm.SystemMessage("You are an expert code reviewer. Respond with JSON only."),
		llm.UserMessage(prompt),
	})
	if err != nil {
		a.logger.Warn("intent call failed", "file", path, "error", err)
		return failedAnalysis(path, err)
	}

	fa, err := ParseFileAnalysis(reply.Content, path)
	if err != nil {
		a.logger.Warn("intent parse failed", "file", path, "error", err)
		return failedAnalysis(path, err)
	}
	fa.FilePath = path // the anchor wins over whatever the model echoed
	return fa
}

func (a *Analyzer) readFileContent(path string) string {
	data, err := os.ReadFile(filepath.Join(a.root, filepath.FromSlash(path)))
	if err != nil {
		return "(file not readable in working tree)"
	}
	return diffctx.Truncate(string(data), maxFileContentChars)
}

// failedAnalysis is the per-file failure placeholder: empty risks plus a
// diagnostic summary, so a bad file never sinks the stage
func failedAnalysis(path string, err error) models.FileAnalysis {
	return models.FileAnalysis{
		FilePath:       path,
		IntentSummary:  fmt.Sprintf("analysis unavailable: %v", err),
		PotentialRisks: []models.RiskItem{},
	}
}
