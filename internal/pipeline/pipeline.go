// Package pipeline wires the four review stages together. The Driver owns
// RunState and the global deadline; stages receive immutable inputs and
// return new collections, and the Reporter always runs, even on partial
// results.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/reviewloop/reviewloop/internal/assets"
	"github.com/reviewloop/reviewloop/internal/config"
	"github.com/reviewloop/reviewloop/internal/diffctx"
	"github.com/reviewloop/reviewloop/internal/expert"
	"github.com/reviewloop/reviewloop/internal/git"
	"github.com/reviewloop/reviewloop/internal/intent"
	"github.com/reviewloop/reviewloop/internal/llm"
	"github.com/reviewloop/reviewloop/internal/manager"
	"github.com/reviewloop/reviewloop/internal/models"
	"github.com/reviewloop/reviewloop/internal/pathfilter"
	"github.com/reviewloop/reviewloop/internal/prompts"
	"github.com/reviewloop/reviewloop/internal/reporter"
	"github.com/reviewloop/reviewloop/internal/tools"
)

// Request is one review run's input
type Request struct {
	RepoPath   string
	BaseRef    string
	HeadRef    string
	LintErrors []models.LintError
	// Checkout controls whether the working tree is switched to HeadRef
	// before tools run. Disable for trees already positioned by the caller.
	Checkout bool
}

// RunState is the driver-owned state record. Stage outputs are immutable
// replacements; Metadata collects mode flags, timings, and counters.
type RunState struct {
	Diff            string                                 `json:"-"`
	ChangedFiles    []string                               `json:"changed_files"`
	FileAnalyses    []models.FileAnalysis                  `json:"file_analyses"`
	WorkList        []models.RiskItem                      `json:"work_list"`
	ExpertTasks     map[models.RiskType][]models.RiskItem  `json:"expert_tasks"`
	ExpertResults   map[models.RiskType][]models.RiskItem  `json:"expert_results"`
	ConfirmedIssues []models.RiskItem                      `json:"confirmed_issues"`
	FinalReport     string                                 `json:"final_report"`
	LintErrors      []models.LintError                     `json:"lint_errors"`
	Metadata        map[string]any                         `json:"metadata"`
}

// Driver assembles the stages and runs the static graph
// intent -> manager -> (experts | reporter) -> reporter
type Driver struct {
	cfg     *config.Config
	gateway llm.Gateway
	library *prompts.Library
	logger  *slog.Logger
}

// NewDriver builds a driver from configuration
func NewDriver(cfg *config.Config) (*Driver, error) {
	gateway, err := llm.New(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to build llm gateway: %w", err)
	}
	return NewDriverWithGateway(cfg, gateway), nil
}

// NewDriverWithGateway injects a gateway directly; tests use this
func NewDriverWithGateway(cfg *config.Config, gateway llm.Gateway) *Driver {
	return &Driver{
		cfg:     cfg,
		gateway: gateway,
		library: prompts.NewLibrary(cfg.PromptsDir),
		logger:  slog.Default().With("component", "pipeline"),
	}
}

// Run executes the full review. Input errors (bad repo, unknown refs)
// return before any stage starts; once stages begin, failures degrade into
// the state record instead of aborting.
func (d *Driver) Run(ctx context.Context, req Request) (*RunState, error) {
	started := time.Now()

	repo, err := git.Open(req.RepoPath)
	if err != nil {
		return nil, err
	}
	if _, err := repo.ResolveRef(ctx, req.BaseRef); err != nil {
		return nil, err
	}
	if _, err := repo.ResolveRef(ctx, req.HeadRef); err != nil {
		return nil, err
	}
	if req.Checkout {
		if err := repo.Checkout(ctx, req.HeadRef); err != nil {
			return nil, err
		}
	}

	diff, err := repo.Diff(ctx, req.BaseRef, req.HeadRef)
	if err != nil {
		return nil, err
	}
	dc, err := diffctx.Parse(diff)
	if err != nil {
		return nil, fmt.Errorf("failed to parse diff: %w", err)
	}

	changedFiles := pathfilter.Filter(dc.ChangedPaths(), d.cfg.PathFilter)

	state := &RunState{
		Diff:          diff,
		ChangedFiles:  changedFiles,
		ExpertTasks:   map[models.RiskType][]models.RiskItem{},
		ExpertResults: map[models.RiskType][]models.RiskItem{},
		LintErrors:    req.LintErrors,
		Metadata:      map[string]any{},
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.System.Timeout())
	defer cancel()

	sem := semaphore.NewWeighted(int64(d.cfg.System.MaxConcurrentLLMRequests))

	store, err := assets.Open(d.cfg.Assets)
	if err != nil {
		d.logger.Warn("asset store unavailable, fetch_repo_map disabled", "error", err)
		store = nil
	} else {
		defer store.Close()
	}
	toolbox := tools.New(req.RepoPath, store)

	// stage 1: intent
	analyzer := intent.New(d.gateway, d.library, d.cfg, sem, req.RepoPath)
	chunked := intent.ShouldChunk(len(changedFiles), dc.TotalChars(),
		d.cfg.Chunk.FileCountThreshold, d.cfg.Chunk.TotalDiffCharsThreshold)
	state.Metadata["intent_mode"] = "per_file"
	if chunked {
		state.Metadata["intent_mode"] = "chunked"
		state.FileAnalyses = analyzer.AnalyzeChunked(ctx, dc, changedFiles)
	} else {
		state.FileAnalyses = analyzer.Analyze(ctx, dc, changedFiles)
	}
	state.Metadata["intent_elapsed_ms"] = time.Since(started).Milliseconds()

	// stage 2: manager (deterministic)
	mgr := manager.New(d.cfg.Manager)
	reduced := mgr.Reduce(state.FileAnalyses, state.LintErrors, dc)
	state.WorkList = reduced.WorkList
	state.ExpertTasks = reduced.ExpertTasks
	state.Metadata["work_items"] = len(reduced.WorkList)
	state.Metadata["dropped_unanchored"] = reduced.DroppedUnanchored
	state.Metadata["merged_away"] = reduced.MergedAway
	state.Metadata["dropped_by_budget"] = reduced.DroppedByBudget

	// stage 3: experts, skipped when the work list is empty
	if len(state.WorkList) > 0 {
		runtime := expert.New(d.gateway, toolbox, d.library, d.cfg, sem, req.RepoPath)
		state.ExpertResults = runtime.RunAll(ctx, state.WorkList, dc, diff)
	}
	state.Metadata["expert_verdicts"] = countVerdicts(state.ExpertResults)

	// stage 4: reporter, always runs
	rep := reporter.New(d.gateway, d.library, d.cfg.Reporter)
	state.ConfirmedIssues, state.FinalReport = rep.Report(ctx, state.ExpertResults)

	state.Metadata["confirmed_issues"] = len(state.ConfirmedIssues)
	state.Metadata["elapsed_ms"] = time.Since(started).Milliseconds()
	state.Metadata["deadline_exceeded"] = ctx.Err() != nil

	d.logger.Info("review complete",
		"files", len(changedFiles),
		"work_items", len(state.WorkList),
		"confirmed", len(state.ConfirmedIssues),
		"elapsed", time.Since(started).Round(time.Millisecond))
	return state, nil
}

func countVerdicts(results map[models.RiskType][]models.RiskItem) int {
	n := 0
	for _, v := range results {
		n += len(v)
	}
	return n
}
