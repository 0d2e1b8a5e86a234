// Package expert implements the bounded tool-calling validation loop run
// for each work-list item: the model investigates one candidate risk with
// read-only tools under round, tool-call, and no-signal budgets, and must
// finish with a JSON verdict. Budget breaches route through a forced
// finalize call over an evidence digest; nothing in this package lets a
// task run unbounded.
package expert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/reviewloop/reviewloop/internal/config"
	"github.com/reviewloop/reviewloop/internal/diffctx"
	"github.com/reviewloop/reviewloop/internal/llm"
	"github.com/reviewloop/reviewloop/internal/models"
	"github.com/reviewloop/reviewloop/internal/prompts"
	"github.com/reviewloop/reviewloop/internal/tools"
)

const verdictContract = `When you are done investigating, respond with exactly one JSON object and nothing else:

{
  "risk_type": "<one of the known risk types>",
  "file_path": "<the file under review>",
  "line_number": [start, end],
  "description": "<what is wrong, citing the evidence you gathered>",
  "confidence": <0.0 to 1.0, your belief this is a real issue>,
  "severity": "error" | "warning" | "info",
  "suggestion": "<optional concrete fix>"
}

A confidence near 0.0 means the candidate is a false positive.`

// Runtime executes expert validation loops
type Runtime struct {
	gateway llm.Gateway
	toolbox *tools.Toolbox
	library *prompts.Library
	cfg     *config.Config
	sem     *semaphore.Weighted
	root    string
	logger  *slog.Logger
}

// New builds a runtime. sem is the pipeline-wide LLM semaphore.
func New(gateway llm.Gateway, toolbox *tools.Toolbox, library *prompts.Library, cfg *config.Config, sem *semaphore.Weighted, root string) *Runtime {
	return &Runtime{
		gateway: gateway,
		toolbox: toolbox,
		library: library,
		cfg:     cfg,
		sem:     sem,
		root:    root,
		logger:  slog.Default().With("component", "expert"),
	}
}

// RunAll validates every work-list item. Tasks are scheduled in work-list
// order and share the semaphore, so at most max_concurrent_llm_requests
// loops run at once. Tasks aborted by transport errors or cancellation
// contribute no verdict.
func (r *Runtime) RunAll(ctx context.Context, workList []models.RiskItem, dc *diffctx.DiffContext, diff string) map[models.RiskType][]models.RiskItem {
	results := make(map[models.RiskType][]models.RiskItem)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, item := range workList {
		if ctx.Err() != nil {
			break // deadline: stop enqueuing work
		}
		wg.Add(1)
		go func(item models.RiskItem) {
			defer wg.Done()
			if err := r.sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer r.sem.Release(1)

			verdict, ok := r.runTask(ctx, item, dc, diff)
			if !ok {
				return
			}
			mu.Lock()
			results[verdict.RiskType] = append(results[verdict.RiskType], verdict)
			mu.Unlock()
		}(item)
	}
	wg.Wait()
	return results
}

// runTask executes one bounded loop. The returned bool is false when the
// task aborted without a verdict.
func (r *Runtime) runTask(ctx context.Context, task models.RiskItem, dc *diffctx.DiffContext, diff string) (models.RiskItem, bool) {
	logger := r.logger.With("file", task.FilePath, "risk_type", task.RiskType, "lines", task.LineNumber.String())

	content, lineCount := r.readFile(task.FilePath)
	systemMsg, err := r.buildSystemMessage(task, content, dc, diff)
	if err != nil {
		logger.Error("failed to build expert prompt", "error", err)
		return ZeroConfidenceVerdict(task), true
	}

	history := []llm.Message{
		llm.SystemMessage(systemMsg),
		llm.UserMessage("Analyze the candidate issue above. You may call the available tools to gather evidence. Produce the final JSON verdict when ready."),
	}

	toolsEnabled := r.cfg.System.MaxExpertToolCalls > 0
	gw := r.gateway
	if toolsEnabled {
		gw = r.gateway.WithTools(r.toolbox.Definitions())
	}

	for {
		round := countRole(history, llm.RoleAssistant) + 1
		if round > r.cfg.System.MaxExpertRounds {
			logger.Info("round circuit breaker", "round", round)
			return r.forcedFinalize(ctx, task, history, lineCount, "round budget exhausted"), true
		}

		toolMsgs := countRole(history, llm.RoleTool)
		if toolsEnabled && toolMsgs >= r.cfg.System.MaxExpertToolCalls {
			logger.Info("tool budget stop", "tool_calls", toolMsgs)
			return r.forcedFinalize(ctx, task, history, lineCount, "tool budget exhausted"), true
		}
		if streak := r.noSignalCount(history); streak >= r.cfg.Expert.MaxConsecutiveNoSignalTools {
			logger.Info("no-signal stop", "no_signal", streak)
			return r.forcedFinalize(ctx, task, history, lineCount, "tools stopped yielding signal"), true
		}

		view := Shrink(history, r.cfg.Expert)
		reply, err := gw.Invoke(ctx, view)
		if err != nil {
			// transport errors in the main loop abort the task
			logger.Warn("expert call failed, aborting task", "round", round, "error", err)
			return models.RiskItem{}, false
		}
		history = append(history, reply)

		if len(reply.ToolCalls) == 0 {
			verdict, err := ParseVerdict(reply.Content, task, lineCount)
			if err == nil {
				return verdict, true
			}
			logger.Debug("unparseable assistant turn", "round", round, "error", err)
			history = append(history, llm.UserMessage("Respond with the final JSON verdict only, in the exact format from the instructions."))
			continue
		}

		for _, call := range reply.ToolCalls {
			result := r.toolbox.Execute(ctx, call)
			history = append(history, llm.ToolMessage(call.ID, call.Name, result))
		}
	}
}

// forcedFinalize is the shared circuit-breaker path: one tool-less call
// over the evidence digest, falling back to a zero-confidence verdict
func (r *Runtime) forcedFinalize(ctx context.Context, task models.RiskItem, history []llm.Message, lineCount int, reason string) models.RiskItem {
	digest := BuildDigest(history, r.cfg.Expert)

	var sys strings.Builder
	sys.WriteString("You must now conclude the review of one candidate issue. No more tool calls are available (")
	sys.WriteString(reason)
	sys.WriteString("). Decide from the evidence gathered so far.\n\n")
	fmt.Fprintf(&sys, "Candidate issue:\n- risk_type: %s\n- file: %s\n- lines: %s\n- description: %s\n\n",
		task.RiskType, task.FilePath, task.LineNumber.String(), task.Description)
	if digest != "" {
		sys.WriteString("Evidence gathered:\n")
		sys.WriteString(digest)
		sys.WriteString("\n\n")
	}
	sys.WriteString(verdictContract)

	reply, err := r.gateway.Invoke(ctx, []llm.Message{
		llm.SystemMessage(sys.String()),
		llm.UserMessage("Output the final JSON verdict now."),
	})
	if err != nil {
		r.logger.Warn("finalize call failed", "file", task.FilePath, "error", err)
		return ZeroConfidenceVerdict(task)
	}

	verdict, err := ParseVerdict(reply.Content, task, lineCount)
	if err != nil {
		r.logger.Warn("finalize parse failed", "file", task.FilePath, "error", err)
		return ZeroConfidenceVerdict(task)
	}
	return verdict
}

// buildSystemMessage renders the per-type template and appends the file
// window, diff excerpt, and output contract
func (r *Runtime) buildSystemMessage(task models.RiskItem, content string, dc *diffctx.DiffContext, diff string) (string, error) {
	tmplName := r.library.ExpertTemplateName(task.RiskType)
	rendered, err := r.library.Render(tmplName, map[string]string{
		"file_path":        task.FilePath,
		"line_range":       task.LineNumber.String(),
		"risk_description": task.Description,
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(rendered)
	b.WriteString("\n\n")

	if content != "" {
		window := diffctx.WindowRange(content, task.LineNumber.Start, task.LineNumber.End, r.cfg.Expert.FileWindowRadius)
		if window != "" {
			fmt.Fprintf(&b, "## File content around lines %s (absolute line numbers)\n\n```\n%s```\n\n", task.LineNumber.String(), window)
		}
	}

	excerpt := dc.ExtractFileDiff(task.FilePath)
	if excerpt == "" {
		excerpt = diff
	}
	if excerpt != "" {
		fmt.Fprintf(&b, "## PR diff excerpt\n\n```\n%s\n```\n\n", diffctx.Truncate(excerpt, r.cfg.Expert.DiffExcerptChars))
	}

	b.WriteString("## Output contract\n\n")
	b.WriteString(verdictContract)
	return b.String(), nil
}

func (r *Runtime) readFile(path string) (string, int) {
	data, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(path)))
	if err != nil {
		return "", 0
	}
	content := string(data)
	return content, diffctx.LineCount(content)
}

func countRole(messages []llm.Message, role llm.Role) int {
	n := 0
	for _, m := range messages {
		if m.Role == role {
			n++
		}
	}
	return n
}

// noSignalCount counts no-signal results among the trailing window of tool
// messages
func (r *Runtime) noSignalCount(history []llm.Message) int {
	window := r.cfg.Expert.NoSignalWindow
	seen := 0
	noSignal := 0
	for i := len(history) - 1; i >= 0 && seen < window; i-- {
		if history[i].Role != llm.RoleTool {
			continue
		}
		seen++
		if IsNoSignal(history[i].Content) {
			noSignal++
		}
	}
	return noSignal
}
