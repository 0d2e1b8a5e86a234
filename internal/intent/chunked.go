package intent

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/reviewloop/reviewloop/internal/diffctx"
	"github.com/reviewloop/reviewloop/internal/llm"
	"github.com/reviewloop/reviewloop/internal/models"
)

// Chunked intent mode: when a PR is too large for per-file calls, files are
// scored, grouped by their first two path segments, packed into diff-only
// chunks, and only the top-K chunks are analyzed under a wall-clock budget.

var apiHitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\+\s*(?:def|class)\s+\w+`),
	regexp.MustCompile(`(?m)^\+\s*(?:func|type)\s+\w+`),
	regexp.MustCompile(`(?m)^\+\s*(?:public|protected)\s+\w+`),
	regexp.MustCompile(`(?m)^\+\s*export\s+(?:function|class|const|interface)`),
	regexp.MustCompile(`(?m)^\+\s*(?:interface|trait)\s+\w+`),
}

var dangerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)password|secret|token|api[_-]?key`),
	regexp.MustCompile(`(?i)md5|sha1\b`),
	regexp.MustCompile(`subprocess|os\.system|exec\.Command`),
	regexp.MustCompile(`(?i)select\s.+\sfrom\s|insert\s+into\s`),
	regexp.MustCompile(`yaml\.load\(|unserialize\(`),
	regexp.MustCompile(`http://`),
}

var strongDangerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\beval\(`),
	regexp.MustCompile(`\bexec\(`),
	regexp.MustCompile(`os\.system\(`),
	regexp.MustCompile(`pickle\.loads\(`),
	regexp.MustCompile(`shell\s*=\s*True`),
	regexp.MustCompile(`(?i)drop\s+table`),
	regexp.MustCompile(`rm\s+-rf\s+/`),
}

// fileScore carries the chunking inputs for one changed file
type fileScore struct {
	Path         string
	Score        float64
	StrongDanger bool
	Diff         string
}

// scoreFile computes the selection score from the file's diff segment.
// Only added lines feed the pattern counters.
func (a *Analyzer) scoreFile(dc *diffctx.DiffContext, path string) fileScore {
	fileDiff := dc.ExtractFileDiff(path)
	changedLines := len(dc.ChangedLines(path))

	var added strings.Builder
	for _, line := range strings.Split(fileDiff, "\n") {
		if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++") {
			added.WriteString(line)
			added.WriteByte('\n')
		}
	}
	addedText := added.String()

	apiHits := countHits(apiHitPatterns, addedText)
	dangerHits := countHits(dangerPatterns, addedText)
	strongDanger := countHits(strongDangerPatterns, addedText) > 0

	score := 2*math.Log1p(float64(changedLines)) +
		0.6*math.Min(6, float64(apiHits)) +
		0.9*math.Min(6, float64(dangerHits))
	if strongDanger {
		score += 4
	}
	score *= fileTypeWeight(path)

	return fileScore{Path: path, Score: score, StrongDanger: strongDanger, Diff: fileDiff}
}

func countHits(patterns []*regexp.Regexp, text string) int {
	total := 0
	for _, re := range patterns {
		total += len(re.FindAllStringIndex(text, -1))
	}
	return total
}

// fileTypeWeight discounts files whose issues matter less in review
func fileTypeWeight(path string) float64 {
	lower := strings.ToLower(path)
	base := lower[strings.LastIndex(lower, "/")+1:]
	switch {
	case strings.Contains(base, "_test.") || strings.HasPrefix(base, "test_") ||
		strings.Contains(lower, "/tests/") || strings.Contains(lower, "/test/"):
		return 0.4
	case strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".rst") ||
		strings.Contains(lower, "/docs/"):
		return 0.2
	case strings.HasSuffix(lower, ".json") || strings.HasSuffix(lower, ".yaml") ||
		strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".toml") ||
		strings.HasSuffix(lower, ".ini") || strings.HasSuffix(lower, ".cfg"):
		return 0.6
	default:
		return 1.0
	}
}

// groupKey is the first two path segments, the chunking locality unit
func groupKey(path string) string {
	parts := strings.SplitN(path, "/", 3)
	if len(parts) <= 2 {
		return parts[0]
	}
	return parts[0] + "/" + parts[1]
}

// Chunk is one packed unit of chunked analysis
type Chunk struct {
	Key          string
	Files        []string
	Diff         string
	Score        float64
	StrongDanger bool
}

// buildChunks scores, groups, and packs the changed files into chunks.
// The result order is deterministic: groups by key, members by score.
func (a *Analyzer) buildChunks(dc *diffctx.DiffContext, changedFiles []string) []Chunk {
	maxChars := a.cfg.Chunk.MaxChunkChars

	groups := make(map[string][]fileScore)
	for _, path := range changedFiles {
		fs := a.scoreFile(dc, path)
		groups[groupKey(path)] = append(groups[groupKey(path)], fs)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var chunks []Chunk
	for _, key := range keys {
		members := groups[key]
		sort.Slice(members, func(i, j int) bool {
			if members[i].Score != members[j].Score {
				return members[i].Score > members[j].Score
			}
			return members[i].Path < members[j].Path
		})

		current := Chunk{Key: key}
		flush := func() {
			if len(current.Files) > 0 {
				chunks = append(chunks, current)
			}
			current = Chunk{Key: key}
		}
		for _, m := range members {
			if len(m.Diff) > maxChars {
				// a single oversized file becomes its own truncated chunk
				flush()
				chunks = append(chunks, Chunk{
					Key:          key,
					Files:        []string{m.Path},
					Diff:         diffctx.Truncate(m.Diff, maxChars),
					Score:        m.Score,
					StrongDanger: m.StrongDanger,
				})
				continue
			}
			if len(current.Diff)+len(m.Diff) > maxChars && len(current.Files) > 0 {
				flush()
			}
			current.Files = append(current.Files, m.Path)
			current.Diff += m.Diff
			current.Score += m.Score
			current.StrongDanger = current.StrongDanger || m.StrongDanger
		}
		flush()
	}
	return chunks
}

// selectTopK applies the Top-K policy: below the disable threshold all
// chunks run; otherwise strong-danger chunks are must-include and the
// remaining slots go to the highest scores. An optional sentinel adds one
// deterministic extra chunk as a blind-spot probe.
func (a *Analyzer) selectTopK(chunks []Chunk) []Chunk {
	cc := a.cfg.Chunk
	n := len(chunks)
	if n < cc.TopKDisableBelow {
		return chunks
	}

	k := int(math.Ceil(float64(n) * cc.TopKRatio))
	if k < cc.TopKMin {
		k = cc.TopKMin
	}
	if k > cc.TopKMax {
		k = cc.TopKMax
	}
	if k > n {
		k = n
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(x, y int) bool {
		ci, cj := chunks[order[x]], chunks[order[y]]
		if ci.Score != cj.Score {
			return ci.Score > cj.Score
		}
		return ci.Key < cj.Key
	})

	selected := make(map[int]bool)
	for i, c := range chunks {
		if c.StrongDanger {
			selected[i] = true
		}
	}
	for _, idx := range order {
		if len(selected) >= k {
			break
		}
		selected[idx] = true
	}

	if cc.SentinelSample > 0 && len(selected) < n {
		// deterministic sentinel: the first unselected chunk in key order
		best := -1
		for i := range chunks {
			if selected[i] {
				continue
			}
			if best == -1 || chunks[i].Key < chunks[best].Key {
				best = i
			}
		}
		if best >= 0 {
			selected[best] = true
		}
	}

	out := make([]Chunk, 0, len(selected))
	for i, c := range chunks {
		if selected[i] {
			out = append(out, c)
		}
	}
	return out
}

// AnalyzeChunked is the degraded map stage for oversized PRs
func (a *Analyzer) AnalyzeChunked(ctx context.Context, dc *diffctx.DiffContext, changedFiles []string) []models.FileAnalysis {
	chunks := a.buildChunks(dc, changedFiles)
	selected := a.selectTopK(chunks)
	a.logger.Info("chunked intent mode",
		"files", len(changedFiles), "chunks", len(chunks), "selected", len(selected))

	budget := time.Duration(math.Max(30, float64(a.cfg.System.TimeoutSeconds)*a.cfg.Chunk.BudgetRatio)) * time.Second
	softMargin := time.Duration(a.cfg.Chunk.SoftMarginSeconds) * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		// leave soft_margin_seconds of global budget for later stages
		if usable := time.Until(deadline) - softMargin; usable < budget {
			budget = usable
		}
	}
	if budget <= 0 {
		a.logger.Warn("no budget left for chunked analysis")
		return nil
	}
	chunkCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	results := make([][]models.FileAnalysis, len(selected))
	var wg sync.WaitGroup
	for i, chunk := range selected {
		wg.Add(1)
		go func(i int, chunk Chunk) {
			defer wg.Done()
			results[i] = a.analyzeChunk(chunkCtx, chunk)
		}(i, chunk)
	}
	wg.Wait()

	var merged []models.FileAnalysis
	for _, group := range results {
		merged = append(merged, group...)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].FilePath < merged[j].FilePath
	})
	return merged
}

// analyzeChunk runs one chunk call. Any failure skips the chunk; chunked
// mode is best effort by construction.
func (a *Analyzer) analyzeChunk(ctx context.Context, chunk Chunk) []models.FileAnalysis {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		a.logger.Debug("chunk cancelled", "key", chunk.Key, "error", err)
		return nil
	}
	defer a.sem.Release(1)

	prompt, err := a.library.Render("intent_analysis_chunked", map[string]string{
		"chunk_files": "- " + strings.Join(chunk.Files, "\n- "),
		"chunk_diff":  chunk.Diff,
	})
	if err != nil {
		a.logger.Warn("chunk prompt failed", "key", chunk.Key, "error", err)
		return nil
	}

	reply, err := a.gateway.Invoke(ctx, []llm.Message{
		llm.SystemMessage("You are an expert code reviewer. Respond with JSON only."),
		llm.UserMessage(prompt),
	})
	if err != nil {
		a.logger.Warn("chunk call failed", "key", chunk.Key, "error", err)
		return nil
	}

	analyses, err := ParseChunkedAnalyses(reply.Content, chunk.Files)
	if err != nil {
		a.logger.Warn("chunk parse failed", "key", chunk.Key, "error", err)
		return nil
	}
	return analyses
}

// ShouldChunk is the driver's activation rule for chunked mode
func ShouldChunk(fileCount, totalDiffChars, fileThreshold, charThreshold int) bool {
	return fileCount > fileThreshold || totalDiffChars > charThreshold
}
