// Package manager implements the deterministic reduce stage: it anchors
// candidate risks to changed lines, merges near-duplicates, budgets the
// survivors by weighted score, and partitions them into per-type expert
// tasks. No LLM calls happen here; the stage is a pure function of its
// inputs and is idempotent.
package manager

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/reviewloop/reviewloop/internal/config"
	"github.com/reviewloop/reviewloop/internal/diffctx"
	"github.com/reviewloop/reviewloop/internal/models"
)

// Output is the reduce result: the budgeted work list in scheduling order
// plus the same items partitioned by risk type
type Output struct {
	WorkList    []models.RiskItem
	ExpertTasks map[models.RiskType][]models.RiskItem
	// Dropped counts items removed per step, for run metadata
	DroppedUnanchored int
	MergedAway        int
	DroppedByBudget   int
}

// Manager runs the reduce stage
type Manager struct {
	cfg    config.ManagerConfig
	logger *slog.Logger
}

// New builds a manager with the given knobs
func New(cfg config.ManagerConfig) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: slog.Default().With("component", "manager"),
	}
}

// Reduce collects candidate risks from the intent stage and lint findings,
// then anchors, merges, budgets, and groups them
func (m *Manager) Reduce(analyses []models.FileAnalysis, lintErrors []models.LintError, dc *diffctx.DiffContext) Output {
	var candidates []models.RiskItem
	for _, fa := range analyses {
		candidates = append(candidates, fa.PotentialRisks...)
	}
	for _, le := range lintErrors {
		candidates = append(candidates, le.ToRiskItem())
	}

	out := Output{ExpertTasks: make(map[models.RiskType][]models.RiskItem)}

	anchored := m.anchorFilter(candidates, dc, &out)
	merged := m.mergeNearDuplicates(anchored, &out)
	budgeted := m.budget(merged, &out)

	out.WorkList = budgeted
	for _, item := range budgeted {
		out.ExpertTasks[item.RiskType] = append(out.ExpertTasks[item.RiskType], item)
	}

	m.logger.Info("work list built",
		"candidates", len(candidates),
		"dropped_unanchored", out.DroppedUnanchored,
		"merged_away", out.MergedAway,
		"dropped_by_budget", out.DroppedByBudget,
		"work_items", len(out.WorkList))
	return out
}

// anchorFilter keeps items near changed lines. Lint-derived syntax items
// bypass the filter; they are evidence-based already.
func (m *Manager) anchorFilter(items []models.RiskItem, dc *diffctx.DiffContext, out *Output) []models.RiskItem {
	kept := make([]models.RiskItem, 0, len(items))
	for _, item := range items {
		if item.Validate() != nil {
			continue
		}
		if item.RiskType == models.RiskSyntaxStatic {
			kept = append(kept, item)
			continue
		}
		changed := dc.ChangedLines(item.FilePath)
		if item.LineNumber.Intersects(changed, m.cfg.AnchorWindow) {
			kept = append(kept, item)
			continue
		}
		if m.cfg.DropUnanchored {
			out.DroppedUnanchored++
			continue
		}
		if item.Confidence > m.cfg.UnanchoredConfidence {
			item.Confidence = m.cfg.UnanchoredConfidence
		}
		kept = append(kept, item)
	}
	return kept
}

var tokenSplitRe = regexp.MustCompile(`[^a-z0-9]+`)

// descriptionTokens lowercases and splits a description into a token set
func descriptionTokens(desc string) map[string]bool {
	tokens := make(map[string]bool)
	for _, t := range tokenSplitRe.Split(strings.ToLower(desc), -1) {
		if t != "" {
			tokens[t] = true
		}
	}
	return tokens
}

// tokenJaccard is |A∩B| / |A∪B| over description token sets
func tokenJaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// rangeGap is the line distance between two ranges; 0 when they overlap
func rangeGap(a, b models.LineRange) int {
	if b.Start > a.End {
		return b.Start - a.End
	}
	if a.Start > b.End {
		return a.Start - b.End
	}
	return 0
}

// mergeCluster accumulates items that merged together
type mergeCluster struct {
	item   models.RiskItem
	tokens []map[string]bool
	descs  []string
}

// mergeNearDuplicates merges items within the same (file, type) whose line
// ranges are close and whose descriptions overlap. The merged item spans
// the union range, takes the max confidence and stronger severity, joins
// descriptions with blank lines, and clears the suggestion for the expert
// to re-emit.
func (m *Manager) mergeNearDuplicates(items []models.RiskItem, out *Output) []models.RiskItem {
	type groupKey struct {
		file string
		rt   models.RiskType
	}
	groups := make(map[groupKey][]models.RiskItem)
	var keyOrder []groupKey
	for _, item := range items {
		k := groupKey{item.FilePath, item.RiskType}
		if _, seen := groups[k]; !seen {
			keyOrder = append(keyOrder, k)
		}
		groups[k] = append(groups[k], item)
	}
	sort.Slice(keyOrder, func(i, j int) bool {
		if keyOrder[i].file != keyOrder[j].file {
			return keyOrder[i].file < keyOrder[j].file
		}
		return keyOrder[i].rt < keyOrder[j].rt
	})

	var merged []models.RiskItem
	for _, k := range keyOrder {
		group := groups[k]
		sort.Slice(group, func(i, j int) bool {
			if group[i].LineNumber.Start != group[j].LineNumber.Start {
				return group[i].LineNumber.Start < group[j].LineNumber.Start
			}
			if group[i].LineNumber.End != group[j].LineNumber.End {
				return group[i].LineNumber.End < group[j].LineNumber.End
			}
			return group[i].Description < group[j].Description
		})

		var clusters []*mergeCluster
		for _, item := range group {
			tokens := descriptionTokens(item.Description)
			var home *mergeCluster
			for _, c := range clusters {
				if rangeGap(c.item.LineNumber, item.LineNumber) > m.cfg.MergeLineWindow {
					continue
				}
				for _, ct := range c.tokens {
					if tokenJaccard(ct, tokens) >= m.cfg.MergeJaccard {
						home = c
						break
					}
				}
				if home != nil {
					break
				}
			}
			if home == nil {
				clusters = append(clusters, &mergeCluster{
					item:   item,
					tokens: []map[string]bool{tokens},
					descs:  []string{item.Description},
				})
				continue
			}

			out.MergedAway++
			if item.LineNumber.Start < home.item.LineNumber.Start {
				home.item.LineNumber.Start = item.LineNumber.Start
			}
			if item.LineNumber.End > home.item.LineNumber.End {
				home.item.LineNumber.End = item.LineNumber.End
			}
			if item.Confidence > home.item.Confidence {
				home.item.Confidence = item.Confidence
			}
			home.item.Severity = models.StrongerSeverity(home.item.Severity, item.Severity)
			home.tokens = append(home.tokens, tokens)
			if item.Description != "" && !containsString(home.descs, item.Description) {
				home.descs = append(home.descs, item.Description)
			}
		}

		for _, c := range clusters {
			c.item.Description = strings.Join(c.descs, "\n\n")
			if len(c.descs) > 1 {
				c.item.Suggestion = nil
			}
			merged = append(merged, c.item)
		}
	}
	return merged
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// score is the budgeting rank: confidence weighted by type and severity
func (m *Manager) score(item models.RiskItem) float64 {
	return item.Confidence * m.cfg.RiskTypeWeight(item.RiskType) * m.cfg.SeverityWeight(item.Severity)
}

// budget sorts by score and greedily keeps items under the total, per-file,
// and per-type caps. The returned order is the expert scheduling order.
func (m *Manager) budget(items []models.RiskItem, out *Output) []models.RiskItem {
	sort.SliceStable(items, func(i, j int) bool {
		si, sj := m.score(items[i]), m.score(items[j])
		if si != sj {
			return si > sj
		}
		if items[i].Severity.Rank() != items[j].Severity.Rank() {
			return items[i].Severity.Rank() > items[j].Severity.Rank()
		}
		if items[i].FilePath != items[j].FilePath {
			return items[i].FilePath < items[j].FilePath
		}
		return items[i].LineNumber.Start < items[j].LineNumber.Start
	})

	perFile := make(map[string]int)
	perType := make(map[models.RiskType]int)
	kept := make([]models.RiskItem, 0, len(items))
	for _, item := range items {
		if m.cfg.MaxWorkItemsTotal > 0 && len(kept) >= m.cfg.MaxWorkItemsTotal {
			out.DroppedByBudget++
			continue
		}
		if m.cfg.MaxItemsPerFile > 0 && perFile[item.FilePath] >= m.cfg.MaxItemsPerFile {
			out.DroppedByBudget++
			continue
		}
		if cap, ok := m.cfg.MaxItemsPerRiskType[item.RiskType]; ok && cap > 0 && perType[item.RiskType] >= cap {
			out.DroppedByBudget++
			continue
		}
		perFile[item.FilePath]++
		perType[item.RiskType]++
		kept = append(kept, item)
	}
	return kept
}
