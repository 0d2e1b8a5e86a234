package expert

import (
	"fmt"
	"strings"

	"github.com/reviewloop/reviewloop/internal/jsonx"
	"github.com/reviewloop/reviewloop/internal/models"
)

// verdictWire tolerates loose model output before tightening
type verdictWire struct {
	RiskType    string  `json:"risk_type"`
	FilePath    string  `json:"file_path"`
	LineNumber  any     `json:"line_number"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	Severity    string  `json:"severity"`
	Suggestion  *string `json:"suggestion"`
}

// ParseVerdict extracts the final JSON verdict from model text. Attempts,
// in order: whole-message parse after stripping fences, the first balanced
// object mentioning risk_type or file_path, then the first fenced JSON
// block. The result preserves the task anchor: file_path always equals the
// task's, unknown risk types fall back to the task's, and line numbers may
// only narrow within the file.
func ParseVerdict(text string, task models.RiskItem, fileLineCount int) (models.RiskItem, error) {
	stripped := jsonx.StripFences(text)

	var w verdictWire
	if err := jsonx.Decode(stripped, &w); err == nil && (w.RiskType != "" || w.FilePath != "" || w.Description != "") {
		return tighten(w, task, fileLineCount), nil
	}

	for _, candidate := range jsonx.BalancedObjects(text) {
		if !strings.Contains(candidate, "risk_type") && !strings.Contains(candidate, "file_path") {
			continue
		}
		if err := jsonx.Decode(candidate, &w); err == nil {
			return tighten(w, task, fileLineCount), nil
		}
	}

	for _, block := range jsonx.FencedBlocks(text) {
		if err := jsonx.Decode(block, &w); err == nil && (w.RiskType != "" || w.FilePath != "" || w.Description != "") {
			return tighten(w, task, fileLineCount), nil
		}
	}

	return models.RiskItem{}, fmt.Errorf("no parseable verdict in response")
}

// tighten converts a wire verdict into a RiskItem anchored to the task
func tighten(w verdictWire, task models.RiskItem, fileLineCount int) models.RiskItem {
	verdict := task // identity fields start from the anchor

	rt := models.RiskType(strings.TrimSpace(w.RiskType))
	if rt.IsValid() {
		verdict.RiskType = rt
	}

	if line, err := models.NormalizeLineRange(w.LineNumber); err == nil {
		if fileLineCount > 0 && line.End > fileLineCount {
			line.End = fileLineCount
			if line.Start > line.End {
				line.Start = line.End
			}
		}
		verdict.LineNumber = line
	}

	if desc := strings.TrimSpace(w.Description); desc != "" {
		verdict.Description = desc
	}

	conf := w.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	verdict.Confidence = conf

	if w.Severity != "" {
		verdict.Severity = models.ParseSeverity(w.Severity)
	}
	verdict.Suggestion = w.Suggestion

	return verdict
}

// ZeroConfidenceVerdict is the last-resort verdict when finalization fails:
// the task anchor with confidence zero
func ZeroConfidenceVerdict(task models.RiskItem) models.RiskItem {
	verdict := task
	verdict.Confidence = 0
	verdict.Suggestion = nil
	return verdict
}

// IsNoSignal classifies a tool result that carries no actionable
// information: errored, empty, or index-unavailable responses
func IsNoSignal(content string) bool {
	if strings.Contains(content, "Error invoking tool") {
		return true
	}
	if strings.Contains(content, `"matches": []`) || strings.Contains(content, `"matches":[]`) {
		return true
	}
	if strings.Contains(content, `"total": 0`) || strings.Contains(content, `"total":0`) {
		return true
	}
	if strings.Contains(content, "unavailable") {
		return true
	}
	var probe struct {
		Error *string `json:"error"`
	}
	if err := jsonx.Decode(jsonx.StripFences(content), &probe); err == nil {
		if probe.Error != nil && *probe.Error != "" {
			return true
		}
	}
	return false
}
