package intent

import (
	"fmt"
	"strings"

	"github.com/reviewloop/reviewloop/internal/jsonx"
	"github.com/reviewloop/reviewloop/internal/models"
)

// Wire shapes tolerate the loose typing of model output; conversion
// tightens them into models types.

type riskWire struct {
	RiskType    string  `json:"risk_type"`
	FilePath    string  `json:"file_path"`
	LineNumber  any     `json:"line_number"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	Severity    string  `json:"severity"`
	Suggestion  *string `json:"suggestion"`
}

type analysisWire struct {
	FilePath        string     `json:"file_path"`
	IntentSummary   string     `json:"intent_summary"`
	ComplexityScore *float64   `json:"complexity_score"`
	PotentialRisks  []riskWire `json:"potential_risks"`
}

type chunkedWire struct {
	Analyses     []analysisWire `json:"analyses"`
	FileAnalyses []analysisWire `json:"file_analyses"`
}

// convertRisk tightens one wire risk. In strict mode the line number must
// be a two-element array and the risk type a known enum value; in lenient
// mode single integers and strings normalize and unknown types coerce.
func convertRisk(w riskWire, defaultPath string, strict bool) (models.RiskItem, error) {
	var rt models.RiskType
	if strict {
		rt = models.RiskType(strings.TrimSpace(w.RiskType))
		if !rt.IsValid() {
			return models.RiskItem{}, fmt.Errorf("unknown risk_type %q", w.RiskType)
		}
	} else {
		rt = models.ParseRiskType(w.RiskType)
	}

	var line models.LineRange
	var err error
	if strict {
		arr, ok := w.LineNumber.([]any)
		if !ok || len(arr) != 2 {
			return models.RiskItem{}, fmt.Errorf("line_number must be a [start, end] array, got %v", w.LineNumber)
		}
		line, err = models.NormalizeLineRange(arr)
	} else {
		line, err = models.NormalizeLineRange(w.LineNumber)
	}
	if err != nil {
		return models.RiskItem{}, err
	}

	path := strings.TrimSpace(w.FilePath)
	if path == "" {
		path = defaultPath
	}
	if path == "" {
		return models.RiskItem{}, fmt.Errorf("risk has no file_path")
	}

	conf := w.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	item := models.RiskItem{
		RiskType:    rt,
		FilePath:    path,
		LineNumber:  line,
		Description: strings.TrimSpace(w.Description),
		Confidence:  conf,
		Severity:    models.ParseSeverity(w.Severity),
		Suggestion:  w.Suggestion,
	}
	if err := item.Validate(); err != nil {
		return models.RiskItem{}, err
	}
	return item, nil
}

func convertAnalysis(w analysisWire, defaultPath string, strict bool) (models.FileAnalysis, error) {
	path := strings.TrimSpace(w.FilePath)
	if path == "" {
		path = defaultPath
	}
	if path == "" {
		return models.FileAnalysis{}, fmt.Errorf("analysis has no file_path")
	}

	fa := models.FileAnalysis{
		FilePath:        path,
		IntentSummary:   strings.TrimSpace(w.IntentSummary),
		ComplexityScore: w.ComplexityScore,
		PotentialRisks:  []models.RiskItem{},
	}
	for _, rw := range w.PotentialRisks {
		item, err := convertRisk(rw, path, strict)
		if err != nil {
			if strict {
				return models.FileAnalysis{}, err
			}
			continue // lenient mode drops unrecoverable risks
		}
		fa.PotentialRisks = append(fa.PotentialRisks, item)
	}
	return fa, nil
}

// ParseFileAnalysis parses a per-file model response. Strict whole-message
// parsing runs first; on failure a best-effort pass extracts the first
// balanced JSON object and applies lenient normalization.
func ParseFileAnalysis(text, filePath string) (models.FileAnalysis, error) {
	stripped := jsonx.StripFences(text)

	var w analysisWire
	if err := jsonx.Decode(stripped, &w); err == nil {
		if fa, err := convertAnalysis(w, filePath, true); err == nil {
			return fa, nil
		}
	}

	for _, candidate := range jsonx.BalancedObjects(text) {
		var lw analysisWire
		if err := jsonx.Decode(candidate, &lw); err != nil {
			continue
		}
		if lw.IntentSummary == "" && len(lw.PotentialRisks) == 0 {
			continue
		}
		if fa, err := convertAnalysis(lw, filePath, false); err == nil {
			return fa, nil
		}
	}

	return models.FileAnalysis{}, fmt.Errorf("no parseable file analysis in response")
}

// ParseChunkedAnalyses parses a chunked-mode response and keeps only
// analyses for the chunk's declared files
func ParseChunkedAnalyses(text string, declaredFiles []string) ([]models.FileAnalysis, error) {
	declared := make(map[string]bool, len(declaredFiles))
	for _, f := range declaredFiles {
		declared[f] = true
	}

	stripped := jsonx.StripFences(text)
	var w chunkedWire
	if err := jsonx.Decode(stripped, &w); err != nil {
		parsed := false
		for _, candidate := range jsonx.BalancedObjects(text) {
			if err := jsonx.Decode(candidate, &w); err == nil && (len(w.Analyses) > 0 || len(w.FileAnalyses) > 0) {
				parsed = true
				break
			}
		}
		if !parsed {
			return nil, fmt.Errorf("no parseable chunk analyses in response")
		}
	}

	wires := w.Analyses
	if len(wires) == 0 {
		wires = w.FileAnalyses
	}

	var out []models.FileAnalysis
	for _, aw := range wires {
		fa, err := convertAnalysis(aw, "", false)
		if err != nil {
			continue
		}
		if !declared[fa.FilePath] {
			continue // the model wandered outside the chunk
		}
		out = append(out, fa)
	}
	return out, nil
}
