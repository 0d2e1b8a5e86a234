// Package models defines the entities exchanged between review pipeline
// stages: risk items, per-file analyses, lint errors, and expert verdicts.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// RiskType categorizes a code-review risk
type RiskType string

const (
	RiskSyntaxStatic  RiskType = "syntax_static_errors"
	RiskRobustness    RiskType = "robustness_boundary_conditions"
	RiskConcurrency   RiskType = "concurrency_timing_correctness"
	RiskAuthorization RiskType = "authorization_data_exposure"
	RiskIntent        RiskType = "intent_semantic_consistency"
	RiskLifecycle     RiskType = "lifecycle_state_consistency"
)

// AllRiskTypes lists every known risk type in canonical order
var AllRiskTypes = []RiskType{
	RiskSyntaxStatic,
	RiskRobustness,
	RiskConcurrency,
	RiskAuthorization,
	RiskIntent,
	RiskLifecycle,
}

// IsValid reports whether t is a known risk type
func (t RiskType) IsValid() bool {
	for _, known := range AllRiskTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseRiskType maps a string to a known risk type.
// Unknown values coerce to RiskRobustness so a sloppy model response
// still lands in a reviewable bucket instead of failing the item.
func ParseRiskType(s string) RiskType {
	t := RiskType(strings.TrimSpace(s))
	if t.IsValid() {
		return t
	}
	return RiskRobustness
}

// Severity is the issue severity level
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Rank orders severities for comparison: error > warning > info
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// ParseSeverity maps a string to a severity, defaulting to warning
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityError:
		return SeverityError
	case SeverityInfo:
		return SeverityInfo
	default:
		return SeverityWarning
	}
}

// StrongerSeverity returns the higher-ranked of two severities
func StrongerSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// LineRange is an inclusive 1-indexed line range [start, end].
// It serializes as a two-element JSON array.
type LineRange struct {
	Start int
	End   int
}

// NewLineRange builds a validated line range
func NewLineRange(start, end int) (LineRange, error) {
	if start < 1 {
		return LineRange{}, fmt.Errorf("line range start must be >= 1, got %d", start)
	}
	if start > end {
		return LineRange{}, fmt.Errorf("line range start (%d) must be <= end (%d)", start, end)
	}
	return LineRange{Start: start, End: end}, nil
}

// NormalizeLineRange accepts the shapes models emit for line numbers and
// converts them to a canonical [start, end] range:
//
//	42        -> [42, 42]
//	"42"      -> [42, 42]
//	[42]      -> [42, 42]
//	[40, 45]  -> [40, 45]
//
// Anything else is rejected.
func NormalizeLineRange(v any) (LineRange, error) {
	switch x := v.(type) {
	case nil:
		return LineRange{}, fmt.Errorf("line_number is missing")
	case float64:
		return NewLineRange(int(x), int(x))
	case int:
		return NewLineRange(x, x)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return LineRange{}, fmt.Errorf("line_number %q is not numeric", x)
		}
		return NewLineRange(n, n)
	case []any:
		switch len(x) {
		case 1:
			return NormalizeLineRange(x[0])
		case 2:
			start, err := toInt(x[0])
			if err != nil {
				return LineRange{}, err
			}
			end, err := toInt(x[1])
			if err != nil {
				return LineRange{}, err
			}
			return NewLineRange(start, end)
		default:
			return LineRange{}, fmt.Errorf("line_number must have 1 or 2 elements, got %d", len(x))
		}
	default:
		return LineRange{}, fmt.Errorf("line_number has unsupported type %T", v)
	}
}

func toInt(v any) (int, error) {
	switch x := v.(type) {
	case float64:
		return int(x), nil
	case int:
		return x, nil
	case string:
		return strconv.Atoi(strings.TrimSpace(x))
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

// MarshalJSON renders the range as [start, end]
func (r LineRange) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{r.Start, r.End})
}

// UnmarshalJSON accepts strictly a two-element array [start, end] with
// 1 <= start <= end. Single integers are rejected by contract; use
// NormalizeLineRange for lenient model-output parsing.
func (r *LineRange) UnmarshalJSON(data []byte) error {
	var arr []json.Number
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("line_number must be a [start, end] array: %w", err)
	}
	if len(arr) != 2 {
		return fmt.Errorf("line_number must have exactly 2 elements, got %d", len(arr))
	}
	start, err := arr[0].Int64()
	if err != nil {
		return fmt.Errorf("line_number start: %w", err)
	}
	end, err := arr[1].Int64()
	if err != nil {
		return fmt.Errorf("line_number end: %w", err)
	}
	rng, err := NewLineRange(int(start), int(end))
	if err != nil {
		return err
	}
	*r = rng
	return nil
}

// String formats as "10" for single lines or "10:15" for ranges
func (r LineRange) String() string {
	if r.Start == r.End {
		return strconv.Itoa(r.Start)
	}
	return fmt.Sprintf("%d:%d", r.Start, r.End)
}

// Intersects reports whether [Start-window, End+window] touches any line in
// lines. Iterates the set rather than the range; lenient parsing accepts
// ranges spanning millions of lines.
func (r LineRange) Intersects(lines map[int]bool, window int) bool {
	lo := r.Start - window
	hi := r.End + window
	for n := range lines {
		if n >= lo && n <= hi {
			return true
		}
	}
	return false
}

// RiskItem is a single candidate or confirmed code-review issue
type RiskItem struct {
	RiskType    RiskType  `json:"risk_type"`
	FilePath    string    `json:"file_path"`
	LineNumber  LineRange `json:"line_number"`
	Description string    `json:"description"`
	Confidence  float64   `json:"confidence"`
	Severity    Severity  `json:"severity"`
	Suggestion  *string   `json:"suggestion,omitempty"`
}

// Validate checks the structural invariants every stage relies on
func (ri *RiskItem) Validate() error {
	if !ri.RiskType.IsValid() {
		return fmt.Errorf("unknown risk_type %q", ri.RiskType)
	}
	if ri.FilePath == "" {
		return fmt.Errorf("file_path is empty")
	}
	if ri.LineNumber.Start < 1 || ri.LineNumber.Start > ri.LineNumber.End {
		return fmt.Errorf("invalid line_number [%d, %d]", ri.LineNumber.Start, ri.LineNumber.End)
	}
	if ri.Confidence < 0 || ri.Confidence > 1 {
		return fmt.Errorf("confidence %.3f out of [0, 1]", ri.Confidence)
	}
	return nil
}

// DescriptionHash is a stable short hash used for deterministic ordering
func (ri *RiskItem) DescriptionHash() string {
	sum := sha256.Sum256([]byte(ri.Description))
	return hex.EncodeToString(sum[:8])
}

// FileAnalysis is the intent stage's output for one changed file
type FileAnalysis struct {
	FilePath        string     `json:"file_path"`
	IntentSummary   string     `json:"intent_summary"`
	PotentialRisks  []RiskItem `json:"potential_risks"`
	ComplexityScore *float64   `json:"complexity_score,omitempty"`
}

// LintError is one finding from an external syntax/static checker
type LintError struct {
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
}

// ToRiskItem converts a lint finding into a syntax_static_errors risk item.
// Linter findings are already evidence-based, so they enter the work list
// with a fixed 0.8 confidence and bypass the manager's anchor filter.
func (le *LintError) ToRiskItem() RiskItem {
	line := le.Line
	if line < 1 {
		line = 1
	}
	return RiskItem{
		RiskType:    RiskSyntaxStatic,
		FilePath:    le.File,
		LineNumber:  LineRange{Start: line, End: line},
		Description: le.Message,
		Confidence:  0.8,
		Severity:    ParseSeverity(string(le.Severity)),
	}
}
