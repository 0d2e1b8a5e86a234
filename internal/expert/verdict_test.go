package expert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewloop/reviewloop/internal/models"
)

func expertTask() models.RiskItem {
	return models.RiskItem{
		RiskType:    models.RiskRobustness,
		FilePath:    "src/a.py",
		LineNumber:  models.LineRange{Start: 10, End: 15},
		Description: "candidate issue",
		Confidence:  0.6,
		Severity:    models.SeverityWarning,
	}
}

func TestParseVerdictWholeMessage(t *testing.T) {
	reply := `{
		"risk_type": "robustness_boundary_conditions",
		"file_path": "src/a.py",
		"line_number": [11, 12],
		"description": "confirmed off-by-one",
		"confidence": 0.85,
		"severity": "error",
		"suggestion": "use <= in the loop guard"
	}`

	v, err := ParseVerdict(reply, expertTask(), 100)
	require.NoError(t, err)
	assert.Equal(t, models.LineRange{Start: 11, End: 12}, v.LineNumber)
	assert.Equal(t, 0.85, v.Confidence)
	assert.Equal(t, models.SeverityError, v.Severity)
	require.NotNil(t, v.Suggestion)
	assert.Equal(t, "use <= in the loop guard", *v.Suggestion)
}

func TestParseVerdictFenced(t *testing.T) {
	reply := "After reviewing the evidence:\n```json\n" +
		`{"risk_type": "robustness_boundary_conditions", "file_path": "src/a.py", "line_number": 11, "description": "d", "confidence": 0.3, "severity": "info"}` +
		"\n```"
	v, err := ParseVerdict(reply, expertTask(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0.3, v.Confidence)
	assert.Equal(t, models.LineRange{Start: 11, End: 11}, v.LineNumber)
}

func TestParseVerdictPreservesAnchor(t *testing.T) {
	// the model drifts to another file and an unknown risk type
	reply := `{"risk_type": "something_new", "file_path": "wrong/file.py", "line_number": [11, 12], "description": "d", "confidence": 0.9, "severity": "warning"}`

	v, err := ParseVerdict(reply, expertTask(), 100)
	require.NoError(t, err)
	assert.Equal(t, "src/a.py", v.FilePath)
	assert.Equal(t, models.RiskRobustness, v.RiskType)
}

func TestParseVerdictClampsToFile(t *testing.T) {
	reply := `{"risk_type": "robustness_boundary_conditions", "file_path": "src/a.py", "line_number": [90, 500], "description": "d", "confidence": 0.9, "severity": "warning"}`

	v, err := ParseVerdict(reply, expertTask(), 100)
	require.NoError(t, err)
	assert.Equal(t, models.LineRange{Start: 90, End: 100}, v.LineNumber)

	// confidence outside [0, 1] clamps
	reply = `{"risk_type": "robustness_boundary_conditions", "line_number": 11, "description": "d", "confidence": 7, "severity": "warning"}`
	v, err = ParseVerdict(reply, expertTask(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Confidence)
}

func TestParseVerdictBadLineKeepsAnchor(t *testing.T) {
	reply := `{"risk_type": "robustness_boundary_conditions", "line_number": "somewhere", "description": "d", "confidence": 0.5, "severity": "warning"}`
	v, err := ParseVerdict(reply, expertTask(), 100)
	require.NoError(t, err)
	assert.Equal(t, models.LineRange{Start: 10, End: 15}, v.LineNumber)
}

func TestParseVerdictUnparseable(t *testing.T) {
	_, err := ParseVerdict("I need more information.", expertTask(), 100)
	assert.Error(t, err)
}

func TestZeroConfidenceVerdict(t *testing.T) {
	task := expertTask()
	sugg := "stale"
	task.Suggestion = &sugg

	v := ZeroConfidenceVerdict(task)
	assert.Zero(t, v.Confidence)
	assert.Nil(t, v.Suggestion)
	assert.Equal(t, task.FilePath, v.FilePath)
	assert.Equal(t, task.LineNumber, v.LineNumber)
}

func TestIsNoSignal(t *testing.T) {
	assert.True(t, IsNoSignal(`{"error": "Error invoking tool: unknown tool"}`))
	assert.True(t, IsNoSignal(`{"matches": [], "total": 0}`))
	assert.True(t, IsNoSignal(`{"error": "repo map unavailable"}`))
	assert.True(t, IsNoSignal(`{"error": "file does not exist"}`))

	assert.False(t, IsNoSignal(`{"matches": [{"file": "a.py", "line": 3}], "total": 1}`))
	assert.False(t, IsNoSignal(`{"lines": "10: x = compute()", "path": "a.py"}`))
}
