package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewloop/reviewloop/internal/models"
)

func TestParseFileAnalysisStrict(t *testing.T) {
	reply := `{
		"file_path": "src/a.py",
		"intent_summary": "adds retry logic",
		"complexity_score": 40,
		"potential_risks": [
			{
				"risk_type": "robustness_boundary_conditions",
				"file_path": "src/a.py",
				"line_number": [10, 15],
				"description": "retry loop never gives up",
				"confidence": 0.7,
				"severity": "warning"
			}
		]
	}`

	fa, err := ParseFileAnalysis(reply, "src/a.py")
	require.NoError(t, err)
	assert.Equal(t, "src/a.py", fa.FilePath)
	assert.Equal(t, "adds retry logic", fa.IntentSummary)
	require.NotNil(t, fa.ComplexityScore)
	assert.Equal(t, 40.0, *fa.ComplexityScore)
	require.Len(t, fa.PotentialRisks, 1)
	assert.Equal(t, models.LineRange{Start: 10, End: 15}, fa.PotentialRisks[0].LineNumber)
}

func TestParseFileAnalysisFenced(t *testing.T) {
	reply := "Here is my analysis:\n```json\n" +
		`{"file_path": "src/a.py", "intent_summary": "x", "potential_risks": []}` +
		"\n```"
	fa, err := ParseFileAnalysis(reply, "src/a.py")
	require.NoError(t, err)
	assert.Equal(t, "x", fa.IntentSummary)
	assert.Empty(t, fa.PotentialRisks)
}

func TestParseFileAnalysisLenientFallback(t *testing.T) {
	// bare integer line number and unknown risk type force the lenient path
	reply := `The file looks risky. {"intent_summary": "refactor",
		"potential_risks": [
			{"risk_type": "made_up", "line_number": 7, "description": "d", "confidence": 0.5, "severity": "warning"},
			{"risk_type": "robustness_boundary_conditions", "line_number": "not a line", "description": "dropped", "confidence": 0.5, "severity": "info"}
		]}`

	fa, err := ParseFileAnalysis(reply, "src/a.py")
	require.NoError(t, err)
	assert.Equal(t, "src/a.py", fa.FilePath)
	require.Len(t, fa.PotentialRisks, 1)
	assert.Equal(t, models.RiskRobustness, fa.PotentialRisks[0].RiskType)
	assert.Equal(t, models.LineRange{Start: 7, End: 7}, fa.PotentialRisks[0].LineNumber)
}

func TestParseFileAnalysisUnparseable(t *testing.T) {
	_, err := ParseFileAnalysis("I cannot analyze this file.", "src/a.py")
	assert.Error(t, err)
}

func TestParseChunkedAnalyses(t *testing.T) {
	reply := `{"analyses": [
		{"file_path": "src/a.py", "intent_summary": "a", "potential_risks": []},
		{"file_path": "src/other.py", "intent_summary": "hallucinated", "potential_risks": []},
		{"file_path": "src/b.py", "intent_summary": "b", "potential_risks": [
			{"risk_type": "authorization_data_exposure", "line_number": [3, 3], "description": "d", "confidence": 0.8, "severity": "error"}
		]}
	]}`

	out, err := ParseChunkedAnalyses(reply, []string{"src/a.py", "src/b.py"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "src/a.py", out[0].FilePath)
	assert.Equal(t, "src/b.py", out[1].FilePath)
	assert.Len(t, out[1].PotentialRisks, 1)
}

func TestParseChunkedAnalysesAltKey(t *testing.T) {
	reply := `{"file_analyses": [{"file_path": "src/a.py", "intent_summary": "a", "potential_risks": []}]}`
	out, err := ParseChunkedAnalyses(reply, []string{"src/a.py"})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestParseChunkedAnalysesUnparseable(t *testing.T) {
	_, err := ParseChunkedAnalyses("nothing useful", []string{"src/a.py"})
	assert.Error(t, err)
}
