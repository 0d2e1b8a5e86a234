package lint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewloop/reviewloop/internal/models"
)

func TestParseReportJSONArray(t *testing.T) {
	data := `[
		{"file": "src/a.py", "line": 3, "message": "undefined name 'foo'", "severity": "error", "code": "E0602"},
		{"file": "src/b.py", "line": 0, "message": "unused import", "severity": "bogus"}
	]`

	findings, err := ParseReport([]byte(data))
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, "E0602", findings[0].Code)
	// line 0 normalizes to 1, unknown severity to warning
	assert.Equal(t, 1, findings[1].Line)
	assert.Equal(t, models.SeverityWarning, findings[1].Severity)
}

func TestParseReportYAMLEnvelope(t *testing.T) {
	data := `
errors:
  - file: src/a.py
    line: 12
    message: "syntax error"
    severity: error
`
	findings, err := ParseReport([]byte(data))
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "src/a.py", findings[0].File)
	assert.Equal(t, 12, findings[0].Line)
}

func TestParseReportDropsIncomplete(t *testing.T) {
	data := `[
		{"file": "", "line": 1, "message": "no file"},
		{"file": "src/a.py", "line": 1, "message": ""}
	]`
	findings, err := ParseReport([]byte(data))
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestParseReportEmpty(t *testing.T) {
	findings, err := ParseReport([]byte("   \n"))
	require.NoError(t, err)
	assert.Nil(t, findings)
}

func TestParseReportGarbage(t *testing.T) {
	_, err := ParseReport([]byte("{{{ not a report"))
	assert.Error(t, err)
}

func TestLoadReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lint.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"file": "a.py", "line": 2, "message": "m", "severity": "info"}]`), 0o644))

	findings, err := LoadReport(path)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, models.SeverityInfo, findings[0].Severity)

	_, err = LoadReport(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
