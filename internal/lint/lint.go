// Package lint loads external linter reports into the typed shape the
// Manager converts to risk items. Reports are JSON or YAML, either a bare
// array of findings or an object with an "errors" key.
package lint

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/reviewloop/reviewloop/internal/models"
)

type reportEnvelope struct {
	Errors []models.LintError `yaml:"errors" json:"errors"`
}

// LoadReport reads a linter report file. YAML parsing accepts JSON too, so
// one decoder covers both formats.
func LoadReport(path string) ([]models.LintError, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lint report %s: %w", path, err)
	}
	return ParseReport(data)
}

// ParseReport decodes lint findings from raw report bytes
func ParseReport(data []byte) ([]models.LintError, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}

	var findings []models.LintError
	if err := yaml.Unmarshal(data, &findings); err == nil {
		return normalize(findings), nil
	}

	var envelope reportEnvelope
	if err := yaml.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("unrecognized lint report format: %w", err)
	}
	return normalize(envelope.Errors), nil
}

func normalize(findings []models.LintError) []models.LintError {
	out := make([]models.LintError, 0, len(findings))
	for _, f := range findings {
		if f.File == "" || f.Message == "" {
			continue
		}
		if f.Line < 1 {
			f.Line = 1
		}
		f.Severity = models.ParseSeverity(string(f.Severity))
		out = append(out, f)
	}
	return out
}
