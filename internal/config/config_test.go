package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewloop/reviewloop/internal/models"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 600, cfg.System.TimeoutSeconds)
	assert.Equal(t, 10*time.Minute, cfg.System.Timeout())
	assert.Equal(t, 5, cfg.System.MaxConcurrentLLMRequests)
	assert.Equal(t, 20, cfg.System.MaxExpertRounds)
	assert.Equal(t, 6, cfg.System.MaxExpertToolCalls)

	assert.Equal(t, 5, cfg.Manager.AnchorWindow)
	assert.True(t, cfg.Manager.DropUnanchored)
	assert.Equal(t, 30, cfg.Manager.MaxWorkItemsTotal)
	assert.Equal(t, 6, cfg.Manager.MaxItemsPerFile)
	assert.Equal(t, 1.2, cfg.Manager.RiskTypeWeight(models.RiskSyntaxStatic))
	assert.Equal(t, 1.0, cfg.Manager.RiskTypeWeight(models.RiskRobustness))
	assert.Equal(t, 1.3, cfg.Manager.SeverityWeight(models.SeverityError))

	assert.Equal(t, 0.6, cfg.Reporter.ConfidenceThreshold)
	assert.Equal(t, 25, cfg.Chunk.FileCountThreshold)
	assert.Equal(t, 200000, cfg.Chunk.TotalDiffCharsThreshold)
	assert.Equal(t, 16, cfg.Expert.MaxHistoryMessages)
	assert.Equal(t, "bbolt", cfg.Assets.Backend)

	require.NoError(t, cfg.Validate())
}

func TestThresholdFor(t *testing.T) {
	cfg := Default().Reporter
	assert.Equal(t, 0.6, cfg.ThresholdFor(models.RiskRobustness))

	cfg.ConfidenceThresholdByType = map[models.RiskType]float64{models.RiskSyntaxStatic: 0.8}
	assert.Equal(t, 0.8, cfg.ThresholdFor(models.RiskSyntaxStatic))
	assert.Equal(t, 0.6, cfg.ThresholdFor(models.RiskConcurrency))
}

func TestValidateRejections(t *testing.T) {
	mutations := []func(*Config){
		func(c *Config) { c.LLM.Provider = "anthropic" },
		func(c *Config) { c.System.TimeoutSeconds = 0 },
		func(c *Config) { c.System.MaxConcurrentLLMRequests = 0 },
		func(c *Config) { c.System.MaxExpertRounds = 0 },
		func(c *Config) { c.System.MaxExpertToolCalls = -1 },
		func(c *Config) { c.Reporter.ConfidenceThreshold = 1.5 },
		func(c *Config) { c.Manager.MergeJaccard = -0.1 },
		func(c *Config) { c.Assets.Backend = "leveldb" },
	}
	for i, mutate := range mutations {
		cfg := Default()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), "mutation %d", i)
	}

	// zero tool calls is a valid way to disable expert tools
	cfg := Default()
	cfg.System.MaxExpertToolCalls = 0
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reviewloop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  provider: openai
  model: gpt-4o-mini
  api_key: from-file
system:
  timeout_seconds: 120
manager:
  anchor_window: 3
reporter:
  confidence_threshold: 0.7
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 120, cfg.System.TimeoutSeconds)
	assert.Equal(t, 3, cfg.Manager.AnchorWindow)
	assert.Equal(t, 0.7, cfg.Reporter.ConfidenceThreshold)
	// untouched keys keep their defaults
	assert.Equal(t, 20, cfg.System.MaxExpertRounds)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
