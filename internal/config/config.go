// Package config loads reviewloop configuration from YAML, .env files, and
// environment variables, with API keys resolved through the OS keychain.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/reviewloop/reviewloop/internal/models"
)

// LLMConfig configures the gateway
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"` // "openai" or "gemini"
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	// RequestsPerSecond caps outbound gateway calls; 0 disables limiting.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// SystemConfig holds the global pipeline budgets
type SystemConfig struct {
	TimeoutSeconds           int `mapstructure:"timeout_seconds"`
	MaxConcurrentLLMRequests int `mapstructure:"max_concurrent_llm_requests"`
	MaxExpertRounds          int `mapstructure:"max_expert_rounds"`
	MaxExpertToolCalls       int `mapstructure:"max_expert_tool_calls"`
}

// Timeout returns the global deadline as a duration
func (s SystemConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// ManagerConfig holds the deterministic reduce-stage knobs
type ManagerConfig struct {
	AnchorWindow         int                         `mapstructure:"anchor_window"`
	DropUnanchored       bool                        `mapstructure:"drop_unanchored"`
	UnanchoredConfidence float64                     `mapstructure:"unanchored_confidence"`
	MaxWorkItemsTotal    int                         `mapstructure:"max_work_items_total"`
	MaxItemsPerFile      int                         `mapstructure:"max_items_per_file"`
	MaxItemsPerRiskType  map[models.RiskType]int     `mapstructure:"max_items_per_risk_type"`
	RiskTypeWeights      map[models.RiskType]float64 `mapstructure:"risk_type_weights"`
	SeverityWeights      map[models.Severity]float64 `mapstructure:"severity_weights"`
	MergeLineWindow      int                         `mapstructure:"merge_line_window"`
	MergeJaccard         float64                     `mapstructure:"merge_jaccard"`
}

// RiskTypeWeight returns the scoring weight for a risk type (default 1.0)
func (m ManagerConfig) RiskTypeWeight(rt models.RiskType) float64 {
	if w, ok := m.RiskTypeWeights[rt]; ok {
		return w
	}
	return 1.0
}

// SeverityWeight returns the scoring weight for a severity (default 1.0)
func (m ManagerConfig) SeverityWeight(sev models.Severity) float64 {
	if w, ok := m.SeverityWeights[sev]; ok {
		return w
	}
	return 1.0
}

// ReporterConfig holds the confidence gate
type ReporterConfig struct {
	ConfidenceThreshold       float64                     `mapstructure:"confidence_threshold"`
	ConfidenceThresholdByType map[models.RiskType]float64 `mapstructure:"confidence_threshold_by_risk_type"`
}

// ThresholdFor returns the confidence threshold for a risk type
func (r ReporterConfig) ThresholdFor(rt models.RiskType) float64 {
	if t, ok := r.ConfidenceThresholdByType[rt]; ok {
		return t
	}
	return r.ConfidenceThreshold
}

// PathFilterConfig controls which changed files enter the pipeline
type PathFilterConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	IncludeGlobs []string `mapstructure:"include_globs"`
	ExcludeGlobs []string `mapstructure:"exclude_globs"`
}

// ChunkConfig controls chunked intent mode
type ChunkConfig struct {
	FileCountThreshold      int     `mapstructure:"file_count_threshold"`
	TotalDiffCharsThreshold int     `mapstructure:"total_diff_chars_threshold"`
	MaxChunkChars           int     `mapstructure:"max_chunk_chars"`
	MaxFileDiffChars        int     `mapstructure:"max_file_diff_chars"`
	TopKRatio               float64 `mapstructure:"topk_ratio"`
	TopKMin                 int     `mapstructure:"topk_min"`
	TopKMax                 int     `mapstructure:"topk_max"`
	TopKDisableBelow        int     `mapstructure:"topk_disable_below"`
	BudgetRatio             float64 `mapstructure:"budget_ratio"`
	SoftMarginSeconds       int     `mapstructure:"soft_margin_seconds"`
	SentinelSample          int     `mapstructure:"sentinel_sample"`
}

// ExpertConfig holds the history-shrinking and digest limits of the expert
// runtime. These rarely need tuning; the defaults match the budgets the
// round and tool caps were calibrated against.
type ExpertConfig struct {
	MaxHistoryMessages          int `mapstructure:"max_history_messages"`
	MaxTotalChars               int `mapstructure:"max_total_chars"`
	MaxToolChars                int `mapstructure:"max_tool_chars"`
	MaxAIChars                  int `mapstructure:"max_ai_chars"`
	MaxConsecutiveNoSignalTools int `mapstructure:"max_consecutive_no_signal_tools"`
	NoSignalWindow              int `mapstructure:"no_signal_window"`
	DigestMaxChars              int `mapstructure:"digest_max_chars"`
	DigestBlockChars            int `mapstructure:"digest_block_chars"`
	FileWindowRadius            int `mapstructure:"file_window_radius"`
	DiffExcerptChars            int `mapstructure:"diff_excerpt_chars"`
}

// GitHubConfig configures review-comment posting
type GitHubConfig struct {
	Token       string `mapstructure:"token"`
	MaxComments int    `mapstructure:"max_comments"`
}

// ServerConfig configures the webhook entrypoint
type ServerConfig struct {
	Addr          string `mapstructure:"addr"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// AssetsConfig locates the persisted asset store
type AssetsConfig struct {
	Backend string `mapstructure:"backend"` // "bbolt" or "sqlite"
	Path    string `mapstructure:"path"`
}

// Config is the root configuration object
type Config struct {
	LLM        LLMConfig        `mapstructure:"llm"`
	System     SystemConfig     `mapstructure:"system"`
	Manager    ManagerConfig    `mapstructure:"manager"`
	Reporter   ReporterConfig   `mapstructure:"reporter"`
	PathFilter PathFilterConfig `mapstructure:"path_filter"`
	Chunk      ChunkConfig      `mapstructure:"chunk"`
	Expert     ExpertConfig     `mapstructure:"expert"`
	GitHub     GitHubConfig     `mapstructure:"github"`
	Server     ServerConfig     `mapstructure:"server"`
	Assets     AssetsConfig     `mapstructure:"assets"`
	PromptsDir string           `mapstructure:"prompts_dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.requests_per_second", 0.0)

	v.SetDefault("system.timeout_seconds", 600)
	v.SetDefault("system.max_concurrent_llm_requests", 5)
	v.SetDefault("system.max_expert_rounds", 20)
	v.SetDefault("system.max_expert_tool_calls", 6)

	v.SetDefault("manager.anchor_window", 5)
	v.SetDefault("manager.drop_unanchored", true)
	v.SetDefault("manager.unanchored_confidence", 0.2)
	v.SetDefault("manager.max_work_items_total", 30)
	v.SetDefault("manager.max_items_per_file", 6)
	v.SetDefault("manager.risk_type_weights", map[string]float64{
		string(models.RiskSyntaxStatic):  1.2,
		string(models.RiskConcurrency):   1.15,
		string(models.RiskAuthorization): 1.15,
		string(models.RiskRobustness):    1.0,
		string(models.RiskIntent):        0.9,
		string(models.RiskLifecycle):     0.9,
	})
	v.SetDefault("manager.severity_weights", map[string]float64{
		string(models.SeverityError):   1.3,
		string(models.SeverityWarning): 1.0,
		string(models.SeverityInfo):    0.7,
	})
	v.SetDefault("manager.merge_line_window", 5)
	v.SetDefault("manager.merge_jaccard", 0.75)

	v.SetDefault("reporter.confidence_threshold", 0.6)

	v.SetDefault("path_filter.enabled", true)

	v.SetDefault("chunk.file_count_threshold", 25)
	v.SetDefault("chunk.total_diff_chars_threshold", 200000)
	v.SetDefault("chunk.max_chunk_chars", 30000)
	v.SetDefault("chunk.max_file_diff_chars", 24000)
	v.SetDefault("chunk.topk_ratio", 0.3)
	v.SetDefault("chunk.topk_min", 4)
	v.SetDefault("chunk.topk_max", 10)
	v.SetDefault("chunk.topk_disable_below", 4)
	v.SetDefault("chunk.budget_ratio", 0.25)
	v.SetDefault("chunk.soft_margin_seconds", 60)
	v.SetDefault("chunk.sentinel_sample", 0)

	v.SetDefault("expert.max_history_messages", 16)
	v.SetDefault("expert.max_total_chars", 80000)
	v.SetDefault("expert.max_tool_chars", 6000)
	v.SetDefault("expert.max_ai_chars", 12000)
	v.SetDefault("expert.max_consecutive_no_signal_tools", 5)
	v.SetDefault("expert.no_signal_window", 10)
	v.SetDefault("expert.digest_max_chars", 16000)
	v.SetDefault("expert.digest_block_chars", 3000)
	v.SetDefault("expert.file_window_radius", 200)
	v.SetDefault("expert.diff_excerpt_chars", 12000)

	v.SetDefault("github.max_comments", 20)

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("assets.backend", "bbolt")
	v.SetDefault("assets.path", filepath.Join(".reviewloop", "assets.db"))
}

// Load reads configuration from the given YAML file (optional), any .env in
// the working directory, and REVIEWLOOP_* environment variables.
func Load(configPath string) (*Config, error) {
	// .env values become process env before viper binds
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("REVIEWLOOP")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configPath, err)
		}
	} else {
		v.SetConfigName("reviewloop")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "reviewloop"))
		}
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.resolveAPIKey(); err != nil {
		return nil, err
	}
	if cfg.GitHub.Token == "" {
		cfg.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolveAPIKey fills LLM.APIKey from the keychain or provider env vars
// when the config file leaves it empty
func (c *Config) resolveAPIKey() error {
	if c.LLM.APIKey != "" {
		return nil
	}
	if key, err := GetAPIKey(c.LLM.Provider); err == nil && key != "" {
		c.LLM.APIKey = key
		return nil
	}
	switch c.LLM.Provider {
	case "gemini":
		c.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
	default:
		c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return nil
}

// Validate rejects configurations the pipeline cannot run with
func (c *Config) Validate() error {
	if c.LLM.Provider != "openai" && c.LLM.Provider != "gemini" {
		return fmt.Errorf("unknown llm.provider %q (want openai or gemini)", c.LLM.Provider)
	}
	if c.System.TimeoutSeconds <= 0 {
		return fmt.Errorf("system.timeout_seconds must be positive, got %d", c.System.TimeoutSeconds)
	}
	if c.System.MaxConcurrentLLMRequests < 1 {
		return fmt.Errorf("system.max_concurrent_llm_requests must be >= 1, got %d", c.System.MaxConcurrentLLMRequests)
	}
	if c.System.MaxExpertRounds < 1 {
		return fmt.Errorf("system.max_expert_rounds must be >= 1, got %d", c.System.MaxExpertRounds)
	}
	if c.System.MaxExpertToolCalls < 0 {
		return fmt.Errorf("system.max_expert_tool_calls must be >= 0, got %d", c.System.MaxExpertToolCalls)
	}
	if c.Reporter.ConfidenceThreshold < 0 || c.Reporter.ConfidenceThreshold > 1 {
		return fmt.Errorf("reporter.confidence_threshold %.3f out of [0, 1]", c.Reporter.ConfidenceThreshold)
	}
	if c.Manager.MergeJaccard < 0 || c.Manager.MergeJaccard > 1 {
		return fmt.Errorf("manager.merge_jaccard %.3f out of [0, 1]", c.Manager.MergeJaccard)
	}
	if c.Assets.Backend != "bbolt" && c.Assets.Backend != "sqlite" {
		return fmt.Errorf("unknown assets.backend %q (want bbolt or sqlite)", c.Assets.Backend)
	}
	return nil
}

// Default returns the built-in configuration without touching the
// filesystem or environment. Used by tests and as a base for overrides.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// defaults always unmarshal cleanly
	_ = v.Unmarshal(&cfg)
	return &cfg
}
