package common

import (
	"fmt"
	"math"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config is the application configuration, loaded from a TOML file with
// environment-variable overrides for secrets (see ResolveAPIKey).
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Extraction ExtractionConfig `toml:"extraction"`
	LLM        LLMConfig        `toml:"llm"`
	Claude     ClaudeConfig     `toml:"claude"`
	Gemini     GeminiConfig     `toml:"gemini"`
	Storage    StorageConfig    `toml:"storage"`
	Logging    LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// ConsensusWeights is the (proposer, validator, extraction_quality) weight
// triple used by the Consensus Calculator (spec §4.7); must sum to 1.0.
type ConsensusWeights struct {
	Proposer          float64 `toml:"proposer"`
	Validator         float64 `toml:"validator"`
	ExtractionQuality float64 `toml:"extraction_quality"`
}

// ConsensusTierConfig holds the high/medium acceptance thresholds for one
// use case (UC2 or UC3 have distinct defaults per spec §4.7).
type ConsensusTierConfig struct {
	High   float64 `toml:"high"`
	Medium float64 `toml:"medium"`
}

// ExtractionConfig holds every §6.4 tunable for the Master Orchestration
// Engine and its subsystems.
type ExtractionConfig struct {
	QualityThreshold       int     `toml:"quality_threshold"`
	JSONLDQualityThreshold float64 `toml:"json_ld_quality_threshold"`

	UC2Consensus ConsensusTierConfig `toml:"uc2_consensus"`
	UC3Consensus ConsensusTierConfig `toml:"uc3_consensus"`

	ConsensusWeights ConsensusWeights `toml:"consensus_weights"`

	UC2MaxRetries         int `toml:"uc2_max_retries"`
	UC3MaxRetries         int `toml:"uc3_max_retries"`
	MaxFailuresBeforeHeal int `toml:"max_failures_before_heal"`
	MaxLoops              int `toml:"max_loops"`

	ProposerHTMLMax    int `toml:"proposer_html_max"`
	DiscovererHTMLMax  int `toml:"discoverer_html_max"`

	FewShotK int `toml:"few_shot_k"`

	LLMCallTimeoutSeconds int `toml:"llm_call_timeout_seconds"`
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`

	ProposerProvider      string `toml:"proposer_provider"`
	ProposerModel         string `toml:"proposer_model"`
	ProposerFallbackModel string `toml:"proposer_fallback_model"`
	ValidatorProvider     string `toml:"validator_provider"`
	ValidatorModel        string `toml:"validator_model"`
	ValidatorFallbackModel string `toml:"validator_fallback_model"`
}

type LLMConfig struct {
	DefaultProvider string `toml:"default_provider"`
}

type ClaudeConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

type GeminiConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Output     []string `toml:"output"`
	TimeFormat string   `toml:"time_format"`
}

// DefaultConfig returns the spec §6.4 defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8090, Host: "0.0.0.0"},
		Extraction: ExtractionConfig{
			QualityThreshold:       80,
			JSONLDQualityThreshold: 0.7,
			UC2Consensus:           ConsensusTierConfig{High: 0.75, Medium: 0.50},
			UC3Consensus:           ConsensusTierConfig{High: 0.70, Medium: 0.50},
			ConsensusWeights:       ConsensusWeights{Proposer: 0.3, Validator: 0.3, ExtractionQuality: 0.4},
			UC2MaxRetries:          3,
			UC3MaxRetries:          3,
			MaxFailuresBeforeHeal:  1,
			MaxLoops:               3,
			ProposerHTMLMax:        20000,
			DiscovererHTMLMax:      15000,
			FewShotK:               5,
			LLMCallTimeoutSeconds:  30,
			RequestTimeoutSeconds:  120,
			ProposerProvider:       "claude",
			ProposerModel:          "claude-3-5-sonnet-20241022",
			ProposerFallbackModel:  "claude-3-5-haiku-20241022",
			ValidatorProvider:      "gemini",
			ValidatorModel:         "gemini-2.0-flash",
			ValidatorFallbackModel: "gemini-1.5-pro",
		},
		LLM: LLMConfig{DefaultProvider: "claude"},
		Claude: ClaudeConfig{Model: "claude-3-5-sonnet-20241022"},
		Gemini: GeminiConfig{Model: "gemini-2.0-flash"},
		Storage: StorageConfig{SQLitePath: "./data/extractor.db"},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: []string{"stdout"}},
	}
}

// LoadConfig reads and parses a TOML config file, applying env-var overrides
// for API keys, then validates it.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Claude.APIKey = ResolveAPIKey("EXTRACTOR_CLAUDE_API_KEY", cfg.Claude.APIKey)
	cfg.Gemini.APIKey = ResolveAPIKey("EXTRACTOR_GEMINI_API_KEY", cfg.Gemini.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ResolveAPIKey prefers an environment variable over the TOML-configured
// value, matching the teacher's KV-store-first / config-fallback precedent
// for secrets (here simplified to env-first since this engine has no
// separate KV-backed secrets store).
func ResolveAPIKey(envVar, configured string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return configured
}

// Validate rejects configuration this engine cannot run correctly with.
// Per spec §9 Open Question 3, consensus weights that do not sum to 1.0 are
// rejected at startup rather than silently renormalized.
func (c *Config) Validate() error {
	w := c.Extraction.ConsensusWeights
	sum := w.Proposer + w.Validator + w.ExtractionQuality
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("%w: consensus weights must sum to 1.0, got %.6f", ErrInvalidConfig, sum)
	}
	if c.Extraction.ProposerProvider == c.Extraction.ValidatorProvider {
		return fmt.Errorf("%w: proposer and validator providers must be distinct vendor families, both set to %q", ErrInvalidConfig, c.Extraction.ProposerProvider)
	}
	if c.Extraction.MaxLoops <= 0 {
		return fmt.Errorf("%w: max_loops must be positive", ErrInvalidConfig)
	}
	return nil
}
