package model

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the complete proposalgate configuration.
// Priority: CLI flags > PROPOSALGATE_* env > config file > DefaultConfig.
type Config struct {
	Thresholds ThresholdConfig `yaml:"thresholds" mapstructure:"thresholds"`
	Risk       RiskConfig      `yaml:"risk" mapstructure:"risk"`
	Extract    ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Retrieval  RetrievalConfig `yaml:"retrieval" mapstructure:"retrieval"`
	Storage    StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Audit      AuditConfig     `yaml:"audit" mapstructure:"audit"`
	Gate       GateConfig      `yaml:"gate" mapstructure:"gate"`
	LLM        LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Server     ServerConfig    `yaml:"server" mapstructure:"server"`
	Logging    LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// ThresholdConfig holds every tunable cut-off of the gate
type ThresholdConfig struct {
	Verified             float64 `yaml:"verified" mapstructure:"verified" validate:"gte=0,lte=1,gtefield=Partial"`
	Partial              float64 `yaml:"partial" mapstructure:"partial" validate:"gte=0,lte=1"`
	CoverageWarn         int     `yaml:"coverage_warn" mapstructure:"coverage_warn" validate:"gte=0,lte=100"`
	MinMappingConfidence float64 `yaml:"min_mapping_confidence" mapstructure:"min_mapping_confidence" validate:"gte=0,lte=1"`
	LowMappingConfidence float64 `yaml:"low_mapping_confidence" mapstructure:"low_mapping_confidence" validate:"gte=0,lte=1"`
}

// RiskConfig is the static risk policy table for claims
type RiskConfig struct {
	// Defaults maps claim type to its base risk level
	Defaults map[ClaimType]RiskLevel `yaml:"defaults" mapstructure:"defaults"`

	// LargeNumber promotes NUMBER claims at or above this magnitude to HIGH
	LargeNumber float64 `yaml:"large_number" mapstructure:"large_number" validate:"gte=0"`

	// FutureDateYears promotes DATE claims this many years or more in the future to MEDIUM
	FutureDateYears int `yaml:"future_date_years" mapstructure:"future_date_years" validate:"gte=0"`
}

// ExtractConfig tunes claim extraction
type ExtractConfig struct {
	ContextWindow int `yaml:"context_window" mapstructure:"context_window" validate:"gte=10"` // runes on each side of a match
}

// RetrievalConfig configures the retrieval collaborator and the fan-out towards it
type RetrievalConfig struct {
	Backend           string        `yaml:"backend" mapstructure:"backend" validate:"oneof=weaviate none"`
	URL               string        `yaml:"url" mapstructure:"url"`
	APIKey            string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	Class             string        `yaml:"class" mapstructure:"class"`
	TopK              int           `yaml:"top_k" mapstructure:"top_k" validate:"gte=1"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Workers           int           `yaml:"workers" mapstructure:"workers" validate:"gte=1"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int           `yaml:"burst" mapstructure:"burst" validate:"gte=0"`
	MemoTTL           time.Duration `yaml:"memo_ttl" mapstructure:"memo_ttl"`
	Retries           int           `yaml:"retries" mapstructure:"retries" validate:"gte=0"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite memory"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// AuditConfig selects where ExportAuditLog rows are written
type AuditConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend" validate:"oneof=store badger"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// GateConfig controls how signals are gathered
type GateConfig struct {
	SignalMode        string `yaml:"signal_mode" mapstructure:"signal_mode" validate:"oneof=refresh persisted"`
	AutoMapOnEvaluate bool   `yaml:"auto_map_on_evaluate" mapstructure:"auto_map_on_evaluate"`
}

// LLMConfig configures the optional remediation narrative
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider" validate:"omitempty,oneof=openai ollama"` // "" disables
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`

	// Outbound proxy for the provider endpoint; empty falls back to HTTP(S)_PROXY
	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// LoggingConfig configures zap
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// SignalMode values
const (
	SignalModeRefresh   = "refresh"
	SignalModePersisted = "persisted"
)

// DefaultConfig returns the documented defaults
func DefaultConfig() *Config {
	return &Config{
		Thresholds: ThresholdConfig{
			Verified:             0.85,
			Partial:              0.70,
			CoverageWarn:         40,
			MinMappingConfidence: 0.3,
			LowMappingConfidence: 0.6,
		},
		Risk: RiskConfig{
			Defaults:        DefaultRiskTable(),
			LargeNumber:     10000,
			FutureDateYears: 2,
		},
		Extract: ExtractConfig{
			ContextWindow: 100,
		},
		Retrieval: RetrievalConfig{
			Backend:           "none",
			Class:             "EvidenceChunk",
			TopK:              5,
			Timeout:           10 * time.Second,
			Workers:           8,
			RequestsPerSecond: 20,
			Burst:             10,
			MemoTTL:           2 * time.Minute,
			Retries:           2,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			DSN:    "proposalgate.db",
		},
		Audit: AuditConfig{
			Backend: "store",
		},
		Gate: GateConfig{
			SignalMode:        SignalModeRefresh,
			AutoMapOnEvaluate: true,
		},
		LLM: LLMConfig{
			Timeout:   30,
			MaxTokens: 600,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// DefaultRiskTable is the base risk per claim type.
// CURRENCY, PERCENTAGE and OUTCOME are HIGH; NUMBER is MEDIUM; DATE and NAMED_ORG are LOW.
func DefaultRiskTable() map[ClaimType]RiskLevel {
	return map[ClaimType]RiskLevel{
		ClaimCurrency:   RiskHigh,
		ClaimPercentage: RiskHigh,
		ClaimOutcome:    RiskHigh,
		ClaimNumber:     RiskMedium,
		ClaimDate:       RiskLow,
		ClaimNamedOrg:   RiskLow,
	}
}

var configValidator = validator.New()

// Validate checks struct constraints and the risk table
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for claimType, level := range c.Risk.Defaults {
		if !level.Valid() {
			return fmt.Errorf("invalid config: risk level %q for %s", level, claimType)
		}
	}
	if c.Retrieval.Backend == "weaviate" && c.Retrieval.URL == "" {
		return fmt.Errorf("invalid config: retrieval.url is required for the weaviate backend")
	}
	if c.Audit.Backend == "badger" && c.Audit.Path == "" {
		return fmt.Errorf("invalid config: audit.path is required for the badger backend")
	}
	return nil
}
