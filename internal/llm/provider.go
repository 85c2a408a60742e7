package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/proposalgate/internal/model"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Remediate explains a gate result in plain language, naming only the allowed rules
	Remediate(ctx context.Context, req RemediateRequest) (*RemediateResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// RemediateRequest contains the input for a remediation narrative
type RemediateRequest struct {
	// Result is the gate decision to explain
	Result model.GateResult

	// AllowedRules is the STRICT allowlist of rule ids the narrative may mention.
	// It is always the set of rules present in Result.
	AllowedRules []model.RuleID

	// Prompt is an optional custom prompt (if empty, use default)
	Prompt string

	// Model is the specific model to use (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// RemediateResponse contains the narrative
type RemediateResponse struct {
	Narrative  string
	CitedRules []model.RuleID // Rule ids found in the narrative (for verification)
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI; Ollama ignores it
	APIKey string

	// BaseURL for custom endpoints. Ollama defaults to its OpenAI-compatible /v1 API.
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Timeout:   30,
		MaxTokens: 600,
	}
}

// RulesOf returns the distinct rule ids of a result, blocks first
func RulesOf(result model.GateResult) []model.RuleID {
	seen := make(map[model.RuleID]bool)
	var rules []model.RuleID
	add := func(id model.RuleID) {
		if !seen[id] {
			seen[id] = true
			rules = append(rules, id)
		}
	}
	for _, b := range result.Blocks {
		add(b.RuleID)
	}
	for _, w := range result.Warnings {
		add(w.RuleID)
	}
	return rules
}

// BuildPrompt constructs the default remediation prompt
func BuildPrompt(result model.GateResult, allowed []model.RuleID) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are helping a nonprofit grant writer fix a proposal before export. The export gate returned %s.

CRITICAL RULES:
1. You MAY ONLY mention these rule ids:
%s

2. DO NOT invent facts, numbers, organizations or sources.
3. DO NOT suggest values for missing data; tell the writer where to supply it.
4. Never say the proposal content is true or false, only what must be reviewed.

`, result.Decision, joinRules(allowed))

	if len(result.Blocks) > 0 {
		b.WriteString("Blocking issues:\n")
		for _, blk := range result.Blocks {
			fmt.Fprintf(&b, "- %s: %s. Fix: %s\n", blk.RuleID, blk.Reason, blk.Resolution)
			writeAffected(&b, blk.AffectedItems)
		}
	}
	if len(result.Warnings) > 0 {
		b.WriteString("Warnings:\n")
		for _, w := range result.Warnings {
			fmt.Fprintf(&b, "- %s (%s): %s\n", w.RuleID, w.Severity, w.Message)
			writeAffected(&b, w.AffectedItems)
		}
	}
	if result.AttestationRequired {
		b.WriteString("\nThe user must sign an attestation before export.\n")
	}

	b.WriteString("\nWrite a short, ordered checklist (at most 6 steps) of what the writer should do next.")
	return b.String()
}

// Helper functions

func joinRules(rules []model.RuleID) string {
	if len(rules) == 0 {
		return "(no rules triggered)"
	}
	parts := make([]string, 0, len(rules))
	for _, r := range rules {
		parts = append(parts, "- "+string(r))
	}
	return strings.Join(parts, "\n")
}

func writeAffected(b *strings.Builder, items []string) {
	for i, item := range items {
		if i >= 10 { // Limit to avoid token bloat
			fmt.Fprintf(b, "    ... and %d more\n", len(items)-10)
			return
		}
		fmt.Fprintf(b, "    * %s\n", item)
	}
}
