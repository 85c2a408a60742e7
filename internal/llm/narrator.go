// Package llm produces an optional plain-language remediation narrative for a gate result.
// The narrative is advisory text only; it never feeds back into the decision.
package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/proposalgate/internal/model"
)

// Remediation is the narrative attached to a BLOCK or WARN result
type Remediation struct {
	Enabled    bool           `json:"enabled"`
	Provider   string         `json:"provider,omitempty"`
	Model      string         `json:"model,omitempty"`
	Text       string         `json:"text,omitempty"`
	CitedRules []model.RuleID `json:"cited_rules,omitempty"`
	TokensUsed int            `json:"tokens_used,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
}

// Narrator wraps a provider; a nil provider disables it
type Narrator struct {
	provider Provider
	config   Config
	logger   *zap.Logger
}

// NewNarrator creates a narrator from config. An empty provider disables it.
func NewNarrator(config Config, logger *zap.Logger) (*Narrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	provider, err := NewProvider(config, logger)
	if err != nil {
		return nil, err
	}
	return &Narrator{provider: provider, config: config, logger: logger}, nil
}

// IsEnabled reports whether a provider is configured
func (n *Narrator) IsEnabled() bool {
	return n != nil && n.provider != nil
}

// ProviderName returns the configured provider name, or "" when disabled
func (n *Narrator) ProviderName() string {
	if !n.IsEnabled() {
		return ""
	}
	return n.provider.Name()
}

// Explain returns a narrative for result. It returns nil for ALLOW results and when disabled.
// Provider failures are reported as warnings on the Remediation, not as errors.
func (n *Narrator) Explain(ctx context.Context, result model.GateResult) (*Remediation, error) {
	if !n.IsEnabled() || result.Decision == model.DecisionAllow {
		return nil, nil
	}

	if !n.provider.IsAvailable(ctx) {
		return &Remediation{
			Enabled:  false,
			Provider: n.provider.Name(),
			Warnings: []string{fmt.Sprintf("LLM provider %s is not available", n.provider.Name())},
		}, nil
	}

	resp, err := n.provider.Remediate(ctx, RemediateRequest{
		Result:       result,
		AllowedRules: RulesOf(result),
		Model:        n.config.Model,
		MaxTokens:    n.config.MaxTokens,
	})
	if err != nil {
		n.logger.Warn("remediation narrative failed",
			zap.String("provider", n.provider.Name()),
			zap.String("audit_record_id", result.AuditRecordID),
			zap.Error(err))
		return &Remediation{
			Enabled:  false,
			Provider: n.provider.Name(),
			Warnings: []string{fmt.Sprintf("narrative unavailable: %v", err)},
		}, nil
	}

	return &Remediation{
		Enabled:    true,
		Provider:   n.provider.Name(),
		Model:      resp.Model,
		Text:       resp.Narrative,
		CitedRules: resp.CitedRules,
		TokensUsed: resp.TokensUsed,
	}, nil
}
