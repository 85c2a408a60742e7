package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ppiankov/proposalgate/internal/model"
	"github.com/ppiankov/proposalgate/internal/util"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434/v1"
	systemPrompt         = "You are a careful assistant that explains proposal export checks with strict adherence to the listed rules."
)

// rulePattern matches gate rule ids such as PLACEHOLDER_BLOCKING
var rulePattern = regexp.MustCompile(`\b(?:PLACEHOLDER|CHECKLIST|CLAIM|GROUNDING)(?:_[A-Z]+)+\b`)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint
type OpenAIProvider struct {
	client *openai.Client
	config Config
	name   string
	logger *zap.Logger
}

// NewOpenAIProvider creates a provider for api.openai.com or config.BaseURL
func NewOpenAIProvider(config Config, logger *zap.Logger) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	return newCompatProvider("openai", config, logger), nil
}

// NewOllamaProvider creates a provider for a local Ollama server's OpenAI-compatible API
func NewOllamaProvider(config Config, logger *zap.Logger) (*OpenAIProvider, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("ollama model must be specified (e.g., llama3.1:8b, mistral)")
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultOllamaBaseURL
	}
	if config.APIKey == "" {
		config.APIKey = "ollama" // required by the client, ignored by the server
	}
	return newCompatProvider("ollama", config, logger), nil
}

func newCompatProvider(name string, config Config, logger *zap.Logger) *OpenAIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	}
	clientConfig.HTTPClient = util.NewHTTPClient(0, config.HTTPProxy, config.HTTPSProxy, config.NoProxy)

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		name:   name,
		logger: logger,
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return p.name
}

// IsAvailable checks if the provider is properly configured
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	// Simple check: try to list models (lightweight API call)
	_, err := p.client.ListModels(ctx)
	if err != nil {
		p.logger.Warn("llm availability check failed", zap.String("provider", p.name), zap.Error(err))
		return false
	}
	return true
}

// Remediate generates a narrative using the Chat Completions API
func (p *OpenAIProvider) Remediate(ctx context.Context, req RemediateRequest) (*RemediateResponse, error) {
	prompt := req.Prompt
	if prompt == "" {
		prompt = BuildPrompt(req.Result, req.AllowedRules)
	}

	model := req.Model
	if model == "" {
		model = p.config.Model
	}
	if model == "" {
		model = openai.GPT4oMini
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}
	if maxTokens == 0 {
		maxTokens = 600
	}

	timeout := time.Duration(p.config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctxWithTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctxWithTimeout, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("%s API error: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from %s", p.name)
	}

	narrative := strings.TrimSpace(resp.Choices[0].Message.Content)
	cited := extractRules(narrative)

	// The narrative must never point the user at a rule the gate did not fire
	for _, r := range cited {
		if !containsRule(req.AllowedRules, r) {
			return nil, fmt.Errorf("RULE LEAK: narrative mentions rule %s not present in the result", r)
		}
	}

	return &RemediateResponse{
		Narrative:  narrative,
		CitedRules: cited,
		Model:      model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// extractRules returns the distinct rule ids mentioned in text
func extractRules(text string) []model.RuleID {
	seen := make(map[string]bool)
	var out []model.RuleID
	for _, m := range rulePattern.FindAllString(text, -1) {
		if !seen[m] {
			seen[m] = true
			out = append(out, model.RuleID(m))
		}
	}
	return out
}

func containsRule(rules []model.RuleID, r model.RuleID) bool {
	for _, x := range rules {
		if x == r {
			return true
		}
	}
	return false
}
