// Package openai implements protocols.LLMProvider against OpenAI's chat
// completions API (and any OpenAI-compatible endpoint, via a configurable
// base URL) through the go-openai client. Grounded on
// original_source/plugins/ai_providers/openai.py for the configuration
// surface (api key, model, max tokens, temperature, base URL) and the
// plain complete/tool_call split.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	openaisdk "github.com/sashabaranov/go-openai"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/protocols"
)

// Provider wraps a go-openai client behind protocols.LLMProvider.
type Provider struct {
	client      *openaisdk.Client
	model       string
	maxTokens   int
	temperature float64
}

// Config configures a Provider. BaseURL is optional and lets this provider
// point at any OpenAI-compatible API (Azure, local models, etc).
type Config struct {
	APIKey      string
	Model       string // default gpt-4o
	BaseURL     string // optional, defaults to the OpenAI API
	MaxTokens   int    // default 4096
	Temperature float64
}

// New creates a Provider from Config.
func New(cfg Config) *Provider {
	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	clientConfig := openaisdk.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client:      openaisdk.NewClientWithConfig(clientConfig),
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}
}

// Name implements protocols.LLMProvider.
func (p *Provider) Name() string { return "openai" }

// Complete implements protocols.LLMProvider.
func (p *Provider) Complete(ctx context.Context, messages []domain.Message, opts protocols.CompletionOpts) (string, error) {
	req := p.buildRequest(messages, nil, opts)

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// ToolCall implements protocols.LLMProvider.
func (p *Provider) ToolCall(ctx context.Context, messages []domain.Message, tools []domain.ToolSchema, opts protocols.CompletionOpts) (domain.ToolCallResult, error) {
	req := p.buildRequest(messages, tools, opts)

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.ToolCallResult{}, fmt.Errorf("openai tool call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.ToolCallResult{}, nil
	}

	choice := resp.Choices[0].Message
	result := domain.ToolCallResult{Text: choice.Content}
	for _, tc := range choice.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				args = map[string]any{}
			}
		}
		result.ToolCalls = append(result.ToolCalls, domain.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	if resp.Usage.TotalTokens > 0 {
		result.Usage = map[string]int{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		}
	}
	return result, nil
}

func (p *Provider) buildRequest(messages []domain.Message, tools []domain.ToolSchema, opts protocols.CompletionOpts) openaisdk.ChatCompletionRequest {
	model := p.model
	if opts.Model != "" {
		model = opts.Model
	}
	maxTokens := p.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	temperature := p.temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}

	req := openaisdk.ChatCompletionRequest{
		Model:       model,
		Messages:    toChatMessages(messages),
		MaxTokens:   maxTokens,
		Temperature: float32(temperature),
	}
	if len(tools) > 0 {
		req.Tools = toChatTools(tools)
	}
	return req
}

func toChatMessages(messages []domain.Message) []openaisdk.ChatCompletionMessage {
	out := make([]openaisdk.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openaisdk.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Text,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			msg.ToolCalls = append(msg.ToolCalls, openaisdk.ToolCall{
				ID:   tc.ID,
				Type: openaisdk.ToolTypeFunction,
				Function: openaisdk.FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toChatTools(tools []domain.ToolSchema) []openaisdk.Tool {
	out := make([]openaisdk.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openaisdk.Tool{
			Type: openaisdk.ToolTypeFunction,
			Function: &openaisdk.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}
	return out
}
