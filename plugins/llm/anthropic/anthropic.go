// Package anthropic implements protocols.LLMProvider against the
// Anthropic Messages API via plain net/http -- there is no Anthropic Go
// SDK anywhere in the examined dependency surface, so this follows the
// same hand-rolled client shape internal/clients/exchangerate.Client
// already uses for outbound HTTP in this codebase. Grounded on
// original_source/plugins/ai_providers/anthropic.py one-to-one for the
// request/response shape and the OpenAI-style message/tool normalization.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/protocols"
)

const (
	defaultURL     = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
)

// Provider calls the Anthropic Messages API.
type Provider struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	url         string
	client      *http.Client
}

// Config configures a Provider.
type Config struct {
	APIKey      string
	Model       string // default claude-sonnet-4-20250514
	MaxTokens   int    // default 4096
	Temperature float64
}

// New creates a Provider from Config.
func New(cfg Config) *Provider {
	return newProvider(cfg, defaultURL)
}

// NewForTesting creates a Provider pointed at a custom URL in place of the
// real Anthropic API, for use against an httptest server.
func NewForTesting(cfg Config, url string) *Provider {
	return newProvider(cfg, url)
}

func newProvider(cfg Config, url string) *Provider {
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Provider{
		apiKey:      cfg.APIKey,
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		url:         url,
		client:      &http.Client{Timeout: 120 * time.Second},
	}
}

// Name implements protocols.LLMProvider.
func (p *Provider) Name() string { return "anthropic" }

type messagesRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type contentBlock struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete implements protocols.LLMProvider.
func (p *Provider) Complete(ctx context.Context, messages []domain.Message, opts protocols.CompletionOpts) (string, error) {
	resp, err := p.send(ctx, messages, nil, opts)
	if err != nil {
		return "", err
	}

	var textParts []string
	for _, block := range resp.Content {
		if block.Type == "text" {
			textParts = append(textParts, block.Text)
		}
	}
	return strings.Join(textParts, "\n"), nil
}

// ToolCall implements protocols.LLMProvider.
func (p *Provider) ToolCall(ctx context.Context, messages []domain.Message, tools []domain.ToolSchema, opts protocols.CompletionOpts) (domain.ToolCallResult, error) {
	resp, err := p.send(ctx, messages, tools, opts)
	if err != nil {
		return domain.ToolCallResult{}, err
	}

	var textParts []string
	var toolCalls []domain.ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			textParts = append(textParts, block.Text)
		case "tool_use":
			toolCalls = append(toolCalls, domain.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}

	return domain.ToolCallResult{
		Text:      strings.Join(textParts, "\n"),
		ToolCalls: toolCalls,
		Usage: map[string]int{
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
		},
	}, nil
}

func (p *Provider) send(ctx context.Context, messages []domain.Message, tools []domain.ToolSchema, opts protocols.CompletionOpts) (messagesResponse, error) {
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

	system, converted := splitSystemMessage(messages)

	req := messagesRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		System:      system,
		Messages:    converted,
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, anthropicTool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return messagesResponse{}, fmt.Errorf("marshal anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return messagesResponse{}, fmt.Errorf("build anthropic request: %w", err)
	}
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return messagesResponse{}, fmt.Errorf("anthropic request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return messagesResponse{}, fmt.Errorf("decode anthropic response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return messagesResponse{}, fmt.Errorf("anthropic api error: %s", msg)
	}

	return parsed, nil
}

// splitSystemMessage pulls out the system messages, joined with newlines,
// the way the Anthropic API expects them as a top-level field rather than
// part of the messages array.
func splitSystemMessage(messages []domain.Message) (string, []anthropicMessage) {
	var system string
	converted := make([]anthropicMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == domain.RoleSystem {
			if system != "" {
				system += "\n" + m.Text
			} else {
				system = m.Text
			}
			continue
		}
		role := string(m.Role)
		if m.Role == domain.RoleTool {
			role = "user"
		}
		converted = append(converted, anthropicMessage{Role: role, Content: m.Text})
	}
	return system, converted
}
