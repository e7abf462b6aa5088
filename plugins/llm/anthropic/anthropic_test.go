package anthropic_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/protocols"
	"github.com/aristath/tradedesk/plugins/llm/anthropic"
)

func TestCompleteJoinsTextBlocks(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content": [{"type": "text", "text": "line one"}, {"type": "text", "text": "line two"}],
			"usage": {"input_tokens": 20, "output_tokens": 10}
		}`))
	}))
	defer ts.Close()

	provider := anthropic.NewForTesting(anthropic.Config{APIKey: "test"}, ts.URL)

	reply, err := provider.Complete(context.Background(), []domain.Message{
		{Role: domain.RoleSystem, Text: "be terse"},
		{Role: domain.RoleUser, Text: "hi"},
	}, protocols.CompletionOpts{})
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", reply)
}

func TestToolCallParsesToolUseBlocks(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content": [
				{"type": "text", "text": "checking portfolio"},
				{"type": "tool_use", "id": "toolu_1", "name": "get_portfolio", "input": {"portfolio_type": "ai"}}
			],
			"usage": {"input_tokens": 30, "output_tokens": 12}
		}`))
	}))
	defer ts.Close()

	provider := anthropic.NewForTesting(anthropic.Config{APIKey: "test"}, ts.URL)

	tools := []domain.ToolSchema{{Type: "function", Function: domain.ToolFunctionSpec{Name: "get_portfolio"}}}
	result, err := provider.ToolCall(context.Background(), []domain.Message{{Role: domain.RoleUser, Text: "show portfolio"}}, tools, protocols.CompletionOpts{})
	require.NoError(t, err)
	assert.Equal(t, "checking portfolio", result.Text)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "get_portfolio", result.ToolCalls[0].Name)
	assert.Equal(t, "ai", result.ToolCalls[0].Arguments["portfolio_type"])
	assert.Equal(t, 30, result.Usage["input_tokens"])
}

func TestErrorResponseIsSurfaced(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "invalid model"}}`))
	}))
	defer ts.Close()

	provider := anthropic.NewForTesting(anthropic.Config{APIKey: "test"}, ts.URL)

	_, err := provider.Complete(context.Background(), []domain.Message{{Role: domain.RoleUser, Text: "hi"}}, protocols.CompletionOpts{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid model")
}
