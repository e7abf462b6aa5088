package airunner_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradedesk/internal/bus"
	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/plugins/taskhandlers/airunner"
)

type fakeAI struct {
	lastPrompt  string
	lastChannel string
	lastSource  string
	reply       string
}

func (f *fakeAI) HandleScheduledPrompt(ctx context.Context, prompt, channel, source string, persistOutput bool) string {
	f.lastPrompt = prompt
	f.lastChannel = channel
	f.lastSource = source
	return f.reply
}

func TestRunMissingPromptReturnsError(t *testing.T) {
	b, err := bus.New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	h := airunner.New(&fakeAI{}, b, zerolog.Nop())

	result, err := h.Run(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskResultError, result.Status)
}

func TestRunPublishesIntegrationOutputWithAIResponse(t *testing.T) {
	b, err := bus.New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	ai := &fakeAI{reply: "here's your digest"}
	h := airunner.New(ai, b, zerolog.Nop())

	received := make(chan domain.Event, 1)
	b.Subscribe(domain.EventIntegrationOutput, func(ctx context.Context, event domain.Event) error {
		received <- event
		return nil
	})

	result, err := h.Run(context.Background(), map[string]any{
		"prompt":     "summarize today",
		"channel_id": "telegram-main",
		"source":     "cron",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskResultSuccess, result.Status)
	assert.Equal(t, "summarize today", ai.lastPrompt)
	assert.Equal(t, "telegram-main", ai.lastChannel)
	assert.Equal(t, "cron", ai.lastSource)

	event := <-received
	assert.Equal(t, "here's your digest", event.Payload["text"])
	assert.Equal(t, "telegram-main", event.Payload["channel_id"])
}
