package notifications_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradedesk/internal/bus"
	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/plugins/taskhandlers/notifications"
)

func TestRunMissingMessageReturnsError(t *testing.T) {
	b, err := bus.New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	h := notifications.New(b, zerolog.Nop())

	result, err := h.Run(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskResultError, result.Status)
}

func TestRunPublishesIntegrationOutput(t *testing.T) {
	b, err := bus.New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	h := notifications.New(b, zerolog.Nop())

	received := make(chan domain.Event, 1)
	b.Subscribe(domain.EventIntegrationOutput, func(ctx context.Context, event domain.Event) error {
		received <- event
		return nil
	})

	result, err := h.Run(context.Background(), map[string]any{
		"message":    "market closed early today",
		"channel_id": "telegram-main",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskResultSuccess, result.Status)

	event := <-received
	assert.Equal(t, "market closed early today", event.Payload["text"])
	assert.Equal(t, "telegram-main", event.Payload["channel_id"])
}
