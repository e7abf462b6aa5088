// Package airunner implements the task handler that drives the
// conversational AI interface from scheduled cron triggers, using the same
// tool-calling loop a chat message would. Grounded one-to-one on
// original_source/plugins/task_handlers/ai_runner.py.
package airunner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/idgen"
	"github.com/aristath/tradedesk/internal/protocols"
)

// AIInterface is the subset of *aiface.Interface this handler depends on.
type AIInterface interface {
	HandleScheduledPrompt(ctx context.Context, prompt, channel, source string, persistOutput bool) string
}

// Handler runs a scheduled prompt through the AI interface and queues its
// reply for delivery via integration.output. Implements protocols.TaskHandler.
type Handler struct {
	ai  AIInterface
	bus protocols.EventBus
	log zerolog.Logger
}

// New creates a Handler.
func New(ai AIInterface, bus protocols.EventBus, log zerolog.Logger) *Handler {
	return &Handler{ai: ai, bus: bus, log: log.With().Str("task_handler", "ai.run_prompt").Logger()}
}

// Name implements protocols.TaskHandler.
func (h *Handler) Name() string { return "ai.run_prompt" }

// Run implements protocols.TaskHandler.
func (h *Handler) Run(ctx context.Context, params map[string]any) (domain.TaskResult, error) {
	prompt := strings.TrimSpace(stringParam(params, "prompt"))
	if prompt == "" {
		return domain.TaskResult{Status: domain.TaskResultError, Message: "Missing required param: prompt"}, nil
	}

	channelID := stringParam(params, "channel_id")
	if channelID == "" {
		channelID = "default"
	}
	source := stringParam(params, "source")
	if source == "" {
		source = "scheduler"
	}
	adapter := stringParam(params, "adapter")

	response := h.ai.HandleScheduledPrompt(ctx, prompt, channelID, source, true)

	event := domain.Event{
		ID:        idgen.Event(),
		Type:      domain.EventIntegrationOutput,
		Timestamp: time.Now().UTC(),
		Source:    h.Name(),
		Payload: map[string]any{
			"text":       response,
			"channel_id": channelID,
			"adapter":    adapter,
		},
	}
	if err := h.bus.Publish(ctx, event); err != nil {
		h.log.Warn().Err(err).Msg("failed to publish integration.output")
	}

	return domain.TaskResult{
		Status:  domain.TaskResultSuccess,
		Message: fmt.Sprintf("AI ran and queued response for delivery via %s", domain.EventIntegrationOutput),
	}, nil
}

func stringParam(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
