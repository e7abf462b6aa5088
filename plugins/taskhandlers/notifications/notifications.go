// Package notifications implements the task handler that sends a plain
// scheduled message through whatever output integrations are configured.
// Grounded one-to-one on
// original_source/plugins/task_handlers/notifications.py.
package notifications

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

// Handler queues a scheduled notification message for delivery via
// integration.output. Implements protocols.TaskHandler.
type Handler struct {
	bus protocols.EventBus
	log zerolog.Logger
}

// New creates a Handler.
func New(bus protocols.EventBus, log zerolog.Logger) *Handler {
	return &Handler{bus: bus, log: log.With().Str("task_handler", "notifications.send").Logger()}
}

// Name implements protocols.TaskHandler.
func (h *Handler) Name() string { return "notifications.send" }

// Run implements protocols.TaskHandler.
func (h *Handler) Run(ctx context.Context, params map[string]any) (domain.TaskResult, error) {
	message := strings.TrimSpace(stringParam(params, "message"))
	if message == "" {
		return domain.TaskResult{Status: domain.TaskResultError, Message: "Missing required param: message"}, nil
	}

	event := domain.Event{
		ID:        idgen.Event(),
		Type:      domain.EventIntegrationOutput,
		Timestamp: time.Now().UTC(),
		Source:    h.Name(),
		Payload: map[string]any{
			"text":       message,
			"channel_id": params["channel_id"],
			"adapter":    params["adapter"],
		},
	}
	if err := h.bus.Publish(ctx, event); err != nil {
		h.log.Warn().Err(err).Msg("failed to publish integration.output")
	}

	return domain.TaskResult{
		Status:  domain.TaskResultSuccess,
		Message: fmt.Sprintf("Queued notification for delivery via %s", domain.EventIntegrationOutput),
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
