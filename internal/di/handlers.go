package di

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/aiface"
	"github.com/aristath/tradedesk/internal/config"
	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/idgen"
	"github.com/aristath/tradedesk/internal/orchestrator"
	"github.com/aristath/tradedesk/internal/protocols"
	"github.com/aristath/tradedesk/internal/registry"
	"github.com/aristath/tradedesk/internal/store"
	"github.com/aristath/tradedesk/plugins/taskhandlers/airunner"
	"github.com/aristath/tradedesk/plugins/taskhandlers/comparison"
	"github.com/aristath/tradedesk/plugins/taskhandlers/news"
	"github.com/aristath/tradedesk/plugins/taskhandlers/notifications"
)

// registerTaskHandlers wires every built-in scheduled task handler.
// plugins/taskhandlers/backup is intentionally left out of this default
// set: it requires object-storage credentials that are frequently absent,
// so it's registered separately only when cfg.BackupEnabled is set (see
// registerBackupHandler).
func registerTaskHandlers(reg *registry.Registry, eventBus protocols.EventBus, st *store.Store, cfg *config.Config, ai *aiface.Interface, log zerolog.Logger) {
	reg.Register(registry.KindTaskHandler, airunner.New(ai, eventBus, log))
	reg.Register(registry.KindTaskHandler, comparison.New(st, eventBus, reg, 7, log))
	reg.Register(registry.KindTaskHandler, notifications.New(eventBus, log))
	reg.Register(registry.KindTaskHandler, news.New(reg, eventBus, 8, log))
}

// wireOrchestratorTrigger subscribes the orchestrator's analysis pipeline
// to schedule.fired (a cron-scheduled research task kicking off a full
// agent run) and to integration.input (an ad-hoc run requested through
// the AI interface's run_analysis tool, see aiface.toolRunAnalysis).
func wireOrchestratorTrigger(eventBus protocols.EventBus, orch *orchestrator.Orchestrator, log zerolog.Logger) {
	runAnalysis := func(ctx context.Context, event domain.Event) error {
		tc := domain.Now(event.Timestamp)
		if _, _, err := orch.Analyze(ctx, event, tc); err != nil {
			log.Error().Err(err).Str("trigger", string(event.Type)).Msg("analysis run failed")
		}
		return nil
	}

	eventBus.Subscribe(domain.EventScheduleFired, func(ctx context.Context, event domain.Event) error {
		if handler, _ := event.Payload["handler"].(string); handler != "analysis.run" {
			return nil
		}
		return runAnalysis(ctx, event)
	})
	eventBus.Subscribe(domain.EventIntegrationInput, runAnalysis)
}

// wireInputBridge connects every registered InputAdapter's inbound
// messages to the AI interface's chat loop, and publishes the reply as an
// integration.output event tagged with the originating adapter so
// wireOutputRouter can route it back to the right place.
func wireInputBridge(reg *registry.Registry, eventBus protocols.EventBus, ai *aiface.Interface, log zerolog.Logger) {
	for _, plugin := range reg.GetAll(registry.KindInput) {
		adapter, ok := plugin.(protocols.InputAdapter)
		if !ok {
			continue
		}
		adapterName := adapter.Name()
		adapter.OnMessage(func(ctx context.Context, msg protocols.InputMessage) error {
			reply := ai.HandleMessage(ctx, msg.Text, msg.ChannelID, msg.Source)
			if reply == "" {
				return nil
			}
			event := domain.Event{
				ID:        idgen.Event(),
				Type:      domain.EventIntegrationOutput,
				Timestamp: time.Now().UTC(),
				Source:    "aiface",
				Payload: map[string]any{
					"text":       reply,
					"channel_id": msg.ChannelID,
					"adapter":    adapterName,
				},
			}
			return eventBus.Publish(ctx, event)
		})
	}
}

// wireOutputRouter subscribes integration.output and sends its text
// through the output adapter named in the payload, or every registered
// output adapter when none is named.
func wireOutputRouter(reg *registry.Registry, eventBus protocols.EventBus, log zerolog.Logger) {
	eventBus.Subscribe(domain.EventIntegrationOutput, func(ctx context.Context, event domain.Event) error {
		text, _ := event.Payload["text"].(string)
		channelID, _ := event.Payload["channel_id"].(string)
		wantAdapter, _ := event.Payload["adapter"].(string)
		if text == "" {
			return nil
		}

		for _, plugin := range reg.GetAll(registry.KindOutput) {
			adapter, ok := plugin.(protocols.OutputAdapter)
			if !ok {
				continue
			}
			if wantAdapter != "" && adapter.Name() != wantAdapter {
				continue
			}
			if err := adapter.SendText(ctx, text, channelID); err != nil {
				log.Error().Err(err).Str("adapter", adapter.Name()).Msg("failed to send integration output")
			}
		}
		return nil
	})
}
