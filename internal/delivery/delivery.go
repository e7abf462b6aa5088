// Package delivery implements signal delivery and the pending-confirmation
// reminder watcher: once a signal clears the risk gate it is pushed out
// through every registered output adapter, and a background scan reminds
// the user once a delivered signal's confirmation window has elapsed.
// Grounded on original_source/engine/signal_delivery.py and
// original_source/engine/pending_confirmation.py.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/idgen"
	"github.com/aristath/tradedesk/internal/protocols"
	"github.com/aristath/tradedesk/internal/registry"
	"github.com/aristath/tradedesk/internal/store"
)

// Service delivers approved signals through every configured output
// adapter and updates the signal's lifecycle state based on the outcome.
type Service struct {
	bus                 protocols.EventBus
	store               *store.Store
	registry            *registry.Registry
	confirmationTimeout time.Duration
	log                 zerolog.Logger
}

// NewService creates a Service and subscribes it to signal.approved.
// confirmationTimeout defaults to 24h when zero.
func NewService(bus protocols.EventBus, st *store.Store, reg *registry.Registry, confirmationTimeout time.Duration, log zerolog.Logger) *Service {
	if confirmationTimeout <= 0 {
		confirmationTimeout = 24 * time.Hour
	}
	svc := &Service{
		bus:                 bus,
		store:               st,
		registry:            reg,
		confirmationTimeout: confirmationTimeout,
		log:                 log.With().Str("component", "signal_delivery").Logger(),
	}
	bus.Subscribe(domain.EventSignalApproved, svc.handleSignalApproved)
	return svc
}

func (svc *Service) handleSignalApproved(ctx context.Context, event domain.Event) error {
	signal, err := signalFromPayload(event.Payload)
	if err != nil {
		svc.log.Error().Err(err).Msg("failed to parse approved signal event payload")
		return nil
	}

	var successes []string
	var errs []string

	for _, plugin := range svc.registry.GetAll(registry.KindOutput) {
		adapter, ok := plugin.(protocols.OutputAdapter)
		if !ok {
			continue
		}
		result, err := adapter.Send(ctx, signal, nil)
		if err != nil {
			svc.log.Error().Err(err).Str("adapter", adapter.Name()).Str("signal_id", signal.ID).Msg("signal delivery failed")
			errs = append(errs, fmt.Sprintf("%s: %v", adapter.Name(), err))
			continue
		}
		if result.Success {
			name := result.Adapter
			if name == "" {
				name = adapter.Name()
			}
			successes = append(successes, name)
		} else {
			message := result.Message
			if message == "" {
				message = "delivery failed"
			}
			name := result.Adapter
			if name == "" {
				name = adapter.Name()
			}
			errs = append(errs, fmt.Sprintf("%s: %s", name, message))
		}
	}

	if len(successes) > 0 {
		return svc.markDelivered(ctx, event, signal, successes, errs)
	}
	return svc.markDeliveryFailed(ctx, event, signal, errs)
}

func (svc *Service) markDelivered(ctx context.Context, event domain.Event, signal domain.Signal, successes, errs []string) error {
	deliveredAt := time.Now().UTC()
	dueAt := deliveredAt.Add(svc.confirmationTimeout)

	signal.Status = domain.SignalDelivered
	signal.DeliveredAt = &deliveredAt
	signal.DeliveredVia = uniqueSorted(successes)
	signal.ConfirmationStatus = domain.ConfirmationPending
	signal.ConfirmationDueAt = &dueAt
	signal.ConfirmationReminderSent = nil
	signal.DeliveryErrors = errs

	if err := store.WriteJSON(svc.store, store.KindSignals, signal.ID, signal); err != nil {
		return fmt.Errorf("persist delivered signal %s: %w", signal.ID, err)
	}

	payload, _ := json.Marshal(signal)
	var payloadMap map[string]any
	_ = json.Unmarshal(payload, &payloadMap)

	delivered := event.Derive(idgen.Event(), time.Now().UTC(), domain.EventSignalDelivered, "signal_delivery", payloadMap)
	return svc.bus.Publish(ctx, delivered)
}

func (svc *Service) markDeliveryFailed(ctx context.Context, event domain.Event, signal domain.Signal, errs []string) error {
	if len(errs) == 0 {
		errs = []string{"No output adapters configured"}
	}
	signal.Status = domain.SignalApproved
	signal.DeliveryErrors = errs

	if err := store.WriteJSON(svc.store, store.KindSignals, signal.ID, signal); err != nil {
		return fmt.Errorf("persist signal after failed delivery %s: %w", signal.ID, err)
	}

	alert := event.Derive(idgen.Event(), time.Now().UTC(), domain.EventAlertTriggered, "signal_delivery", map[string]any{
		"level":     "error",
		"signal_id": signal.ID,
		"ticker":    signal.Ticker,
		"message":   "Signal approved but delivery failed on all output adapters",
		"errors":    errs,
	})
	return svc.bus.Publish(ctx, alert)
}

func signalFromPayload(payload map[string]any) (domain.Signal, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.Signal{}, err
	}
	var signal domain.Signal
	if err := json.Unmarshal(raw, &signal); err != nil {
		return domain.Signal{}, err
	}
	return signal, nil
}

func uniqueSorted(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, i := range items {
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	sort.Strings(out)
	return out
}
