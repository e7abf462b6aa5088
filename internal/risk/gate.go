package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/idgen"
	"github.com/aristath/tradedesk/internal/portfolio"
	"github.com/aristath/tradedesk/internal/protocols"
	"github.com/aristath/tradedesk/internal/store"
)

// Gate is the event-driven wrapper around Engine: it subscribes to
// signal.proposed, evaluates every rule exactly once against the current AI
// portfolio, persists the signal in its new status, and publishes
// signal.approved or signal.rejected. An approval always opens an AI-book
// position, matching spec's always-execute rule for the paper book.
type Gate struct {
	engine    *Engine
	store     *store.Store
	bus       protocols.EventBus
	portfolio *portfolio.Tracker
	log       zerolog.Logger
}

// NewGate creates a Gate and subscribes it to signal.proposed.
func NewGate(engine *Engine, st *store.Store, bus protocols.EventBus, tracker *portfolio.Tracker, log zerolog.Logger) *Gate {
	g := &Gate{
		engine:    engine,
		store:     st,
		bus:       bus,
		portfolio: tracker,
		log:       log.With().Str("component", "risk_gate").Logger(),
	}
	bus.Subscribe(domain.EventSignalProposed, g.handleSignalProposed)
	return g
}

func (g *Gate) handleSignalProposed(ctx context.Context, event domain.Event) error {
	signal, err := signalFromPayload(event.Payload)
	if err != nil {
		g.log.Error().Err(err).Msg("failed to parse proposed signal event payload")
		return nil
	}

	summary, err := g.portfolio.Summary(domain.BookAI)
	if err != nil {
		g.log.Error().Err(err).Str("signal_id", signal.ID).Msg("failed to load AI portfolio summary for risk evaluation")
		return nil
	}

	result := g.engine.Evaluate(signal, summary)
	signal.RiskResult = &result

	if result.Approved {
		return g.approve(ctx, event, signal)
	}
	return g.reject(ctx, event, signal, result)
}

func (g *Gate) approve(ctx context.Context, event domain.Event, signal domain.Signal) error {
	signal.Status = domain.SignalApproved

	if _, err := g.portfolio.AIOpenPosition(signal); err != nil {
		g.log.Error().Err(err).Str("signal_id", signal.ID).Msg("failed to open AI-book position for approved signal")
	}

	if err := store.WriteJSON(g.store, store.KindSignals, signal.ID, signal); err != nil {
		return fmt.Errorf("persist approved signal %s: %w", signal.ID, err)
	}

	payload, err := toPayload(signal)
	if err != nil {
		return fmt.Errorf("marshal approved signal %s: %w", signal.ID, err)
	}

	approved := event.Derive(idgen.Event(), time.Now().UTC(), domain.EventSignalApproved, "risk_gate", payload)
	return g.bus.Publish(ctx, approved)
}

func (g *Gate) reject(ctx context.Context, event domain.Event, signal domain.Signal, result domain.RiskResult) error {
	signal.Status = domain.SignalRejected

	if err := store.WriteJSON(g.store, store.KindSignals, signal.ID, signal); err != nil {
		return fmt.Errorf("persist rejected signal %s: %w", signal.ID, err)
	}

	g.log.Info().
		Str("signal_id", signal.ID).
		Str("ticker", signal.Ticker).
		Strs("failed_rules", result.FailedRules()).
		Msg("signal rejected by risk gate")

	payload, err := toPayload(signal)
	if err != nil {
		return fmt.Errorf("marshal rejected signal %s: %w", signal.ID, err)
	}

	rejected := event.Derive(idgen.Event(), time.Now().UTC(), domain.EventSignalRejected, "risk_gate", payload)
	return g.bus.Publish(ctx, rejected)
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

func toPayload(signal domain.Signal) (map[string]any, error) {
	raw, err := json.Marshal(signal)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
