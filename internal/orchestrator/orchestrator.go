// Package orchestrator implements the multi-agent pipeline: assemble a
// context pack, run every registered agent, synthesize the outputs into an
// investment memo and an optional trade signal, and publish the chain of
// events a run produces. Grounded on
// original_source/engine/orchestrator.py.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/idgen"
	"github.com/aristath/tradedesk/internal/llmutil"
	"github.com/aristath/tradedesk/internal/memory"
	"github.com/aristath/tradedesk/internal/portfolio"
	"github.com/aristath/tradedesk/internal/protocols"
	"github.com/aristath/tradedesk/internal/registry"
	"github.com/aristath/tradedesk/internal/store"
)

const synthesisPromptTemplate = `You are the Chief Investment Officer synthesizing analyses from your team.

Given the following agent analyses, produce a structured investment decision.

%s

Trigger event: %s

Respond in JSON:
{
    "executive_summary": "2-3 sentence thesis",
    "catalyst": "what happened and why it matters",
    "market_context": "current regime and conditions",
    "pricing_vs_view": "where the market is priced vs our view",
    "scenarios": [
        {"name": "Bull", "probability": 0.0-1.0, "description": "...", "target_price": null},
        {"name": "Base", "probability": 0.0-1.0, "description": "...", "target_price": null},
        {"name": "Bear", "probability": 0.0-1.0, "description": "...", "target_price": null}
    ],
    "trade_expression": "how to express the view",
    "entry_plan": "entry strategy",
    "risks": ["risk1", "risk2"],
    "monitoring_plan": "what to watch",
    "signal": {
        "ticker": "TICKER",
        "direction": "buy" | "sell" | "hold",
        "confidence": 0.0-1.0,
        "entry_target": null,
        "stop_loss": null,
        "take_profit": null,
        "horizon": "1-3 months"
    }
}

If you don't have enough conviction for a trade, set direction to "hold" with an explanation.`

// Orchestrator coordinates one full analysis run: context assembly, the
// agent chain, and synthesis into a memo and optional signal.
type Orchestrator struct {
	bus       protocols.EventBus
	store     *store.Store
	registry  *registry.Registry
	portfolio *portfolio.Tracker
	memory    *memory.Retriever
	log       zerolog.Logger
}

// New creates an Orchestrator wired to the given collaborators.
func New(bus protocols.EventBus, st *store.Store, reg *registry.Registry, tracker *portfolio.Tracker, mem *memory.Retriever, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		bus:       bus,
		store:     st,
		registry:  reg,
		portfolio: tracker,
		memory:    mem,
		log:       log.With().Str("component", "orchestrator").Logger(),
	}
}

// Analyze runs the full pipeline for triggerEvent: assemble context, run
// every registered agent, synthesize a memo and optional signal, persist
// the memo, and publish context.assembled, memo.created, and -- if a
// non-hold signal resulted -- signal.proposed.
func (o *Orchestrator) Analyze(ctx context.Context, triggerEvent domain.Event, tc domain.TimeContext) (domain.InvestmentMemo, *domain.Signal, error) {
	pack, err := o.assembleContext(triggerEvent, tc)
	if err != nil {
		return domain.InvestmentMemo{}, nil, fmt.Errorf("assemble context: %w", err)
	}

	assembled := triggerEvent.Derive(idgen.Event(), tc.CurrentTime, domain.EventContextAssembled, "orchestrator", nil)
	if err := o.bus.Publish(ctx, assembled); err != nil {
		o.log.Warn().Err(err).Msg("failed to publish context.assembled")
	}

	outputs := o.runAgents(ctx, pack)

	memo, signal := o.synthesize(ctx, outputs, triggerEvent, tc)

	ticker := "analysis"
	direction := domain.DirectionHold
	if signal != nil {
		ticker = signal.Ticker
		direction = signal.Direction
	}
	key, err := o.store.WriteMemo(memo, ticker, direction)
	if err != nil {
		return memo, signal, fmt.Errorf("write memo: %w", err)
	}

	memoEvent := triggerEvent.Derive(idgen.Event(), tc.CurrentTime, domain.EventMemoCreated, "orchestrator", map[string]any{
		"memo_id":  memo.ID,
		"filename": key,
	})
	if err := o.bus.Publish(ctx, memoEvent); err != nil {
		o.log.Warn().Err(err).Msg("failed to publish memo.created")
	}

	if signal != nil && signal.Direction != domain.DirectionHold {
		signal.MemoID = memo.ID
		signal.CorrelationID = triggerEvent.CorrelationID

		if err := store.WriteJSON(o.store, store.KindSignals, signal.ID, *signal); err != nil {
			return memo, signal, fmt.Errorf("write signal: %w", err)
		}

		payload, _ := json.Marshal(signal)
		var payloadMap map[string]any
		_ = json.Unmarshal(payload, &payloadMap)

		signalEvent := triggerEvent.Derive(idgen.Event(), tc.CurrentTime, domain.EventSignalProposed, "orchestrator", payloadMap)
		if err := o.bus.Publish(ctx, signalEvent); err != nil {
			o.log.Warn().Err(err).Msg("failed to publish signal.proposed")
		}
	}

	return memo, signal, nil
}

func (o *Orchestrator) assembleContext(triggerEvent domain.Event, tc domain.TimeContext) (domain.ContextPack, error) {
	snapshot := domain.MarketSnapshot{Timestamp: tc.CurrentTime, Prices: map[string]float64{}}

	aiSummary, err := o.portfolio.Summary(domain.BookAI)
	if err != nil {
		return domain.ContextPack{}, fmt.Errorf("ai portfolio summary: %w", err)
	}
	humanSummary, err := o.portfolio.Summary(domain.BookHuman)
	if err != nil {
		return domain.ContextPack{}, fmt.Errorf("human portfolio summary: %w", err)
	}

	tickerHint, _ := triggerEvent.Payload["ticker"].(string)
	var tagsHint []string
	if raw, ok := triggerEvent.Payload["tags"]; ok {
		switch v := raw.(type) {
		case []string:
			tagsHint = v
		case []any:
			for _, t := range v {
				if s, ok := t.(string); ok {
					tagsHint = append(tagsHint, s)
				}
			}
		}
	}

	memories, err := o.memory.Retrieve(tickerHint, tagsHint, 0)
	if err != nil {
		return domain.ContextPack{}, fmt.Errorf("retrieve memories: %w", err)
	}

	return domain.ContextPack{
		TimeContext:      tc,
		MarketSnapshot:   snapshot,
		AIPortfolio:      aiSummary,
		HumanPortfolio:   humanSummary,
		TriggerEvent:     triggerEvent,
		RelevantMemories: memories,
	}, nil
}

func (o *Orchestrator) runAgents(ctx context.Context, pack domain.ContextPack) []domain.AgentOutput {
	plugins := o.registry.GetAll(registry.KindAgent)
	outputs := make([]domain.AgentOutput, 0, len(plugins))

	for _, plugin := range plugins {
		agent, ok := plugin.(protocols.AIAgent)
		if !ok {
			continue
		}
		o.log.Info().Str("agent", agent.Name()).Msg("running agent")
		output := runAgentSafely(ctx, agent, pack, o.log)
		outputs = append(outputs, output)
		o.log.Info().Str("agent", agent.Name()).Float64("confidence", output.Confidence).Msg("agent finished")
	}

	return outputs
}

// runAgentSafely isolates a single agent's panic so one misbehaving plugin
// never aborts the rest of the chain, the same isolation policy the event
// bus applies to its subscribers.
func runAgentSafely(ctx context.Context, agent protocols.AIAgent, pack domain.ContextPack, log zerolog.Logger) (output domain.AgentOutput) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("agent", agent.Name()).Interface("panic", r).Msg("agent panicked")
			output = domain.AgentOutput{AgentName: agent.Name(), Analysis: fmt.Sprintf("%s panicked: %v", agent.Name(), r)}
		}
	}()
	return agent.Analyze(ctx, pack)
}

func (o *Orchestrator) synthesize(ctx context.Context, outputs []domain.AgentOutput, triggerEvent domain.Event, tc domain.TimeContext) (domain.InvestmentMemo, *domain.Signal) {
	agentNames := make([]string, 0, len(outputs))
	for _, out := range outputs {
		agentNames = append(agentNames, out.AgentName)
	}

	providers := o.registry.GetAll(registry.KindLLM)
	if len(providers) == 0 {
		o.log.Error().Msg("no LLM providers registered -- cannot synthesize")
		return domain.InvestmentMemo{
			ID:               idgen.Memo(),
			CreatedAt:        tc.CurrentTime,
			ExecutiveSummary: "No LLM provider available for synthesis.",
			AgentsUsed:       agentNames,
		}, nil
	}
	llm, ok := providers[0].(protocols.LLMProvider)
	if !ok {
		o.log.Error().Msg("registered llm plugin does not implement LLMProvider")
		return domain.InvestmentMemo{
			ID:               idgen.Memo(),
			CreatedAt:        tc.CurrentTime,
			ExecutiveSummary: "No usable LLM provider available for synthesis.",
			AgentsUsed:       agentNames,
		}, nil
	}

	analyses := buildAnalysesSection(outputs)
	triggerPayload, _ := json.Marshal(triggerEvent.Payload)
	prompt := fmt.Sprintf(synthesisPromptTemplate, analyses, truncateJSON(string(triggerPayload), 500))

	messages := []domain.Message{
		{Role: domain.RoleSystem, Text: "You are a Chief Investment Officer."},
		{Role: domain.RoleUser, Text: prompt},
	}

	response, err := llm.Complete(ctx, messages, protocols.CompletionOpts{})
	if err != nil {
		o.log.Error().Err(err).Msg("synthesis failed")
		return domain.InvestmentMemo{
			ID:               idgen.Memo(),
			CreatedAt:        tc.CurrentTime,
			ExecutiveSummary: "Synthesis failed. Agent analyses available in raw form.",
			Catalyst:         analyses,
			AgentsUsed:       agentNames,
			ModelProvider:    llm.Name(),
		}, nil
	}

	return o.parseSynthesis(response, agentNames, llm.Name(), tc)
}

func buildAnalysesSection(outputs []domain.AgentOutput) string {
	var b strings.Builder
	for i, o := range outputs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		direction := "none"
		if o.SuggestedDirection != nil {
			direction = string(*o.SuggestedDirection)
		}
		fmt.Fprintf(&b, "--- %s (confidence: %.2f, direction: %s) ---\n%s", o.AgentName, o.Confidence, direction, o.Analysis)
	}
	return b.String()
}

func truncateJSON(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

type synthesisScenario struct {
	Name        string   `json:"name"`
	Probability float64  `json:"probability"`
	Description string   `json:"description"`
	TargetPrice *float64 `json:"target_price"`
}

type synthesisSignal struct {
	Ticker      string   `json:"ticker"`
	Direction   string   `json:"direction"`
	Confidence  float64  `json:"confidence"`
	EntryTarget *float64 `json:"entry_target"`
	StopLoss    *float64 `json:"stop_loss"`
	TakeProfit  *float64 `json:"take_profit"`
	Horizon     string   `json:"horizon"`
}

type synthesisResponse struct {
	ExecutiveSummary string              `json:"executive_summary"`
	Catalyst         string              `json:"catalyst"`
	MarketContext    string              `json:"market_context"`
	PricingVsView    string              `json:"pricing_vs_view"`
	Scenarios        []synthesisScenario `json:"scenarios"`
	TradeExpression  string              `json:"trade_expression"`
	EntryPlan        string              `json:"entry_plan"`
	Risks            []string            `json:"risks"`
	MonitoringPlan   string              `json:"monitoring_plan"`
	Signal           *synthesisSignal    `json:"signal"`
}

func (o *Orchestrator) parseSynthesis(response string, agentNames []string, providerName string, tc domain.TimeContext) (domain.InvestmentMemo, *domain.Signal) {
	var parsed synthesisResponse
	if err := json.Unmarshal([]byte(llmutil.StripCodeFence(response)), &parsed); err != nil {
		o.log.Warn().Err(err).Msg("could not parse synthesis response as JSON, using raw text")
		summary := response
		if len(summary) > 500 {
			summary = summary[:500]
		}
		return domain.InvestmentMemo{
			ID:               idgen.Memo(),
			CreatedAt:        tc.CurrentTime,
			ExecutiveSummary: summary,
			AgentsUsed:       agentNames,
			ModelProvider:    providerName,
		}, nil
	}

	scenarios := make([]domain.Scenario, 0, len(parsed.Scenarios))
	for _, s := range parsed.Scenarios {
		scenarios = append(scenarios, domain.Scenario{
			Name:        s.Name,
			Probability: s.Probability,
			Description: s.Description,
			TargetPrice: s.TargetPrice,
		})
	}

	memo := domain.InvestmentMemo{
		ID:               idgen.Memo(),
		CreatedAt:        tc.CurrentTime,
		ExecutiveSummary: parsed.ExecutiveSummary,
		Catalyst:         parsed.Catalyst,
		MarketContext:    parsed.MarketContext,
		PricingVsView:    parsed.PricingVsView,
		ScenarioTree:     scenarios,
		TradeExpression:  parsed.TradeExpression,
		EntryPlan:        parsed.EntryPlan,
		Risks:            parsed.Risks,
		MonitoringPlan:   parsed.MonitoringPlan,
		AgentsUsed:       agentNames,
		ModelProvider:    providerName,
	}

	var signal *domain.Signal
	if parsed.Signal != nil && parsed.Signal.Direction != string(domain.DirectionHold) {
		signal = &domain.Signal{
			ID:                 idgen.Signal(),
			Ticker:             parsed.Signal.Ticker,
			Direction:          domain.Direction(parsed.Signal.Direction),
			Catalyst:           parsed.Catalyst,
			Confidence:         parsed.Signal.Confidence,
			EntryTarget:        parsed.Signal.EntryTarget,
			StopLoss:           parsed.Signal.StopLoss,
			TakeProfit:         parsed.Signal.TakeProfit,
			Horizon:            parsed.Signal.Horizon,
			Status:             domain.SignalProposed,
			ConfirmationStatus: domain.ConfirmationNone,
			CreatedAt:          tc.CurrentTime,
		}
	}

	return memo, signal
}
