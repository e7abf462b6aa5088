package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradedesk/internal/bus"
	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/memory"
	"github.com/aristath/tradedesk/internal/orchestrator"
	"github.com/aristath/tradedesk/internal/portfolio"
	"github.com/aristath/tradedesk/internal/protocols"
	"github.com/aristath/tradedesk/internal/registry"
	"github.com/aristath/tradedesk/internal/store"
	testutil "github.com/aristath/tradedesk/internal/testing"
)

type fakeAgent struct {
	name      string
	output    domain.AgentOutput
	shouldHit bool
}

func (f *fakeAgent) Name() string        { return f.name }
func (f *fakeAgent) Description() string { return f.name + " agent" }
func (f *fakeAgent) Analyze(ctx context.Context, pack domain.ContextPack) domain.AgentOutput {
	f.shouldHit = true
	out := f.output
	out.AgentName = f.name
	return out
}

type panickyAgent struct{}

func (panickyAgent) Name() string        { return "panicky" }
func (panickyAgent) Description() string { return "always panics" }
func (panickyAgent) Analyze(ctx context.Context, pack domain.ContextPack) domain.AgentOutput {
	panic("boom")
}

type fakeLLM struct {
	response string
	err      error
	name     string
}

func (f *fakeLLM) Name() string { return f.name }
func (f *fakeLLM) Complete(ctx context.Context, messages []domain.Message, opts protocols.CompletionOpts) (string, error) {
	return f.response, f.err
}
func (f *fakeLLM) ToolCall(ctx context.Context, messages []domain.Message, tools []domain.ToolSchema, opts protocols.CompletionOpts) (domain.ToolCallResult, error) {
	return domain.ToolCallResult{}, nil
}

func newTestOrchestrator(t *testing.T) (*orchestrator.Orchestrator, *registry.Registry, *store.Store) {
	t.Helper()
	db, cleanup := testutil.NewTestDB(t, "index")
	t.Cleanup(cleanup)

	st, err := store.New(t.TempDir(), db, zerolog.Nop())
	require.NoError(t, err)

	b, err := bus.New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	reg := registry.New(zerolog.Nop())
	tracker := portfolio.New(st, zerolog.Nop())
	mem := memory.New(st, 0, 0)

	orch := orchestrator.New(b, st, reg, tracker, mem, zerolog.Nop())
	return orch, reg, st
}

func triggerEvent() domain.Event {
	return domain.Event{
		ID:            "evt_trigger",
		Type:          domain.EventIntegrationInput,
		Timestamp:     time.Now().UTC(),
		CorrelationID: "corr_1",
		Source:        "test",
		Payload:       map[string]any{"ticker": "NVDA"},
	}
}

func TestAnalyzeWithNoLLMProviderProducesFallbackMemo(t *testing.T) {
	orch, reg, _ := newTestOrchestrator(t)
	reg.Register(registry.KindAgent, &fakeAgent{name: "macro", output: domain.AgentOutput{Confidence: 0.7}})

	memo, signal, err := orch.Analyze(context.Background(), triggerEvent(), domain.Now(time.Now().UTC()))
	require.NoError(t, err)
	assert.Nil(t, signal)
	assert.Contains(t, memo.ExecutiveSummary, "No LLM provider")
	assert.Contains(t, memo.AgentsUsed, "macro")
}

func TestAnalyzeSynthesizesHoldSignalProducesNoSignal(t *testing.T) {
	orch, reg, _ := newTestOrchestrator(t)
	reg.Register(registry.KindAgent, &fakeAgent{name: "macro", output: domain.AgentOutput{Confidence: 0.5}})
	reg.Register(registry.KindLLM, &fakeLLM{name: "fake-llm", response: `{
		"executive_summary": "Not enough conviction to trade.",
		"signal": {"ticker": "NVDA", "direction": "hold", "confidence": 0.3}
	}`})

	memo, signal, err := orch.Analyze(context.Background(), triggerEvent(), domain.Now(time.Now().UTC()))
	require.NoError(t, err)
	assert.Nil(t, signal)
	assert.Equal(t, "Not enough conviction to trade.", memo.ExecutiveSummary)
}

func TestAnalyzePersistsNonHoldSignalAndPublishesEvent(t *testing.T) {
	orch, reg, st := newTestOrchestrator(t)
	reg.Register(registry.KindAgent, &fakeAgent{name: "macro", output: domain.AgentOutput{Confidence: 0.9}})
	reg.Register(registry.KindLLM, &fakeLLM{name: "fake-llm", response: "```json\n" + `{
		"executive_summary": "Strong buy thesis on NVDA.",
		"catalyst": "earnings beat",
		"signal": {"ticker": "NVDA", "direction": "buy", "confidence": 0.85, "horizon": "3 months"}
	}` + "\n```"})

	memo, signal, err := orch.Analyze(context.Background(), triggerEvent(), domain.Now(time.Now().UTC()))
	require.NoError(t, err)
	require.NotNil(t, signal)
	assert.Equal(t, "NVDA", signal.Ticker)
	assert.Equal(t, domain.DirectionBuy, signal.Direction)
	assert.Equal(t, memo.ID, signal.MemoID)
	assert.Equal(t, "corr_1", signal.CorrelationID)

	stored, ok, err := store.ReadJSON[domain.Signal](st, store.KindSignals, signal.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "NVDA", stored.Ticker)
}

func TestAnalyzeIsolatesPanickingAgent(t *testing.T) {
	orch, reg, _ := newTestOrchestrator(t)
	reg.Register(registry.KindAgent, panickyAgent{})
	reg.Register(registry.KindAgent, &fakeAgent{name: "macro", output: domain.AgentOutput{Confidence: 0.4}})
	reg.Register(registry.KindLLM, &fakeLLM{name: "fake-llm", response: `{"executive_summary": "ok", "signal": {"direction": "hold"}}`})

	memo, _, err := orch.Analyze(context.Background(), triggerEvent(), domain.Now(time.Now().UTC()))
	require.NoError(t, err)
	assert.Contains(t, memo.AgentsUsed, "macro")
	assert.Contains(t, memo.AgentsUsed, "panicky")
}
