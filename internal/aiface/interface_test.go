package aiface_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradedesk/internal/aiface"
	"github.com/aristath/tradedesk/internal/bus"
	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/idgen"
	"github.com/aristath/tradedesk/internal/portfolio"
	"github.com/aristath/tradedesk/internal/protocols"
	"github.com/aristath/tradedesk/internal/registry"
	"github.com/aristath/tradedesk/internal/scheduler"
	"github.com/aristath/tradedesk/internal/store"
	testutil "github.com/aristath/tradedesk/internal/testing"
)

// scriptedLLM plays back a fixed sequence of ToolCallResults, one per
// call, so a test can drive the tool loop through an exact number of
// rounds without a real model.
type scriptedLLM struct {
	results []domain.ToolCallResult
	calls   int
}

func (s *scriptedLLM) Name() string { return "scripted" }
func (s *scriptedLLM) Complete(ctx context.Context, messages []domain.Message, opts protocols.CompletionOpts) (string, error) {
	return "done", nil
}
func (s *scriptedLLM) ToolCall(ctx context.Context, messages []domain.Message, tools []domain.ToolSchema, opts protocols.CompletionOpts) (domain.ToolCallResult, error) {
	if s.calls >= len(s.results) {
		return domain.ToolCallResult{Text: "nothing more to do"}, nil
	}
	r := s.results[s.calls]
	s.calls++
	return r, nil
}

func newTestInterface(t *testing.T, llm protocols.LLMProvider) (*aiface.Interface, *registry.Registry, *store.Store) {
	t.Helper()
	db, cleanup := testutil.NewTestDB(t, "index")
	t.Cleanup(cleanup)

	st, err := store.New(t.TempDir(), db, zerolog.Nop())
	require.NoError(t, err)

	b, err := bus.New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	reg := registry.New(zerolog.Nop())
	if llm != nil {
		reg.Register(registry.KindLLM, llm)
	}

	tracker := portfolio.New(st, zerolog.Nop())
	sch, err := scheduler.New(st, b, reg, scheduler.Config{}, zerolog.Nop())
	require.NoError(t, err)

	iface, err := aiface.New(reg, st, b, tracker, sch, zerolog.Nop())
	require.NoError(t, err)
	return iface, reg, st
}

func TestHandleMessageWithNoLLMProviderConfigured(t *testing.T) {
	iface, _, _ := newTestInterface(t, nil)
	reply := iface.HandleMessage(context.Background(), "hello", "chan1", "test")
	assert.Contains(t, reply, "No AI provider configured")
}

func TestHandleMessageReturnsDirectTextWithNoToolCalls(t *testing.T) {
	llm := &scriptedLLM{results: []domain.ToolCallResult{{Text: "Hi there!"}}}
	iface, _, _ := newTestInterface(t, llm)

	reply := iface.HandleMessage(context.Background(), "hello", "chan1", "test")
	assert.Equal(t, "Hi there!", reply)
}

func TestHandleMessageExecutesGetPortfolioTool(t *testing.T) {
	llm := &scriptedLLM{results: []domain.ToolCallResult{
		{ToolCalls: []domain.ToolCall{{ID: "1", Name: "get_portfolio", Arguments: map[string]any{"portfolio_type": "both"}}}},
		{Text: "Your portfolios are empty."},
	}}
	iface, _, _ := newTestInterface(t, llm)

	reply := iface.HandleMessage(context.Background(), "show my portfolio", "chan1", "test")
	assert.Equal(t, "Your portfolios are empty.", reply)
	assert.Equal(t, 2, llm.calls)
}

func TestHandleMessageOpensPotentialPositionAndPersistsSignal(t *testing.T) {
	llm := &scriptedLLM{results: []domain.ToolCallResult{
		{ToolCalls: []domain.ToolCall{{
			ID:   "1",
			Name: "open_potential_position",
			Arguments: map[string]any{
				"ticker": "nvda", "direction": "buy", "catalyst": "earnings",
				"confidence": 0.8, "entry_target": 120.0, "horizon": "3 months",
			},
		}}},
		{Text: "Proposed a buy on NVDA."},
	}}
	iface, _, st := newTestInterface(t, llm)

	reply := iface.HandleMessage(context.Background(), "propose a trade on NVDA", "chan1", "test")
	assert.Equal(t, "Proposed a buy on NVDA.", reply)

	signals, err := store.ListJSON[domain.Signal](st, store.KindSignals)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "NVDA", signals[0].Ticker)
	assert.Equal(t, domain.DirectionBuy, signals[0].Direction)
}

func TestHandleMessageConfirmSignalUpdatesHumanBook(t *testing.T) {
	llm := &scriptedLLM{}
	iface, _, st := newTestInterface(t, llm)

	signal := domain.Signal{
		ID: idgen.Signal(), Ticker: "NVDA", Direction: domain.DirectionBuy,
		Status: domain.SignalDelivered, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.WriteJSON(st, store.KindSignals, signal.ID, signal))

	llm.results = []domain.ToolCallResult{
		{ToolCalls: []domain.ToolCall{{
			ID: "1", Name: "confirm_signal",
			Arguments: map[string]any{"signal_id": signal.ID, "entry_price": 125.5, "quantity": 10.0},
		}}},
		{Text: "Confirmed."},
	}

	reply := iface.HandleMessage(context.Background(), "I bought NVDA", "chan1", "test")
	assert.Equal(t, "Confirmed.", reply)

	pos, ok, err := iface.Portfolio().Position(domain.BookHuman, "NVDA")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 125.5, pos.EntryPrice)
}

func TestHandleMessagePersistsConversationHistory(t *testing.T) {
	llm := &scriptedLLM{results: []domain.ToolCallResult{{Text: "ack"}}}
	iface, _, st := newTestInterface(t, llm)

	iface.HandleMessage(context.Background(), "hello", "chan1", "test")

	history, err := st.LoadChatHistory()
	require.NoError(t, err)
	require.Len(t, history["chan1"], 2)
	assert.Equal(t, domain.RoleUser, history["chan1"][0].Role)
	assert.Equal(t, domain.RoleAssistant, history["chan1"][1].Role)
}

func TestHandleScheduledPromptDoesNotPersistWhenDisabled(t *testing.T) {
	llm := &scriptedLLM{results: []domain.ToolCallResult{{Text: "scheduled run complete"}}}
	iface, _, st := newTestInterface(t, llm)

	reply := iface.HandleScheduledPrompt(context.Background(), "run the daily check", "chan1", "scheduler", false)
	assert.Equal(t, "scheduled run complete", reply)

	history, err := st.LoadChatHistory()
	require.NoError(t, err)
	assert.Empty(t, history["chan1"])
}
