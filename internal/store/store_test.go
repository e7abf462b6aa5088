package store_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/store"
	testutil "github.com/aristath/tradedesk/internal/testing"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, cleanup := testutil.NewTestDB(t, "index")
	t.Cleanup(cleanup)

	s, err := store.New(t.TempDir(), db, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestWriteReadListDeleteEntity(t *testing.T) {
	s := newTestStore(t)

	sig := domain.Signal{ID: "sig_1", Ticker: "NVDA", Direction: domain.DirectionBuy, Status: domain.SignalProposed}
	require.NoError(t, store.WriteJSON(s, store.KindSignals, sig.ID, sig))

	got, ok, err := store.ReadJSON[domain.Signal](s, store.KindSignals, "sig_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "NVDA", got.Ticker)

	sig2 := domain.Signal{ID: "sig_2", Ticker: "AAPL", Direction: domain.DirectionSell, Status: domain.SignalProposed}
	require.NoError(t, store.WriteJSON(s, store.KindSignals, sig2.ID, sig2))

	keys, err := s.ListEntities(store.KindSignals)
	require.NoError(t, err)
	assert.Equal(t, []string{"sig_1", "sig_2"}, keys)

	deleted, err := s.DeleteEntity(store.KindSignals, "sig_1")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, ok, err = store.ReadJSON[domain.Signal](s, store.KindSignals, "sig_1")
	require.NoError(t, err)
	assert.False(t, ok)

	deletedAgain, err := s.DeleteEntity(store.KindSignals, "sig_1")
	require.NoError(t, err)
	assert.False(t, deletedAgain)
}

func TestReadEntityMissingIsNotError(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.ReadEntity(store.KindTasks, "task_missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteMemoRoundTrip(t *testing.T) {
	s := newTestStore(t)

	memo := domain.InvestmentMemo{
		ID:               "memo_1",
		CreatedAt:        time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
		ExecutiveSummary: "NVDA looks attractive ahead of earnings.",
		Catalyst:         "Q4 earnings beat expected",
		AgentsUsed:       []string{"macro", "technical"},
		ModelProvider:    "openai",
		ModelName:        "gpt-4o",
	}

	key, err := s.WriteMemo(memo, "NVDA", domain.DirectionBuy)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-15_NVDA_buy", key)

	loaded, body, ok, err := s.ReadMemo(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, memo.ID, loaded.ID)
	assert.Equal(t, memo.AgentsUsed, loaded.AgentsUsed)
	assert.Contains(t, body, "NVDA looks attractive")
	assert.Contains(t, body, "Q4 earnings beat expected")
}

func TestAppendMarketRowRejectsFutureAvailability(t *testing.T) {
	s := newTestStore(t)

	row := domain.MarketRow{
		Ticker:      "NVDA",
		Timestamp:   time.Now().UTC(),
		AvailableAt: time.Now().UTC().Add(time.Hour),
		Close:       120.5,
		Source:      "test",
	}
	err := s.AppendMarketRow(row)
	assert.Error(t, err)
}

func TestAppendAndQueryMarketRows(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)

	rows := []domain.MarketRow{
		{Ticker: "NVDA", Timestamp: base, AvailableAt: base, Close: 100, Source: "yahoo"},
		{Ticker: "NVDA", Timestamp: base.Add(time.Minute), AvailableAt: base.Add(time.Minute), Close: 101, Source: "yahoo"},
		{Ticker: "NVDA", Timestamp: base.Add(2 * time.Minute), AvailableAt: base.Add(2 * time.Minute), Close: 102, Source: "yahoo"},
	}
	for _, r := range rows {
		require.NoError(t, s.AppendMarketRow(r))
	}

	got, err := s.QueryMarket("NVDA", nil, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 102.0, got[0].Close, "newest first")

	asOf := base.Add(time.Minute)
	got, err = s.QueryMarket("NVDA", &asOf, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	price, err := s.LatestPrice("NVDA", nil)
	require.NoError(t, err)
	require.NotNil(t, price)
	assert.Equal(t, 102.0, *price)
}

func TestRebuildMarketIndexReplaysAppendLog(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t, "index")
	t.Cleanup(cleanup)
	s, err := store.New(t.TempDir(), db, zerolog.Nop())
	require.NoError(t, err)
	base := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)

	require.NoError(t, s.AppendMarketRow(domain.MarketRow{
		Ticker: "AAPL", Timestamp: base, AvailableAt: base, Close: 190, Source: "yahoo",
	}))

	// Simulate the index being lost.
	_, err = db.Conn().Exec(`DELETE FROM market_rows`)
	require.NoError(t, err)
	price, err := s.LatestPrice("AAPL", nil)
	require.NoError(t, err)
	require.Nil(t, price)

	require.NoError(t, s.RebuildMarketIndex())

	price, err = s.LatestPrice("AAPL", nil)
	require.NoError(t, err)
	require.NotNil(t, price)
	assert.Equal(t, 190.0, *price)
}

func TestIndexAndSearchMemories(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	mem := domain.Memory{
		ID:               "mem_1",
		CreatedAt:        now,
		Ticker:           "NVDA",
		DivergenceType:   domain.DivergenceTiming,
		WhoWasRight:      domain.WhoWasRightAI,
		Lesson:           "AI entered earlier and captured more upside.",
		Tags:             []string{"NVDA", "earnings"},
		ConfidenceImpact: 0.05,
	}
	require.NoError(t, s.IndexMemory(mem))

	ids, err := s.SearchMemories(store.SearchMemoriesOptions{Ticker: "NVDA", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"mem_1"}, ids)

	ids, err = s.SearchMemories(store.SearchMemoriesOptions{Tags: []string{"earnings"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"mem_1"}, ids)

	ids, err = s.SearchMemories(store.SearchMemoriesOptions{Ticker: "AAPL"})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestAppendAndLoadChatHistory(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AppendChat("telegram:123", domain.RoleUser, "what's NVDA doing?", nil))
	require.NoError(t, s.AppendChat("telegram:123", domain.RoleAssistant, "up 2% today", map[string]any{"tool_call_id": "call_1"}))
	require.NoError(t, s.AppendChat("discord:456", domain.RoleUser, "hello", nil))

	history, err := s.LoadChatHistory()
	require.NoError(t, err)
	require.Len(t, history["telegram:123"], 2)
	assert.Equal(t, domain.RoleUser, history["telegram:123"][0].Role)
	assert.Equal(t, "call_1", history["telegram:123"][1].Extras["tool_call_id"])
	require.Len(t, history["discord:456"], 1)
}
