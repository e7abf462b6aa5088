package portfolio_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/portfolio"
	"github.com/aristath/tradedesk/internal/store"
	testutil "github.com/aristath/tradedesk/internal/testing"
)

func newTestTracker(t *testing.T) *portfolio.Tracker {
	t.Helper()
	db, cleanup := testutil.NewTestDB(t, "index")
	t.Cleanup(cleanup)

	st, err := store.New(t.TempDir(), db, zerolog.Nop())
	require.NoError(t, err)

	return portfolio.New(st, zerolog.Nop())
}

func buySignal(ticker string, entry float64) domain.Signal {
	return domain.Signal{ID: "sig_1", Ticker: ticker, Direction: domain.DirectionBuy, EntryTarget: &entry}
}

func TestAIOpenAndCloseLongPosition(t *testing.T) {
	tr := newTestTracker(t)

	opened, err := tr.AIOpenPosition(buySignal("NVDA", 100))
	require.NoError(t, err)
	assert.Equal(t, domain.PositionLong, opened.Direction)
	assert.Equal(t, domain.PositionMonitoring, opened.Status)

	closed, ok, err := tr.AIClosePosition("NVDA", 120)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.PositionClosed, closed.Status)
	require.NotNil(t, closed.RealizedPnL)
	assert.Equal(t, 20.0, *closed.RealizedPnL)
	require.NotNil(t, closed.RealizedPnLPercent)
	assert.InDelta(t, 20.0, *closed.RealizedPnLPercent, 0.001)
}

func TestAICloseShortPositionPnLIsInverted(t *testing.T) {
	tr := newTestTracker(t)

	sellSignal := domain.Signal{ID: "sig_2", Ticker: "TSLA", Direction: domain.DirectionSell, EntryTarget: float64Ptr(200)}
	_, err := tr.AIOpenPosition(sellSignal)
	require.NoError(t, err)

	closed, ok, err := tr.AIClosePosition("TSLA", 180)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, closed.RealizedPnL)
	assert.Equal(t, 20.0, *closed.RealizedPnL, "short position profits when price falls")
}

func TestAICloseMissingPositionReturnsNotFound(t *testing.T) {
	tr := newTestTracker(t)
	_, ok, err := tr.AIClosePosition("MISSING", 100)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHumanSkipExcludedFromSummary(t *testing.T) {
	tr := newTestTracker(t)
	signal := buySignal("AAPL", 150)

	skipped, err := tr.HumanSkipPosition(signal, "telegram", "too expensive")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionSkipped, skipped.Status)

	summary, err := tr.Summary(domain.BookHuman)
	require.NoError(t, err)
	assert.Empty(t, summary.Positions, "skipped positions do not count as open")
}

func TestHumanInitiatedTradeWithNoSignal(t *testing.T) {
	tr := newTestTracker(t)
	size := 10.0

	position, err := tr.HumanInitiatedTrade("MSFT", domain.PositionLong, 300, &size, "manual", "saw it on the news")
	require.NoError(t, err)
	assert.Empty(t, position.SignalID)
	assert.Equal(t, domain.PositionConfirmed, position.Status)
}

func TestSummaryAggregatesOpenPositionsOnly(t *testing.T) {
	tr := newTestTracker(t)

	_, err := tr.AIOpenPosition(buySignal("NVDA", 100))
	require.NoError(t, err)
	_, err = tr.AIOpenPosition(buySignal("AAPL", 50))
	require.NoError(t, err)
	_, _, err = tr.AIClosePosition("AAPL", 60)
	require.NoError(t, err)

	summary, err := tr.Summary(domain.BookAI)
	require.NoError(t, err)
	require.Len(t, summary.Positions, 1, "closed AAPL position should be excluded")
	assert.Equal(t, "NVDA", summary.Positions[0].Ticker)
	assert.Equal(t, 100.0, summary.TotalValue)
}

func TestMarkToMarketUpdatesUnrealizedPnL(t *testing.T) {
	tr := newTestTracker(t)
	_, err := tr.AIOpenPosition(buySignal("NVDA", 100))
	require.NoError(t, err)

	require.NoError(t, tr.MarkToMarket(domain.BookAI, map[string]float64{"NVDA": 110}))

	position, ok, err := tr.Position(domain.BookAI, "NVDA")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, position.PnL)
	assert.Equal(t, 10.0, *position.PnL)
}

func float64Ptr(v float64) *float64 { return &v }
