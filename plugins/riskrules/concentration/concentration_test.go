package concentration_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/plugins/riskrules/concentration"
)

func TestRulePassesWithNoExistingPositions(t *testing.T) {
	r := concentration.New(0, 0)
	eval := r.Evaluate(domain.Signal{Ticker: "NVDA"}, domain.PortfolioSummary{})
	assert.True(t, eval.Passed)
}

func TestRuleFailsWhenPositionOverLimit(t *testing.T) {
	r := concentration.New(0.15, 0.30)
	price := 200.0
	portfolio := domain.PortfolioSummary{
		TotalValue: 1000,
		Positions: []domain.Position{
			{Ticker: "NVDA", EntryPrice: 200, CurrentPrice: &price, Status: domain.PositionMonitoring},
		},
	}
	eval := r.Evaluate(domain.Signal{Ticker: "NVDA"}, portfolio)
	assert.False(t, eval.Passed)
	assert.Contains(t, eval.Reason, "NVDA")
}

func TestRuleIgnoresClosedPositions(t *testing.T) {
	r := concentration.New(0.15, 0.30)
	portfolio := domain.PortfolioSummary{
		TotalValue: 1000,
		Positions: []domain.Position{
			{Ticker: "NVDA", EntryPrice: 900, Status: domain.PositionClosed},
		},
	}
	eval := r.Evaluate(domain.Signal{Ticker: "NVDA"}, portfolio)
	assert.True(t, eval.Passed)
}
