package risk_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/protocols"
	"github.com/aristath/tradedesk/internal/risk"
)

type fakeRule struct {
	name string
	eval domain.RuleEvaluation
}

func (r fakeRule) Name() string { return r.name }

func (r fakeRule) Evaluate(signal domain.Signal, portfolio domain.PortfolioSummary) domain.RuleEvaluation {
	return r.eval
}

func TestEvaluateApprovesWhenAllRulesPass(t *testing.T) {
	e := risk.New([]protocols.RiskRule{
		fakeRule{name: "a", eval: domain.RuleEvaluation{RuleName: "a", Passed: true}},
		fakeRule{name: "b", eval: domain.RuleEvaluation{RuleName: "b", Passed: true}},
	}, zerolog.Nop())

	result := e.Evaluate(domain.Signal{Ticker: "NVDA"}, domain.PortfolioSummary{})
	assert.True(t, result.Approved)
	assert.Empty(t, result.FailedRules())
}

func TestEvaluateRejectsAndReportsEveryFailure(t *testing.T) {
	e := risk.New([]protocols.RiskRule{
		fakeRule{name: "a", eval: domain.RuleEvaluation{RuleName: "a", Passed: false, Reason: "too risky"}},
		fakeRule{name: "b", eval: domain.RuleEvaluation{RuleName: "b", Passed: true}},
		fakeRule{name: "c", eval: domain.RuleEvaluation{RuleName: "c", Passed: false, Reason: "too frequent"}},
	}, zerolog.Nop())

	result := e.Evaluate(domain.Signal{Ticker: "NVDA"}, domain.PortfolioSummary{})
	assert.False(t, result.Approved)
	assert.ElementsMatch(t, []string{"a", "c"}, result.FailedRules())
	assert.Len(t, result.Evaluations, 3, "every rule still ran, not just until the first failure")
}
