// Package risk implements the risk gate every proposed Signal passes
// through before it can be approved: every registered RiskRule is
// evaluated, independently and unconditionally, and the signal is approved
// only if every rule passes. Grounded on
// original_source/core/risk_engine.go (the AND-of-all-rules evaluator
// referenced throughout plugins/risk_rules) and on the teacher's
// allocation-rule-evaluator shape in internal/modules/allocation.
package risk

import (
	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/protocols"
)

// Engine runs every registered RiskRule against a proposed Signal.
type Engine struct {
	rules []protocols.RiskRule
	log   zerolog.Logger
}

// New creates an Engine over the given rules, evaluated in the order given.
func New(rules []protocols.RiskRule, log zerolog.Logger) *Engine {
	return &Engine{rules: rules, log: log.With().Str("component", "risk_engine").Logger()}
}

// Evaluate runs every rule against signal and portfolio and returns the
// aggregate result. Every rule is always evaluated -- there is no
// short-circuit on first failure, so a caller sees the full set of reasons
// a signal was rejected, not just the first one.
func (e *Engine) Evaluate(signal domain.Signal, portfolio domain.PortfolioSummary) domain.RiskResult {
	evaluations := make([]domain.RuleEvaluation, 0, len(e.rules))
	approved := true

	for _, rule := range e.rules {
		evaluation := rule.Evaluate(signal, portfolio)
		evaluations = append(evaluations, evaluation)
		if !evaluation.Passed {
			approved = false
			e.log.Info().
				Str("rule", evaluation.RuleName).
				Str("ticker", signal.Ticker).
				Str("reason", evaluation.Reason).
				Msg("signal rejected by risk rule")
		}
	}

	return domain.RiskResult{Approved: approved, Evaluations: evaluations}
}

// Rules returns the names of the rules this engine evaluates, in order.
func (e *Engine) Rules() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name()
	}
	return names
}
