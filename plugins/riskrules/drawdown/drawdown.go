// Package drawdown implements a RiskRule that pauses new signals once
// portfolio drawdown exceeds a configured ceiling. Grounded on
// original_source/plugins/risk_rules/drawdown.py for the default
// threshold and the fallback approximation; enriched with a real running
// peak tracked over an equity curve, computed with gonum/floats from the
// same gonum module the teacher's internal/modules/optimization/risk.go
// leans on for portfolio statistics.
package drawdown

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/aristath/tradedesk/internal/domain"
)

// Rule rejects signals once the portfolio's drawdown from its peak value
// exceeds MaxDrawdown.
type Rule struct {
	MaxDrawdown float64

	// EquityCurve, when non-empty, is the recent series of total
	// portfolio values used to compute a real peak-to-current drawdown.
	// When empty the rule falls back to the reference's approximation
	// derived from TotalPnL alone.
	EquityCurve []float64
}

// New creates a Rule. A zero maxDrawdown falls back to the reference
// default of 15%.
func New(maxDrawdown float64) *Rule {
	if maxDrawdown <= 0 {
		maxDrawdown = 0.15
	}
	return &Rule{MaxDrawdown: maxDrawdown}
}

// Name identifies this rule in the registry and in RuleEvaluation output.
func (r *Rule) Name() string { return "drawdown" }

// Evaluate implements protocols.RiskRule.
func (r *Rule) Evaluate(signal domain.Signal, portfolio domain.PortfolioSummary) domain.RuleEvaluation {
	if len(portfolio.Positions) == 0 || portfolio.TotalValue <= 0 {
		return domain.RuleEvaluation{
			RuleName: r.Name(),
			Passed:   true,
			Reason:   "no positions -- drawdown check passes",
		}
	}

	current := r.currentDrawdown(portfolio)
	passed := current < r.MaxDrawdown
	reason := fmt.Sprintf("portfolio drawdown %.1f%% within limit %.1f%%", current*100, r.MaxDrawdown*100)
	if !passed {
		reason = fmt.Sprintf("portfolio drawdown %.1f%% exceeds limit %.1f%%", current*100, r.MaxDrawdown*100)
	}

	return domain.RuleEvaluation{
		RuleName:     r.Name(),
		Passed:       passed,
		Reason:       reason,
		CurrentValue: current,
		LimitValue:   r.MaxDrawdown,
	}
}

// currentDrawdown prefers the true peak-to-current drawdown over the
// tracked equity curve; with fewer than two points it falls back to the
// reference's approximation from the portfolio's aggregate P&L.
func (r *Rule) currentDrawdown(portfolio domain.PortfolioSummary) float64 {
	if len(r.EquityCurve) >= 2 {
		peak := floats.Max(r.EquityCurve)
		current := r.EquityCurve[len(r.EquityCurve)-1]
		if peak <= 0 {
			return 0
		}
		drawdown := (peak - current) / peak
		if drawdown < 0 {
			return 0
		}
		return drawdown
	}

	if portfolio.TotalPnL >= 0 {
		return 0
	}
	peakEstimate := portfolio.TotalValue - portfolio.TotalPnL
	if peakEstimate <= 0 {
		return 0
	}
	return -portfolio.TotalPnL / peakEstimate
}
