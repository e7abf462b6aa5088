// Package confidence implements a RiskRule that rejects signals whose
// model confidence falls below a configured minimum. Grounded on
// original_source/plugins/risk_rules/confidence.py.
package confidence

import (
	"fmt"

	"github.com/aristath/tradedesk/internal/domain"
)

// Rule rejects signals with confidence below MinConfidence.
type Rule struct {
	MinConfidence float64
}

// New creates a Rule with the given minimum confidence (0.0-1.0). Pass 0 to
// get the default of 0.6.
func New(minConfidence float64) *Rule {
	if minConfidence <= 0 {
		minConfidence = 0.6
	}
	return &Rule{MinConfidence: minConfidence}
}

// Name identifies this rule in the registry and in RuleEvaluation output.
func (r *Rule) Name() string { return "confidence" }

// Evaluate implements protocols.RiskRule.
func (r *Rule) Evaluate(signal domain.Signal, portfolio domain.PortfolioSummary) domain.RuleEvaluation {
	passed := signal.Confidence >= r.MinConfidence
	reason := fmt.Sprintf("confidence %.2f meets minimum %.2f", signal.Confidence, r.MinConfidence)
	if !passed {
		reason = fmt.Sprintf("confidence %.2f below minimum %.2f", signal.Confidence, r.MinConfidence)
	}
	return domain.RuleEvaluation{
		RuleName:     r.Name(),
		Passed:       passed,
		Reason:       reason,
		CurrentValue: signal.Confidence,
		LimitValue:   r.MinConfidence,
	}
}
