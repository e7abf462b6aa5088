// Package concentration implements a RiskRule that rejects signals which
// would push exposure to a single ticker past a configured ceiling.
// Grounded on original_source/plugins/risk_rules/concentration.py.
package concentration

import (
	"fmt"

	"github.com/aristath/tradedesk/internal/domain"
)

// Rule rejects signals that would create excessive single-position
// concentration. Sector-level exposure is threaded through
// PortfolioSummary.SectorExposure when a plugin populates it, but the
// reference implementation never actually computed that figure either --
// MaxSectorExposure is accepted for configuration-field parity only:
// Evaluate does not check sector exposure.
type Rule struct {
	MaxSinglePosition float64
	MaxSectorExposure float64
}

// New creates a Rule. Zero values fall back to the reference defaults of
// 15% per position and 30% per sector.
func New(maxSinglePosition, maxSectorExposure float64) *Rule {
	if maxSinglePosition <= 0 {
		maxSinglePosition = 0.15
	}
	if maxSectorExposure <= 0 {
		maxSectorExposure = 0.30
	}
	return &Rule{MaxSinglePosition: maxSinglePosition, MaxSectorExposure: maxSectorExposure}
}

// Name identifies this rule in the registry and in RuleEvaluation output.
func (r *Rule) Name() string { return "concentration" }

// Evaluate implements protocols.RiskRule.
func (r *Rule) Evaluate(signal domain.Signal, portfolio domain.PortfolioSummary) domain.RuleEvaluation {
	if len(portfolio.Positions) == 0 || portfolio.TotalValue <= 0 {
		return domain.RuleEvaluation{
			RuleName: r.Name(),
			Passed:   true,
			Reason:   "no existing positions -- concentration check passes",
		}
	}

	var positionValue float64
	for _, p := range portfolio.Positions {
		if p.Ticker != signal.Ticker || !p.IsOpen() {
			continue
		}
		price := p.EntryPrice
		if p.CurrentPrice != nil {
			price = *p.CurrentPrice
		}
		positionValue += price * p.EffectiveSize()
	}

	if positionValue > 0 {
		positionPct := positionValue / portfolio.TotalValue
		if positionPct >= r.MaxSinglePosition {
			return domain.RuleEvaluation{
				RuleName: r.Name(),
				Passed:   false,
				Reason: fmt.Sprintf("%s already %.1f%% of portfolio (limit %.1f%%)",
					signal.Ticker, positionPct*100, r.MaxSinglePosition*100),
				CurrentValue: positionPct,
				LimitValue:   r.MaxSinglePosition,
			}
		}
	}

	return domain.RuleEvaluation{
		RuleName: r.Name(),
		Passed:   true,
		Reason:   "position concentration within limits",
	}
}
