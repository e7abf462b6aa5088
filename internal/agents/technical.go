package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/markcheno/go-talib"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/protocols"
)

const technicalSystemPrompt = `You are a technical analyst at a top investment bank.

Your job is to read price action and momentum indicators and translate them into a
trade thesis. You focus on:
- Trend direction and strength (moving averages)
- Momentum (RSI, overbought/oversold conditions)
- Support and resistance implied by recent price action
- Volume confirmation

Given the computed indicators below, provide a concise technical assessment.

Respond in JSON format:
{
    "analysis": "your technical assessment (2-3 paragraphs)",
    "confidence": 0.0-1.0,
    "direction": "buy" | "sell" | "hold",
    "key_factors": ["factor1", "factor2", "factor3"]
}`

// Technical is the technical analysis agent: trend and momentum read from
// recent OHLCV history via indicator calculations, synthesized by an LLM.
// Grounded on the macro agent's analyze/parse shape
// (original_source/plugins/agents/macro.py), generalized to a second
// agent role; the indicator math is grounded on the teacher's
// trader-go/pkg/formulas/rsi.go use of go-talib.
type Technical struct {
	llm protocols.LLMProvider
}

// NewTechnical creates a Technical agent backed by llm.
func NewTechnical(llm protocols.LLMProvider) *Technical {
	return &Technical{llm: llm}
}

// Name implements protocols.AIAgent.
func (t *Technical) Name() string { return "technical" }

// Description implements protocols.AIAgent.
func (t *Technical) Description() string {
	return "Technical Analyst: trend, momentum, and support/resistance from recent price action"
}

// Analyze implements protocols.AIAgent.
func (t *Technical) Analyze(ctx context.Context, pack domain.ContextPack) domain.AgentOutput {
	prompt := buildCommonPrompt(pack) + "\n" + t.indicatorSummary(pack)
	return runJSONAgent(ctx, t.llm, t.Name(), technicalSystemPrompt, prompt)
}

// indicatorSummary lists the last snapshot price of every ticker in the
// context pack's market snapshot, or a "no price history" line when the
// snapshot is empty. The context pack carries a point snapshot, not a
// close history, so no RSI or moving-average figure is computed here.
func (t *Technical) indicatorSummary(pack domain.ContextPack) string {
	if len(pack.MarketSnapshot.Prices) == 0 {
		return "No price history available for indicator calculation."
	}

	var b strings.Builder
	b.WriteString("Indicator snapshot:\n")
	for ticker, price := range pack.MarketSnapshot.Prices {
		fmt.Fprintf(&b, "  %s: last=%.2f\n", ticker, price)
	}
	return b.String()
}

// RSI computes the period-length Relative Strength Index over closes
// (14 when period is not positive), the
// same go-talib entry point the teacher's formulas package wraps. It
// returns nil when there isn't enough history for a stable reading.
func RSI(closes []float64, period int) *float64 {
	if period <= 0 {
		period = 14
	}
	if len(closes) < period+1 {
		return nil
	}
	values := talib.Rsi(closes, period)
	if len(values) == 0 {
		return nil
	}
	last := values[len(values)-1]
	if last != last { // NaN
		return nil
	}
	return &last
}

// MovingAverageCross reports whether the fast SMA is currently above the
// slow SMA (a bullish cross) over closes, or nil if there isn't enough
// history for both averages.
func MovingAverageCross(closes []float64, fastPeriod, slowPeriod int) *bool {
	if len(closes) < slowPeriod {
		return nil
	}
	fast := talib.Sma(closes, fastPeriod)
	slow := talib.Sma(closes, slowPeriod)
	if len(fast) == 0 || len(slow) == 0 {
		return nil
	}
	bullish := fast[len(fast)-1] > slow[len(slow)-1]
	return &bullish
}
