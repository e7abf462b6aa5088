// Package agents implements the built-in AIAgent pipeline: macro,
// technical, and company analysis. Grounded on
// original_source/plugins/agents/macro.py, generalized to the other two
// agent roles the spec calls for but the retrieved pack didn't include
// Python sources for.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/llmutil"
	"github.com/aristath/tradedesk/internal/protocols"
)

const macroSystemPrompt = `You are a senior macro strategist at a top investment bank.

Your job is to analyze macroeconomic conditions and their implications for markets.
You focus on:
- Inflation data (CPI, PCE, breakevens)
- Employment (NFP, unemployment, JOLTS)
- Growth indicators (GDP, PMI/ISM)
- Central bank policy (FOMC, rate expectations)
- Financial conditions and liquidity
- Cross-asset signals (bonds, commodities, currencies vs equities)

Given the current market context, provide a concise macro assessment.

Respond in JSON format:
{
    "analysis": "your macro assessment (2-3 paragraphs)",
    "confidence": 0.0-1.0,
    "direction": "buy" | "sell" | "hold",
    "key_factors": ["factor1", "factor2", "factor3"]
}`

// Macro is the macro strategist agent: CPI, employment, GDP, rates,
// financial conditions.
type Macro struct {
	llm protocols.LLMProvider
}

// NewMacro creates a Macro agent backed by llm.
func NewMacro(llm protocols.LLMProvider) *Macro {
	return &Macro{llm: llm}
}

// Name implements protocols.AIAgent.
func (m *Macro) Name() string { return "macro" }

// Description implements protocols.AIAgent.
func (m *Macro) Description() string {
	return "Macro Strategist: CPI, employment, GDP, rates, financial conditions"
}

// Analyze implements protocols.AIAgent.
func (m *Macro) Analyze(ctx context.Context, pack domain.ContextPack) domain.AgentOutput {
	return runJSONAgent(ctx, m.llm, m.Name(), macroSystemPrompt, buildCommonPrompt(pack))
}

func buildCommonPrompt(pack domain.ContextPack) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current time: %s\n", pack.TimeContext.CurrentTime.Format("2006-01-02T15:04:05Z07:00"))

	if len(pack.MarketSnapshot.Prices) > 0 {
		b.WriteString("\nMarket prices:\n")
		for ticker, price := range pack.MarketSnapshot.Prices {
			fmt.Fprintf(&b, "  %s: %.2f\n", ticker, price)
		}
	}

	if len(pack.AIPortfolio.Positions) > 0 {
		fmt.Fprintf(&b, "\nAI portfolio: %d positions, P&L %.1f%%\n",
			len(pack.AIPortfolio.Positions), pack.AIPortfolio.TotalPnLPercent)
	}

	if len(pack.RecentEvents) > 0 {
		fmt.Fprintf(&b, "\nRecent events (%d):\n", len(pack.RecentEvents))
		for i, event := range pack.RecentEvents {
			if i >= 5 {
				break
			}
			payload, _ := json.Marshal(event.Payload)
			fmt.Fprintf(&b, "  [%s] %s: %s\n", event.Type, event.Source, truncate(string(payload), 200))
		}
	}

	if len(pack.RelevantMemories) > 0 {
		fmt.Fprintf(&b, "\nRelevant memories (%d):\n", len(pack.RelevantMemories))
		for i, mem := range pack.RelevantMemories {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&b, "  - %s\n", truncate(mem.Lesson, 150))
		}
	}

	fmt.Fprintf(&b, "\nTrigger event: [%s] %s\n", pack.TriggerEvent.Type, truncate(payloadJSON(pack.TriggerEvent.Payload), 300))

	return b.String()
}

func payloadJSON(payload map[string]any) string {
	b, _ := json.Marshal(payload)
	return string(b)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// agentJSONResponse is the common {analysis, confidence, direction,
// key_factors} shape every built-in agent's system prompt asks for.
type agentJSONResponse struct {
	Analysis   string   `json:"analysis"`
	Confidence float64  `json:"confidence"`
	Direction  string   `json:"direction"`
	KeyFactors []string `json:"key_factors"`
}

// runJSONAgent sends systemPrompt/userPrompt to llm and parses the common
// agent JSON response shape, falling back to a degraded AgentOutput on any
// failure rather than propagating the error -- a single agent's failure
// must never abort the whole pipeline.
func runJSONAgent(ctx context.Context, llm protocols.LLMProvider, name, systemPrompt, userPrompt string) domain.AgentOutput {
	messages := []domain.Message{
		{Role: domain.RoleSystem, Text: systemPrompt},
		{Role: domain.RoleUser, Text: userPrompt},
	}

	response, err := llm.Complete(ctx, messages, protocols.CompletionOpts{})
	if err != nil {
		return domain.AgentOutput{AgentName: name, Analysis: fmt.Sprintf("%s analysis failed: %v", name, err), Confidence: 0}
	}

	var parsed agentJSONResponse
	if err := json.Unmarshal([]byte(llmutil.StripCodeFence(response)), &parsed); err != nil {
		return domain.AgentOutput{AgentName: name, Analysis: response, Confidence: 0.5}
	}

	output := domain.AgentOutput{
		AgentName:  name,
		Analysis:   parsed.Analysis,
		Confidence: parsed.Confidence,
		KeyFactors: parsed.KeyFactors,
	}
	if parsed.Direction != "" {
		direction := domain.Direction(parsed.Direction)
		output.SuggestedDirection = &direction
	}
	if output.Analysis == "" {
		output.Analysis = response
	}
	return output
}
