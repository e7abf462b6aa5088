package agents

import (
	"context"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/protocols"
)

const companySystemPrompt = `You are a fundamental equity research analyst at a top investment bank.

Your job is to assess a company's business quality, competitive position, and
valuation relative to its own history and peers. You focus on:
- Revenue and margin trajectory
- Competitive moat and market share trends
- Balance sheet health and capital allocation
- Valuation vs. growth and quality

Given the current context, provide a concise company-level assessment.

Respond in JSON format:
{
    "analysis": "your company assessment (2-3 paragraphs)",
    "confidence": 0.0-1.0,
    "direction": "buy" | "sell" | "hold",
    "key_factors": ["factor1", "factor2", "factor3"]
}`

// Company is the fundamental/company-level analysis agent. Grounded on
// the macro agent's analyze/parse shape
// (original_source/plugins/agents/macro.py), generalized to the
// company-research agent role spec.md's agent pipeline names alongside
// macro and technical.
type Company struct {
	llm protocols.LLMProvider
}

// NewCompany creates a Company agent backed by llm.
func NewCompany(llm protocols.LLMProvider) *Company {
	return &Company{llm: llm}
}

// Name implements protocols.AIAgent.
func (c *Company) Name() string { return "company" }

// Description implements protocols.AIAgent.
func (c *Company) Description() string {
	return "Company Analyst: business quality, competitive position, and valuation"
}

// Analyze implements protocols.AIAgent.
func (c *Company) Analyze(ctx context.Context, pack domain.ContextPack) domain.AgentOutput {
	return runJSONAgent(ctx, c.llm, c.Name(), companySystemPrompt, buildCommonPrompt(pack))
}
