package di

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/agents"
	"github.com/aristath/tradedesk/internal/config"
	"github.com/aristath/tradedesk/internal/protocols"
	"github.com/aristath/tradedesk/internal/registry"
	"github.com/aristath/tradedesk/plugins/integrations/discord"
	"github.com/aristath/tradedesk/plugins/integrations/telegram"
	"github.com/aristath/tradedesk/plugins/integrations/webhook"
	"github.com/aristath/tradedesk/plugins/integrations/websocket"
	"github.com/aristath/tradedesk/plugins/llm/anthropic"
	"github.com/aristath/tradedesk/plugins/llm/openai"
	"github.com/aristath/tradedesk/plugins/marketdata/yahoofinance"
	"github.com/aristath/tradedesk/plugins/riskrules/concentration"
	"github.com/aristath/tradedesk/plugins/riskrules/confidence"
	"github.com/aristath/tradedesk/plugins/riskrules/drawdown"
	"github.com/aristath/tradedesk/plugins/riskrules/frequency"
)

// registerPlugins creates and registers every plugin cfg has credentials
// or listen addresses for. Each plugin is optional: a zero-value field
// (empty token, empty address) simply means that plugin is skipped, so a
// fresh install with no credentials still starts cleanly. eventsDir is the
// bus's own audit-log directory, which the frequency risk rule reads
// directly instead of going through the bus API.
func registerPlugins(reg *registry.Registry, eventBus protocols.EventBus, cfg *config.Config, eventsDir string, log zerolog.Logger) {
	if cfg.TelegramBotToken != "" {
		channels := []telegram.Channel{{ID: "default", ChatID: cfg.TelegramChatID, Direction: "both"}}
		provider := telegram.New(cfg.TelegramBotToken, channels, log)
		reg.Register(registry.KindInput, provider)
		reg.Register(registry.KindOutput, provider)
	}

	if cfg.DiscordBotToken != "" {
		var channels []discord.Channel
		for _, id := range splitAndTrim(cfg.DiscordChannels) {
			channels = append(channels, discord.Channel{ID: id, ChatID: id, Direction: "both"})
		}
		provider := discord.New(cfg.DiscordBotToken, channels, 0, log)
		reg.Register(registry.KindInput, provider)
		reg.Register(registry.KindOutput, provider)
	}

	if cfg.WebsocketListenAddr != "" {
		provider := websocket.New(cfg.WebsocketListenAddr, "/ws", log)
		reg.Register(registry.KindInput, provider)
		reg.Register(registry.KindOutput, provider)
	}

	if cfg.WebhookListenAddr != "" {
		provider := webhook.New(cfg.WebhookListenAddr, log)
		reg.Register(registry.KindInput, provider)
	}

	reg.Register(registry.KindMarketData, yahoofinance.New(nil, log))

	if cfg.OpenAIAPIKey != "" {
		reg.Register(registry.KindLLM, openai.New(openai.Config{APIKey: cfg.OpenAIAPIKey}))
	}
	if cfg.AnthropicAPIKey != "" {
		reg.Register(registry.KindLLM, anthropic.New(anthropic.Config{APIKey: cfg.AnthropicAPIKey}))
	}

	reg.Register(registry.KindRiskRule, confidence.New(0))
	reg.Register(registry.KindRiskRule, concentration.New(0, 0))
	reg.Register(registry.KindRiskRule, drawdown.New(0))
	reg.Register(registry.KindRiskRule, frequency.New(0, eventsDir))

	registerAgents(reg, log)
}

// registerAgents wires the built-in macro/technical/company analysis
// agents against whichever LLM provider got registered -- Anthropic
// preferred over OpenAI when both are configured, matching the teacher's
// own preference order for its primary reasoning model. With no LLM
// provider configured, no agents are registered and orchestrator.Analyze
// runs with an empty agent pipeline.
func registerAgents(reg *registry.Registry, log zerolog.Logger) {
	llm := primaryLLM(reg)
	if llm == nil {
		log.Warn().Msg("no LLM provider configured, analysis agents will not run")
		return
	}
	reg.Register(registry.KindAgent, agents.NewMacro(llm))
	reg.Register(registry.KindAgent, agents.NewTechnical(llm))
	reg.Register(registry.KindAgent, agents.NewCompany(llm))
}

func primaryLLM(reg *registry.Registry) protocols.LLMProvider {
	if p, ok := reg.Get(registry.KindLLM, "anthropic"); ok {
		if llm, ok := p.(protocols.LLMProvider); ok {
			return llm
		}
	}
	for _, p := range reg.GetAll(registry.KindLLM) {
		if llm, ok := p.(protocols.LLMProvider); ok {
			return llm
		}
	}
	return nil
}

// ruleList collects every registered RiskRule, ordered by rule name as
// reg.GetAll returns them, for handing to risk.New. Registration order is
// not preserved.
func ruleList(reg *registry.Registry) []protocols.RiskRule {
	plugins := reg.GetAll(registry.KindRiskRule)
	rules := make([]protocols.RiskRule, 0, len(plugins))
	for _, p := range plugins {
		if r, ok := p.(protocols.RiskRule); ok {
			rules = append(rules, r)
		}
	}
	return rules
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
