// Package protocols declares the eight extension-point interfaces that bind
// plugins to the core. The core imports only these interfaces; it never
// imports a concrete plugin package. A plugin implementing several kinds
// (e.g. a chat transport that is both an InputAdapter and an OutputAdapter)
// satisfies several interfaces from a single concrete type and is registered
// once per kind in the registry.
package protocols

import (
	"context"
	"time"

	"github.com/aristath/tradedesk/internal/domain"
)

// EventBus is the publish/subscribe backbone all inter-component
// communication flows through.
type EventBus interface {
	Name() string
	Publish(ctx context.Context, event domain.Event) error
	Subscribe(eventType domain.EventType, callback EventHandler) Subscription
	Unsubscribe(sub Subscription)
}

// EventHandler handles one delivered event. Errors are caught, logged, and
// never propagated back to the publisher.
type EventHandler func(ctx context.Context, event domain.Event) error

// Subscription identifies a single registration made with Subscribe, so it
// can be removed later with Unsubscribe.
type Subscription struct {
	EventType domain.EventType
	ID        uint64
}

// MarketDataProvider fetches historical market data for the tickers it supports.
type MarketDataProvider interface {
	Name() string
	Fetch(ctx context.Context, tickers []string, start, end time.Time) ([]domain.MarketRow, error)
	Supports(ticker string) bool
}

// InputAdapter receives data from an external source and pushes events into the system.
type InputAdapter interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	OnMessage(callback InputCallback)
}

// InputMessage is the raw payload an InputAdapter hands to the core before
// it is wrapped into an integration.input Event.
type InputMessage struct {
	Source    string
	ChannelID string
	ChatID    string
	Text      string
	FromUser  string
	Timestamp time.Time
}

// InputCallback is invoked by an InputAdapter when new data arrives.
type InputCallback func(ctx context.Context, msg InputMessage) error

// OutputAdapter delivers signals and notifications to an external destination.
type OutputAdapter interface {
	Name() string
	Send(ctx context.Context, signal domain.Signal, memo *domain.InvestmentMemo) (domain.DeliveryResult, error)
	SendText(ctx context.Context, text string, channelID string) error
}

// LLMProvider abstracts language model API calls behind one canonical
// message schema and one canonical tool-call representation.
type LLMProvider interface {
	Name() string
	Complete(ctx context.Context, messages []domain.Message, opts CompletionOpts) (string, error)
	ToolCall(ctx context.Context, messages []domain.Message, tools []domain.ToolSchema, opts CompletionOpts) (domain.ToolCallResult, error)
}

// CompletionOpts carries optional per-call tuning knobs.
type CompletionOpts struct {
	Temperature float64
	MaxTokens   int
	Model       string
	Vision      bool
}

// AIAgent is a self-contained analysis unit in the agent pipeline. It must
// not mutate shared state.
type AIAgent interface {
	Name() string
	Description() string
	Analyze(ctx context.Context, pack domain.ContextPack) domain.AgentOutput
}

// RiskRule is a pure, fast, deterministic admission check run against every
// proposed signal.
type RiskRule interface {
	Name() string
	Evaluate(signal domain.Signal, portfolio domain.PortfolioSummary) domain.RuleEvaluation
}

// TaskHandler executes one scheduled Task by name.
type TaskHandler interface {
	Name() string
	Run(ctx context.Context, params map[string]any) (domain.TaskResult, error)
}

// PluginTools is an optional hook a plugin of any kind may additionally
// implement to contribute tools and prompt text to the AI interface's
// tool-calling loop. The core treats a plugin that doesn't implement this
// as "no contribution".
type PluginTools interface {
	GetTools() []domain.ToolSchema
	CallTool(ctx context.Context, name string, args map[string]any, toolCtx ToolContext) (string, bool, error)
	GetPromptInstructions(toolCtx ToolContext) string
}

// ToolContext is passed to a plugin's CallTool and GetPromptInstructions so
// it can see which channel and source originated the call without the core
// handing over any wider internal state.
type ToolContext struct {
	ChannelID string
	Source    string
}
