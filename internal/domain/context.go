package domain

import "time"

// Mode distinguishes real-time operation from a backtest/simulation run.
type Mode string

const (
	ModeProduction  Mode = "production"
	ModeSimulation  Mode = "simulation"
)

// TimeContext is the temporal visibility token threaded through every
// orchestration. In production every query uses real wall-clock time; in
// simulation no component may read data whose availability is later than
// CurrentTime (the lookahead prohibition).
type TimeContext struct {
	CurrentTime  time.Time `json:"current_time"`
	Mode         Mode      `json:"mode"`
	SimulationID string    `json:"simulation_id,omitempty"`
}

// Now returns a production TimeContext pinned to the given instant.
func Now(at time.Time) TimeContext {
	return TimeContext{CurrentTime: at, Mode: ModeProduction}
}

// AllowsLookahead reports whether data available at availableAt may be read
// under this TimeContext.
func (tc TimeContext) AllowsLookahead(availableAt time.Time) bool {
	if tc.Mode != ModeSimulation {
		return true
	}
	return !availableAt.After(tc.CurrentTime)
}

// MarketRow is a single OHLCV observation for a ticker.
type MarketRow struct {
	Ticker      string    `json:"ticker"`
	Timestamp   time.Time `json:"timestamp"`
	AvailableAt time.Time `json:"available_at"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	Source      string    `json:"source"`
	Kind        string    `json:"kind,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// MarketSnapshot is a time-scoped view of the latest known prices, keyed by ticker.
type MarketSnapshot struct {
	Timestamp time.Time          `json:"timestamp"`
	Prices    map[string]float64 `json:"prices"`
}

// PortfolioSummary is a point-in-time view of one book.
type PortfolioSummary struct {
	Portfolio        Book               `json:"portfolio"`
	TotalValue       float64            `json:"total_value"`
	Positions        []Position         `json:"positions"`
	TotalPnL         float64            `json:"total_pnl"`
	TotalPnLPercent  float64            `json:"total_pnl_percent"`
	SectorExposure   map[string]float64 `json:"sector_exposure,omitempty"`
}

// ContextPack is the in-memory, time-scoped view assembled per orchestration
// run. It is never persisted.
type ContextPack struct {
	TimeContext      TimeContext
	MarketSnapshot   MarketSnapshot
	AIPortfolio      PortfolioSummary
	HumanPortfolio   PortfolioSummary
	TriggerEvent     Event
	RecentEvents     []Event
	RelevantMemories []Memory
	Watchlist        []string
}

// AgentOutput is the structured result of one AIAgent's analysis.
type AgentOutput struct {
	AgentName          string   `json:"agent_name"`
	Analysis           string   `json:"analysis"`
	Confidence         float64  `json:"confidence"`
	SuggestedDirection *Direction `json:"suggested_direction,omitempty"`
	KeyFactors         []string `json:"key_factors,omitempty"`
}

// DeliveryResult is the outcome of one OutputAdapter.Send call.
type DeliveryResult struct {
	Success bool   `json:"success"`
	Adapter string `json:"adapter"`
	Message string `json:"message,omitempty"`
}

// ToolCallResult is the outcome of one LLMProvider.ToolCall invocation.
type ToolCallResult struct {
	Text      string         `json:"text"`
	ToolCalls []ToolCall     `json:"tool_calls,omitempty"`
	Usage     map[string]int `json:"usage,omitempty"`
}

// HasToolCalls reports whether the model asked to invoke any tools.
func (r ToolCallResult) HasToolCalls() bool { return len(r.ToolCalls) > 0 }

// ToolCall is the canonical {name, arguments} shape the core uses regardless
// of the wire format a specific LLMProvider speaks.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// MessageRole is the role of one chat Message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ContentPart is one part of a Message's content; Text is set for plain text
// parts, ImageURL for "data:image/*;base64,..." parts.
type ContentPart struct {
	Type     string `json:"type"` // "text" or "image_url"
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// Message is one turn in a conversation passed to an LLMProvider. Content is
// either plain text (Text set) or a list of typed parts (Parts set) to carry
// mixed text/image payloads.
type Message struct {
	Role       MessageRole   `json:"role"`
	Text       string        `json:"text,omitempty"`
	Parts      []ContentPart `json:"parts,omitempty"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
}

// ToolSchema is an OpenAI-style function tool definition.
type ToolSchema struct {
	Type     string           `json:"type"`
	Function ToolFunctionSpec `json:"function"`
}

// ToolFunctionSpec describes one callable tool's name, description, and
// JSON-schema parameters.
type ToolFunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
