// Package domain provides the core entity types shared by every component:
// events, signals, positions, memos, memories, tasks, and the in-memory
// context pack assembled for each analysis run. Nothing in this package
// talks to disk, the network, or an LLM -- it is pure data.
package domain

import "time"

// Currency represents a currency code.
type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
)

// Money represents a monetary value with currency.
type Money struct {
	Currency Currency `json:"currency"`
	Amount   float64  `json:"amount"`
}

// NewMoney creates a new Money value.
func NewMoney(amount float64, currency Currency) Money {
	return Money{Amount: amount, Currency: currency}
}

// Direction is a trade direction.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
	DirectionHold Direction = "hold"
)

// PositionDirection is the direction a Position is held in.
type PositionDirection string

const (
	PositionLong  PositionDirection = "long"
	PositionShort PositionDirection = "short"
)

// SignalStatus is the lifecycle state of a Signal.
type SignalStatus string

const (
	SignalProposed  SignalStatus = "proposed"
	SignalApproved  SignalStatus = "approved"
	SignalRejected  SignalStatus = "rejected"
	SignalDelivered SignalStatus = "delivered"
)

// ConfirmationStatus tracks whether a delivered signal has been acted on by the user.
type ConfirmationStatus string

const (
	ConfirmationNone      ConfirmationStatus = "none"
	ConfirmationPending   ConfirmationStatus = "pending"
	ConfirmationConfirmed ConfirmationStatus = "confirmed"
	ConfirmationSkipped   ConfirmationStatus = "skipped"
	ConfirmationExpired   ConfirmationStatus = "expired"
)

// PositionStatus is the lifecycle state of a Position.
type PositionStatus string

const (
	PositionSignaled     PositionStatus = "signaled"
	PositionConfirmed    PositionStatus = "confirmed"
	PositionAssumed      PositionStatus = "assumed"
	PositionSkipped      PositionStatus = "skipped"
	PositionMonitoring   PositionStatus = "monitoring"
	PositionExitSignaled PositionStatus = "exit_signaled"
	PositionClosed       PositionStatus = "closed"
)

// Book identifies which of the two parallel portfolios a Position belongs to.
type Book string

const (
	BookAI    Book = "ai"
	BookHuman Book = "human"
)

// RiskResult is the aggregate outcome of running every registered RiskRule
// against a proposed Signal.
type RiskResult struct {
	Approved    bool             `json:"approved"`
	Evaluations []RuleEvaluation `json:"evaluations"`
}

// FailedRules returns the names of the rules that did not pass.
func (r RiskResult) FailedRules() []string {
	var names []string
	for _, e := range r.Evaluations {
		if !e.Passed {
			names = append(names, e.RuleName)
		}
	}
	return names
}

// RuleEvaluation is the per-rule outcome produced by a RiskRule.
type RuleEvaluation struct {
	RuleName     string  `json:"rule_name"`
	Passed       bool    `json:"passed"`
	Reason       string  `json:"reason"`
	CurrentValue float64 `json:"current_value,omitempty"`
	LimitValue   float64 `json:"limit_value,omitempty"`
}

// Signal is a proposed trade recommendation subject to the risk gate.
type Signal struct {
	ID                        string             `json:"id"`
	Ticker                    string             `json:"ticker"`
	Direction                 Direction          `json:"direction"`
	Catalyst                  string             `json:"catalyst,omitempty"`
	Confidence                float64            `json:"confidence"`
	EntryTarget               *float64           `json:"entry_target,omitempty"`
	StopLoss                  *float64           `json:"stop_loss,omitempty"`
	TakeProfit                *float64           `json:"take_profit,omitempty"`
	Horizon                   string             `json:"horizon,omitempty"`
	MemoID                    string             `json:"memo_id,omitempty"`
	CorrelationID             string             `json:"correlation_id,omitempty"`
	Status                    SignalStatus       `json:"status"`
	RiskResult                *RiskResult        `json:"risk_result,omitempty"`
	DeliveredAt               *time.Time         `json:"delivered_at,omitempty"`
	DeliveredVia              []string           `json:"delivered_via,omitempty"`
	ConfirmationStatus        ConfirmationStatus `json:"confirmation_status"`
	ConfirmationDueAt         *time.Time         `json:"confirmation_due_at,omitempty"`
	ConfirmationReminderSent  *time.Time         `json:"confirmation_reminder_sent_at,omitempty"`
	DeliveryErrors            []string           `json:"delivery_errors,omitempty"`
	CreatedAt                 time.Time          `json:"created_at"`
}

// Position is a tracked holding in one of the two books (ai, human).
type Position struct {
	Ticker             string            `json:"ticker"`
	Direction          PositionDirection `json:"direction"`
	Size               *float64          `json:"size,omitempty"`
	EntryPrice         float64           `json:"entry_price"`
	CurrentPrice       *float64          `json:"current_price,omitempty"`
	PnL                *float64          `json:"pnl,omitempty"`
	PnLPercent         *float64          `json:"pnl_percent,omitempty"`
	Status             PositionStatus    `json:"status"`
	Portfolio          Book              `json:"portfolio"`
	SignalID           string            `json:"signal_id,omitempty"`
	OpenedAt           time.Time         `json:"opened_at"`
	ClosedAt           *time.Time        `json:"closed_at,omitempty"`
	ClosePrice         *float64          `json:"close_price,omitempty"`
	RealizedPnL        *float64          `json:"realized_pnl,omitempty"`
	RealizedPnLPercent *float64          `json:"realized_pnl_percent,omitempty"`
	ConfirmedAt        *time.Time        `json:"confirmed_at,omitempty"`
	ConfirmedVia       string            `json:"confirmed_via,omitempty"`
	UserNotes          string            `json:"user_notes,omitempty"`
}

// EffectiveSize returns the position's size, defaulting to 1 when unset so
// percent-based P&L calculations stay coherent for size-less positions.
func (p Position) EffectiveSize() float64 {
	if p.Size == nil {
		return 1
	}
	return *p.Size
}

// IsOpen reports whether the position counts toward portfolio exposure.
func (p Position) IsOpen() bool {
	return p.Status != PositionClosed && p.Status != PositionSkipped
}

// Scenario is one branch of an InvestmentMemo's scenario tree.
type Scenario struct {
	Name        string   `json:"name"`
	Probability float64  `json:"probability"`
	Description string   `json:"description"`
	TargetPrice *float64 `json:"target_price,omitempty"`
	Timeline    string   `json:"timeline,omitempty"`
}

// InvestmentMemo is the structured analysis artifact produced by the orchestrator.
type InvestmentMemo struct {
	ID                string     `json:"id"`
	CreatedAt         time.Time  `json:"created_at"`
	CorrelationID     string     `json:"correlation_id,omitempty"`
	ExecutiveSummary  string     `json:"executive_summary"`
	Catalyst          string     `json:"catalyst,omitempty"`
	MarketContext     string     `json:"market_context,omitempty"`
	PricingVsView     string     `json:"pricing_vs_view,omitempty"`
	ScenarioTree      []Scenario `json:"scenario_tree,omitempty"`
	TradeExpression   string     `json:"trade_expression,omitempty"`
	EntryPlan         string     `json:"entry_plan,omitempty"`
	Risks             []string   `json:"risks,omitempty"`
	MonitoringPlan    string     `json:"monitoring_plan,omitempty"`
	AgentsUsed        []string   `json:"agents_used,omitempty"`
	ModelProvider     string     `json:"model_provider,omitempty"`
	ModelName         string     `json:"model_name,omitempty"`
}

// WhoWasRight enumerates divergence judgement outcomes.
type WhoWasRight string

const (
	WhoWasRightAI      WhoWasRight = "ai"
	WhoWasRightHuman   WhoWasRight = "human"
	WhoWasRightBoth    WhoWasRight = "both"
	WhoWasRightNeither WhoWasRight = "neither"
)

// DivergenceType classifies an observed difference between the two books.
type DivergenceType string

const (
	DivergenceTiming          DivergenceType = "timing_divergence"
	DivergenceHumanSkipped    DivergenceType = "human_skipped"
	DivergenceHumanInitiated  DivergenceType = "human_initiated"
)

// Memory is a distilled lesson learned from an AI/human divergence.
type Memory struct {
	ID               string      `json:"id"`
	CreatedAt        time.Time   `json:"created_at"`
	SignalID         string      `json:"signal_id,omitempty"`
	Ticker           string      `json:"ticker,omitempty"`
	DivergenceType   DivergenceType `json:"divergence_type"`
	AIAction         string      `json:"ai_action"`
	HumanAction      string      `json:"human_action"`
	WhoWasRight      WhoWasRight `json:"who_was_right"`
	Lesson           string      `json:"lesson"`
	Tags             []string    `json:"tags,omitempty"`
	ConfidenceImpact float64     `json:"confidence_impact"`
	Source           string      `json:"source,omitempty"`
}

// TaskType is the kind of scheduled work item.
type TaskType string

const (
	TaskOneOff     TaskType = "one_off"
	TaskRecurring  TaskType = "recurring"
	TaskResearch   TaskType = "research"
	TaskComparison TaskType = "comparison"
)

// TaskCreator identifies who created a Task.
type TaskCreator string

const (
	CreatedByHuman TaskCreator = "human"
	CreatedByAI    TaskCreator = "ai"
)

// Task is a scheduled work item consumed by the scheduler.
type Task struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Type            TaskType       `json:"type"`
	CronExpression  string         `json:"cron_expression,omitempty"`
	RunAt           *time.Time     `json:"run_at,omitempty"`
	Handler         string         `json:"handler"`
	Params          map[string]any `json:"params,omitempty"`
	Enabled         bool           `json:"enabled"`
	CreatedBy       TaskCreator    `json:"created_by"`
	CreatedAt       time.Time      `json:"created_at"`
	ParentTaskID    string         `json:"parent_task_id,omitempty"`
	LastRunAt       *time.Time     `json:"last_run_at,omitempty"`
	LastResult      string         `json:"last_result,omitempty"`
	RunCount        int            `json:"run_count"`
}

// TaskResultStatus is the outcome of one TaskHandler.Run call.
type TaskResultStatus string

const (
	TaskResultSuccess  TaskResultStatus = "success"
	TaskResultError    TaskResultStatus = "error"
	TaskResultNoAction TaskResultStatus = "no_action"
)

// TaskResult is returned by a TaskHandler after it runs.
type TaskResult struct {
	Status       TaskResultStatus `json:"status"`
	Message      string           `json:"message"`
	CreatedTasks []string         `json:"created_tasks,omitempty"`
}
