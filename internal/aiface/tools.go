package aiface

import "github.com/aristath/tradedesk/internal/domain"

// builtinTools is the fixed OpenAI-style function schema for every tool the
// AI interface implements itself, before any plugin-contributed tools are
// appended. Grounded on original_source/engine/tools.py one-to-one.
var builtinTools = []domain.ToolSchema{
	{
		Type: "function",
		Function: domain.ToolFunctionSpec{
			Name:        "open_potential_position",
			Description: "Propose a new trade signal for synchronous risk evaluation and delivery lifecycle handling.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"ticker":       map[string]any{"type": "string", "description": "The ticker symbol (e.g., NVDA, BTC-USD, AAPL)"},
					"direction":    map[string]any{"type": "string", "enum": []string{"buy", "sell"}, "description": "Proposed signal direction"},
					"catalyst":     map[string]any{"type": "string", "description": "Why this position is being proposed"},
					"confidence":   map[string]any{"type": "number", "description": "Signal confidence from 0.0 to 1.0"},
					"entry_target": map[string]any{"type": "number", "description": "Target entry price for the signal"},
					"stop_loss":    map[string]any{"type": "number", "description": "Optional stop-loss price"},
					"take_profit":  map[string]any{"type": "number", "description": "Optional take-profit price"},
					"horizon":      map[string]any{"type": "string", "description": "Expected holding period (e.g., 1-3 months)"},
				},
				"required": []string{"ticker", "direction", "catalyst", "confidence", "entry_target", "horizon"},
			},
		},
	},
	{
		Type: "function",
		Function: domain.ToolFunctionSpec{
			Name:        "confirm_signal",
			Description: "Confirm a delivered signal using explicit signal_id, entry price, and quantity.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"signal_id":   map[string]any{"type": "string", "description": "Signal identifier (e.g., sig_ab12cd34ef56)"},
					"entry_price": map[string]any{"type": "number", "description": "Actual executed entry price"},
					"quantity":    map[string]any{"type": "number", "description": "Executed position quantity"},
				},
				"required": []string{"signal_id", "entry_price", "quantity"},
			},
		},
	},
	{
		Type: "function",
		Function: domain.ToolFunctionSpec{
			Name:        "skip_signal",
			Description: "Skip a delivered signal using its signal_id.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"signal_id": map[string]any{"type": "string", "description": "Signal identifier (e.g., sig_ab12cd34ef56)"},
					"reason":    map[string]any{"type": "string", "description": "Optional reason for skipping"},
				},
				"required": []string{"signal_id"},
			},
		},
	},
	{
		Type: "function",
		Function: domain.ToolFunctionSpec{
			Name:        "close_position",
			Description: "User reports they closed/exited a position.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"ticker":      map[string]any{"type": "string", "description": "The ticker symbol"},
					"close_price": map[string]any{"type": "number", "description": "The price at which the position was closed"},
				},
				"required": []string{"ticker", "close_price"},
			},
		},
	},
	{
		Type: "function",
		Function: domain.ToolFunctionSpec{
			Name:        "user_initiated_trade",
			Description: "User reports a trade they took on their own initiative, not from an AI signal.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"ticker":      map[string]any{"type": "string", "description": "The ticker symbol"},
					"direction":   map[string]any{"type": "string", "enum": []string{"long", "short"}, "description": "Trade direction"},
					"entry_price": map[string]any{"type": "number", "description": "Entry price"},
					"size":        map[string]any{"type": "number", "description": "Number of units (optional)"},
					"reason":      map[string]any{"type": "string", "description": "Why the user took this trade"},
				},
				"required": []string{"ticker", "direction", "entry_price"},
			},
		},
	},
	{
		Type: "function",
		Function: domain.ToolFunctionSpec{
			Name:        "get_portfolio",
			Description: "Get current portfolio state. Can show AI portfolio, human portfolio, or both.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"portfolio_type": map[string]any{"type": "string", "enum": []string{"ai", "human", "both"}, "description": "Which portfolio to show (default: both)"},
				},
			},
		},
	},
	{
		Type: "function",
		Function: domain.ToolFunctionSpec{
			Name:        "get_price",
			Description: "Get the latest price for a ticker.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"ticker": map[string]any{"type": "string", "description": "The ticker symbol (e.g., NVDA, BTC-USD, SPY)"},
				},
				"required": []string{"ticker"},
			},
		},
	},
	{
		Type: "function",
		Function: domain.ToolFunctionSpec{
			Name:        "list_tasks",
			Description: "List all scheduled tasks (monitoring, analysis, etc.).",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		},
	},
	{
		Type: "function",
		Function: domain.ToolFunctionSpec{
			Name:        "list_task_handlers",
			Description: "List all registered task handler names that can be used in create_task.handler.",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		},
	},
	{
		Type: "function",
		Function: domain.ToolFunctionSpec{
			Name:        "create_task",
			Description: "Create a new scheduled task. For recurring monitoring tasks, prefer handler ai.run_prompt.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":            map[string]any{"type": "string", "description": "Human-readable task name"},
					"type":            map[string]any{"type": "string", "enum": []string{"one_off", "recurring", "research"}, "description": "Task type"},
					"handler":         map[string]any{"type": "string", "description": "Registered task handler name from list_task_handlers"},
					"cron_expression": map[string]any{"type": "string", "description": "Cron schedule for recurring tasks (e.g., '0 16 * * 1-5')"},
					"run_at":          map[string]any{"type": "string", "description": "ISO datetime for one-off tasks"},
					"params":          map[string]any{"type": "object", "description": "Parameters to pass to the handler"},
				},
				"required": []string{"name", "handler"},
			},
		},
	},
	{
		Type: "function",
		Function: domain.ToolFunctionSpec{
			Name:        "delete_task",
			Description: "Delete a scheduled task by ID.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"task_id": map[string]any{"type": "string", "description": "The task ID to delete"}},
				"required":   []string{"task_id"},
			},
		},
	},
	{
		Type: "function",
		Function: domain.ToolFunctionSpec{
			Name:        "delete_task_by_name",
			Description: "Delete scheduled task(s) by name match when the user doesn't provide an ID.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"name": map[string]any{"type": "string", "description": "Task name or a unique part of it"}},
				"required":   []string{"name"},
			},
		},
	},
	{
		Type: "function",
		Function: domain.ToolFunctionSpec{
			Name:        "get_memories",
			Description: "View learning memories from past AI-vs-human divergences.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"ticker": map[string]any{"type": "string", "description": "Filter by ticker (optional)"},
					"limit":  map[string]any{"type": "integer", "description": "Max memories to return (default: 10)"},
				},
			},
		},
	},
	{
		Type: "function",
		Function: domain.ToolFunctionSpec{
			Name:        "run_analysis",
			Description: "Trigger an on-demand analysis for a specific ticker or topic.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"topic": map[string]any{"type": "string", "description": "What to analyze (e.g., a ticker, a macro event, a sector)"}},
				"required":   []string{"topic"},
			},
		},
	},
	{
		Type: "function",
		Function: domain.ToolFunctionSpec{
			Name:        "get_signals",
			Description: "List recent signals (trade recommendations).",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"status": map[string]any{"type": "string", "enum": []string{"proposed", "approved", "rejected", "delivered"}, "description": "Filter by signal status (optional)"},
					"limit":  map[string]any{"type": "integer", "description": "Max signals to return (default: 10)"},
				},
			},
		},
	},
}
