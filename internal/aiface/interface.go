// Package aiface implements the conversational AI controller: it receives
// raw user text from any integration, drives an LLM tool-calling loop to
// understand intent, executes the matching action against the store,
// portfolio tracker, and scheduler, and returns a text reply. Grounded on
// original_source/engine/interface.py and original_source/engine/tools.py.
package aiface

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/idgen"
	"github.com/aristath/tradedesk/internal/portfolio"
	"github.com/aristath/tradedesk/internal/protocols"
	"github.com/aristath/tradedesk/internal/registry"
	"github.com/aristath/tradedesk/internal/scheduler"
	"github.com/aristath/tradedesk/internal/store"
)

const systemPrompt = `You are the AI assistant for a self-hosted trading advisory system.

You help the user manage their trading activity. You can:
- Propose new trade signals (open_potential_position)
- Record a delivered signal's confirmation or skip (confirm_signal, skip_signal)
- Record trades they've made outside a signal (close_position, user_initiated_trade)
- Show portfolio state (get_portfolio)
- Look up prices (get_price)
- Manage scheduled tasks (list_tasks, create_task, delete_task, delete_task_by_name)
- List schedulable handlers (list_task_handlers)
- View learning memories (get_memories)
- Trigger analysis (run_analysis)
- Show recent signals (get_signals)

IMPORTANT RULES:
- When the user tells you about a trade they made, use the appropriate tool to record it.
- When they ask about their portfolio or positions, use get_portfolio.
- Before creating a scheduled task, use list_task_handlers and choose a valid handler name.
- Act-first rule: when the user requests an action that tools can perform, execute the tool calls in the same turn, then report the result.
- Never send intent-only replies like "Let me check" or "I'll do it" when tools can run now.
- Be concise in responses. Don't over-explain.
- Always confirm back what action you took after executing a tool.`

const scheduledRunPrompt = `You are running inside a scheduled cron task.

Execution rules:
- Execute the task objective now using available tools.
- Do not create/modify/delete tasks unless the prompt explicitly asks you to manage schedules.
- Respond with only the current run update for the user.`

const maxToolRounds = 25

// Interface is the conversational AI controller: one LLM tool-calling loop
// shared by every integration (chat input, scheduled prompts).
type Interface struct {
	registry  *registry.Registry
	store     *store.Store
	bus       protocols.EventBus
	portfolio *portfolio.Tracker
	scheduler *scheduler.Scheduler
	log       zerolog.Logger

	history map[string][]domain.Message
}

// New creates an Interface, seeding its in-memory conversation state from
// the store's persisted chat history.
func New(reg *registry.Registry, st *store.Store, bus protocols.EventBus, tracker *portfolio.Tracker, sch *scheduler.Scheduler, log zerolog.Logger) (*Interface, error) {
	persisted, err := st.LoadChatHistory()
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}

	history := make(map[string][]domain.Message, len(persisted))
	for channel, messages := range persisted {
		for _, m := range messages {
			history[channel] = append(history[channel], domain.Message{Role: m.Role, Text: m.Content})
		}
	}

	return &Interface{
		registry:  reg,
		store:     st,
		bus:       bus,
		portfolio: tracker,
		scheduler: sch,
		log:       log.With().Str("component", "aiface").Logger(),
		history:   history,
	}, nil
}

func (iface *Interface) appendMessage(channel string, role domain.MessageRole, content string) {
	iface.history[channel] = append(iface.history[channel], domain.Message{Role: role, Text: content})
	if err := iface.store.AppendChat(channel, role, content, nil); err != nil {
		iface.log.Error().Err(err).Str("channel", channel).Msg("failed to persist chat message")
	}
}

// HandleMessage processes one raw user message for channel and returns the
// reply text. This is the entry point every input adapter calls.
func (iface *Interface) HandleMessage(ctx context.Context, text, channel, source string) string {
	iface.appendMessage(channel, domain.RoleUser, text)

	llm, ok := iface.primaryLLM()
	if !ok {
		return "No AI provider configured. Please set up an LLM provider in config.yaml."
	}

	response, err := iface.runToolLoop(ctx, llm, systemPrompt, iface.history[channel], source, channel)
	if err != nil {
		iface.log.Error().Err(err).Msg("LLM call failed")
		return "Sorry, I couldn't process that right now. Please try again."
	}

	iface.appendMessage(channel, domain.RoleAssistant, response)
	return response
}

// HandleScheduledPrompt runs one scheduled AI turn with the same tools and
// system prompt, seeded with recent channel context rather than the full
// history. persistOutput controls whether the final reply is appended to
// the channel's conversation log.
func (iface *Interface) HandleScheduledPrompt(ctx context.Context, prompt, channel, source string, persistOutput bool) string {
	llm, ok := iface.primaryLLM()
	if !ok {
		return "No AI provider configured. Please set up an LLM provider in config.yaml."
	}

	recent := iface.history[channel]
	start := 0
	if len(recent) > 10 {
		start = len(recent) - 10
	}
	history := append([]domain.Message{}, recent[start:]...)
	history = append(history, domain.Message{Role: domain.RoleUser, Text: prompt})

	combinedPrompt := systemPrompt + "\n\n" + scheduledRunPrompt
	response, err := iface.runToolLoop(ctx, llm, combinedPrompt, history, source, channel)
	if err != nil {
		iface.log.Error().Err(err).Msg("scheduled LLM call failed")
		return "Sorry, I couldn't process that scheduled run right now."
	}

	if persistOutput && response != "" {
		iface.appendMessage(channel, domain.RoleAssistant, response)
	}
	return response
}

// Portfolio exposes the underlying tracker so callers (and tests) can
// inspect position state without duplicating the interface's lookups.
func (iface *Interface) Portfolio() *portfolio.Tracker { return iface.portfolio }

func (iface *Interface) primaryLLM() (protocols.LLMProvider, bool) {
	providers := iface.registry.GetAll(registry.KindLLM)
	if len(providers) == 0 {
		return nil, false
	}
	llm, ok := providers[0].(protocols.LLMProvider)
	return llm, ok
}

func (iface *Interface) runToolLoop(ctx context.Context, llm protocols.LLMProvider, system string, history []domain.Message, source, channel string) (string, error) {
	messages := append([]domain.Message{{Role: domain.RoleSystem, Text: system}}, history...)
	tools := append(append([]domain.ToolSchema{}, builtinTools...), iface.collectPluginTools()...)

	var lastToolSummary string
	for i := 0; i < maxToolRounds; i++ {
		result, err := llm.ToolCall(ctx, messages, tools, protocols.CompletionOpts{})
		if err != nil {
			return "", fmt.Errorf("tool call round %d: %w", i, err)
		}

		if !result.HasToolCalls() {
			if reply := strings.TrimSpace(result.Text); reply != "" {
				return reply, nil
			}
			if lastToolSummary != "" {
				finalMessages := append(messages, domain.Message{Role: domain.RoleUser, Text: "Provide the final user-facing response now."})
				final, err := llm.Complete(ctx, finalMessages, protocols.CompletionOpts{})
				if err != nil {
					iface.log.Error().Err(err).Msg("final response generation failed")
					return lastToolSummary, nil
				}
				return final, nil
			}
			return "I'm not sure how to help with that.", nil
		}

		if result.Text != "" {
			messages = append(messages, domain.Message{Role: domain.RoleAssistant, Text: result.Text})
		}

		var toolResults []string
		for _, tc := range result.ToolCalls {
			out := iface.executeTool(ctx, tc.Name, tc.Arguments, source, channel)
			toolResults = append(toolResults, fmt.Sprintf("[%s]: %s", tc.Name, out))
		}
		if len(toolResults) == 0 {
			lastToolSummary = "No tool output."
		} else {
			lastToolSummary = strings.Join(toolResults, "\n")
		}

		messages = append(messages, domain.Message{
			Role: domain.RoleUser,
			Text: fmt.Sprintf("Tool results:\n%s\n\nIf more tool calls are required to complete the user's request, call them now. Otherwise, respond to the user with the completed outcome.", lastToolSummary),
		})
	}

	iface.log.Warn().Str("channel", channel).Msg("max tool-call rounds reached")
	messages = append(messages, domain.Message{
		Role: domain.RoleUser,
		Text: "[INTERNAL SYSTEM ERROR] Max tool call rounds reached, ask user for confirmation to continue in new message.",
	})
	final, err := llm.Complete(ctx, messages, protocols.CompletionOpts{})
	if err != nil {
		return "I hit an internal tool-call round limit. Reply with confirmation in a new message if you want me to continue.", nil
	}
	return final, nil
}

func (iface *Interface) collectPluginTools() []domain.ToolSchema {
	existing := make(map[string]bool, len(builtinTools))
	for _, t := range builtinTools {
		existing[t.Function.Name] = true
	}

	var tools []domain.ToolSchema
	for _, kind := range []registry.Kind{registry.KindMarketData, registry.KindInput, registry.KindOutput, registry.KindLLM, registry.KindAgent, registry.KindRiskRule, registry.KindTaskHandler} {
		for _, plugin := range iface.registry.GetAll(kind) {
			contributor, ok := plugin.(protocols.PluginTools)
			if !ok {
				continue
			}
			for _, tool := range contributor.GetTools() {
				if existing[tool.Function.Name] {
					continue
				}
				tools = append(tools, tool)
				existing[tool.Function.Name] = true
			}
		}
	}
	return tools
}

func (iface *Interface) executeTool(ctx context.Context, name string, args map[string]any, source, channel string) string {
	defer func() {
		if r := recover(); r != nil {
			iface.log.Error().Interface("panic", r).Str("tool", name).Msg("tool panicked")
		}
	}()

	switch name {
	case "open_potential_position":
		return iface.toolOpenPotentialPosition(args)
	case "confirm_signal":
		return iface.toolConfirmSignal(args, source)
	case "skip_signal":
		return iface.toolSkipSignal(args, source)
	case "close_position":
		return iface.toolClosePosition(args, source)
	case "user_initiated_trade":
		return iface.toolUserInitiatedTrade(args, source)
	case "get_portfolio":
		return iface.toolGetPortfolio(args)
	case "get_price":
		return iface.toolGetPrice(ctx, args)
	case "list_tasks":
		return iface.toolListTasks()
	case "list_task_handlers":
		return iface.toolListTaskHandlers()
	case "create_task":
		return iface.toolCreateTask(ctx, args, channel)
	case "delete_task":
		return iface.toolDeleteTask(args)
	case "delete_task_by_name":
		return iface.toolDeleteTaskByName(args)
	case "get_memories":
		return iface.toolGetMemories(args)
	case "get_signals":
		return iface.toolGetSignals(args)
	case "run_analysis":
		return iface.toolRunAnalysis(ctx, args)
	default:
		if out, handled := iface.executePluginTool(ctx, name, args, source, channel); handled {
			return out
		}
		return fmt.Sprintf("Unknown tool: %s", name)
	}
}

func (iface *Interface) executePluginTool(ctx context.Context, name string, args map[string]any, source, channel string) (string, bool) {
	toolCtx := protocols.ToolContext{ChannelID: channel, Source: source}
	for _, kind := range []registry.Kind{registry.KindMarketData, registry.KindInput, registry.KindOutput, registry.KindLLM, registry.KindAgent, registry.KindRiskRule, registry.KindTaskHandler} {
		for _, plugin := range iface.registry.GetAll(kind) {
			contributor, ok := plugin.(protocols.PluginTools)
			if !ok {
				continue
			}
			out, handled, err := contributor.CallTool(ctx, name, args, toolCtx)
			if err != nil {
				return fmt.Sprintf("Error executing %s: %v", name, err), true
			}
			if handled {
				return out, true
			}
		}
	}
	return "", false
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func floatArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func floatPtrArg(args map[string]any, key string) *float64 {
	if f, ok := floatArg(args, key); ok {
		return &f
	}
	return nil
}

func (iface *Interface) toolOpenPotentialPosition(args map[string]any) string {
	ticker := strings.ToUpper(stringArg(args, "ticker"))
	direction := domain.Direction(stringArg(args, "direction"))
	confidence, _ := floatArg(args, "confidence")

	signal := domain.Signal{
		ID:                 idgen.Signal(),
		Ticker:             ticker,
		Direction:          direction,
		Catalyst:           stringArg(args, "catalyst"),
		Confidence:         confidence,
		EntryTarget:        floatPtrArg(args, "entry_target"),
		StopLoss:           floatPtrArg(args, "stop_loss"),
		TakeProfit:         floatPtrArg(args, "take_profit"),
		Horizon:            stringArg(args, "horizon"),
		Status:             domain.SignalProposed,
		ConfirmationStatus: domain.ConfirmationNone,
		CreatedAt:          time.Now().UTC(),
	}

	if err := store.WriteJSON(iface.store, store.KindSignals, signal.ID, signal); err != nil {
		return fmt.Sprintf("Failed to propose signal: %v", err)
	}

	payload, _ := json.Marshal(signal)
	var payloadMap map[string]any
	_ = json.Unmarshal(payload, &payloadMap)

	_ = iface.bus.Publish(context.Background(), domain.Event{
		ID:        idgen.Event(),
		Type:      domain.EventSignalProposed,
		Timestamp: time.Now().UTC(),
		Source:    "interface",
		Payload:   payloadMap,
	})

	return fmt.Sprintf("Proposed signal %s: %s %s (confidence %.0f%%)", signal.ID, strings.ToUpper(string(direction)), ticker, confidence*100)
}

func (iface *Interface) findRecentSignal(ticker string, statuses ...domain.SignalStatus) (domain.Signal, bool) {
	signals, err := store.ListJSON[domain.Signal](iface.store, store.KindSignals)
	if err != nil {
		return domain.Signal{}, false
	}
	var best domain.Signal
	found := false
	for _, s := range signals {
		if ticker != "" && s.Ticker != ticker {
			continue
		}
		matched := len(statuses) == 0
		for _, st := range statuses {
			if s.Status == st {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if !found || s.CreatedAt.After(best.CreatedAt) {
			best = s
			found = true
		}
	}
	return best, found
}

func (iface *Interface) findSignalByID(id string) (domain.Signal, bool) {
	s, ok, err := store.ReadJSON[domain.Signal](iface.store, store.KindSignals, id)
	if err != nil || !ok {
		return domain.Signal{}, false
	}
	return s, true
}

func (iface *Interface) toolConfirmSignal(args map[string]any, source string) string {
	id := stringArg(args, "signal_id")
	price, _ := floatArg(args, "entry_price")
	quantity, hasQty := floatArg(args, "quantity")

	signal, ok := iface.findSignalByID(id)
	if !ok {
		return fmt.Sprintf("No signal found with id %s.", id)
	}

	var sizePtr *float64
	if hasQty {
		sizePtr = &quantity
	}

	pos, err := iface.portfolio.HumanConfirmPosition(signal, price, sizePtr, source, "")
	if err != nil {
		return fmt.Sprintf("Failed to confirm %s: %v", signal.Ticker, err)
	}

	_ = iface.bus.Publish(context.Background(), domain.Event{
		ID:        idgen.Event(),
		Type:      domain.EventPositionConfirmed,
		Timestamp: time.Now().UTC(),
		Source:    "interface",
		Payload:   map[string]any{"ticker": pos.Ticker, "price": price, "portfolio": "human"},
	})

	return fmt.Sprintf("Confirmed: %s position opened at $%.2f", pos.Ticker, price)
}

func (iface *Interface) toolSkipSignal(args map[string]any, source string) string {
	id := stringArg(args, "signal_id")
	reason := stringArg(args, "reason")

	signal, ok := iface.findSignalByID(id)
	if !ok {
		return fmt.Sprintf("No signal found with id %s.", id)
	}

	if _, err := iface.portfolio.HumanSkipPosition(signal, source, reason); err != nil {
		return fmt.Sprintf("Failed to skip %s: %v", signal.Ticker, err)
	}

	_ = iface.bus.Publish(context.Background(), domain.Event{
		ID:        idgen.Event(),
		Type:      domain.EventPositionSkipped,
		Timestamp: time.Now().UTC(),
		Source:    "interface",
		Payload:   map[string]any{"ticker": signal.Ticker, "reason": reason},
	})

	out := fmt.Sprintf("Skipped: %s signal.", signal.Ticker)
	if reason != "" {
		out += " Reason: " + reason
	}
	return out
}

func (iface *Interface) toolClosePosition(args map[string]any, source string) string {
	ticker := strings.ToUpper(stringArg(args, "ticker"))
	closePrice, _ := floatArg(args, "close_price")

	pos, ok, err := iface.portfolio.HumanClosePosition(ticker, closePrice, source)
	if err != nil {
		return fmt.Sprintf("Failed to close %s: %v", ticker, err)
	}
	if !ok {
		return fmt.Sprintf("No open position found for %s in human portfolio.", ticker)
	}

	_ = iface.bus.Publish(context.Background(), domain.Event{
		ID:        idgen.Event(),
		Type:      domain.EventPositionUpdated,
		Timestamp: time.Now().UTC(),
		Source:    "interface",
		Payload:   map[string]any{"ticker": ticker, "action": "closed", "price": closePrice},
	})

	var pnl, pct float64
	if pos.RealizedPnL != nil {
		pnl = *pos.RealizedPnL
	}
	if pos.RealizedPnLPercent != nil {
		pct = *pos.RealizedPnLPercent
	}
	return fmt.Sprintf("Closed: %s at $%.2f. P&L: $%.2f (%+.1f%%)", ticker, closePrice, pnl, pct)
}

func (iface *Interface) toolUserInitiatedTrade(args map[string]any, source string) string {
	ticker := strings.ToUpper(stringArg(args, "ticker"))
	direction := stringArg(args, "direction")
	if direction == "" {
		direction = "long"
	}
	price, _ := floatArg(args, "entry_price")
	size := floatPtrArg(args, "size")
	reason := stringArg(args, "reason")
	if reason == "" {
		reason = "User-initiated trade"
	}

	_, err := iface.portfolio.HumanInitiatedTrade(ticker, domain.PositionDirection(direction), price, size, source, reason)
	if err != nil {
		return fmt.Sprintf("Failed to record trade for %s: %v", ticker, err)
	}

	_ = iface.bus.Publish(context.Background(), domain.Event{
		ID:        idgen.Event(),
		Type:      domain.EventPositionConfirmed,
		Timestamp: time.Now().UTC(),
		Source:    "interface",
		Payload:   map[string]any{"ticker": ticker, "price": price, "user_initiated": true},
	})

	out := fmt.Sprintf("Recorded: %s %s at $%.2f", direction, ticker, price)
	if size != nil {
		out += fmt.Sprintf(" (%.4g units)", *size)
	}
	return out + ". Reason: " + reason
}

func (iface *Interface) toolGetPortfolio(args map[string]any) string {
	portfolioType := stringArg(args, "portfolio_type")
	if portfolioType == "" {
		portfolioType = "both"
	}

	var parts []string
	describe := func(book domain.Book, label string) {
		summary, err := iface.portfolio.Summary(book)
		if err != nil {
			parts = append(parts, fmt.Sprintf("%s Portfolio: error (%v)", label, err))
			return
		}
		parts = append(parts, fmt.Sprintf("%s Portfolio: %d positions, P&L: %+.1f%%", label, len(summary.Positions), summary.TotalPnLPercent))
		for _, p := range summary.Positions {
			pnlStr := ""
			if p.PnLPercent != nil {
				pnlStr = fmt.Sprintf(" P&L: %+.1f%%", *p.PnLPercent)
			}
			parts = append(parts, fmt.Sprintf("  %s %s @ $%.2f%s [%s]", p.Direction, p.Ticker, p.EntryPrice, pnlStr, p.Status))
		}
	}

	if portfolioType == "ai" || portfolioType == "both" {
		describe(domain.BookAI, "AI")
	}
	if portfolioType == "human" || portfolioType == "both" {
		describe(domain.BookHuman, "Human")
	}
	if len(parts) == 0 {
		return "No positions in either portfolio."
	}
	return strings.Join(parts, "\n")
}

func (iface *Interface) toolGetPrice(ctx context.Context, args map[string]any) string {
	ticker := strings.ToUpper(stringArg(args, "ticker"))

	if price, err := iface.store.LatestPrice(ticker, nil); err == nil && price != nil {
		return fmt.Sprintf("%s: $%.2f", ticker, *price)
	}

	candidates := []string{ticker}
	if !strings.ContainsAny(ticker, "-=") && !strings.HasPrefix(ticker, "^") {
		candidates = append(candidates, ticker+"-USD", ticker+"=X")
	}

	now := time.Now().UTC()
	start := now.AddDate(0, 0, -7)
	for _, plugin := range iface.registry.GetAll(registry.KindMarketData) {
		provider, ok := plugin.(protocols.MarketDataProvider)
		if !ok {
			continue
		}
		for _, candidate := range candidates {
			if !provider.Supports(candidate) {
				continue
			}
			rows, err := provider.Fetch(ctx, []string{candidate}, start, now)
			if err != nil || len(rows) == 0 {
				continue
			}
			latest := rows[0]
			for _, r := range rows[1:] {
				if r.Timestamp.After(latest.Timestamp) {
					latest = r
				}
			}
			if err := iface.store.AppendMarketRow(latest); err != nil {
				iface.log.Error().Err(err).Msg("failed to cache fetched market row")
			}
			return fmt.Sprintf("%s: $%.2f", latest.Ticker, latest.Close)
		}
	}

	return fmt.Sprintf("No price data available for %s. No live quote returned from configured market data providers.", ticker)
}

func (iface *Interface) toolListTaskHandlers() string {
	handlers := iface.registry.Names(registry.KindTaskHandler)
	if len(handlers) == 0 {
		return "No task handlers are currently registered."
	}
	sort.Strings(handlers)

	var lines []string
	for _, name := range handlers {
		lines = append(lines, "  - "+name)
	}
	return "Available task handlers:\n" + strings.Join(lines, "\n")
}

func (iface *Interface) toolListTasks() string {
	tasks, err := iface.scheduler.ListTasks()
	if err != nil {
		return fmt.Sprintf("Failed to list tasks: %v", err)
	}
	if len(tasks) == 0 {
		return "No scheduled tasks."
	}

	var parts []string
	for _, t := range tasks {
		status := "disabled"
		if t.Enabled {
			status = "enabled"
		}
		schedule := t.CronExpression
		if schedule == "" && t.RunAt != nil {
			schedule = t.RunAt.Format(time.RFC3339)
		}
		if schedule == "" {
			schedule = "immediate"
		}
		parts = append(parts, fmt.Sprintf("  [%s] %s (%s, %s) schedule: %s by: %s", t.ID, t.Name, t.Type, status, schedule, t.CreatedBy))
	}
	return fmt.Sprintf("%d tasks:\n%s", len(tasks), strings.Join(parts, "\n"))
}

func (iface *Interface) toolCreateTask(ctx context.Context, args map[string]any, channel string) string {
	handler := stringArg(args, "handler")
	if !iface.registry.Has(registry.KindTaskHandler, handler) {
		available := iface.registry.Names(registry.KindTaskHandler)
		sort.Strings(available)
		if len(available) > 0 {
			return fmt.Sprintf("Cannot create task. Unknown handler '%s'. Use one of: %s", handler, strings.Join(available, ", "))
		}
		return fmt.Sprintf("Cannot create task. Unknown handler '%s' and no handlers are registered.", handler)
	}

	params, _ := args["params"].(map[string]any)
	if params == nil {
		params = map[string]any{}
	}
	if _, ok := params["channel_id"]; !ok {
		params["channel_id"] = channel
	}

	taskType := domain.TaskType(stringArg(args, "type"))
	if taskType == "" {
		taskType = domain.TaskRecurring
	}

	task := domain.Task{
		ID:             idgen.Task(),
		Name:           stringArg(args, "name"),
		Type:           taskType,
		Handler:        handler,
		CronExpression: stringArg(args, "cron_expression"),
		Params:         params,
		Enabled:        true,
		CreatedBy:      domain.CreatedByAI,
		CreatedAt:      time.Now().UTC(),
	}
	if runAt := stringArg(args, "run_at"); runAt != "" {
		if t, err := time.Parse(time.RFC3339, runAt); err == nil {
			task.RunAt = &t
		}
	}

	if _, err := iface.scheduler.CreateTask(ctx, task); err != nil {
		return fmt.Sprintf("Failed to create task: %v", err)
	}
	return fmt.Sprintf("Created task: %s (%s, handler: %s)", task.Name, task.Type, task.Handler)
}

func (iface *Interface) toolDeleteTask(args map[string]any) string {
	id := stringArg(args, "task_id")
	deleted, err := iface.scheduler.DeleteTask(id)
	if err != nil {
		return fmt.Sprintf("Failed to delete task %s: %v", id, err)
	}
	if deleted {
		return fmt.Sprintf("Deleted task %s", id)
	}
	return fmt.Sprintf("Task %s not found", id)
}

func (iface *Interface) toolDeleteTaskByName(args map[string]any) string {
	name := strings.TrimSpace(stringArg(args, "name"))
	if name == "" {
		return "Task name is required."
	}
	deleted, err := iface.scheduler.DeleteTaskByName(name)
	if err != nil {
		return fmt.Sprintf("Failed to delete task '%s': %v", name, err)
	}
	if !deleted {
		return fmt.Sprintf("No task matched '%s'.", name)
	}
	return fmt.Sprintf("Deleted task '%s'.", name)
}

func (iface *Interface) toolGetMemories(args map[string]any) string {
	ticker := strings.ToUpper(stringArg(args, "ticker"))
	limit := 10
	if l, ok := floatArg(args, "limit"); ok {
		limit = int(l)
	}

	ids, err := iface.store.SearchMemories(store.SearchMemoriesOptions{Ticker: ticker, Limit: limit})
	if err != nil {
		return fmt.Sprintf("Failed to search memories: %v", err)
	}
	if len(ids) == 0 {
		return "No memories found."
	}

	var parts []string
	for _, id := range ids {
		mem, ok, err := store.ReadJSON[domain.Memory](iface.store, store.KindMemories, id)
		if err != nil || !ok {
			continue
		}
		lesson := mem.Lesson
		if len(lesson) > 150 {
			lesson = lesson[:150]
		}
		parts = append(parts, fmt.Sprintf("  [%s was right] %s vs %s\n    Lesson: %s", mem.WhoWasRight, mem.AIAction, mem.HumanAction, lesson))
	}
	return fmt.Sprintf("%d memories:\n%s", len(parts), strings.Join(parts, "\n"))
}

func (iface *Interface) toolGetSignals(args map[string]any) string {
	signals, err := store.ListJSON[domain.Signal](iface.store, store.KindSignals)
	if err != nil {
		return fmt.Sprintf("Failed to list signals: %v", err)
	}

	statusFilter := domain.SignalStatus(stringArg(args, "status"))
	if statusFilter != "" {
		filtered := signals[:0]
		for _, s := range signals {
			if s.Status == statusFilter {
				filtered = append(filtered, s)
			}
		}
		signals = filtered
	}

	limit := 10
	if l, ok := floatArg(args, "limit"); ok {
		limit = int(l)
	}
	if len(signals) > limit {
		signals = signals[len(signals)-limit:]
	}
	if len(signals) == 0 {
		return "No signals found."
	}

	var parts []string
	for _, s := range signals {
		parts = append(parts, fmt.Sprintf("  [%s] %s %s conf=%.0f%% (%s)", s.Status, strings.ToUpper(string(s.Direction)), s.Ticker, s.Confidence*100, s.CreatedAt.Format("2006-01-02")))
	}
	return fmt.Sprintf("%d signals:\n%s", len(parts), strings.Join(parts, "\n"))
}

func (iface *Interface) toolRunAnalysis(ctx context.Context, args map[string]any) string {
	topic := stringArg(args, "topic")

	payload := map[string]any{
		"text":         "Analyze: " + topic,
		"priority":     "high",
		"requested_by": "user",
	}
	if len(topic) <= 10 {
		payload["ticker"] = strings.ToUpper(topic)
	}

	event := domain.Event{
		ID:        idgen.Event(),
		Type:      domain.EventIntegrationInput,
		Timestamp: time.Now().UTC(),
		Source:    "interface",
		Payload:   payload,
	}
	if err := iface.bus.Publish(ctx, event); err != nil {
		return fmt.Sprintf("Failed to request analysis: %v", err)
	}
	return fmt.Sprintf("Analysis requested for: %s. Results will be delivered when ready.", topic)
}
