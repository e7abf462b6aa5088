// Package comparison implements the weekly AI-vs-human portfolio
// comparison task handler -- the learning loop that turns divergences
// between the two books into Memory records. Grounded on
// original_source/plugins/task_handlers/comparison.py.
package comparison

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/idgen"
	"github.com/aristath/tradedesk/internal/llmutil"
	"github.com/aristath/tradedesk/internal/protocols"
	"github.com/aristath/tradedesk/internal/registry"
	"github.com/aristath/tradedesk/internal/store"
)

const comparisonPromptTemplate = `You are analyzing a divergence between an AI trading system and a human trader.

Divergence details:
- Signal: %s %s
- AI action: %s
- Human action: %s
- Outcome: %s
- AI P&L: %s
- Human P&L: %s

Analyze this divergence. Respond in JSON:
{
    "who_was_right": "ai" | "human" | "both" | "neither",
    "lesson": "A concise lesson learned (2-3 sentences). What should be done differently next time?",
    "tags": ["tag1", "tag2", "tag3"],
    "confidence_impact": -0.1 to 0.1
}

Tags should include the ticker, sector, and any relevant themes (e.g., "earnings", "macro", "momentum").
confidence_impact: positive means the AI should be MORE confident in similar situations, negative means LESS.`

// divergence describes one observed difference between the AI and human
// books for a single ticker.
type divergence struct {
	ticker     string
	kind       domain.DivergenceType
	aiAction   string
	humanAction string
	aiPos      *domain.Position
	humanPos   *domain.Position
	openedAt   time.Time
}

// Handler compares the AI and human portfolios on a schedule and writes
// Memory records for divergences old enough to judge. Implements
// protocols.TaskHandler.
type Handler struct {
	store          *store.Store
	bus            protocols.EventBus
	registry       *registry.Registry
	minOutcomeDays int
	log            zerolog.Logger
}

// New creates a Handler. minOutcomeDays defaults to 7 when zero or
// negative.
func New(st *store.Store, bus protocols.EventBus, reg *registry.Registry, minOutcomeDays int, log zerolog.Logger) *Handler {
	if minOutcomeDays <= 0 {
		minOutcomeDays = 7
	}
	return &Handler{
		store:          st,
		bus:            bus,
		registry:       reg,
		minOutcomeDays: minOutcomeDays,
		log:            log.With().Str("component", "comparison").Logger(),
	}
}

// Name identifies this handler in the scheduler's task.handler field.
func (h *Handler) Name() string { return "comparison.weekly" }

// Run implements protocols.TaskHandler.
func (h *Handler) Run(ctx context.Context, params map[string]any) (domain.TaskResult, error) {
	aiPositions, err := store.ListJSON[domain.Position](h.store, store.KindPositionsAI)
	if err != nil {
		return domain.TaskResult{}, fmt.Errorf("list ai positions: %w", err)
	}
	humanPositions, err := store.ListJSON[domain.Position](h.store, store.KindPositionsHuman)
	if err != nil {
		return domain.TaskResult{}, fmt.Errorf("list human positions: %w", err)
	}

	aiMap := make(map[string]domain.Position, len(aiPositions))
	for _, p := range aiPositions {
		aiMap[p.Ticker] = p
	}
	humanMap := make(map[string]domain.Position, len(humanPositions))
	for _, p := range humanPositions {
		humanMap[p.Ticker] = p
	}

	tickers := make(map[string]bool, len(aiMap)+len(humanMap))
	for t := range aiMap {
		tickers[t] = true
	}
	for t := range humanMap {
		tickers[t] = true
	}

	var divergences []divergence
	for ticker := range tickers {
		aiPos, hasAI := aiMap[ticker]
		humanPos, hasHuman := humanMap[ticker]
		var aiPtr, humanPtr *domain.Position
		if hasAI {
			aiPtr = &aiPos
		}
		if hasHuman {
			humanPtr = &humanPos
		}
		if d, ok := classifyDivergence(ticker, aiPtr, humanPtr); ok {
			divergences = append(divergences, d)
		}
	}

	if len(divergences) == 0 {
		return domain.TaskResult{
			Status:  domain.TaskResultNoAction,
			Message: "No divergences found between AI and human portfolios",
		}, nil
	}

	created := 0
	for _, d := range divergences {
		covered, err := h.alreadyCovered(d)
		if err != nil {
			h.log.Error().Err(err).Str("ticker", d.ticker).Msg("failed to check existing memories")
			continue
		}
		if covered {
			continue
		}
		if !h.hasEnoughOutcomeTime(d) {
			continue
		}

		memory, err := h.generateMemory(ctx, d)
		if err != nil {
			h.log.Error().Err(err).Str("ticker", d.ticker).Msg("failed to generate memory")
			continue
		}
		if memory == nil {
			continue
		}

		if err := h.store.IndexMemory(*memory); err != nil {
			h.log.Error().Err(err).Str("ticker", d.ticker).Msg("failed to persist memory")
			continue
		}

		event := domain.Event{
			ID:        idgen.Event(),
			Type:      domain.EventMemoryCreated,
			Timestamp: time.Now().UTC(),
			Source:    "comparison",
			Payload:   map[string]any{"memory_id": memory.ID, "ticker": d.ticker},
		}
		if err := h.bus.Publish(ctx, event); err != nil {
			h.log.Warn().Err(err).Msg("failed to publish memory.created")
		}

		created++
		h.log.Info().Str("memory_id", memory.ID).Str("who_was_right", string(memory.WhoWasRight)).Str("ticker", d.ticker).Msg("created memory")
	}

	return domain.TaskResult{
		Status:  domain.TaskResultSuccess,
		Message: fmt.Sprintf("Found %d divergences, created %d memories", len(divergences), created),
	}, nil
}

// classifyDivergence mirrors the reference's branching: positions that
// agree produce no divergence, a human skip against an AI position is a
// human_skipped divergence, a human-only position with no backing signal
// is human_initiated, and two settled (monitoring or closed) positions
// whose entry prices, or whose close prices, differ are a
// timing_divergence. An AI-only position is assumed execution and is not
// reported.
func classifyDivergence(ticker string, aiPos, humanPos *domain.Position) (divergence, bool) {
	if aiPos != nil && humanPos != nil {
		if isSettled(aiPos.Status) && isSettled(humanPos.Status) {
			exitDiffers := aiPos.ClosePrice != nil && humanPos.ClosePrice != nil && *aiPos.ClosePrice != *humanPos.ClosePrice
			if aiPos.EntryPrice != humanPos.EntryPrice || exitDiffers {
				return divergence{
					ticker:      ticker,
					kind:        domain.DivergenceTiming,
					aiAction:    fmt.Sprintf("%s at %.2f", aiPos.Direction, aiPos.EntryPrice),
					humanAction: fmt.Sprintf("%s at %.2f", humanPos.Direction, humanPos.EntryPrice),
					aiPos:       aiPos,
					humanPos:    humanPos,
					openedAt:    aiPos.OpenedAt,
				}, true
			}
		}
		if humanPos.Status == domain.PositionSkipped && aiPos.Status != domain.PositionSkipped {
			reason := humanPos.UserNotes
			if reason == "" {
				reason = "no reason given"
			}
			return divergence{
				ticker:      ticker,
				kind:        domain.DivergenceHumanSkipped,
				aiAction:    fmt.Sprintf("%s at %.2f", aiPos.Direction, aiPos.EntryPrice),
				humanAction: fmt.Sprintf("Skipped: %s", reason),
				aiPos:       aiPos,
				humanPos:    humanPos,
				openedAt:    aiPos.OpenedAt,
			}, true
		}
		return divergence{}, false
	}

	if aiPos != nil && humanPos == nil {
		// Assumed execution on timeout; not a reportable divergence.
		return divergence{}, false
	}

	if humanPos != nil && aiPos == nil && humanPos.SignalID == "" {
		reason := humanPos.UserNotes
		if reason == "" {
			reason = "no reason"
		}
		return divergence{
			ticker:      ticker,
			kind:        domain.DivergenceHumanInitiated,
			aiAction:    "No signal",
			humanAction: fmt.Sprintf("%s at %.2f (%s)", humanPos.Direction, humanPos.EntryPrice, reason),
			aiPos:       nil,
			humanPos:    humanPos,
			openedAt:    humanPos.OpenedAt,
		}, true
	}

	return divergence{}, false
}

func isSettled(status domain.PositionStatus) bool {
	return status == domain.PositionMonitoring || status == domain.PositionClosed
}

func (h *Handler) hasEnoughOutcomeTime(d divergence) bool {
	if d.openedAt.IsZero() {
		return false
	}
	return time.Since(d.openedAt) >= time.Duration(h.minOutcomeDays)*24*time.Hour
}

func (h *Handler) alreadyCovered(d divergence) (bool, error) {
	ids, err := h.store.SearchMemories(store.SearchMemoriesOptions{Ticker: d.ticker, Limit: 50})
	if err != nil {
		return false, fmt.Errorf("search memories for %s: %w", d.ticker, err)
	}
	for _, id := range ids {
		mem, ok, err := store.ReadJSON[domain.Memory](h.store, store.KindMemories, id)
		if err != nil || !ok {
			continue
		}
		if d.aiPos != nil && mem.SignalID != "" && mem.SignalID == d.aiPos.SignalID {
			return true, nil
		}
	}
	return false, nil
}

func (h *Handler) generateMemory(ctx context.Context, d divergence) (*domain.Memory, error) {
	providers := h.registry.GetAll(registry.KindLLM)
	if len(providers) == 0 {
		h.log.Warn().Msg("no LLM providers available for memory generation")
		return nil, nil
	}
	llm, ok := providers[0].(protocols.LLMProvider)
	if !ok {
		return nil, fmt.Errorf("registered llm provider %s does not implement protocols.LLMProvider", providers[0].Name())
	}

	aiPnL, humanPnL, outcome := summarizePnL(d)

	direction := "none"
	if d.aiPos != nil {
		direction = string(d.aiPos.Direction)
	}

	prompt := fmt.Sprintf(comparisonPromptTemplate, direction, d.ticker, d.aiAction, d.humanAction, outcome, aiPnL, humanPnL)

	messages := []domain.Message{
		{Role: domain.RoleSystem, Text: "You analyze trading divergences between an AI and a human."},
		{Role: domain.RoleUser, Text: prompt},
	}

	response, err := llm.Complete(ctx, messages, protocols.CompletionOpts{})
	if err != nil {
		return nil, fmt.Errorf("llm completion for %s: %w", d.ticker, err)
	}

	return parseMemoryResponse(response, d)
}

func summarizePnL(d divergence) (aiPnL, humanPnL, outcome string) {
	aiPnL, humanPnL, outcome = "N/A", "N/A", "Outcome not yet determined"

	if d.aiPos != nil {
		switch {
		case d.aiPos.RealizedPnL != nil:
			pct := 0.0
			if d.aiPos.RealizedPnLPercent != nil {
				pct = *d.aiPos.RealizedPnLPercent
			}
			aiPnL = fmt.Sprintf("$%.2f (%.1f%%)", *d.aiPos.RealizedPnL, pct)
		case d.aiPos.PnL != nil:
			pct := 0.0
			if d.aiPos.PnLPercent != nil {
				pct = *d.aiPos.PnLPercent
			}
			aiPnL = fmt.Sprintf("$%.2f (%.1f%%) unrealized", *d.aiPos.PnL, pct)
		}
		if d.aiPos.CurrentPrice != nil {
			change := (*d.aiPos.CurrentPrice - d.aiPos.EntryPrice) / d.aiPos.EntryPrice * 100
			outcome = fmt.Sprintf("%s moved from $%.2f to $%.2f (%+.1f%%)", d.ticker, d.aiPos.EntryPrice, *d.aiPos.CurrentPrice, change)
		}
	}

	if d.humanPos != nil {
		switch {
		case d.humanPos.Status == domain.PositionSkipped:
			humanPnL = "$0 (skipped)"
		case d.humanPos.RealizedPnL != nil:
			pct := 0.0
			if d.humanPos.RealizedPnLPercent != nil {
				pct = *d.humanPos.RealizedPnLPercent
			}
			humanPnL = fmt.Sprintf("$%.2f (%.1f%%)", *d.humanPos.RealizedPnL, pct)
		case d.humanPos.PnL != nil:
			pct := 0.0
			if d.humanPos.PnLPercent != nil {
				pct = *d.humanPos.PnLPercent
			}
			humanPnL = fmt.Sprintf("$%.2f (%.1f%%) unrealized", *d.humanPos.PnL, pct)
		}
	}

	return aiPnL, humanPnL, outcome
}

type memoryResponse struct {
	WhoWasRight      string   `json:"who_was_right"`
	Lesson           string   `json:"lesson"`
	Tags             []string `json:"tags"`
	ConfidenceImpact float64  `json:"confidence_impact"`
}

func parseMemoryResponse(response string, d divergence) (*domain.Memory, error) {
	cleaned := llmutil.StripCodeFence(response)

	var parsed memoryResponse
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("parse memory response: %w", err)
	}

	whoWasRight := domain.WhoWasRight(parsed.WhoWasRight)
	if whoWasRight == "" {
		whoWasRight = domain.WhoWasRightNeither
	}

	tags := parsed.Tags
	if len(tags) == 0 {
		tags = []string{d.ticker}
	}

	signalID := ""
	if d.aiPos != nil {
		signalID = d.aiPos.SignalID
	}

	return &domain.Memory{
		ID:               idgen.Memory(),
		CreatedAt:        time.Now().UTC(),
		SignalID:         signalID,
		Ticker:           d.ticker,
		DivergenceType:   d.kind,
		AIAction:         d.aiAction,
		HumanAction:      d.humanAction,
		WhoWasRight:      whoWasRight,
		Lesson:           strings.TrimSpace(parsed.Lesson),
		Tags:             tags,
		ConfidenceImpact: parsed.ConfidenceImpact,
		Source:           "comparison",
	}, nil
}
