// Package portfolio implements the dual-book position tracker: one book
// that always executes every approved signal (the "ai" book, a paper
// portfolio) and one that only reflects what the user actually did (the
// "human" book). Grounded on original_source/risk/portfolio.py.
package portfolio

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/store"
)

// Tracker manages both books by reading and writing position files
// through the Store.
type Tracker struct {
	store *store.Store
	log   zerolog.Logger
}

// New creates a Tracker over st.
func New(st *store.Store, log zerolog.Logger) *Tracker {
	return &Tracker{store: st, log: log.With().Str("component", "portfolio").Logger()}
}

func kindFor(book domain.Book) string {
	if book == domain.BookHuman {
		return store.KindPositionsHuman
	}
	return store.KindPositionsAI
}

// Summary builds a PortfolioSummary for one book from its position files.
func (t *Tracker) Summary(book domain.Book) (domain.PortfolioSummary, error) {
	positions, err := store.ListJSON[domain.Position](t.store, kindFor(book))
	if err != nil {
		return domain.PortfolioSummary{}, fmt.Errorf("list %s positions: %w", book, err)
	}

	open := make([]domain.Position, 0, len(positions))
	for _, p := range positions {
		if p.IsOpen() {
			open = append(open, p)
		}
	}

	var totalPnL, totalValue float64
	for _, p := range open {
		if p.PnL != nil {
			totalPnL += *p.PnL
		}
		price := p.EntryPrice
		if p.CurrentPrice != nil {
			price = *p.CurrentPrice
		}
		totalValue += price * p.EffectiveSize()
	}

	var totalPnLPercent float64
	if totalValue != 0 {
		totalPnLPercent = totalPnL / totalValue * 100
	}

	return domain.PortfolioSummary{
		Portfolio:       book,
		TotalValue:      totalValue,
		Positions:       open,
		TotalPnL:        totalPnL,
		TotalPnLPercent: totalPnLPercent,
	}, nil
}

// Position returns a single ticker's position in a book, if any.
func (t *Tracker) Position(book domain.Book, ticker string) (domain.Position, bool, error) {
	return store.ReadJSON[domain.Position](t.store, kindFor(book), ticker)
}

// ListPositions returns every position file in a book.
func (t *Tracker) ListPositions(book domain.Book) ([]domain.Position, error) {
	return store.ListJSON[domain.Position](t.store, kindFor(book))
}

func (t *Tracker) write(book domain.Book, p domain.Position) error {
	return store.WriteJSON(t.store, kindFor(book), p.Ticker, p)
}

func positionDirection(d domain.Direction) domain.PositionDirection {
	if d == domain.DirectionSell {
		return domain.PositionShort
	}
	return domain.PositionLong
}

// AIOpenPosition always opens a position in the AI book for an approved
// signal -- the AI book has no confirmation step.
func (t *Tracker) AIOpenPosition(signal domain.Signal) (domain.Position, error) {
	entry := 0.0
	if signal.EntryTarget != nil {
		entry = *signal.EntryTarget
	}
	position := domain.Position{
		Ticker:     signal.Ticker,
		Direction:  positionDirection(signal.Direction),
		EntryPrice: entry,
		Status:     domain.PositionMonitoring,
		Portfolio:  domain.BookAI,
		SignalID:   signal.ID,
		OpenedAt:   time.Now().UTC(),
	}
	if err := t.write(domain.BookAI, position); err != nil {
		return domain.Position{}, fmt.Errorf("ai open position %s: %w", signal.Ticker, err)
	}
	t.log.Info().Str("ticker", position.Ticker).Str("direction", string(position.Direction)).
		Float64("entry_price", position.EntryPrice).Msg("ai portfolio opened position")
	return position, nil
}

func closePnL(direction domain.PositionDirection, entryPrice, closePrice, size float64) (pnl, pnlPercent float64) {
	if direction == domain.PositionLong {
		pnl = (closePrice - entryPrice) * size
	} else {
		pnl = (entryPrice - closePrice) * size
	}
	if entryPrice != 0 {
		pnlPercent = pnl / (entryPrice * size) * 100
	}
	return pnl, pnlPercent
}

// AIClosePosition closes the AI book's position for ticker, if one exists.
func (t *Tracker) AIClosePosition(ticker string, closePrice float64) (domain.Position, bool, error) {
	return t.closePosition(domain.BookAI, ticker, closePrice, "")
}

func (t *Tracker) closePosition(book domain.Book, ticker string, closePrice float64, via string) (domain.Position, bool, error) {
	position, ok, err := t.Position(book, ticker)
	if err != nil {
		return domain.Position{}, false, fmt.Errorf("load %s position %s: %w", book, ticker, err)
	}
	if !ok {
		return domain.Position{}, false, nil
	}

	now := time.Now().UTC()
	position.Status = domain.PositionClosed
	position.ClosePrice = &closePrice
	position.ClosedAt = &now
	if via != "" {
		position.ConfirmedVia = via
	}

	pnl, pnlPercent := closePnL(position.Direction, position.EntryPrice, closePrice, position.EffectiveSize())
	position.RealizedPnL = &pnl
	position.RealizedPnLPercent = &pnlPercent

	if err := t.write(book, position); err != nil {
		return domain.Position{}, false, fmt.Errorf("close %s position %s: %w", book, ticker, err)
	}
	t.log.Info().Str("book", string(book)).Str("ticker", ticker).
		Float64("close_price", closePrice).Float64("realized_pnl", pnl).Msg("closed position")
	return position, true, nil
}

// HumanConfirmPosition records that the user actually took a suggested
// trade.
func (t *Tracker) HumanConfirmPosition(signal domain.Signal, entryPrice float64, size *float64, via, notes string) (domain.Position, error) {
	now := time.Now().UTC()
	position := domain.Position{
		Ticker:       signal.Ticker,
		Direction:    positionDirection(signal.Direction),
		Size:         size,
		EntryPrice:   entryPrice,
		Status:       domain.PositionConfirmed,
		Portfolio:    domain.BookHuman,
		SignalID:     signal.ID,
		OpenedAt:     now,
		ConfirmedAt:  &now,
		ConfirmedVia: via,
		UserNotes:    notes,
	}
	if err := t.write(domain.BookHuman, position); err != nil {
		return domain.Position{}, fmt.Errorf("human confirm position %s: %w", signal.Ticker, err)
	}
	t.log.Info().Str("ticker", signal.Ticker).Float64("entry_price", entryPrice).Str("via", via).
		Msg("human portfolio confirmed position")
	return position, nil
}

// HumanSkipPosition records that the user explicitly declined a signal.
func (t *Tracker) HumanSkipPosition(signal domain.Signal, via, notes string) (domain.Position, error) {
	now := time.Now().UTC()
	entry := 0.0
	if signal.EntryTarget != nil {
		entry = *signal.EntryTarget
	}
	position := domain.Position{
		Ticker:       signal.Ticker,
		Direction:    positionDirection(signal.Direction),
		EntryPrice:   entry,
		Status:       domain.PositionSkipped,
		Portfolio:    domain.BookHuman,
		SignalID:     signal.ID,
		OpenedAt:     now,
		ConfirmedAt:  &now,
		ConfirmedVia: via,
		UserNotes:    notes,
	}
	if err := t.write(domain.BookHuman, position); err != nil {
		return domain.Position{}, fmt.Errorf("human skip position %s: %w", signal.Ticker, err)
	}
	t.log.Info().Str("ticker", signal.Ticker).Str("notes", notes).Msg("human portfolio skipped signal")
	return position, nil
}

// HumanClosePosition records that the user reported closing a position.
func (t *Tracker) HumanClosePosition(ticker string, closePrice float64, via string) (domain.Position, bool, error) {
	return t.closePosition(domain.BookHuman, ticker, closePrice, via)
}

// HumanInitiatedTrade records a trade the user took that the AI never
// suggested.
func (t *Tracker) HumanInitiatedTrade(ticker string, direction domain.PositionDirection, entryPrice float64, size *float64, via, notes string) (domain.Position, error) {
	now := time.Now().UTC()
	position := domain.Position{
		Ticker:       ticker,
		Direction:    direction,
		Size:         size,
		EntryPrice:   entryPrice,
		Status:       domain.PositionConfirmed,
		Portfolio:    domain.BookHuman,
		OpenedAt:     now,
		ConfirmedAt:  &now,
		ConfirmedVia: via,
		UserNotes:    notes,
	}
	if err := t.write(domain.BookHuman, position); err != nil {
		return domain.Position{}, fmt.Errorf("human initiated trade %s: %w", ticker, err)
	}
	t.log.Info().Str("ticker", ticker).Str("direction", string(direction)).
		Float64("entry_price", entryPrice).Str("via", via).Msg("human portfolio initiated trade")
	return position, nil
}

// MarkToMarket updates a book's open positions' CurrentPrice/PnL fields
// from the given last-known prices, keyed by ticker. Positions with no
// matching price are left unchanged. This supplements the reference,
// which only ever computed P&L at close -- SPEC_FULL.md's position
// tracking requires a live, continuously updated unrealized P&L for the
// dashboard and for the risk engine's concentration/drawdown rules.
func (t *Tracker) MarkToMarket(book domain.Book, prices map[string]float64) error {
	positions, err := t.ListPositions(book)
	if err != nil {
		return fmt.Errorf("mark to market %s: %w", book, err)
	}

	for _, p := range positions {
		if !p.IsOpen() {
			continue
		}
		price, ok := prices[p.Ticker]
		if !ok {
			continue
		}

		pnl, pnlPercent := closePnL(p.Direction, p.EntryPrice, price, p.EffectiveSize())
		p.CurrentPrice = &price
		p.PnL = &pnl
		p.PnLPercent = &pnlPercent

		if err := t.write(book, p); err != nil {
			return fmt.Errorf("mark to market %s %s: %w", book, p.Ticker, err)
		}
	}
	return nil
}
