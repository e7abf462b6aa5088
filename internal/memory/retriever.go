// Package memory retrieves relevant Memory records for inclusion in a
// ContextPack. Grounded on original_source/engine/memory.py.
package memory

import (
	"time"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/store"
)

const defaultRelevanceWindow = 90 * 24 * time.Hour

// Retriever ranks and filters memories relevant to the current analysis.
type Retriever struct {
	store           *store.Store
	maxMemories     int
	relevanceWindow time.Duration
}

// New creates a Retriever. Zero values fall back to the reference
// defaults: 10 memories, a 90-day relevance window.
func New(st *store.Store, maxMemories int, relevanceWindow time.Duration) *Retriever {
	if maxMemories <= 0 {
		maxMemories = 10
	}
	if relevanceWindow <= 0 {
		relevanceWindow = defaultRelevanceWindow
	}
	return &Retriever{store: st, maxMemories: maxMemories, relevanceWindow: relevanceWindow}
}

// Retrieve returns memories matching ticker and/or tags within the
// relevance window, newest first, up to limit (or the configured max if
// limit is 0).
func (r *Retriever) Retrieve(ticker string, tags []string, limit int) ([]domain.Memory, error) {
	if limit <= 0 {
		limit = r.maxMemories
	}
	since := time.Now().UTC().Add(-r.relevanceWindow)

	ids, err := r.store.SearchMemories(store.SearchMemoriesOptions{
		Ticker: ticker,
		Tags:   tags,
		Since:  &since,
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}

	memories := make([]domain.Memory, 0, len(ids))
	for _, id := range ids {
		mem, ok, err := store.ReadJSON[domain.Memory](r.store, store.KindMemories, id)
		if err != nil {
			return nil, err
		}
		if ok {
			memories = append(memories, mem)
		}
	}
	return memories, nil
}
