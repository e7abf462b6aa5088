package memory_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/memory"
	"github.com/aristath/tradedesk/internal/store"
	testutil "github.com/aristath/tradedesk/internal/testing"
)

func newTestRetriever(t *testing.T) (*memory.Retriever, *store.Store) {
	t.Helper()
	db, cleanup := testutil.NewTestDB(t, "index")
	t.Cleanup(cleanup)

	st, err := store.New(t.TempDir(), db, zerolog.Nop())
	require.NoError(t, err)

	return memory.New(st, 0, 0), st
}

func TestRetrieveFiltersByTicker(t *testing.T) {
	r, st := newTestRetriever(t)

	require.NoError(t, st.IndexMemory(domain.Memory{
		ID: "mem_1", Ticker: "NVDA", CreatedAt: time.Now().UTC(),
		DivergenceType: domain.DivergenceTiming, WhoWasRight: domain.WhoWasRightAI,
		Lesson: "entered early", Tags: []string{"NVDA"},
	}))
	require.NoError(t, st.IndexMemory(domain.Memory{
		ID: "mem_2", Ticker: "AAPL", CreatedAt: time.Now().UTC(),
		DivergenceType: domain.DivergenceTiming, WhoWasRight: domain.WhoWasRightHuman,
		Lesson: "skipped wisely", Tags: []string{"AAPL"},
	}))

	memories, err := r.Retrieve("NVDA", nil, 0)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, "mem_1", memories[0].ID)
}

func TestRetrieveRespectsLimit(t *testing.T) {
	r, st := newTestRetriever(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, st.IndexMemory(domain.Memory{
			ID: "mem_" + string(rune('a'+i)), Ticker: "NVDA", CreatedAt: time.Now().UTC(),
			DivergenceType: domain.DivergenceTiming, WhoWasRight: domain.WhoWasRightAI,
			Lesson: "lesson", Tags: []string{"NVDA"},
		}))
	}

	memories, err := r.Retrieve("NVDA", nil, 2)
	require.NoError(t, err)
	assert.Len(t, memories, 2)
}
