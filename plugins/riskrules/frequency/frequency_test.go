package frequency_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/plugins/riskrules/frequency"
)

func writeTodaysEvents(t *testing.T, dir string, eventTypes ...domain.EventType) {
	t.Helper()
	today := time.Now().UTC().Format("2006-01-02")
	f, err := os.Create(filepath.Join(dir, today+".jsonl"))
	require.NoError(t, err)
	defer f.Close()

	for i, et := range eventTypes {
		fmt.Fprintf(f, `{"id":"evt_%d","type":%q,"timestamp":"2026-01-01T00:00:00Z"}`+"\n", i, et)
	}
}

func TestRulePassesWithNoEventsDirectory(t *testing.T) {
	r := frequency.New(5, "")
	eval := r.Evaluate(domain.Signal{}, domain.PortfolioSummary{})
	assert.True(t, eval.Passed)
	assert.Equal(t, 0.0, eval.CurrentValue)
}

func TestRuleCountsOnlyApprovedSignalsToday(t *testing.T) {
	dir := t.TempDir()
	writeTodaysEvents(t, dir,
		domain.EventSignalApproved,
		domain.EventSignalApproved,
		domain.EventSignalRejected,
		domain.EventSignalProposed,
	)

	r := frequency.New(5, dir)
	eval := r.Evaluate(domain.Signal{}, domain.PortfolioSummary{})
	assert.True(t, eval.Passed)
	assert.Equal(t, 2.0, eval.CurrentValue)
}

func TestRuleFailsAtLimit(t *testing.T) {
	dir := t.TempDir()
	writeTodaysEvents(t, dir,
		domain.EventSignalApproved,
		domain.EventSignalApproved,
	)

	r := frequency.New(2, dir)
	eval := r.Evaluate(domain.Signal{}, domain.PortfolioSummary{})
	assert.False(t, eval.Passed)
}
