// Package frequency implements a RiskRule that caps the number of signals
// approved per day, counted directly from the event bus's day-keyed JSONL
// audit log. Grounded on original_source/plugins/risk_rules/frequency.py.
package frequency

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/tradedesk/internal/domain"
)

// Rule rejects a signal once the day's approved-signal count already meets
// MaxPerDay.
type Rule struct {
	MaxPerDay int
	eventsDir string
}

// New creates a Rule that counts today's signal.approved events under
// eventsDir (the same directory the event bus writes its audit log to). A
// zero maxPerDay falls back to the reference default of 5.
func New(maxPerDay int, eventsDir string) *Rule {
	if maxPerDay <= 0 {
		maxPerDay = 5
	}
	return &Rule{MaxPerDay: maxPerDay, eventsDir: eventsDir}
}

// Name identifies this rule in the registry and in RuleEvaluation output.
func (r *Rule) Name() string { return "frequency" }

// Evaluate implements protocols.RiskRule.
func (r *Rule) Evaluate(signal domain.Signal, portfolio domain.PortfolioSummary) domain.RuleEvaluation {
	count := r.countTodaysApprovals()
	passed := count < r.MaxPerDay
	reason := fmt.Sprintf("%d signals today (limit %d)", count, r.MaxPerDay)
	if !passed {
		reason = fmt.Sprintf("already %d signals today (limit %d)", count, r.MaxPerDay)
	}

	return domain.RuleEvaluation{
		RuleName:     r.Name(),
		Passed:       passed,
		Reason:       reason,
		CurrentValue: float64(count),
		LimitValue:   float64(r.MaxPerDay),
	}
}

func (r *Rule) countTodaysApprovals() int {
	if r.eventsDir == "" {
		return 0
	}

	today := time.Now().UTC().Format("2006-01-02")
	path := filepath.Join(r.eventsDir, today+".jsonl")

	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	var count int
	var record struct {
		Type domain.EventType `json:"type"`
	}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := json.Unmarshal(line, &record); err != nil {
			continue
		}
		if record.Type == domain.EventSignalApproved {
			count++
		}
	}
	return count
}
