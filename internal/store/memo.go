package store

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aristath/tradedesk/internal/domain"
)

const memoKind = KindMemos

// frontMatterMeta mirrors the InvestmentMemo fields worth surfacing in the
// YAML front matter, so a memo file is both grep-able Markdown and
// machine-readable without parsing prose.
type frontMatterMeta struct {
	ID            string   `yaml:"id"`
	CreatedAt     time.Time `yaml:"created_at"`
	CorrelationID string   `yaml:"correlation_id,omitempty"`
	Ticker        string   `yaml:"ticker"`
	Direction     string   `yaml:"direction"`
	AgentsUsed    []string `yaml:"agents_used,omitempty"`
	ModelProvider string   `yaml:"model_provider,omitempty"`
	ModelName     string   `yaml:"model_name,omitempty"`
}

// MemoKey derives the on-disk filename stem for a memo:
// YYYY-MM-DD_<ticker>_<direction>.
func MemoKey(at time.Time, ticker string, direction domain.Direction) string {
	return fmt.Sprintf("%s_%s_%s", at.UTC().Format("2006-01-02"), ticker, direction)
}

// WriteMemo renders memo as a Markdown document with YAML front matter and
// persists it at memos/<key>.md, returning the key it was written under.
func (s *Store) WriteMemo(memo domain.InvestmentMemo, ticker string, direction domain.Direction) (string, error) {
	key := MemoKey(memo.CreatedAt, ticker, direction)

	meta := frontMatterMeta{
		ID:            memo.ID,
		CreatedAt:     memo.CreatedAt,
		CorrelationID: memo.CorrelationID,
		Ticker:        ticker,
		Direction:     string(direction),
		AgentsUsed:    memo.AgentsUsed,
		ModelProvider: memo.ModelProvider,
		ModelName:     memo.ModelName,
	}
	front, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal memo front matter %s: %w", key, err)
	}

	var body bytes.Buffer
	body.WriteString("---\n")
	body.Write(front)
	body.WriteString("---\n\n")
	body.WriteString("# " + memo.ExecutiveSummary + "\n\n")
	if memo.Catalyst != "" {
		fmt.Fprintf(&body, "## Catalyst\n\n%s\n\n", memo.Catalyst)
	}
	if memo.MarketContext != "" {
		fmt.Fprintf(&body, "## Market Context\n\n%s\n\n", memo.MarketContext)
	}
	if memo.PricingVsView != "" {
		fmt.Fprintf(&body, "## Pricing vs. View\n\n%s\n\n", memo.PricingVsView)
	}
	if len(memo.ScenarioTree) > 0 {
		body.WriteString("## Scenarios\n\n")
		for _, sc := range memo.ScenarioTree {
			fmt.Fprintf(&body, "- **%s** (p=%.2f)", sc.Name, sc.Probability)
			if sc.TargetPrice != nil {
				fmt.Fprintf(&body, ", target %.2f", *sc.TargetPrice)
			}
			if sc.Timeline != "" {
				fmt.Fprintf(&body, ", %s", sc.Timeline)
			}
			fmt.Fprintf(&body, ": %s\n", sc.Description)
		}
		body.WriteString("\n")
	}
	if memo.TradeExpression != "" {
		fmt.Fprintf(&body, "## Trade Expression\n\n%s\n\n", memo.TradeExpression)
	}
	if memo.EntryPlan != "" {
		fmt.Fprintf(&body, "## Entry Plan\n\n%s\n\n", memo.EntryPlan)
	}
	if len(memo.Risks) > 0 {
		body.WriteString("## Risks\n\n")
		for _, r := range memo.Risks {
			fmt.Fprintf(&body, "- %s\n", r)
		}
		body.WriteString("\n")
	}
	if memo.MonitoringPlan != "" {
		fmt.Fprintf(&body, "## Monitoring Plan\n\n%s\n", memo.MonitoringPlan)
	}

	if err := writeFileAtomic(s.path(memoKind, key, ".md"), body.Bytes()); err != nil {
		return "", fmt.Errorf("write memo %s: %w", key, err)
	}
	return key, nil
}

// ReadMemo loads a memo document and parses its front matter back into an
// InvestmentMemo. The prose body is returned as Body for display.
func (s *Store) ReadMemo(key string) (memo domain.InvestmentMemo, body string, ok bool, err error) {
	raw, err := os.ReadFile(s.path(memoKind, key, ".md"))
	if errors.Is(err, os.ErrNotExist) {
		return memo, "", false, nil
	}
	if err != nil {
		return memo, "", false, fmt.Errorf("read memo %s: %w", key, err)
	}

	text := string(raw)
	const delim = "---\n"
	if !strings.HasPrefix(text, delim) {
		return memo, text, true, nil
	}
	rest := text[len(delim):]
	end := strings.Index(rest, "\n"+delim)
	if end < 0 {
		return memo, text, true, nil
	}

	var meta frontMatterMeta
	if err := yaml.Unmarshal([]byte(rest[:end]), &meta); err != nil {
		return memo, "", false, fmt.Errorf("unmarshal memo front matter %s: %w", key, err)
	}
	memo.ID = meta.ID
	memo.CreatedAt = meta.CreatedAt
	memo.CorrelationID = meta.CorrelationID
	memo.AgentsUsed = meta.AgentsUsed
	memo.ModelProvider = meta.ModelProvider
	memo.ModelName = meta.ModelName

	body = strings.TrimPrefix(rest[end+len("\n"+delim):], "\n")
	return memo, body, true, nil
}
