// Package yahoofinance fetches historical daily OHLCV data from Yahoo
// Finance's public chart endpoint -- no API key required. Grounded on
// original_source/plugins/market_data/yahoo_finance.py for the endpoint,
// the ticker normalization/alias rules, and the chart-response parsing;
// on internal/clients/exchangerate.Client for the net/http + zerolog
// client shape the rest of this codebase uses for outbound HTTP.
package yahoofinance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/domain"
)

const chartURLTemplate = "https://query1.finance.yahoo.com/v8/finance/chart/%s"

var tickerAliases = map[string]string{
	"BTC": "BTC-USD",
	"ETH": "ETH-USD",
	"SOL": "SOL-USD",
}

// Provider fetches market data from Yahoo Finance. Implements
// protocols.MarketDataProvider.
type Provider struct {
	tickers     map[string]bool
	client      *http.Client
	chartURLFmt string
	log         zerolog.Logger
}

// New creates a Provider restricted to the given tickers. An empty or nil
// tickers list means "supports anything", matching Yahoo's own breadth.
func New(tickers []string, log zerolog.Logger) *Provider {
	set := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		set[normalizeTicker(t)] = true
	}
	return &Provider{
		tickers:     set,
		client:      &http.Client{Timeout: 30 * time.Second},
		chartURLFmt: chartURLTemplate,
		log:         log.With().Str("client", "yahoo_finance").Logger(),
	}
}

// Name implements protocols.MarketDataProvider.
func (p *Provider) Name() string { return "yahoo_finance" }

// Supports implements protocols.MarketDataProvider.
func (p *Provider) Supports(ticker string) bool {
	if len(p.tickers) == 0 {
		return true
	}
	return p.tickers[normalizeTicker(ticker)]
}

func normalizeTicker(ticker string) string {
	upper := strings.ToUpper(ticker)
	if alias, ok := tickerAliases[upper]; ok {
		return alias
	}
	return upper
}

// Fetch implements protocols.MarketDataProvider. A ticker that fails to
// fetch is logged and skipped rather than failing the whole batch.
func (p *Provider) Fetch(ctx context.Context, tickers []string, start, end time.Time) ([]domain.MarketRow, error) {
	var rows []domain.MarketRow
	for _, ticker := range tickers {
		rs, err := p.fetchTicker(ctx, ticker, start, end)
		if err != nil {
			p.log.Warn().Err(err).Str("ticker", ticker).Msg("failed to fetch yahoo finance data")
			continue
		}
		rows = append(rows, rs...)
	}
	return rows, nil
}

type chartResponse struct {
	Chart struct {
		Result []chartResult  `json:"result"`
		Error  map[string]any `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

func (p *Provider) fetchTicker(ctx context.Context, ticker string, start, end time.Time) ([]domain.MarketRow, error) {
	queryTicker := normalizeTicker(ticker)
	url := fmt.Sprintf(p.chartURLFmt, queryTicker)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", queryTicker, err)
	}
	req.Header.Set("User-Agent", "tradedesk/0.1")
	q := req.URL.Query()
	q.Set("period1", fmt.Sprintf("%d", start.Unix()))
	q.Set("period2", fmt.Sprintf("%d", end.Unix()))
	q.Set("interval", "1d")
	q.Set("includePrePost", "false")
	req.URL.RawQuery = q.Encode()

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", queryTicker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo finance returned status %d for %s", resp.StatusCode, queryTicker)
	}

	var parsed chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response for %s: %w", queryTicker, err)
	}

	if len(parsed.Chart.Result) == 0 {
		return nil, fmt.Errorf("yahoo finance error for %s: %v", queryTicker, parsed.Chart.Error)
	}

	return parseChartResult(ticker, parsed.Chart.Result[0]), nil
}

func parseChartResult(ticker string, result chartResult) []domain.MarketRow {
	if len(result.Indicators.Quote) == 0 {
		return nil
	}
	quote := result.Indicators.Quote[0]

	var rows []domain.MarketRow
	for i, ts := range result.Timestamp {
		close := valueAt(quote.Close, i)
		if close == nil {
			continue
		}
		dt := time.Unix(ts, 0).UTC()
		row := domain.MarketRow{
			Ticker:      ticker,
			Timestamp:   dt,
			AvailableAt: dt,
			Close:       *close,
			Source:      "yahoo_finance",
			Kind:        "price",
		}
		if v := valueAt(quote.Open, i); v != nil {
			row.Open = *v
		}
		if v := valueAt(quote.High, i); v != nil {
			row.High = *v
		}
		if v := valueAt(quote.Low, i); v != nil {
			row.Low = *v
		}
		if v := valueAt(quote.Volume, i); v != nil {
			row.Volume = *v
		}
		rows = append(rows, row)
	}
	return rows
}

func valueAt(values []*float64, i int) *float64 {
	if i < 0 || i >= len(values) {
		return nil
	}
	return values[i]
}
