package yahoofinance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupportsWithEmptyTickerListAllowsAnything(t *testing.T) {
	p := New(nil, zerolog.Nop())
	assert.True(t, p.Supports("NVDA"))
	assert.True(t, p.Supports("btc"))
}

func TestSupportsRestrictsToConfiguredTickersAndAliases(t *testing.T) {
	p := New([]string{"NVDA", "BTC"}, zerolog.Nop())
	assert.True(t, p.Supports("nvda"))
	assert.True(t, p.Supports("BTC-USD"))
	assert.False(t, p.Supports("AAPL"))
}

func TestFetchParsesChartResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"chart": {
				"result": [{
					"timestamp": [1700000000, 1700086400],
					"indicators": {
						"quote": [{
							"open": [100.0, 101.0],
							"high": [105.0, 106.0],
							"low": [99.0, 100.0],
							"close": [104.0, 105.5],
							"volume": [1000000, 1100000]
						}]
					}
				}]
			}
		}`))
	}))
	defer ts.Close()

	p := New(nil, zerolog.Nop())
	p.chartURLFmt = ts.URL + "/%s"

	rows, err := p.Fetch(context.Background(), []string{"NVDA"}, time.Now().Add(-48*time.Hour), time.Now())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "NVDA", rows[0].Ticker)
	assert.Equal(t, 104.0, rows[0].Close)
	assert.Equal(t, "yahoo_finance", rows[0].Source)
}

func TestFetchSkipsDaysWithNoCloseValue(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"chart": {
				"result": [{
					"timestamp": [1700000000, 1700086400],
					"indicators": {
						"quote": [{
							"open": [100.0, null],
							"high": [105.0, null],
							"low": [99.0, null],
							"close": [104.0, null],
							"volume": [1000000, null]
						}]
					}
				}]
			}
		}`))
	}))
	defer ts.Close()

	p := New(nil, zerolog.Nop())
	p.chartURLFmt = ts.URL + "/%s"

	rows, err := p.Fetch(context.Background(), []string{"NVDA"}, time.Now().Add(-48*time.Hour), time.Now())
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestFetchSkipsTickerOnServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	p := New(nil, zerolog.Nop())
	p.chartURLFmt = ts.URL + "/%s"

	rows, err := p.Fetch(context.Background(), []string{"NVDA"}, time.Now().Add(-48*time.Hour), time.Now())
	require.NoError(t, err)
	assert.Empty(t, rows)
}
