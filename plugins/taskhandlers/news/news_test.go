package news_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradedesk/internal/bus"
	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/protocols"
	"github.com/aristath/tradedesk/internal/registry"
	"github.com/aristath/tradedesk/plugins/taskhandlers/news"
)

const sampleFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<item><title>Fed holds rates steady</title><link>https://example.com/1</link><pubDate>Mon, 27 Jul 2026 10:00:00 GMT</pubDate></item>
<item><title>Fed holds rates steady</title><link>https://example.com/1-dup</link><pubDate>Mon, 27 Jul 2026 10:05:00 GMT</pubDate></item>
<item><title>Tech stocks rally on earnings</title><link>https://example.com/2</link><pubDate>Mon, 27 Jul 2026 11:00:00 GMT</pubDate></item>
</channel></rss>`

func newTestHandler(t *testing.T, feedServer *httptest.Server) (*news.Handler, *bus.Bus) {
	t.Helper()
	b, err := bus.New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	reg := registry.New(zerolog.Nop())
	h := news.New(reg, b, 5, zerolog.Nop())
	h.SetFeedURLsForTesting([]string{feedServer.URL})
	return h, b
}

func TestRunPublishesBriefingWithoutSummaryWhenNoLLM(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer ts.Close()

	h, b := newTestHandler(t, ts)

	received := make(chan domain.Event, 1)
	b.Subscribe(domain.EventIntegrationOutput, func(ctx context.Context, event domain.Event) error {
		received <- event
		return nil
	})

	result, err := h.Run(context.Background(), map[string]any{"channel_id": "telegram-main"})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskResultSuccess, result.Status)

	event := <-received
	text := event.Payload["text"].(string)
	assert.Contains(t, text, "Fed holds rates steady")
	assert.Contains(t, text, "Tech stocks rally on earnings")
	assert.NotContains(t, text, "Quick Read")
}

func TestCallToolDeduplicatesHeadlinesByTitle(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer ts.Close()

	h, _ := newTestHandler(t, ts)

	text, found, err := h.CallTool(context.Background(), "get_news", map[string]any{}, protocols.ToolContext{})
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, text, "1. Fed holds rates steady")
	assert.Contains(t, text, "2. Tech stocks rally on earnings")
	assert.NotContains(t, text, "3.")
}

func TestRunWithNoHeadlinesReportsNoAction(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	h, _ := newTestHandler(t, ts)

	result, err := h.Run(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskResultNoAction, result.Status)
}

func TestGetToolsExposesGetNewsFunction(t *testing.T) {
	h, _ := newTestHandler(t, httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
	tools := h.GetTools()
	require.Len(t, tools, 1)
	assert.Equal(t, "get_news", tools[0].Function.Name)
}
