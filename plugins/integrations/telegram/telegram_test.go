package telegram_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/protocols"
	"github.com/aristath/tradedesk/plugins/integrations/telegram"
)

// newMockTelegramServer starts a local test server running handler; tests
// point a provider at it with SetBaseURLForTesting.
func newMockTelegramServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(handler)
}

func TestFormatAndChunkingSendsSignal(t *testing.T) {
	var mu sync.Mutex
	var sentTexts []string

	ts := newMockTelegramServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bottest/sendMessage" {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			sentTexts = append(sentTexts, body["text"].(string))
			mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ok": true, "result": {}}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	defer ts.Close()

	p := telegram.New("test", []telegram.Channel{{ID: "main", ChatID: "123", Direction: "output"}}, zerolog.Nop())
	p.SetBaseURLForTesting(ts.URL + "/bottest")

	entry := 100.0
	signal := domain.Signal{Ticker: "AAPL", Direction: domain.DirectionBuy, Confidence: 0.82, EntryTarget: &entry}
	result, err := p.Send(context.Background(), signal, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sentTexts, 1)
	assert.Contains(t, sentTexts[0], "BUY AAPL")
	assert.Contains(t, sentTexts[0], "Confidence: 82%")
}

func TestSendFallsBackToPlainTextWhenMarkdownFails(t *testing.T) {
	var calls int
	ts := newMockTelegramServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		calls++
		w.Header().Set("Content-Type", "application/json")
		if _, hasMarkdown := body["parse_mode"]; hasMarkdown {
			_, _ = w.Write([]byte(`{"ok": false, "description": "can't parse entities"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok": true, "result": {}}`))
	})
	defer ts.Close()

	p := telegram.New("test", []telegram.Channel{{ID: "main", ChatID: "123", Direction: "output"}}, zerolog.Nop())
	p.SetBaseURLForTesting(ts.URL + "/bottest")

	signal := domain.Signal{Ticker: "AAPL", Direction: domain.DirectionBuy, Confidence: 0.5}
	result, err := p.Send(context.Background(), signal, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, calls)
}

func TestSendReportsNoOutputChannelsConfigured(t *testing.T) {
	p := telegram.New("test", nil, zerolog.Nop())
	result, err := p.Send(context.Background(), domain.Signal{Ticker: "AAPL"}, nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "No output channels configured", result.Message)
}

func TestPollLoopForwardsMessagesFromInputChannels(t *testing.T) {
	var mu sync.Mutex
	served := false

	ts := newMockTelegramServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		mu.Lock()
		defer mu.Unlock()
		if !served {
			served = true
			_, _ = w.Write([]byte(`{"ok": true, "result": [{"update_id": 1, "message": {"chat": {"id": 123}, "text": "hello", "from": {"username": "trader"}}}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok": true, "result": []}`))
	})
	defer ts.Close()

	p := telegram.New("test", []telegram.Channel{{ID: "main", ChatID: "123", Direction: "input"}}, zerolog.Nop())
	p.SetBaseURLForTesting(ts.URL + "/bottest")

	received := make(chan protocols.InputMessage, 1)
	p.OnMessage(func(ctx context.Context, msg protocols.InputMessage) error {
		received <- msg
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Start(ctx))
	defer p.Stop(context.Background())

	select {
	case msg := <-received:
		assert.Equal(t, "telegram", msg.Source)
		assert.Equal(t, "hello", msg.Text)
		assert.Equal(t, "trader", msg.FromUser)
		assert.Equal(t, "123", msg.ChatID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for forwarded message")
	}
}
