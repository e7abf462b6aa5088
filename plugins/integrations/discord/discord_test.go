package discord_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/protocols"
	"github.com/aristath/tradedesk/plugins/integrations/discord"
)

func TestSendChunksAndFormatsSignalMessage(t *testing.T) {
	var mu sync.Mutex
	var sentTexts []string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/messages") && r.Method == http.MethodPost {
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			sentTexts = append(sentTexts, body["content"])
			mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id": "999"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	p := discord.New("test", []discord.Channel{{ID: "main", ChatID: "555", Direction: "output"}}, time.Second, zerolog.Nop())
	p.SetAPIBaseForTesting(ts.URL)

	entry := 42.5
	signal := domain.Signal{Ticker: "ETH", Direction: domain.DirectionSell, Confidence: 0.67, EntryTarget: &entry}
	result, err := p.Send(context.Background(), signal, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sentTexts, 1)
	assert.Contains(t, sentTexts[0], "SELL ETH")
	assert.Contains(t, sentTexts[0], "Confidence: 67%")
}

func TestSendReportsNoOutputChannelsConfigured(t *testing.T) {
	p := discord.New("test", nil, time.Second, zerolog.Nop())
	result, err := p.Send(context.Background(), domain.Signal{Ticker: "BTC"}, nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "No output channels configured", result.Message)
}

func TestPollLoopForwardsMessagesSkippingBotAuthor(t *testing.T) {
	polled := 0

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/users/@me"):
			_, _ = w.Write([]byte(`{"id": "bot-1"}`))
		case strings.Contains(r.URL.RawQuery, "limit=1"):
			_, _ = w.Write([]byte(`[]`))
		case strings.Contains(r.URL.RawQuery, "limit=50"):
			polled++
			if polled == 1 {
				_, _ = w.Write([]byte(`[
					{"id": "2", "content": "hi from human", "author": {"id": "user-1", "username": "trader", "bot": false}},
					{"id": "3", "content": "ignored", "author": {"id": "bot-1", "username": "self", "bot": false}}
				]`))
				return
			}
			_, _ = w.Write([]byte(`[]`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	defer ts.Close()

	p := discord.New("test", []discord.Channel{{ID: "main", ChatID: "777", Direction: "input"}}, 50*time.Millisecond, zerolog.Nop())
	p.SetAPIBaseForTesting(ts.URL)

	received := make(chan protocols.InputMessage, 2)
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
		assert.Equal(t, "discord", msg.Source)
		assert.Equal(t, "hi from human", msg.Text)
		assert.Equal(t, "trader", msg.FromUser)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for forwarded message")
	}

	select {
	case msg := <-received:
		t.Fatalf("did not expect a second forwarded message, got %+v", msg)
	case <-time.After(150 * time.Millisecond):
	}
}
