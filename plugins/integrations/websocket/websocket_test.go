package websocket_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	nhooyrws "nhooyr.io/websocket"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/protocols"
	wsadapter "github.com/aristath/tradedesk/plugins/integrations/websocket"
)

func startTestProvider(t *testing.T) *wsadapter.Provider {
	t.Helper()
	p := wsadapter.New("127.0.0.1:0", "/ws", zerolog.Nop())
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop(context.Background()) })
	return p
}

func dialTestClient(t *testing.T, p *wsadapter.Provider) *nhooyrws.Conn {
	t.Helper()
	url := "ws://" + p.Addr() + "/ws"
	var conn *nhooyrws.Conn
	var err error
	for i := 0; i < 20; i++ {
		conn, _, err = nhooyrws.Dial(context.Background(), url, nil)
		if err == nil {
			return conn
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, err)
	return conn
}

func TestSendBroadcastsSignalToConnectedClient(t *testing.T) {
	p := startTestProvider(t)
	conn := dialTestClient(t, p)
	defer conn.Close(nhooyrws.StatusNormalClosure, "")

	signal := domain.Signal{Ticker: "AAPL", Direction: domain.DirectionBuy, Confidence: 0.9}

	readDone := make(chan []byte, 1)
	go func() {
		_, data, err := conn.Read(context.Background())
		if err == nil {
			readDone <- data
		}
	}()

	// retry Send until the client has actually registered on the server
	var result domain.DeliveryResult
	require.Eventually(t, func() bool {
		var err error
		result, err = sendSignal(p, signal)
		require.NoError(t, err)
		return result.Success
	}, 2*time.Second, 20*time.Millisecond)

	select {
	case data := <-readDone:
		var payload map[string]any
		require.NoError(t, json.Unmarshal(data, &payload))
		assert.Equal(t, "signal", payload["type"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast message")
	}
}

func sendSignal(p *wsadapter.Provider, signal domain.Signal) (domain.DeliveryResult, error) {
	return p.Send(context.Background(), signal, nil)
}

func TestSendReportsNoClientsConnected(t *testing.T) {
	p := startTestProvider(t)
	result, err := p.Send(context.Background(), domain.Signal{Ticker: "AAPL"}, nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "No websocket clients connected", result.Message)
}

func TestClientMessageIsForwardedToCallback(t *testing.T) {
	p := startTestProvider(t)

	received := make(chan protocols.InputMessage, 1)
	p.OnMessage(func(ctx context.Context, msg protocols.InputMessage) error {
		received <- msg
		return nil
	})

	conn := dialTestClient(t, p)
	defer conn.Close(nhooyrws.StatusNormalClosure, "")

	require.NoError(t, conn.Write(context.Background(), nhooyrws.MessageText, []byte("what's my portfolio look like")))

	select {
	case msg := <-received:
		assert.Equal(t, "websocket", msg.Source)
		assert.Equal(t, "what's my portfolio look like", msg.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for forwarded message")
	}
}
