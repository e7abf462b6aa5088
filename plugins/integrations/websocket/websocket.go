// Package websocket is a generic streaming transport: it runs a small HTTP
// server that accepts websocket connections, broadcasts formatted signal
// notifications and arbitrary text to every connected client, and forwards
// whatever text a client sends back as an InputMessage. It exists for
// dashboards and other first-party clients that want a push channel instead
// of polling an integration's REST API. Grounded on
// internal/clients/tradernet/websocket_client.go for the nhooyr.io/websocket
// connection lifecycle (dial/read-loop/close there, accept/read-loop/close
// here) and internal/server/events_stream.go for the broadcast-to-many-
// subscribers shape this plugin runs over one connection set instead of SSE.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/protocols"
)

const writeWait = 10 * time.Second

// Provider implements protocols.InputAdapter and protocols.OutputAdapter by
// running an HTTP server that upgrades every connection to a websocket.
type Provider struct {
	addr   string
	path   string
	server *http.Server
	log    zerolog.Logger

	mu        sync.Mutex
	clients   map[string]*websocket.Conn
	nextID    int
	callbacks []protocols.InputCallback
}

// New creates a Provider listening on addr (e.g. ":8089") at path (e.g.
// "/ws").
func New(addr, path string, log zerolog.Logger) *Provider {
	if path == "" {
		path = "/ws"
	}
	return &Provider{
		addr:    addr,
		path:    path,
		log:     log.With().Str("integration", "websocket").Logger(),
		clients: make(map[string]*websocket.Conn),
	}
}

// Name implements protocols.InputAdapter and protocols.OutputAdapter.
func (p *Provider) Name() string { return "websocket" }

// OnMessage implements protocols.InputAdapter.
func (p *Provider) OnMessage(callback protocols.InputCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = append(p.callbacks, callback)
}

// Start implements protocols.InputAdapter, starting the HTTP server in the
// background.
func (p *Provider) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(p.path, p.handleConn)

	p.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	listener, err := net.Listen("tcp", p.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", p.addr, err)
	}
	p.mu.Lock()
	p.addr = listener.Addr().String()
	p.mu.Unlock()

	go func() {
		if err := p.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			p.log.Error().Err(err).Msg("websocket server stopped unexpectedly")
		}
	}()

	p.log.Info().Str("addr", p.addr).Str("path", p.path).Msg("websocket transport started")
	return nil
}

// Addr returns the server's actual listen address, useful after Start when
// the Provider was created with an ephemeral port ("127.0.0.1:0").
func (p *Provider) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addr
}

// Stop implements protocols.InputAdapter.
func (p *Provider) Stop(ctx context.Context) error {
	p.mu.Lock()
	for id, conn := range p.clients {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(p.clients, id)
	}
	p.mu.Unlock()

	if p.server == nil {
		return nil
	}
	p.log.Info().Msg("stopping websocket transport")
	return p.server.Shutdown(ctx)
}

func (p *Provider) handleConn(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		p.log.Warn().Err(err).Msg("failed to accept websocket connection")
		return
	}

	p.mu.Lock()
	p.nextID++
	id := strconv.Itoa(p.nextID)
	p.clients[id] = conn
	p.mu.Unlock()

	p.log.Info().Str("client_id", id).Msg("websocket client connected")
	p.readLoop(r.Context(), id, conn)
}

func (p *Provider) readLoop(ctx context.Context, clientID string, conn *websocket.Conn) {
	defer func() {
		p.mu.Lock()
		delete(p.clients, clientID)
		p.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
		p.log.Info().Str("client_id", clientID).Msg("websocket client disconnected")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		text := strings.TrimSpace(string(data))
		if text == "" {
			continue
		}

		msg := protocols.InputMessage{
			Source:    "websocket",
			ChannelID: clientID,
			ChatID:    clientID,
			Text:      text,
			FromUser:  "client-" + clientID,
			Timestamp: time.Now().UTC(),
		}

		p.mu.Lock()
		callbacks := append([]protocols.InputCallback(nil), p.callbacks...)
		p.mu.Unlock()

		for _, cb := range callbacks {
			if err := cb(ctx, msg); err != nil {
				p.log.Error().Err(err).Msg("error in websocket message callback")
			}
		}
	}
}

// Send implements protocols.OutputAdapter, broadcasting a signal
// notification as JSON to every connected client.
func (p *Provider) Send(ctx context.Context, signal domain.Signal, memo *domain.InvestmentMemo) (domain.DeliveryResult, error) {
	payload := map[string]any{
		"type":   "signal",
		"signal": signal,
	}
	if memo != nil {
		payload["memo"] = memo
	}
	sent, err := p.broadcast(ctx, payload)
	if err != nil {
		return domain.DeliveryResult{Success: false, Adapter: p.Name(), Message: err.Error()}, nil
	}
	if sent == 0 {
		return domain.DeliveryResult{Success: false, Adapter: p.Name(), Message: "No websocket clients connected"}, nil
	}
	return domain.DeliveryResult{Success: true, Adapter: p.Name(), Message: fmt.Sprintf("Delivered to %d client(s)", sent)}, nil
}

// SendText implements protocols.OutputAdapter. channelID selects a single
// connected client by ID; empty broadcasts to all.
func (p *Provider) SendText(ctx context.Context, text string, channelID string) error {
	payload := map[string]any{"type": "text", "text": text}
	if channelID == "" {
		_, err := p.broadcast(ctx, payload)
		return err
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal websocket message: %w", err)
	}

	p.mu.Lock()
	conn, ok := p.clients[channelID]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("no connected websocket client with id %s", channelID)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, encoded)
}

func (p *Provider) broadcast(ctx context.Context, payload map[string]any) (int, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal websocket message: %w", err)
	}

	p.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(p.clients))
	for _, conn := range p.clients {
		conns = append(conns, conn)
	}
	p.mu.Unlock()

	sent := 0
	for _, conn := range conns {
		writeCtx, cancel := context.WithTimeout(ctx, writeWait)
		err := conn.Write(writeCtx, websocket.MessageText, encoded)
		cancel()
		if err != nil {
			p.log.Warn().Err(err).Msg("failed to write to websocket client")
			continue
		}
		sent++
	}
	return sent, nil
}
