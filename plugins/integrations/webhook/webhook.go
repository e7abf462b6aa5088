// Package webhook is a generic HTTP InputAdapter: it runs a small chi
// router exposing a POST endpoint that turns an inbound JSON payload into
// an InputMessage, plus a /healthz liveness endpoint reporting process
// uptime, CPU, and memory use. Grounded on internal/server/server.go for
// the router/middleware/http.Server construction (chi, go-chi/cors,
// Recoverer/RequestID/RealIP/Timeout middleware, ListenAndServe/Shutdown)
// and internal/server/system_handlers.go's getSystemStats for the
// gopsutil CPU/memory reading. Start binds with net.Listen directly
// (rather than only http.Server.ListenAndServe), the same ephemeral-port
// testing seam plugins/integrations/websocket uses.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/tradedesk/internal/protocols"
)

// inboundPayload is the JSON body accepted by the webhook endpoint.
type inboundPayload struct {
	ChannelID string `json:"channel_id"`
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	FromUser  string `json:"from_user"`
}

// Provider implements protocols.InputAdapter by running an HTTP server
// with a single webhook endpoint, plus a /healthz liveness endpoint.
type Provider struct {
	mu        sync.Mutex
	addr      string
	startedAt time.Time
	server    *http.Server
	log       zerolog.Logger
	callbacks []protocols.InputCallback
}

// New creates a Provider listening on addr (e.g. ":8090").
func New(addr string, log zerolog.Logger) *Provider {
	return &Provider{
		addr: addr,
		log:  log.With().Str("integration", "webhook").Logger(),
	}
}

// Name implements protocols.InputAdapter.
func (p *Provider) Name() string { return "webhook" }

// OnMessage implements protocols.InputAdapter.
func (p *Provider) OnMessage(callback protocols.InputCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = append(p.callbacks, callback)
}

// Addr returns the server's actual listen address, useful after Start when
// the Provider was created with an ephemeral port ("127.0.0.1:0").
func (p *Provider) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addr
}

// Start implements protocols.InputAdapter.
func (p *Provider) Start(ctx context.Context) error {
	p.startedAt = time.Now()

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/healthz", p.handleHealthz)
	router.Post("/webhook", p.handleWebhook)

	p.server = &http.Server{
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
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
			p.log.Error().Err(err).Msg("webhook server stopped unexpectedly")
		}
	}()

	p.log.Info().Str("addr", p.addr).Msg("webhook transport started")
	return nil
}

// Stop implements protocols.InputAdapter.
func (p *Provider) Stop(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	p.log.Info().Msg("stopping webhook transport")
	return p.server.Shutdown(ctx)
}

func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload inboundPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if payload.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	if payload.ChannelID == "" {
		payload.ChannelID = "webhook"
	}

	msg := protocols.InputMessage{
		Source:    "webhook",
		ChannelID: payload.ChannelID,
		ChatID:    payload.ChatID,
		Text:      payload.Text,
		FromUser:  payload.FromUser,
		Timestamp: time.Now().UTC(),
	}

	p.mu.Lock()
	callbacks := append([]protocols.InputCallback(nil), p.callbacks...)
	p.mu.Unlock()

	for _, cb := range callbacks {
		if err := cb(r.Context(), msg); err != nil {
			p.log.Error().Err(err).Msg("error in webhook message callback")
		}
	}

	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"status":"accepted"}`))
}

func (p *Provider) handleHealthz(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := p.systemStats()

	resp := map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(p.startedAt).Seconds()),
		"cpu_percent":    cpuPercent,
		"memory_percent": memPercent,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// systemStats reports instantaneous CPU and RAM usage percentages. A short
// 100ms sampling window keeps the endpoint responsive for frequent polling.
func (p *Provider) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		p.log.Warn().Err(err).Msg("failed to read CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		p.log.Warn().Err(err).Msg("failed to read memory statistics")
		return firstOrZero(cpuPercent), 0
	}

	return firstOrZero(cpuPercent), memStat.UsedPercent
}

func firstOrZero(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[0]
}
