// Package discord is a bidirectional dumb-pipe transport over the Discord
// REST API, polling configured channels for new messages and sending
// formatted signal notifications back out. Grounded one-to-one on
// original_source/plugins/integrations/discord.py; the net/http client
// shape follows internal/clients/exchangerate.Client.
package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/protocols"
)

const apiBase = "https://discord.com/api/v10"

// Channel binds one Discord channel to a direction.
type Channel struct {
	ID        string
	ChatID    string // Discord channel ID
	Direction string // "both", "input", or "output"
}

// Provider implements both protocols.InputAdapter and protocols.OutputAdapter
// against the Discord REST API, polling rather than using the gateway.
type Provider struct {
	token        string
	apiBase      string
	pollInterval time.Duration
	client       *http.Client
	log          zerolog.Logger

	inputChannels  map[string]Channel
	outputChannels []Channel
	allChannels    []Channel

	mu              sync.Mutex
	callbacks       []protocols.InputCallback
	lastMessageID   map[string]string
	botUserID       string
	cancel          context.CancelFunc
	done            chan struct{}
}

// New creates a Provider for the given bot token and channel set.
func New(botToken string, channels []Channel, pollInterval time.Duration, log zerolog.Logger) *Provider {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	p := &Provider{
		token:        botToken,
		apiBase:      apiBase,
		pollInterval: pollInterval,
		client:       &http.Client{Timeout: 30 * time.Second},
		log:          log.With().Str("integration", "discord").Logger(),
		allChannels:  channels,
		lastMessageID: make(map[string]string),
	}
	p.inputChannels = make(map[string]Channel)
	for _, ch := range channels {
		if ch.Direction == "both" || ch.Direction == "input" {
			p.inputChannels[ch.ChatID] = ch
		}
		if ch.Direction == "both" || ch.Direction == "output" {
			p.outputChannels = append(p.outputChannels, ch)
		}
	}
	return p
}

// Name implements protocols.InputAdapter and protocols.OutputAdapter.
func (p *Provider) Name() string { return "discord" }

// SetAPIBaseForTesting overrides the Discord API base URL so tests can point
// the provider at an httptest server.
func (p *Provider) SetAPIBaseForTesting(base string) {
	p.apiBase = base
}

// OnMessage implements protocols.InputAdapter.
func (p *Provider) OnMessage(callback protocols.InputCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = append(p.callbacks, callback)
}

// Start implements protocols.InputAdapter.
func (p *Provider) Start(ctx context.Context) error {
	p.botUserID = p.fetchBotUserID(ctx)
	p.bootstrapOffsets(ctx)

	loopCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.done = make(chan struct{})
	p.mu.Unlock()

	go p.pollLoop(loopCtx)
	p.log.Info().Int("input_channels", len(p.inputChannels)).Msg("discord input started")
	return nil
}

// Stop implements protocols.InputAdapter.
func (p *Provider) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.log.Info().Msg("discord integration stopped")
	return nil
}

func (p *Provider) fetchBotUserID(ctx context.Context) string {
	req, err := p.newRequest(ctx, http.MethodGet, p.apiBase+"/users/@me", nil)
	if err != nil {
		return ""
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to fetch discord bot identity")
		return ""
	}
	defer resp.Body.Close()

	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ""
	}
	return parsed.ID
}

func (p *Provider) bootstrapOffsets(ctx context.Context) {
	for channelID := range p.inputChannels {
		latest := p.latestMessageID(ctx, channelID)
		if latest != "" {
			p.lastMessageID[channelID] = latest
		}
	}
}

func (p *Provider) latestMessageID(ctx context.Context, channelID string) string {
	q := url.Values{"limit": {"1"}}
	req, err := p.newRequest(ctx, http.MethodGet, p.apiBase+"/channels/"+channelID+"/messages?"+q.Encode(), nil)
	if err != nil {
		return ""
	}
	resp, err := p.client.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		if resp != nil {
			resp.Body.Close()
		}
		return ""
	}
	defer resp.Body.Close()

	var rows []discordMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil || len(rows) == 0 {
		return ""
	}
	return rows[0].ID
}

type discordMessage struct {
	ID      string       `json:"id"`
	Content string       `json:"content"`
	Author  discordUser  `json:"author"`
}

type discordUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

func (p *Provider) pollLoop(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		for channelID := range p.inputChannels {
			p.pollChannel(ctx, channelID)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.pollInterval):
		}
	}
}

func (p *Provider) pollChannel(ctx context.Context, channelID string) {
	q := url.Values{"limit": {"50"}}
	p.mu.Lock()
	lastID := p.lastMessageID[channelID]
	p.mu.Unlock()
	if lastID != "" {
		q.Set("after", lastID)
	}

	req, err := p.newRequest(ctx, http.MethodGet, p.apiBase+"/channels/"+channelID+"/messages?"+q.Encode(), nil)
	if err != nil {
		return
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Error().Err(err).Str("channel_id", channelID).Msg("discord poll failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.log.Warn().Int("status", resp.StatusCode).Str("channel_id", channelID).Msg("discord poll failed")
		return
	}

	var rows []discordMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil || len(rows) == 0 {
		return
	}

	sort.Slice(rows, func(i, j int) bool {
		a, _ := strconv.ParseInt(rows[i].ID, 10, 64)
		b, _ := strconv.ParseInt(rows[j].ID, 10, 64)
		return a < b
	})

	channel := p.inputChannels[channelID]
	channelLabel := channel.ID
	if channelLabel == "" {
		channelLabel = channelID
	}

	p.mu.Lock()
	callbacks := append([]protocols.InputCallback(nil), p.callbacks...)
	p.mu.Unlock()

	for _, row := range rows {
		if row.ID != "" {
			p.mu.Lock()
			p.lastMessageID[channelID] = row.ID
			p.mu.Unlock()
		}
		if p.botUserID != "" && row.Author.ID == p.botUserID {
			continue
		}
		if row.Author.Bot {
			continue
		}
		text := strings.TrimSpace(row.Content)
		if text == "" {
			continue
		}

		fromUser := row.Author.Username
		if fromUser == "" {
			fromUser = "unknown"
		}

		msg := protocols.InputMessage{
			Source:    "discord",
			ChannelID: channelLabel,
			ChatID:    channelID,
			Text:      text,
			FromUser:  fromUser,
			Timestamp: time.Now().UTC(),
		}
		for _, cb := range callbacks {
			if err := cb(ctx, msg); err != nil {
				p.log.Error().Err(err).Msg("error in discord message callback")
			}
		}
	}
}

// Send implements protocols.OutputAdapter.
func (p *Provider) Send(ctx context.Context, signal domain.Signal, memo *domain.InvestmentMemo) (domain.DeliveryResult, error) {
	if len(p.outputChannels) == 0 {
		return domain.DeliveryResult{Success: false, Adapter: p.Name(), Message: "No output channels configured"}, nil
	}

	text := formatSignalMessage(signal, memo)
	var errs []string
	success := true

	for _, channel := range p.outputChannels {
		if err := p.sendMessage(ctx, channel.ChatID, text); err != nil {
			p.log.Error().Err(err).Str("channel_id", channel.ChatID).Msg("failed to send to discord channel")
			errs = append(errs, err.Error())
			success = false
			continue
		}
		p.log.Info().Str("channel_id", channel.ChatID).Msg("sent signal to discord channel")
	}

	msg := "Delivered"
	if len(errs) > 0 {
		msg = strings.Join(errs, "; ")
	}
	return domain.DeliveryResult{Success: success, Adapter: p.Name(), Message: msg}, nil
}

// SendText implements protocols.OutputAdapter.
func (p *Provider) SendText(ctx context.Context, text string, channelID string) error {
	targets := p.outputChannels
	if channelID != "" {
		targets = nil
		for _, ch := range p.allChannels {
			if ch.ID == channelID || ch.ChatID == channelID {
				targets = append(targets, ch)
			}
		}
	}

	for _, channel := range targets {
		if err := p.sendMessage(ctx, channel.ChatID, text); err != nil {
			p.log.Error().Err(err).Str("channel_id", channel.ChatID).Msg("failed to send text to discord channel")
		}
	}
	return nil
}

func (p *Provider) sendMessage(ctx context.Context, channelID string, text string) error {
	for _, chunk := range chunkText(text, 1900) {
		if err := p.postMessageWithRetry(ctx, channelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) postMessageWithRetry(ctx context.Context, channelID string, chunk string) error {
	status, body, err := p.postMessage(ctx, channelID, chunk)
	if err != nil {
		return err
	}
	if status == http.StatusTooManyRequests {
		var rateLimited struct {
			RetryAfter float64 `json:"retry_after"`
		}
		_ = json.Unmarshal(body, &rateLimited)
		retryAfter := rateLimited.RetryAfter
		if retryAfter <= 0 {
			retryAfter = 1.0
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(retryAfter * float64(time.Second))):
		}
		status, body, err = p.postMessage(ctx, channelID, chunk)
		if err != nil {
			return err
		}
	}
	if status >= 400 {
		return fmt.Errorf("discord api error %d: %s", status, string(body))
	}
	return nil
}

func (p *Provider) postMessage(ctx context.Context, channelID string, chunk string) (int, []byte, error) {
	encoded, err := json.Marshal(map[string]string{"content": chunk})
	if err != nil {
		return 0, nil, fmt.Errorf("marshal discord message body: %w", err)
	}

	req, err := p.newRequest(ctx, http.MethodPost, p.apiBase+"/channels/"+channelID+"/messages", strings.NewReader(string(encoded)))
	if err != nil {
		return 0, nil, fmt.Errorf("build discord message request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("discord message request failed: %w", err)
	}
	defer resp.Body.Close()

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return resp.StatusCode, nil, nil
	}
	body, _ := json.Marshal(raw)
	return resp.StatusCode, body, nil
}

func (p *Provider) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bot "+p.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "tradedesk/0.1")
	return req, nil
}

func chunkText(text string, size int) []string {
	if text == "" {
		return []string{""}
	}
	var chunks []string
	runes := []rune(text)
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

func formatSignalMessage(signal domain.Signal, memo *domain.InvestmentMemo) string {
	icon := "⚪"
	switch signal.Direction {
	case domain.DirectionBuy:
		icon = "🟢"
	case domain.DirectionSell:
		icon = "🔴"
	case domain.DirectionHold:
		icon = "🟡"
	}

	lines := []string{
		fmt.Sprintf("%s **%s %s**", icon, strings.ToUpper(string(signal.Direction)), signal.Ticker),
		fmt.Sprintf("Confidence: %.0f%%", signal.Confidence*100),
	}

	if signal.EntryTarget != nil {
		lines = append(lines, fmt.Sprintf("Entry: $%.2f", *signal.EntryTarget))
	}
	if signal.StopLoss != nil {
		lines = append(lines, fmt.Sprintf("Stop Loss: $%.2f", *signal.StopLoss))
	}
	if signal.TakeProfit != nil {
		lines = append(lines, fmt.Sprintf("Take Profit: $%.2f", *signal.TakeProfit))
	}
	if signal.Horizon != "" {
		lines = append(lines, fmt.Sprintf("Horizon: %s", signal.Horizon))
	}

	if signal.Catalyst != "" {
		lines = append(lines, "\n"+signal.Catalyst)
	}

	if memo != nil && memo.ExecutiveSummary != "" {
		summary := memo.ExecutiveSummary
		if len(summary) > 500 {
			summary = summary[:500]
		}
		lines = append(lines, "\n"+summary)
	}

	return strings.Join(lines, "\n")
}
