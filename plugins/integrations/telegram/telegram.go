// Package telegram is a bidirectional dumb-pipe transport over the Telegram
// Bot API. It does not classify messages, parse trades, or understand
// intent -- it forwards raw text to whatever callback the core registers
// and formats outgoing signals for display. Grounded one-to-one on
// original_source/plugins/integrations/telegram.py; the net/http client
// shape follows internal/clients/exchangerate.Client, the only outbound-HTTP
// precedent in this codebase.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/protocols"
)

const apiBaseFmt = "https://api.telegram.org/bot%s"

// Channel binds one Telegram chat to a direction.
type Channel struct {
	ID        string
	ChatID    string
	Direction string // "both", "input", or "output"
}

// Provider implements both protocols.InputAdapter and protocols.OutputAdapter
// against the Telegram Bot API.
type Provider struct {
	token   string
	baseURL string
	client  *http.Client
	log     zerolog.Logger

	inputChannels  map[string]Channel
	outputChannels []Channel
	allChannels    []Channel

	mu            sync.Mutex
	callbacks     []protocols.InputCallback
	running       bool
	lastUpdateID  int
	cancel        context.CancelFunc
	done          chan struct{}
}

// New creates a Provider for the given bot token and channel set.
func New(botToken string, channels []Channel, log zerolog.Logger) *Provider {
	p := &Provider{
		token:       botToken,
		baseURL:     fmt.Sprintf(apiBaseFmt, botToken),
		client:      &http.Client{Timeout: 35 * time.Second},
		log:         log.With().Str("integration", "telegram").Logger(),
		allChannels: channels,
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
func (p *Provider) Name() string { return "telegram" }

// SetBaseURLForTesting overrides the Telegram API base URL so tests can
// point the provider at an httptest server.
func (p *Provider) SetBaseURLForTesting(url string) {
	p.baseURL = url
}

// OnMessage implements protocols.InputAdapter.
func (p *Provider) OnMessage(callback protocols.InputCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = append(p.callbacks, callback)
}

// Start implements protocols.InputAdapter, beginning a long-poll loop against
// getUpdates.
func (p *Provider) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.running = true
	p.cancel = cancel
	p.done = make(chan struct{})
	p.mu.Unlock()

	go p.pollLoop(loopCtx)
	p.log.Info().Int("input_channels", len(p.inputChannels)).Msg("telegram input started")
	return nil
}

// Stop implements protocols.InputAdapter.
func (p *Provider) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.running = false
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
	p.log.Info().Msg("telegram integration stopped")
	return nil
}

func (p *Provider) pollLoop(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := p.getUpdates(ctx)
		if err != nil {
			p.log.Error().Err(err).Msg("telegram polling error")
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, update := range updates {
			p.processUpdate(ctx, update)
		}
	}
}

type apiResponse struct {
	OK          bool              `json:"ok"`
	Description string            `json:"description,omitempty"`
	Result      json.RawMessage   `json:"result,omitempty"`
}

type update struct {
	UpdateID int      `json:"update_id"`
	Message  *message `json:"message"`
}

type message struct {
	Chat chat   `json:"chat"`
	Text string `json:"text"`
	From user   `json:"from"`
}

type chat struct {
	ID int64 `json:"id"`
}

type user struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

func (p *Provider) getUpdates(ctx context.Context) ([]update, error) {
	p.mu.Lock()
	offset := p.lastUpdateID + 1
	p.mu.Unlock()

	allowed, _ := json.Marshal([]string{"message"})
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("timeout", "30")
	q.Set("allowed_updates", string(allowed))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/getUpdates?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build getUpdates request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getUpdates request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode getUpdates response: %w", err)
	}
	if !parsed.OK {
		p.log.Warn().Str("description", parsed.Description).Msg("telegram api error")
		return nil, nil
	}

	var updates []update
	if len(parsed.Result) > 0 {
		if err := json.Unmarshal(parsed.Result, &updates); err != nil {
			return nil, fmt.Errorf("decode updates: %w", err)
		}
	}
	if len(updates) > 0 {
		p.mu.Lock()
		p.lastUpdateID = updates[len(updates)-1].UpdateID
		p.mu.Unlock()
	}
	return updates, nil
}

func (p *Provider) processUpdate(ctx context.Context, u update) {
	if u.Message == nil {
		return
	}
	chatID := strconv.FormatInt(u.Message.Chat.ID, 10)

	channel, ok := p.inputChannels[chatID]
	if !ok {
		return
	}

	fromUser := u.Message.From.Username
	if fromUser == "" {
		fromUser = u.Message.From.FirstName
	}
	if fromUser == "" {
		fromUser = "unknown"
	}

	channelID := channel.ID
	if channelID == "" {
		channelID = chatID
	}

	msg := protocols.InputMessage{
		Source:    "telegram",
		ChannelID: channelID,
		ChatID:    chatID,
		Text:      u.Message.Text,
		FromUser:  fromUser,
		Timestamp: time.Now().UTC(),
	}

	p.mu.Lock()
	callbacks := append([]protocols.InputCallback(nil), p.callbacks...)
	p.mu.Unlock()

	for _, cb := range callbacks {
		if err := cb(ctx, msg); err != nil {
			p.log.Error().Err(err).Msg("error in telegram message callback")
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
			p.log.Error().Err(err).Str("chat_id", channel.ChatID).Msg("failed to send to telegram channel")
			errs = append(errs, err.Error())
			success = false
			continue
		}
		p.log.Info().Str("chat_id", channel.ChatID).Msg("sent signal to telegram channel")
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
			p.log.Error().Err(err).Str("chat_id", channel.ChatID).Msg("failed to send text to telegram channel")
		}
	}
	return nil
}

func (p *Provider) sendMessage(ctx context.Context, chatID string, text string) error {
	for _, chunk := range chunkText(text, 4000) {
		result, err := p.postMessage(ctx, chatID, chunk, true)
		if err != nil {
			return err
		}
		if !result.OK {
			result, err = p.postMessage(ctx, chatID, chunk, false)
			if err != nil {
				return err
			}
			if !result.OK {
				return fmt.Errorf("telegram api error: %s", result.Description)
			}
		}
	}
	return nil
}

func (p *Provider) postMessage(ctx context.Context, chatID string, text string, markdown bool) (apiResponse, error) {
	body := map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	}
	if markdown {
		body["parse_mode"] = "Markdown"
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return apiResponse{}, fmt.Errorf("marshal sendMessage body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/sendMessage", strings.NewReader(string(encoded)))
	if err != nil {
		return apiResponse{}, fmt.Errorf("build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return apiResponse{}, fmt.Errorf("sendMessage request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return apiResponse{}, fmt.Errorf("decode sendMessage response: %w", err)
	}
	return parsed, nil
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
		fmt.Sprintf("%s *%s %s*", icon, strings.ToUpper(string(signal.Direction)), signal.Ticker),
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
		lines = append(lines, fmt.Sprintf("\n_%s_", signal.Catalyst))
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
