// Package news fetches market headlines from public RSS feeds and sends a
// scheduled briefing, optionally summarized by an LLM. It also exposes a
// get_news tool so the conversational AI interface can pull headlines
// on demand. Grounded one-to-one on
// original_source/plugins/task_handlers/news.py.
package news

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/idgen"
	"github.com/aristath/tradedesk/internal/protocols"
	"github.com/aristath/tradedesk/internal/registry"
)

var generalFeeds = []string{
	"https://feeds.marketwatch.com/marketwatch/topstories/",
	"https://feeds.finance.yahoo.com/rss/2.0/headline?s=%5EGSPC&region=US&lang=en-US",
}

// Headline is one deduplicated RSS item.
type Headline struct {
	Title     string
	Link      string
	Published string
}

// Handler runs a scheduled market-news briefing and implements
// protocols.TaskHandler and protocols.PluginTools. Grounded on
// news.py's NewsBriefHandler.
type Handler struct {
	registry     *registry.Registry
	bus          protocols.EventBus
	client       *http.Client
	feedURLs     []string
	defaultLimit int
	log          zerolog.Logger
}

// New creates a Handler. defaultLimit <= 0 uses 8, matching the reference.
func New(reg *registry.Registry, bus protocols.EventBus, defaultLimit int, log zerolog.Logger) *Handler {
	if defaultLimit <= 0 {
		defaultLimit = 8
	}
	return &Handler{
		registry:     reg,
		bus:          bus,
		client:       &http.Client{Timeout: 20 * time.Second},
		feedURLs:     generalFeeds,
		defaultLimit: defaultLimit,
		log:          log.With().Str("task_handler", "news.briefing").Logger(),
	}
}

// Name implements protocols.TaskHandler.
func (h *Handler) Name() string { return "news.briefing" }

// SetFeedURLsForTesting overrides the general RSS feed list so tests can
// point the handler at an httptest server instead of the real feeds.
func (h *Handler) SetFeedURLsForTesting(urls []string) {
	h.feedURLs = urls
}

// GetTools implements protocols.PluginTools.
func (h *Handler) GetTools() []domain.ToolSchema {
	return []domain.ToolSchema{
		{
			Type: "function",
			Function: domain.ToolFunctionSpec{
				Name:        "get_news",
				Description: "Browse latest market news headlines. Optionally focus on a ticker/topic.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"topic": map[string]any{
							"type":        "string",
							"description": "Optional ticker or topic filter (e.g., NVDA, rates, oil)",
						},
						"limit": map[string]any{
							"type":        "integer",
							"description": "Maximum number of headlines (default: 8)",
						},
					},
				},
			},
		},
	}
}

// GetPromptInstructions implements protocols.PluginTools.
func (h *Handler) GetPromptInstructions(toolCtx protocols.ToolContext) string {
	return "Use get_news to browse current market headlines when the user asks what's happening in the market."
}

// CallTool implements protocols.PluginTools.
func (h *Handler) CallTool(ctx context.Context, name string, args map[string]any, toolCtx protocols.ToolContext) (string, bool, error) {
	if name != "get_news" {
		return "", false, nil
	}

	topic, _ := args["topic"].(string)
	limit := h.defaultLimit
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	headlines, err := h.fetchMarketNews(ctx, topic, limit, nil)
	if err != nil {
		return "", true, err
	}
	if len(headlines) == 0 {
		return "No market headlines available right now.", true, nil
	}

	var lines []string
	for i, item := range headlines {
		line := fmt.Sprintf("%d. %s", i+1, item.Title)
		if item.Link != "" {
			line += "\n   " + item.Link
		}
		lines = append(lines, line)
	}
	topicText := ""
	if topic != "" {
		topicText = " for " + topic
	}
	return fmt.Sprintf("Latest headlines%s:\n%s", topicText, strings.Join(lines, "\n")), true, nil
}

// Run implements protocols.TaskHandler.
func (h *Handler) Run(ctx context.Context, params map[string]any) (domain.TaskResult, error) {
	topic, _ := params["topic"].(string)
	limit := h.defaultLimit
	if l, ok := params["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}
	channelID := params["channel_id"]
	adapter := params["adapter"]
	summarize := true
	if s, ok := params["summarize"].(bool); ok {
		summarize = s
	}

	headlines, err := h.fetchMarketNews(ctx, topic, limit, nil)
	if err != nil {
		return domain.TaskResult{}, err
	}
	if len(headlines) == 0 {
		return domain.TaskResult{Status: domain.TaskResultNoAction, Message: "No news headlines available"}, nil
	}

	message := h.formatMessage(headlines, topic)
	if summarize {
		if summary := h.summarize(ctx, headlines, topic); summary != "" {
			message = fmt.Sprintf("%s\n\n*Quick Read*\n%s", message, summary)
		}
	}

	event := domain.Event{
		ID:        idgen.Event(),
		Type:      domain.EventIntegrationOutput,
		Timestamp: time.Now().UTC(),
		Source:    h.Name(),
		Payload: map[string]any{
			"text":       message,
			"channel_id": channelID,
			"adapter":    adapter,
		},
	}
	if err := h.bus.Publish(ctx, event); err != nil {
		h.log.Warn().Err(err).Msg("failed to publish integration.output")
	}

	return domain.TaskResult{
		Status:  domain.TaskResultSuccess,
		Message: fmt.Sprintf("Queued news briefing for delivery via %s", domain.EventIntegrationOutput),
	}, nil
}

func (h *Handler) formatMessage(headlines []Headline, topic string) string {
	now := time.Now().UTC().Format("2006-01-02 15:04 UTC")
	headerTopic := ""
	if topic != "" {
		headerTopic = fmt.Sprintf(" (%s)", strings.ToUpper(topic))
	}
	lines := []string{fmt.Sprintf("*Market News Brief%s*", headerTopic), fmt.Sprintf("_%s_", now), ""}
	for i, item := range headlines {
		if item.Link != "" {
			lines = append(lines, fmt.Sprintf("%d. %s\n%s", i+1, item.Title, item.Link))
		} else {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, item.Title))
		}
	}
	return strings.Join(lines, "\n")
}

func (h *Handler) summarize(ctx context.Context, headlines []Headline, topic string) string {
	providers := h.registry.GetAll(registry.KindLLM)
	if len(providers) == 0 {
		return ""
	}
	llm, ok := providers[0].(protocols.LLMProvider)
	if !ok {
		return ""
	}

	var blob strings.Builder
	for _, item := range headlines {
		blob.WriteString("- " + item.Title + "\n")
	}
	topicLabel := topic
	if topicLabel == "" {
		topicLabel = "broad market"
	}
	prompt := fmt.Sprintf(
		"Summarize these market headlines in 4 concise bullets with trade-relevant framing. "+
			"Mention potential impact on risk sentiment, rates, mega-cap tech, and commodities when relevant.\n\n"+
			"Topic: %s\nHeadlines:\n%s", topicLabel, blob.String(),
	)

	reply, err := llm.Complete(ctx, []domain.Message{{Role: domain.RoleUser, Text: prompt}}, protocols.CompletionOpts{})
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to summarize headlines")
		return ""
	}
	return strings.TrimSpace(reply)
}

// fetchMarketNews pulls headlines from the general feeds plus, when topic is
// set, topic-scoped Yahoo Finance and Google News searches, deduplicates by
// title, and applies an optional publish-time cutoff.
func (h *Handler) fetchMarketNews(ctx context.Context, topic string, limit int, cutoff *time.Time) ([]Headline, error) {
	urls := append([]string(nil), h.feedURLs...)
	if topic != "" {
		query := url.QueryEscape(topic)
		ticker := url.QueryEscape(strings.ToUpper(topic))
		urls = append(urls,
			fmt.Sprintf("https://feeds.finance.yahoo.com/rss/2.0/headline?s=%s&region=US&lang=en-US", ticker),
			fmt.Sprintf("https://news.google.com/rss/search?q=%s&hl=en-US&gl=US&ceid=US:en", query),
			fmt.Sprintf("https://news.google.com/rss/search?q=%s%%20stock&hl=en-US&gl=US&ceid=US:en", ticker),
		)
	}

	var items []Headline
	for _, u := range urls {
		parsed, err := h.fetchFeed(ctx, u)
		if err != nil {
			h.log.Warn().Err(err).Str("url", u).Msg("failed to fetch rss feed")
			continue
		}
		items = append(items, parsed...)
	}

	seen := make(map[string]bool)
	var deduped []Headline
	for _, item := range items {
		key := strings.ToLower(strings.TrimSpace(item.Title))
		if key == "" || seen[key] {
			continue
		}
		if cutoff != nil {
			if pub, ok := parsePubDate(item.Published); ok && pub.After(*cutoff) {
				continue
			}
		}
		seen[key] = true
		deduped = append(deduped, item)
		if limit > 0 && len(deduped) >= limit {
			break
		}
	}
	return deduped, nil
}

func (h *Handler) fetchFeed(ctx context.Context, feedURL string) ([]Headline, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "tradedesk/0.1")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseRSSItems(body), nil
}

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
}

func parseRSSItems(body []byte) []Headline {
	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil
	}

	var out []Headline
	for _, item := range feed.Channel.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		out = append(out, Headline{
			Title:     title,
			Link:      strings.TrimSpace(item.Link),
			Published: strings.TrimSpace(item.PubDate),
		})
	}
	return out
}

func parsePubDate(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC1123Z, value)
	if err != nil {
		t, err = time.Parse(time.RFC1123, value)
		if err != nil {
			return time.Time{}, false
		}
	}
	return t.UTC(), true
}
