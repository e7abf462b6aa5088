package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/tradedesk/internal/domain"
)

// ChatMessage is one persisted turn of a channel's conversation history.
type ChatMessage struct {
	Role    domain.MessageRole `json:"role"`
	Content string             `json:"content"`
	Extras  map[string]any     `json:"extras,omitempty"`
}

// AppendChat appends one message to channel's persistent conversation log.
func (s *Store) AppendChat(channel string, role domain.MessageRole, content string, extras map[string]any) error {
	var extrasJSON any
	if len(extras) > 0 {
		data, err := json.Marshal(extras)
		if err != nil {
			return fmt.Errorf("marshal chat extras for %s: %w", channel, err)
		}
		extrasJSON = string(data)
	}

	_, err := s.db.Exec(
		`INSERT INTO chat_messages (channel_id, role, content, extras, created_at) VALUES (?, ?, ?, ?, ?)`,
		channel, string(role), content, extrasJSON, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append chat message for %s: %w", channel, err)
	}
	return nil
}

// LoadChatHistory returns every persisted message, grouped by channel and
// ordered oldest-first within each channel, for seeding the AI interface's
// in-memory conversation state on startup.
func (s *Store) LoadChatHistory() (map[string][]ChatMessage, error) {
	rows, err := s.db.Query(
		`SELECT channel_id, role, content, extras FROM chat_messages
		 ORDER BY channel_id ASC, created_at ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}
	defer rows.Close()

	history := make(map[string][]ChatMessage)
	for rows.Next() {
		var channel, role, content string
		var extrasRaw *string
		if err := rows.Scan(&channel, &role, &content, &extrasRaw); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}

		msg := ChatMessage{Role: domain.MessageRole(role), Content: content}
		if extrasRaw != nil {
			if err := json.Unmarshal([]byte(*extrasRaw), &msg.Extras); err != nil {
				return nil, fmt.Errorf("unmarshal chat extras for %s: %w", channel, err)
			}
		}
		history[channel] = append(history[channel], msg)
	}
	return history, rows.Err()
}
