package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/aristath/tradedesk/internal/domain"
)

// IndexMemory persists memory as a file under memories/<id>.json and
// upserts its searchable fields into the SQLite index.
func (s *Store) IndexMemory(memory domain.Memory) error {
	if err := WriteJSON(s, KindMemories, memory.ID, memory); err != nil {
		return fmt.Errorf("write memory %s: %w", memory.ID, err)
	}

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO memories
		   (id, ticker, tags, divergence_type, who_was_right, confidence_impact, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		memory.ID, memory.Ticker, strings.Join(memory.Tags, ","),
		string(memory.DivergenceType), string(memory.WhoWasRight), memory.ConfidenceImpact,
		memory.Source, memory.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("index memory %s: %w", memory.ID, err)
	}
	return nil
}

// SearchMemoriesOptions filters a memory search. Ticker and Tags are
// any-match (OR'd); Since restricts to memories created at or after it.
type SearchMemoriesOptions struct {
	Ticker string
	Tags   []string
	Since  *time.Time
	Limit  int
}

// SearchMemories returns matching memory ids, newest first. Resolve a
// result to its full record with ReadJSON[domain.Memory](s, KindMemories, id).
func (s *Store) SearchMemories(opts SearchMemoriesOptions) ([]string, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	var conditions []string
	var args []any

	if opts.Ticker != "" {
		conditions = append(conditions, "ticker = ?")
		args = append(args, opts.Ticker)
	}
	if len(opts.Tags) > 0 {
		var tagConds []string
		for _, tag := range opts.Tags {
			tagConds = append(tagConds, "tags LIKE ?")
			args = append(args, "%"+tag+"%")
		}
		conditions = append(conditions, "("+strings.Join(tagConds, " OR ")+")")
	}
	if opts.Since != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, opts.Since.UTC().Format(time.RFC3339Nano))
	}

	query := "SELECT id FROM memories"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan memory id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
