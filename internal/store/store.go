// Package store is the unified storage layer: one file per entity instance
// under the home directory (human-readable, the source of truth) plus a
// SQLite-backed secondary index for market data, memory search, and chat
// history. It is grounded on the teacher's internal/database package for
// the SQLite half and on original_source/core/data/store.py for the
// files-plus-index split and operation set.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/database"
)

// Entity subdirectories, relative to the home directory.
const (
	KindSignals       = "signals"
	KindMemos         = "memos"
	KindMemories      = "memories"
	KindTasks         = "tasks"
	KindPositionsAI   = "positions/ai"
	KindPositionsHuman = "positions/human"
)

// Store is the home-directory-rooted files-plus-index storage layer.
// The files under home are the source of truth; db is a strict,
// rebuildable projection used for queries files alone can't serve
// efficiently (market ranges, memory search, chat history).
type Store struct {
	home string
	db   *database.DB
	log  zerolog.Logger
}

// New creates a Store rooted at home. It does not create db; callers wire
// that with database.New(database.Config{Name: "index", ...}) beforehand
// and run db.Migrate() before passing it in.
func New(home string, db *database.DB, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return nil, fmt.Errorf("create store home %s: %w", home, err)
	}
	return &Store{
		home: home,
		db:   db,
		log:  log.With().Str("component", "store").Logger(),
	}, nil
}

// Home returns the store's root directory.
func (s *Store) Home() string { return s.home }

func (s *Store) path(kind, key, ext string) string {
	return filepath.Join(s.home, filepath.FromSlash(kind), key+ext)
}
