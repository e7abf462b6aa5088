package store

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/tradedesk/internal/domain"
)

// market/<ticker>.msgpack holds a length-prefixed append log of every row
// ever observed for that ticker: one 4-byte big-endian length followed by
// that many bytes of msgpack-encoded domain.MarketRow. It is the durable,
// replayable record; the SQLite market_rows table is an upsert-capable
// projection of it used for range queries.
const marketDirName = "market"

func (s *Store) marketFilePath(ticker string) string {
	return filepath.Join(s.home, marketDirName, ticker+".msgpack")
}

// AppendMarketRow records one OHLCV observation. Writes whose AvailableAt
// lies in the future (relative to wall-clock now) are rejected: a row
// cannot be known before it happens.
func (s *Store) AppendMarketRow(row domain.MarketRow) error {
	if row.AvailableAt.After(time.Now().UTC()) {
		return fmt.Errorf("append market row for %s: available_at %s is in the future", row.Ticker, row.AvailableAt)
	}

	if err := s.appendMarketRowFile(row); err != nil {
		return err
	}
	return s.upsertMarketRowIndex(row)
}

func (s *Store) appendMarketRowFile(row domain.MarketRow) error {
	path := s.marketFilePath(row.Ticker)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create market dir: %w", err)
	}

	encoded, err := msgpack.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode market row for %s: %w", row.Ticker, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open market log for %s: %w", row.Ticker, err)
	}
	defer f.Close()

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(encoded)))
	if _, err := f.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write market log length for %s: %w", row.Ticker, err)
	}
	if _, err := f.Write(encoded); err != nil {
		return fmt.Errorf("write market log row for %s: %w", row.Ticker, err)
	}
	return nil
}

func (s *Store) upsertMarketRowIndex(row domain.MarketRow) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO market_rows
		   (ticker, timestamp, available_at, open, high, low, close, volume, source, kind)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.Ticker, row.Timestamp.UTC().Format(time.RFC3339Nano), row.AvailableAt.UTC().Format(time.RFC3339Nano),
		row.Open, row.High, row.Low, row.Close, row.Volume, row.Source, row.Kind,
	)
	if err != nil {
		return fmt.Errorf("index market row for %s: %w", row.Ticker, err)
	}
	return nil
}

// QueryMarket returns rows for ticker, newest first, limited to limit. When
// asOf is non-nil it filters to available_at <= asOf, enforcing the
// lookahead prohibition for simulation reads.
func (s *Store) QueryMarket(ticker string, asOf *time.Time, limit int) ([]domain.MarketRow, error) {
	var rows *sql.Rows
	var err error
	if asOf != nil {
		rows, err = s.db.Query(
			`SELECT ticker, timestamp, available_at, open, high, low, close, volume, source, kind
			 FROM market_rows WHERE ticker = ? AND available_at <= ?
			 ORDER BY timestamp DESC LIMIT ?`,
			ticker, asOf.UTC().Format(time.RFC3339Nano), limit,
		)
	} else {
		rows, err = s.db.Query(
			`SELECT ticker, timestamp, available_at, open, high, low, close, volume, source, kind
			 FROM market_rows WHERE ticker = ?
			 ORDER BY timestamp DESC LIMIT ?`,
			ticker, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("query market rows for %s: %w", ticker, err)
	}
	defer rows.Close()

	var out []domain.MarketRow
	for rows.Next() {
		var r domain.MarketRow
		var ts, avail string
		if err := rows.Scan(&r.Ticker, &ts, &avail, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume, &r.Source, &r.Kind); err != nil {
			return nil, fmt.Errorf("scan market row for %s: %w", ticker, err)
		}
		r.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp for %s: %w", ticker, err)
		}
		r.AvailableAt, err = time.Parse(time.RFC3339Nano, avail)
		if err != nil {
			return nil, fmt.Errorf("parse available_at for %s: %w", ticker, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestPrice returns the most recent close for ticker, honoring asOf the
// same way QueryMarket does.
func (s *Store) LatestPrice(ticker string, asOf *time.Time) (*float64, error) {
	rows, err := s.QueryMarket(ticker, asOf, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	price := rows[0].Close
	return &price, nil
}

// RebuildMarketIndex replays every market/<ticker>.msgpack file and
// reinserts its rows into the SQLite index, honoring upsert semantics so
// the last write for any (ticker, timestamp, source) key wins. Used to
// recover the index if it is lost or corrupted; the append logs remain the
// source of truth.
func (s *Store) RebuildMarketIndex() error {
	dir := filepath.Join(s.home, marketDirName)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("list market dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".msgpack" {
			continue
		}
		if err := s.replayMarketFile(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) replayMarketFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read frame length in %s: %w", path, err)
		}
		n := binary.BigEndian.Uint32(lenBuf[:])

		buf := make([]byte, n)
		if _, err := io.ReadFull(f, buf); err != nil {
			return fmt.Errorf("read frame body in %s: %w", path, err)
		}

		var row domain.MarketRow
		if err := msgpack.Unmarshal(buf, &row); err != nil {
			s.log.Error().Err(err).Str("file", path).Msg("skipping corrupt market row frame during rebuild")
			continue
		}
		if err := s.upsertMarketRowIndex(row); err != nil {
			return err
		}
	}
}
