// Package store is the State Store: an append-only trade journal (one
// file per UTC day) plus atomically-replaced status and ladder
// snapshots, read only by the excluded dashboard/CLI (spec §4.9, §6).
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hypergrid-bot/hypergrid"
)

// Store owns the data_dir hierarchy: trades-YYYY-MM-DD.jsonl,
// status.json, and ladder-<pair_id>.json.
type Store struct {
	dataDir string

	journalMu   sync.Mutex
	nextID      int64
	lastWriteAt time.Time

	now func() time.Time
}

// New builds a Store rooted at dataDir, creating it if absent.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir %s: %w", dataDir, err)
	}
	return &Store{dataDir: dataDir, now: time.Now}, nil
}

// AppendTrade appends one TradeRecord to the current day's journal.
// Appends are serialized; each write is flushed before return so a
// crash never loses an acknowledged trade.
func (s *Store) AppendTrade(rec *hypergrid.TradeRecord) error {
	s.journalMu.Lock()
	defer s.journalMu.Unlock()

	if rec.ID <= s.nextID {
		return fmt.Errorf("store: trade id %d is not strictly increasing after %d", rec.ID, s.nextID)
	}
	if !rec.Timestamp.After(s.lastWriteAt) && !s.lastWriteAt.IsZero() {
		return fmt.Errorf("store: trade timestamp %s does not advance the journal", rec.Timestamp)
	}

	path := s.journalPath(rec.Timestamp)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("store: open journal %s: %w", path, err)
	}
	defer f.Close()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal trade %d: %w", rec.ID, err)
	}
	data = append(data, '\n')

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("store: write journal %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("store: sync journal %s: %w", path, err)
	}

	s.nextID = rec.ID
	s.lastWriteAt = rec.Timestamp
	return nil
}

func (s *Store) journalPath(at time.Time) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("trades-%s.jsonl", at.UTC().Format("2006-01-02")))
}

// WriteStatus atomically replaces status.json with status.
func (s *Store) WriteStatus(status hypergrid.BotStatus) error {
	return s.writeAtomicJSON("status.json", status)
}

// WriteLadder atomically replaces ladder-<pair_id>.json with ladder.
func (s *Store) WriteLadder(ladder *hypergrid.LadderState) error {
	return s.writeAtomicJSON(fmt.Sprintf("ladder-%s.json", ladder.PairID), ladder)
}

// writeAtomicJSON marshals v, writes it to a temp file in dataDir, and
// renames it over name so readers never observe a partial write.
func (s *Store) writeAtomicJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", name, err)
	}

	target := filepath.Join(s.dataDir, name)
	tmp, err := os.CreateTemp(s.dataDir, ".tmp-"+name+"-*")
	if err != nil {
		return fmt.Errorf("store: create temp for %s: %w", name, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write temp for %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: sync temp for %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close temp for %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("store: rename into %s: %w", name, err)
	}
	return nil
}

// ReadStatus loads the last-written status.json, for startup recovery
// or operator inspection.
func (s *Store) ReadStatus() (*hypergrid.BotStatus, error) {
	var status hypergrid.BotStatus
	if err := s.readJSON("status.json", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (s *Store) readJSON(name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(s.dataDir, name))
	if err != nil {
		return fmt.Errorf("store: read %s: %w", name, err)
	}
	return json.Unmarshal(data, v)
}

// ReadTrades replays every TradeRecord journaled for the given day.
func (s *Store) ReadTrades(day time.Time) ([]hypergrid.TradeRecord, error) {
	f, err := os.Open(s.journalPath(day))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: open journal: %w", err)
	}
	defer f.Close()

	var out []hypergrid.TradeRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec hypergrid.TradeRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("store: decode journal line: %w", err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("store: scan journal: %w", err)
	}
	return out, nil
}
