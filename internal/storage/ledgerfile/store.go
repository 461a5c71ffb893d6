// Package ledgerfile keeps the transaction history as a JSON-lines file, one
// transaction per line, appended and fsynced on every record.
package ledgerfile

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/folio/internal/domain"
)

const FileName = "ledger.jsonl"

// Store appends transactions to a ledger file.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store for the ledger file in dir, creating dir if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create ledger dir")
	}

	return &Store{path: filepath.Join(dir, FileName)}, nil
}

// Path returns the ledger file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the full history. A missing file is an empty history.
func (s *Store) Load() ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "open ledger file")
	}
	defer f.Close()

	var (
		history []domain.Transaction
		line    int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var tx domain.Transaction
		if err := json.Unmarshal(raw, &tx); err != nil {
			return nil, errors.Wrapf(err, "decode ledger line %d", line)
		}
		history = append(history, tx)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read ledger file")
	}

	return history, nil
}

// Append writes tx as a new line and syncs the file.
func (s *Store) Append(tx domain.Transaction) error {
	payload, err := json.Marshal(tx)
	if err != nil {
		return errors.Wrap(err, "marshal transaction")
	}
	payload = append(payload, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open ledger file")
	}

	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "append transaction")
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "sync ledger file")
	}

	return errors.Wrap(f.Close(), "close ledger file")
}

// Replace rewrites the whole file with history, atomically via a temp file.
// Used by import.
func (s *Store) Replace(history []domain.Transaction) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, tx := range history {
		if err := enc.Encode(tx); err != nil {
			return errors.Wrap(err, "marshal transaction")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return errors.Wrap(err, "write ledger temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist ledger file")
	}

	return nil
}
