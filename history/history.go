// Package history keeps a local record of recent analyses in an embedded
// badger store. Entries carry a TTL so the database never needs manual
// pruning.
package history

import (
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// resultPreviewLimit caps how much analyzer output is persisted per entry.
const resultPreviewLimit = 1000

// defaultTTL is how long entries live before badger drops them.
const defaultTTL = 30 * 24 * time.Hour

// Entry is one recorded analysis.
type Entry struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Result    string    `json:"result"` // truncated preview
}

// Store wraps the badger database.
type Store struct {
	db  *badger.DB
	ttl time.Duration
}

// Open creates or opens the history database at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	return &Store{db: db, ttl: defaultTTL}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record persists one analysis outcome and returns its id. Long results are
// truncated; history is a log, not an archive.
func (s *Store) Record(kind string, success bool, result string) (string, error) {
	if len(result) > resultPreviewLimit {
		result = result[:resultPreviewLimit] + "..."
	}
	entry := Entry{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Success:   success,
		Result:    result,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("marshal history entry: %w", err)
	}

	// Keys sort by timestamp so iteration in reverse yields newest first.
	key := fmt.Sprintf("entry:%020d:%s", entry.Timestamp.UnixNano(), entry.ID)
	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), raw).WithTTL(s.ttl)
		return txn.SetEntry(e)
	})
	if err != nil {
		return "", fmt.Errorf("write history entry: %w", err)
	}
	return entry.ID, nil
}

// Recent returns up to n entries, newest first.
func (s *Store) Recent(n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	var out []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte("entry:")
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration needs a seek past the prefix range.
		for it.Seek([]byte("entry;")); it.Valid() && len(out) < n; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var e Entry
				if err := json.Unmarshal(val, &e); err != nil {
					return err
				}
				out = append(out, e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return out, nil
}
