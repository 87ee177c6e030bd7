// Package ledger records successful conversions in a Badger store so that
// later runs can skip sources that have not changed.
//
// Entries are keyed by absolute source path. A source is unchanged when its
// size and modification time match the recorded entry and the recorded
// output file still exists.
package ledger

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/jamesainslie/docsweep/pkg/docsweep/logging"
	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

// Version is incremented when the entry format changes.
const Version = 1

// keyPrefix namespaces ledger keys by format version.
var keyPrefix = []byte(fmt.Sprintf("v%d\x00", Version))

// ErrNotFound is returned when a source has no ledger entry.
var ErrNotFound = errors.New("ledger entry not found")

// Entry is the recorded state of a converted source.
type Entry struct {
	Size        int64     // source size in bytes
	Mtime       int64     // source modification time as UnixNano
	OutputPath  string    // primary output file
	Pages       int       // pages converted
	ConvertedAt time.Time // when the conversion finished
}

func (e *Entry) encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *Entry) decode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(e)
}

// Stats describes the ledger contents.
type Stats struct {
	Entries int    `json:"entries" yaml:"entries"`
	Pages   int    `json:"pages" yaml:"pages"`
	Path    string `json:"path" yaml:"path"`
}

// Ledger is a persistent record of successful conversions.
type Ledger struct {
	db   *badger.DB
	path string
	log  *logging.Logger
}

// Open opens or creates a ledger at path.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	return &Ledger{db: db, path: path, log: logging.Get("ledger")}, nil
}

// Close closes the ledger.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Path returns the directory backing the ledger.
func (l *Ledger) Path() string {
	return l.path
}

func makeKey(source string) []byte {
	if abs, err := filepath.Abs(source); err == nil {
		source = abs
	}
	return append(bytes.Clone(keyPrefix), source...)
}

// Get returns the entry for source or ErrNotFound.
func (l *Ledger) Get(source string) (*Entry, error) {
	var entry Entry
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(makeKey(source))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(entry.decode)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Unchanged reports whether source matches its recorded entry and the
// recorded output still exists.
func (l *Ledger) Unchanged(source string) (bool, error) {
	entry, err := l.Get(source)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	info, err := os.Stat(source)
	if err != nil {
		return false, nil
	}
	if info.Size() != entry.Size || info.ModTime().UnixNano() != entry.Mtime {
		return false, nil
	}
	if entry.OutputPath != "" {
		if _, err := os.Stat(entry.OutputPath); err != nil {
			return false, nil
		}
	}
	return true, nil
}

// Record stores a successful result. Failed results are ignored.
func (l *Ledger) Record(result types.Result) error {
	if !result.Success {
		return nil
	}
	info, err := os.Stat(result.SourcePath)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	converted := result.CompletedAt
	if converted.IsZero() {
		converted = time.Now()
	}
	entry := &Entry{
		Size:        info.Size(),
		Mtime:       info.ModTime().UnixNano(),
		OutputPath:  result.OutputPath,
		Pages:       result.PagesConverted,
		ConvertedAt: converted,
	}
	value, err := entry.encode()
	if err != nil {
		return err
	}

	err = l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(makeKey(result.SourcePath), value)
	})
	if err != nil {
		return err
	}
	l.log.Debug("recorded conversion", "source", filepath.Base(result.SourcePath))
	return nil
}

// Forget removes the entry for source.
func (l *Ledger) Forget(source string) error {
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(makeKey(source))
	})
}

// Stats counts entries and recorded pages.
func (l *Ledger) Stats() (Stats, error) {
	s := Stats{Path: l.path}
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			var entry Entry
			if err := it.Item().Value(entry.decode); err != nil {
				return err
			}
			s.Entries++
			s.Pages += entry.Pages
		}
		return nil
	})
	return s, err
}

// Clear removes every entry and returns how many were removed.
func (l *Ledger) Clear() (int, error) {
	var keys [][]byte
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	wb := l.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	l.log.Info("cleared ledger", "entries", len(keys))
	return len(keys), nil
}
