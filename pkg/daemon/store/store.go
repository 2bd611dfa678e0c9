// Package store provides Badger DB-backed storage for the frame index.
//
// The index maps each frame's logical identity (level and name) to its
// state. The marker on disk stays authoritative: the index is kept in step
// through archive.Recorder and can always be rebuilt from the directory tree.
package store

import (
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/jamesainslie/radarsync/pkg/radar/archive"
)

// Key prefixes for different data types
const (
	prefixFrame = "f:" // f:<level>/<name> -> Entry
	prefixMeta  = "m:" // Metadata (schema, rebuild info)
)

// ErrNotFound is returned when a frame is not in the index.
var ErrNotFound = errors.New("frame not indexed")

// Entry is the indexed state of one frame.
type Entry struct {
	Level     string        `json:"level"`
	Name      string        `json:"name"`
	State     archive.State `json:"state"`
	Size      int64         `json:"size"`
	UpdatedAt int64         `json:"updated_at"`
}

// Counts summarises a level's indexed frames.
type Counts struct {
	New       int   `json:"new"`
	Confirmed int   `json:"confirmed"`
	Bytes     int64 `json:"bytes"`
}

// Total returns the number of frames in either state.
func (c Counts) Total() int {
	return c.New + c.Confirmed
}

// Store is the index storage backed by Badger DB.
type Store struct {
	db *badger.DB
}

var _ archive.Recorder = (*Store)(nil)

// Open opens or creates a store at the given path. An index written with a
// different schema is discarded, since it can be rebuilt from disk.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if schema := s.GetSchema(); schema == nil || schema.Version != CurrentSchemaVersion {
		if err := s.Reset(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

func frameKey(level, name string) []byte {
	return []byte(prefixFrame + level + "/" + name)
}

// Put stores an entry.
func (s *Store) Put(entry *Entry) error {
	if entry.UpdatedAt == 0 {
		entry.UpdatedAt = time.Now().Unix()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(frameKey(entry.Level, entry.Name), data)
	})
}

// Get retrieves an entry by level and name.
func (s *Store) Get(level, name string) (*Entry, error) {
	var entry Entry

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(frameKey(level, name))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

// Delete removes an entry. Deleting a missing entry is not an error.
func (s *Store) Delete(level, name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(frameKey(level, name))
	})
}

// Recorded implements archive.Recorder.
func (s *Store) Recorded(level, name string, state archive.State, size int64) error {
	return s.Put(&Entry{Level: level, Name: name, State: state, Size: size})
}

// Forgotten implements archive.Recorder.
func (s *Store) Forgotten(level, name string) error {
	return s.Delete(level, name)
}

// Frames returns the indexed entries of a level in name order.
func (s *Store) Frames(level string) ([]*Entry, error) {
	var results []*Entry
	err := s.scan(prefixFrame+level+"/", func(e *Entry) {
		results = append(results, e)
	})
	return results, err
}

// Counts returns per-level frame counts.
func (s *Store) Counts() (map[string]Counts, error) {
	counts := make(map[string]Counts)
	err := s.scan(prefixFrame, func(e *Entry) {
		c := counts[e.Level]
		if e.State == archive.StateNew {
			c.New++
		} else {
			c.Confirmed++
		}
		c.Bytes += e.Size
		counts[e.Level] = c
	})
	return counts, err
}

// scan visits every entry under prefix in key order.
func (s *Store) scan(prefix string, fn func(*Entry)) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var entry Entry
				if err := json.Unmarshal(val, &entry); err != nil {
					return err
				}
				fn(&entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Replace swaps a level's entries for the given set in one pass.
func (s *Store) Replace(level string, entries []*Entry) error {
	if err := s.deletePrefix(prefixFrame + level + "/"); err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	now := time.Now().Unix()
	for _, entry := range entries {
		if entry.UpdatedAt == 0 {
			entry.UpdatedAt = now
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if err := wb.Set(frameKey(entry.Level, entry.Name), data); err != nil {
			return err
		}
	}

	return wb.Flush()
}

// deletePrefix removes all keys with the given prefix.
func (s *Store) deletePrefix(prefix string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var keysToDelete [][]byte
		prefixBytes := []byte(prefix)

		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			keysToDelete = append(keysToDelete, it.Item().KeyCopy(nil))
		}

		for _, key := range keysToDelete {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}

		return nil
	})
}

// Reset drops every entry and stamps the current schema.
func (s *Store) Reset() error {
	if err := s.db.DropAll(); err != nil {
		return err
	}
	return s.SetSchema(&Schema{Version: CurrentSchemaVersion, UpdatedAt: time.Now()})
}

