package store

import (
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Schema versions:
// 1 - Frame entries (f:) keyed by level and logical name
const CurrentSchemaVersion = 1

const schemaKey = prefixMeta + "__schema__"
const rebuildKey = prefixMeta + "__rebuild__"

// Schema holds database schema information.
type Schema struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RebuildInfo records the last full rebuild of the index from disk.
type RebuildInfo struct {
	Frames   int           `json:"frames"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}

// GetSchema returns the current schema version, or nil if not set.
func (s *Store) GetSchema() *Schema {
	var schema *Schema
	_ = s.getMeta(schemaKey, func(val []byte) error {
		schema = &Schema{}
		return json.Unmarshal(val, schema)
	})
	return schema
}

// SetSchema stores the schema version.
func (s *Store) SetSchema(schema *Schema) error {
	return s.setMeta(schemaKey, schema)
}

// GetRebuildInfo returns the last rebuild record, or nil if the index was never rebuilt.
func (s *Store) GetRebuildInfo() *RebuildInfo {
	var info *RebuildInfo
	_ = s.getMeta(rebuildKey, func(val []byte) error {
		info = &RebuildInfo{}
		return json.Unmarshal(val, info)
	})
	return info
}

// SetRebuildInfo stores the last rebuild record.
func (s *Store) SetRebuildInfo(info *RebuildInfo) error {
	return s.setMeta(rebuildKey, info)
}

func (s *Store) getMeta(key string, decode func([]byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(decode)
	})
}

func (s *Store) setMeta(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}
