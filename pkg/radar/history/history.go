package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/jamesainslie/radarsync/pkg/radar/prune"
	"github.com/jamesainslie/radarsync/pkg/radar/syncer"
)

// ErrNotFound is returned by Get for an unknown ID.
var ErrNotFound = errors.New("history entry not found")

// History stores entries as JSON files in a directory.
type History struct {
	dir string
	mu  sync.Mutex
}

// New creates a History for dir. The directory is created on first write.
func New(dir string) (*History, error) {
	if dir == "" {
		return nil, errors.New("history directory cannot be empty")
	}
	return &History{dir: dir}, nil
}

// Dir returns the history directory.
func (h *History) Dir() string {
	return h.dir
}

// LogSync records the frames a sync pass wrote. Passes that wrote nothing
// and did not fail are not recorded.
func (h *History) LogSync(res syncer.Result, passErr error) (*Entry, error) {
	if !res.Changed() && passErr == nil {
		return nil, nil
	}
	var frames []FrameRecord
	for _, level := range sortedKeys(res.Downloaded) {
		for _, name := range res.Downloaded[level] {
			frames = append(frames, FrameRecord{Level: level, Name: name})
		}
	}
	return h.log(OpSync, frames, res.Bytes, passErr)
}

// LogPrune records the frames a retention pass removed. Passes that removed
// nothing and did not fail are not recorded.
func (h *History) LogPrune(report prune.Report, pruneErr error) (*Entry, error) {
	if report.Count() == 0 && pruneErr == nil {
		return nil, nil
	}
	var frames []FrameRecord
	for _, level := range sortedKeys(report.Removed) {
		for _, f := range report.Removed[level] {
			frames = append(frames, FrameRecord{Level: level, Name: f.Name, Size: f.Size})
		}
	}
	return h.log(OpPrune, frames, report.Bytes, pruneErr)
}

func (h *History) log(op Operation, frames []FrameRecord, bytes int64, opErr error) (*Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry := &Entry{
		ID:        generateID(op),
		Timestamp: time.Now().UTC(),
		Operation: op,
		Frames:    frames,
		Summary: Summary{
			TotalFrames: int64(len(frames)),
			TotalBytes:  bytes,
		},
	}
	if opErr != nil {
		entry.Error = opErr.Error()
	}

	if err := h.writeEntry(entry); err != nil {
		return nil, fmt.Errorf("failed to write history entry: %w", err)
	}
	return entry, nil
}

// writeEntry writes an entry atomically through a dot-prefixed temporary.
func (h *History) writeEntry(entry *Entry) error {
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	path := filepath.Join(h.dir, entry.ID+".json")
	tmp := filepath.Join(h.dir, "."+entry.ID+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// List returns entries newest first. A limit of 0 or less returns all.
func (h *History) List(limit int) ([]Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	names, err := h.entryFiles()
	if err != nil {
		return nil, err
	}

	entries := []Entry{}
	for _, name := range names {
		entry, err := h.readEntryFile(name)
		if err != nil {
			// Skip files that can't be parsed
			continue
		}
		entries = append(entries, *entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Get returns the entry with the given ID or a unique ID prefix.
func (h *History) Get(id string) (*Entry, error) {
	if id == "" {
		return nil, errors.New("entry ID cannot be empty")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	names, err := h.entryFiles()
	if err != nil {
		return nil, err
	}

	var match string
	for _, name := range names {
		entryID := strings.TrimSuffix(name, ".json")
		if entryID == id {
			return h.readEntryFile(name)
		}
		if strings.HasPrefix(entryID, id) {
			if match != "" {
				return nil, fmt.Errorf("ambiguous entry ID %q", id)
			}
			match = name
		}
	}
	if match == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return h.readEntryFile(match)
}

// Cleanup removes entries older than retentionDays and returns how many it
// removed.
func (h *History) Cleanup(retentionDays int) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	names, err := h.entryFiles()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, name := range names {
		path := filepath.Join(h.dir, name)
		info, err := os.Stat(path)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err == nil {
			removed++
		}
	}
	return removed, nil
}

// entryFiles lists entry file names. A missing directory has no entries.
func (h *History) entryFiles() ([]string, error) {
	files, err := os.ReadDir(h.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}

	var names []string
	for _, f := range files {
		if f.IsDir() || strings.HasPrefix(f.Name(), ".") || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		names = append(names, f.Name())
	}
	return names, nil
}

func (h *History) readEntryFile(name string) (*Entry, error) {
	data, err := os.ReadFile(filepath.Join(h.dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return &entry, nil
}

// generateID creates an ID like "sync-2018-01-01T12-06-00-1a2b3c4d".
func generateID(op Operation) string {
	ts := time.Now().UTC().Format("2006-01-02T15-04-05")
	return fmt.Sprintf("%s-%s-%s", op, ts, uuid.NewString()[:8])
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
