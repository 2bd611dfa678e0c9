package indexer_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jamesainslie/radarsync/pkg/daemon/indexer"
	"github.com/jamesainslie/radarsync/pkg/daemon/store"
	"github.com/jamesainslie/radarsync/pkg/radar/archive"
)

func createTestArchive(t *testing.T) *archive.Archive {
	t.Helper()
	a := archive.New(filepath.Join(t.TempDir(), "img"), []string{"IDR042", "IDR043", "IDR044"})
	if err := a.Reset(); err != nil {
		t.Fatal(err)
	}

	files := map[string]int{
		"IDR042/_IDR042.T.201801011200.png":     100,
		"IDR042/IDR042.T.201801011206.png":      200,
		"IDR043/_IDR043.T.201801011200.png":     300,
		"IDR043/.IDR043.T.201801011206.png.123": 50, // partial download
		"IDR043.background.png":                 400,
		"unrelated/notes.txt":                   10,
	}
	for name, size := range files {
		path := filepath.Join(a.Root(), name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return a
}

func TestIndexerRebuild(t *testing.T) {
	a := createTestArchive(t)
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	// A stale entry the rebuild must drop.
	_ = s.Put(&store.Entry{Level: "IDR044", Name: "IDR044.T.201701011200.png"})

	result, err := indexer.New(s, a).Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	if result.Frames != 3 {
		t.Errorf("Expected 3 frames, got %d", result.Frames)
	}
	if result.New != 2 {
		t.Errorf("Expected 2 new frames, got %d", result.New)
	}
	if result.TotalSize != 600 {
		t.Errorf("Expected 600 bytes, got %d", result.TotalSize)
	}
	if result.Skipped != 1 {
		t.Errorf("Expected 1 skipped temporary, got %d", result.Skipped)
	}

	entry, err := s.Get("IDR042", "IDR042.T.201801011200.png")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry.State != archive.StateNew {
		t.Errorf("Expected marker to map to new, got %s", entry.State)
	}

	entry, err = s.Get("IDR042", "IDR042.T.201801011206.png")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry.State != archive.StateConfirmed {
		t.Errorf("Expected unmarked file to be confirmed, got %s", entry.State)
	}

	if _, err := s.Get("IDR044", "IDR044.T.201701011200.png"); !errors.Is(err, store.ErrNotFound) {
		t.Error("Expected stale entry to be removed by rebuild")
	}

	if info := s.GetRebuildInfo(); info == nil || info.Frames != 3 {
		t.Errorf("Expected rebuild info for 3 frames, got %+v", info)
	}
}

func TestIndexerRebuildCancelled(t *testing.T) {
	a := createTestArchive(t)
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := indexer.New(s, a).Rebuild(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
