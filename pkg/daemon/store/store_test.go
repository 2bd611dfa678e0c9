package store_test

import (
	"errors"
	"testing"

	"github.com/jamesainslie/radarsync/pkg/daemon/store"
	"github.com/jamesainslie/radarsync/pkg/radar/archive"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreBasicOperations(t *testing.T) {
	s := openStore(t)

	entry := &store.Entry{
		Level: "IDR043",
		Name:  "IDR043.T.201801011200.png",
		State: archive.StateNew,
		Size:  1024,
	}
	if err := s.Put(entry); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get("IDR043", "IDR043.T.201801011200.png")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Size != 1024 || got.State != archive.StateNew {
		t.Errorf("Unexpected entry: %+v", got)
	}
	if got.UpdatedAt == 0 {
		t.Error("Expected UpdatedAt to be stamped")
	}

	if err := s.Delete("IDR043", "IDR043.T.201801011200.png"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get("IDR043", "IDR043.T.201801011200.png"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestStoreAsRecorder(t *testing.T) {
	s := openStore(t)
	a := archive.New(t.TempDir(), []string{"IDR042", "IDR043", "IDR044"}, archive.WithRecorder(s))
	if err := a.Reset(); err != nil {
		t.Fatal(err)
	}

	const name = "IDR044.T.201801011200.png"
	if _, err := a.WriteNew("IDR044", name, []byte("frame")); err != nil {
		t.Fatalf("WriteNew failed: %v", err)
	}

	got, err := s.Get("IDR044", name)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.State != archive.StateNew || got.Size != 5 {
		t.Errorf("Unexpected entry after write: %+v", got)
	}

	if err := a.Confirm("IDR044", name); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Get("IDR044", name)
	if got == nil || got.State != archive.StateConfirmed {
		t.Errorf("Expected confirmed entry, got %+v", got)
	}

	frames, err := a.Frames("IDR044")
	if err != nil || len(frames) != 1 {
		t.Fatalf("Frames failed: %v (%d frames)", err, len(frames))
	}
	if err := a.Remove(frames[0]); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := s.Get("IDR044", name); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected entry forgotten after remove, got %v", err)
	}
}

func TestStoreFramesAndCounts(t *testing.T) {
	s := openStore(t)

	entries := []*store.Entry{
		{Level: "IDR042", Name: "IDR042.T.201801011206.png", State: archive.StateNew, Size: 10},
		{Level: "IDR042", Name: "IDR042.T.201801011200.png", State: archive.StateConfirmed, Size: 20},
		{Level: "IDR043", Name: "IDR043.T.201801011200.png", State: archive.StateNew, Size: 30},
	}
	for _, e := range entries {
		if err := s.Put(e); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	frames, err := s.Frames("IDR042")
	if err != nil {
		t.Fatalf("Frames failed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	if frames[0].Name != "IDR042.T.201801011200.png" {
		t.Errorf("Expected name order, got %s first", frames[0].Name)
	}

	counts, err := s.Counts()
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if c := counts["IDR042"]; c.New != 1 || c.Confirmed != 1 || c.Bytes != 30 || c.Total() != 2 {
		t.Errorf("Unexpected IDR042 counts: %+v", c)
	}
	if c := counts["IDR043"]; c.New != 1 || c.Confirmed != 0 {
		t.Errorf("Unexpected IDR043 counts: %+v", c)
	}
	if _, ok := counts["IDR044"]; ok {
		t.Error("Expected no counts for an empty level")
	}
}

func TestStoreReplace(t *testing.T) {
	s := openStore(t)

	_ = s.Put(&store.Entry{Level: "IDR043", Name: "stale.png"})
	_ = s.Put(&store.Entry{Level: "IDR044", Name: "other.png"})

	err := s.Replace("IDR043", []*store.Entry{
		{Level: "IDR043", Name: "fresh-1.png", State: archive.StateNew},
		{Level: "IDR043", Name: "fresh-2.png", State: archive.StateConfirmed},
	})
	if err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	frames, _ := s.Frames("IDR043")
	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames after replace, got %d", len(frames))
	}
	if _, err := s.Get("IDR043", "stale.png"); !errors.Is(err, store.ErrNotFound) {
		t.Error("Expected stale entry to be dropped")
	}
	if _, err := s.Get("IDR044", "other.png"); err != nil {
		t.Errorf("Expected other level untouched, got %v", err)
	}
}

func TestStoreLevelPrefixIsolation(t *testing.T) {
	s := openStore(t)

	// A level whose code is a prefix of another must not see its frames.
	_ = s.Put(&store.Entry{Level: "IDR04", Name: "a.png"})
	_ = s.Put(&store.Entry{Level: "IDR042", Name: "b.png"})

	frames, err := s.Frames("IDR04")
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 1 {
		t.Errorf("Expected 1 frame, got %d", len(frames))
	}
}
