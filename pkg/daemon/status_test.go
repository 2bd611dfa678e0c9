package daemon_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jamesainslie/radarsync/pkg/daemon"
	"github.com/jamesainslie/radarsync/pkg/daemon/store"
)

func TestWriteStatusReady(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "radarsync.status")
	frame := time.Date(2018, 1, 1, 12, 6, 0, 0, time.UTC)

	in := &daemon.StatusFile{
		Status:    daemon.StateReady,
		PID:       os.Getpid(),
		StartedAt: time.Now().Add(-time.Minute),
		Root:      "/var/lib/radarsync/img",
		Phase:     "waiting",
		LastPass:  &daemon.PassStatus{ID: "abc", At: time.Now(), Downloaded: 3, Bytes: 300},
		LastFrame: &frame,
		Levels: map[string]store.Counts{
			"IDR043": {New: 2, Confirmed: 1, Bytes: 300},
		},
	}
	if err := daemon.WriteStatus(path, in); err != nil {
		t.Fatalf("WriteStatus failed: %v", err)
	}
	if in.UpdatedAt.IsZero() {
		t.Error("WriteStatus should stamp UpdatedAt")
	}

	got, err := daemon.ReadStatus(path)
	if err != nil {
		t.Fatalf("ReadStatus failed: %v", err)
	}
	if got.Status != daemon.StateReady || got.PID != os.Getpid() {
		t.Errorf("unexpected status header: %+v", got)
	}
	if got.LastPass == nil || got.LastPass.Downloaded != 3 {
		t.Errorf("LastPass not round-tripped: %+v", got.LastPass)
	}
	if got.LastFrame == nil || !got.LastFrame.Equal(frame) {
		t.Errorf("LastFrame = %v, want %v", got.LastFrame, frame)
	}
	if got.Levels["IDR043"].Total() != 3 {
		t.Errorf("Levels not round-tripped: %+v", got.Levels)
	}
}

func TestWriteStatusLeavesNoTemporaries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "radarsync.status")

	for range 3 {
		if err := daemon.WriteStatus(path, &daemon.StatusFile{Status: daemon.StateReady}); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected only the status file, found %d entries", len(entries))
	}
}

func TestWriteStatusError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "radarsync.status")

	if err := daemon.WriteStatusError(path, errors.New("disk full")); err != nil {
		t.Fatalf("WriteStatusError failed: %v", err)
	}

	got, err := daemon.ReadStatus(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != daemon.StateError || got.Error != "disk full" {
		t.Errorf("unexpected error status: %+v", got)
	}
}

func TestReadStatus(t *testing.T) {
	dir := t.TempDir()

	if _, err := daemon.ReadStatus(filepath.Join(dir, "missing")); !os.IsNotExist(err) {
		t.Errorf("Expected not-exist error, got %v", err)
	}

	bad := filepath.Join(dir, "bad.status")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := daemon.ReadStatus(bad); err == nil {
		t.Error("Expected error for malformed status file")
	}
}
