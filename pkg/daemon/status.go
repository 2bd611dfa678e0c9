package daemon

import (
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/jamesainslie/radarsync/pkg/daemon/store"
)

// Daemon states recorded in the status file.
const (
	StateStarting = "starting"
	StateReady    = "ready"
	StateError    = "error"
	StateStopped  = "stopped"
)

// PassStatus describes the most recent sync pass.
type PassStatus struct {
	ID         string    `json:"id"`
	At         time.Time `json:"at"`
	Downloaded int       `json:"downloaded"`
	Bytes      int64     `json:"bytes"`
	Error      string    `json:"error,omitempty"`
}

// PruneStatus describes the most recent retention pass.
type PruneStatus struct {
	At      time.Time `json:"at"`
	Removed int       `json:"removed"`
	Error   string    `json:"error,omitempty"`
}

// StatusFile is the daemon state published for the CLI.
type StatusFile struct {
	Status    string                  `json:"status"`
	PID       int                     `json:"pid,omitempty"`
	StartedAt time.Time               `json:"started_at"`
	UpdatedAt time.Time               `json:"updated_at"`
	Root      string                  `json:"root,omitempty"`
	Phase     string                  `json:"phase,omitempty"`
	LastPass  *PassStatus             `json:"last_pass,omitempty"`
	LastFrame *time.Time              `json:"last_frame,omitempty"`
	LastPrune *PruneStatus            `json:"last_prune,omitempty"`
	Levels    map[string]store.Counts `json:"levels,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// WriteStatus atomically replaces the status file.
func WriteStatus(path string, status *StatusFile) error {
	status.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// WriteStatusError writes an error status file.
func WriteStatusError(path string, err error) error {
	return WriteStatus(path, &StatusFile{
		Status: StateError,
		PID:    os.Getpid(),
		Error:  err.Error(),
	})
}

// ReadStatus reads a status file.
func ReadStatus(path string) (*StatusFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var status StatusFile
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
