package daemon

import (
	"os"
	"path/filepath"

	"github.com/jamesainslie/radarsync/pkg/radar/logging"
)

// RecoverFromStaleDaemon checks for and cleans up stale daemon artifacts.
// Returns nil if cleanup succeeded or wasn't needed.
// Returns ErrDaemonAlreadyRunning if a daemon is actually running.
func RecoverFromStaleDaemon(pidPath, statusPath, indexPath string) error {
	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		// No PID file or invalid PID means nothing to recover
		return nil //nolint:nilerr // intentional: missing/invalid PID file is not an error condition
	}

	if pid == os.Getpid() {
		return nil
	}
	if IsProcessRunning(pid) {
		return ErrDaemonAlreadyRunning
	}

	logging.Get("daemon").Warn("cleaning up stale daemon files", "stale_pid", pid)

	// Remove stale files (ignore errors - files may not exist)
	_ = os.Remove(pidPath)
	_ = os.Remove(statusPath)
	_ = os.Remove(filepath.Join(indexPath, "LOCK"))

	return nil
}
