// Package trash provides the strategies used to dispose of pruned frames.
// Frames are either removed permanently or moved to the desktop trash where
// the platform offers one.
package trash

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"
)

// commandTimeout is the maximum time to wait for trash commands.
const commandTimeout = 30 * time.Second

// Remover disposes of a single file.
type Remover func(path string) error

// For returns MoveToTrash when useTrash is set and Delete otherwise.
func For(useTrash bool) Remover {
	if useTrash {
		return MoveToTrash
	}
	return Delete
}

// Delete permanently removes a regular file.
// Missing files are reported as errors so a prune never silently
// removes less than it claims.
func Delete(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete %q: %w", path, err)
	}
	return nil
}

// MoveToTrash moves a file to the system trash.
// On macOS: uses AppleScript to move to Trash.
// On Linux: uses gio trash or trash-cli.
// Falls back to Delete if no trash is available.
func MoveToTrash(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot trash %q: %w", path, err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("cannot resolve absolute path for %q: %w", path, err)
	}

	switch runtime.GOOS {
	case "darwin":
		return moveToTrashMacOS(absPath)
	case "linux":
		return moveToTrashLinux(absPath)
	default:
		return Delete(absPath)
	}
}

func moveToTrashMacOS(path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	script := fmt.Sprintf(`tell application "Finder" to delete POSIX file %q`, path)
	if err := exec.CommandContext(ctx, "osascript", "-e", script).Run(); err != nil {
		return Delete(path)
	}
	return nil
}

func moveToTrashLinux(path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	// gio covers GNOME/GTK desktops, trash-put the XDG trash spec elsewhere.
	for _, tool := range [][]string{{"gio", "trash"}, {"trash-put"}} {
		bin, err := exec.LookPath(tool[0])
		if err != nil {
			continue
		}
		args := append(tool[1:], path)
		if err := exec.CommandContext(ctx, bin, args...).Run(); err == nil {
			return nil
		}
	}

	return Delete(path)
}
