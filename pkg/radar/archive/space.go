package archive

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

// ErrInsufficientSpace is returned when the archive filesystem is below the free-space floor.
var ErrInsufficientSpace = errors.New("insufficient free space")

// CheckSpace fails with ErrInsufficientSpace when fewer than minFree bytes
// are available on the filesystem holding the archive root.
// A zero minFree disables the check.
func (a *Archive) CheckSpace(minFree uint64) error {
	if minFree == 0 {
		return nil
	}

	free, ok, err := freeBytes(a.root)
	if err != nil {
		return fmt.Errorf("checking free space: %w", err)
	}
	if !ok {
		return nil
	}
	if free < minFree {
		return fmt.Errorf("%w: %s available, %s required", ErrInsufficientSpace,
			humanize.IBytes(free), humanize.IBytes(minFree))
	}
	return nil
}
