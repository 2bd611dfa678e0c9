package trash

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelete(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "IDR043.T.201801011200.png")
	require.NoError(t, os.WriteFile(tmpFile, []byte("frame"), 0o644))

	require.NoError(t, Delete(tmpFile))

	_, err := os.Stat(tmpFile)
	assert.True(t, os.IsNotExist(err))
}

func TestDelete_Missing(t *testing.T) {
	err := Delete(filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMoveToTrash(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "frame.png")
	require.NoError(t, os.WriteFile(tmpFile, []byte("frame"), 0o644))

	require.NoError(t, MoveToTrash(tmpFile))

	_, err := os.Stat(tmpFile)
	assert.True(t, os.IsNotExist(err))
}

func TestMoveToTrash_Missing(t *testing.T) {
	assert.Error(t, MoveToTrash(filepath.Join(t.TempDir(), "missing.png")))
}

func TestFor(t *testing.T) {
	dir := t.TempDir()
	for _, useTrash := range []bool{false, true} {
		path := filepath.Join(dir, "frame.png")
		require.NoError(t, os.WriteFile(path, []byte("frame"), 0o644))

		require.NoError(t, For(useTrash)(path))

		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err), "useTrash=%v", useTrash)
	}
}
