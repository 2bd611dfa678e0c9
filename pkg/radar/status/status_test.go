package status

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestLine_OverwritesInPlace(t *testing.T) {
	var buf bytes.Buffer
	l := NewLine(&buf, true)

	l.Set("first")
	l.Set("first")
	l.Set("second")
	l.Clear()
	l.Clear()

	assert.Equal(t, clearLine+"first"+clearLine+"second"+clearLine, buf.String())
	assert.NotContains(t, buf.String(), "\n")
}

func TestLine_Disabled(t *testing.T) {
	var buf bytes.Buffer
	l := NewLine(&buf, false)
	l.Syncing()
	l.Failed(errors.New("boom"))
	l.Clear()
	assert.Empty(t, buf.String())
}

func TestLine_Messages(t *testing.T) {
	var buf bytes.Buffer
	l := NewLine(&buf, true)

	l.Waiting(90*time.Second, false)
	assert.Contains(t, buf.String(), "next sync in 1m30s")

	l.Waiting(42*time.Second, true)
	assert.Contains(t, buf.String(), "nothing new, next sync in 42s")

	l.Downloaded("IDR043.T.201801011200.png", 3, 2048)
	assert.Contains(t, buf.String(), "IDR043.T.201801011200.png")
	assert.Contains(t, buf.String(), "2.0 KiB")

	l.Completed(4, 4096, 2)
	assert.Contains(t, buf.String(), "downloaded 4 frames (4.0 KiB), pruned 2")

	l.Failed(errors.New("remote failure: dial tcp\nmore detail"))
	assert.Contains(t, buf.String(), "error: remote failure: dial tcp")
	assert.NotContains(t, buf.String(), "more detail")
}

func TestReport(t *testing.T) {
	danger := ErrorStyle
	out := Report("radarsync", []Field{
		{Label: "State", Value: "ready"},
		{Label: "Last error", Value: "disk full", Style: &danger},
	})

	assert.Contains(t, out, "radarsync")
	assert.Contains(t, out, "State:")
	assert.Contains(t, out, "disk full")
	assert.Len(t, strings.Split(out, "\n"), 5, "title, two fields and borders")
	assert.Positive(t, lipgloss.Width(out))
}

func TestAgoAndBytes(t *testing.T) {
	assert.Equal(t, "never", Ago(time.Time{}))
	assert.Contains(t, Ago(time.Now().Add(-3*time.Minute)), "minutes ago")
	assert.Equal(t, "1.0 KiB", Bytes(1024))
	assert.Equal(t, "0 B", Bytes(-5))
}
