// Package status renders the single overwritable progress line shown while
// the poll loop waits and downloads, and the boxed report printed by the
// status command.
package status

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// clearLine returns the cursor to column zero and erases the line.
const clearLine = "\r\x1b[2K"

// Line is a single terminal line that each update overwrites.
// It is safe for concurrent use.
type Line struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
	last    string
}

// NewLine creates a Line writing to w. A disabled Line discards everything,
// which is what non-interactive runs use.
func NewLine(w io.Writer, enabled bool) *Line {
	return &Line{w: w, enabled: enabled}
}

// Set replaces the line content.
func (l *Line) Set(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled || msg == l.last {
		return
	}
	l.last = msg
	fmt.Fprint(l.w, clearLine+msg)
}

// Clear erases the line.
func (l *Line) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled || l.last == "" {
		return
	}
	l.last = ""
	fmt.Fprint(l.w, clearLine)
}

// Waiting shows the time remaining before the next pass.
func (l *Line) Waiting(remaining time.Duration, retrying bool) {
	msg := "next sync in " + formatRemaining(remaining)
	if retrying {
		l.Set(WarningStyle.Render("nothing new, " + msg))
		return
	}
	l.Set(LabelStyle.Render(msg))
}

// Syncing shows that a pass has started.
func (l *Line) Syncing() {
	l.Set(LabelStyle.Render("syncing..."))
}

// Downloaded shows the frame just written.
func (l *Line) Downloaded(name string, done int, bytes int64) {
	l.Set(fmt.Sprintf("%s %s %s",
		ValueStyle.Render(fmt.Sprintf("[%d]", done)),
		name,
		SizeStyle.Render(humanize.IBytes(uint64(bytes)))))
}

// Completed shows a finished pass summary.
func (l *Line) Completed(frames int, bytes int64, removed int) {
	msg := fmt.Sprintf("downloaded %d frames (%s)", frames, humanize.IBytes(uint64(bytes)))
	if removed > 0 {
		msg += fmt.Sprintf(", pruned %d", removed)
	}
	l.Set(SuccessStyle.Render(msg))
}

// Failed shows an error.
func (l *Line) Failed(err error) {
	l.Set(ErrorStyle.Render("error: " + firstLine(err.Error())))
}

func formatRemaining(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Field is a labelled value in a report.
type Field struct {
	Label string
	Value string
	// Style overrides the value style when set.
	Style *lipgloss.Style
}

// Report renders fields as a boxed, aligned block.
func Report(title string, fields []Field) string {
	width := 0
	for _, f := range fields {
		width = max(width, lipgloss.Width(f.Label))
	}

	lines := []string{SuccessStyle.Bold(true).Render(title)}
	for _, f := range fields {
		style := ValueStyle
		if f.Style != nil {
			style = *f.Style
		}
		label := LabelStyle.Render(fmt.Sprintf("%-*s", width+1, f.Label+":"))
		lines = append(lines, label+" "+style.Render(f.Value))
	}
	return Box.Render(strings.Join(lines, "\n"))
}

// Ago formats a timestamp relative to now, or "never" for the zero time.
func Ago(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

// Bytes formats a byte count.
func Bytes(n int64) string {
	return humanize.IBytes(uint64(max(n, 0)))
}
