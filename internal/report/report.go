// Package report renders progress bars and end-of-run summaries for the
// command-line drivers.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

// NewBar returns a progress bar writing to w. A nil w or a negative total
// yields a silent bar so callers never need to nil-check.
func NewBar(w io.Writer, total int64, description string) *progressbar.ProgressBar {
	if w == nil {
		w = io.Discard
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("rec"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetPredictTime(true),
	)
}

// Line is one row of a summary.
type Line struct {
	Label string
	Value int
	Color color.Attribute
}

// Summary prints a titled block of counters. A zero Color prints plain.
func Summary(w io.Writer, title string, lines []Line) {
	if w == nil {
		w = os.Stdout
	}
	rule := strings.Repeat("=", 60)
	_, _ = fmt.Fprintf(w, "\n%s\n", rule)
	_, _ = color.New(color.Bold).Fprintln(w, title)
	for _, l := range lines {
		text := fmt.Sprintf("  %-18s %d", l.Label+":", l.Value)
		if l.Color != 0 && l.Value > 0 {
			_, _ = color.New(l.Color).Fprintln(w, text)
			continue
		}
		_, _ = fmt.Fprintln(w, text)
	}
	_, _ = fmt.Fprintf(w, "%s\n", rule)
}

// Failures prints up to limit failure lines under a count of all failures.
func Failures(w io.Writer, failures []string, total, limit int) {
	Named(w, "Failures", color.FgRed, failures, total, limit)
}

// Named prints up to limit items under heading, with the total they were
// drawn from.
func Named(w io.Writer, heading string, attr color.Attribute, items []string, total, limit int) {
	if total == 0 {
		return
	}
	if w == nil {
		w = os.Stdout
	}
	_, _ = color.New(attr).Fprintf(w, "\n%s (showing %d of %d):\n", heading, min(limit, len(items)), total)
	for i, f := range items {
		if i >= limit {
			break
		}
		_, _ = fmt.Fprintf(w, "  %s\n", f)
	}
}
