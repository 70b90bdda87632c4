package main

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"github.com/iafilius/Chip8Dashboard/src/charts"
	"github.com/iafilius/Chip8Dashboard/src/dashboard"
	"github.com/iafilius/Chip8Dashboard/src/events"
	"github.com/iafilius/Chip8Dashboard/src/frames"
	"github.com/iafilius/Chip8Dashboard/src/metrics"
)

// statusText summarises both channels for the status bar.
func statusText(s *dashboard.Session) string {
	return fmt.Sprintf("session %s | metrics: %s | frames: %s | events: %d",
		s.ID, s.ConnState("metrics"), s.ConnState("frames"), s.Applied())
}

// latestText is the monospace latest-values table.
func latestText(store *metrics.Store) string {
	if store.Count() == 0 {
		return "no metrics yet"
	}
	var buf bytes.Buffer
	if err := dashboard.WriteLatestTable(&buf, store); err != nil {
		return err.Error()
	}
	return strings.TrimRight(buf.String(), "\n")
}

// summaryText renders the latest epoch summary as label: value lines.
func summaryText(sum events.EpochSummary, ok bool) string {
	if !ok {
		return "no epoch summary yet"
	}
	lines := make([]string, len(sum.Fields))
	for i, f := range sum.Fields {
		lines[i] = f.Label + ": " + f.Format()
	}
	return strings.Join(lines, "\n")
}

// frameImage returns the surface of source, or a black panel of the surface
// size when nothing has been drawn yet.
func frameImage(r *frames.Renderer, source string) image.Image {
	if img, ok := r.Snapshot(source); ok {
		return img
	}
	w, h := r.SurfaceSize()
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

// frameSources lists the sources that need a panel: the emulator and the AI
// simulation first, then every other rendered source in first-rendered order,
// skipping those already in shown.
func frameSources(r *frames.Renderer, shown map[string]bool) []string {
	var out []string
	seen := make(map[string]bool, len(shown))
	for n := range shown {
		seen[n] = true
	}
	for _, n := range append([]string{frames.SourceChip8, frames.SourceAI}, r.Names()...) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// chartGutter is the horizontal space left around each chart in the grid.
const chartGutter = 40

// chartLayout picks the grid columns for a window width and the chart size
// that fills one column.
func chartLayout(winW float32) (cols, w, h int) {
	cols = charts.ComputeGridColumns(winW)
	w, h = charts.ComputeChartDimensions(int(winW)/cols - chartGutter)
	return cols, w, h
}

// newNames returns the bound names that are not in seen, in binding order.
func newNames(b *charts.Binder, seen map[string]bool) []string {
	var out []string
	for _, n := range b.Names() {
		if !seen[n] {
			out = append(out, n)
		}
	}
	return out
}
