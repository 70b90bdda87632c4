package dashboard

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"
	"unicode"

	"github.com/iafilius/Chip8Dashboard/src/charts"
	"github.com/iafilius/Chip8Dashboard/src/logging"
	"github.com/iafilius/Chip8Dashboard/src/metrics"
)

// WriteSnapshot renders every chart, every frame surface and the side-by-side
// frame composite into dir as PNG files, plus latest.txt with the latest value
// table and epoch summary. It returns the written paths.
func (s *Session) WriteSnapshot(dir string, chartW, chartH int) ([]string, error) {
	defer logging.TimeTrack(time.Now(), "snapshot")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	var written []string
	write := func(name string, img image.Image) error {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return fmt.Errorf("png encode %s: %w", name, err)
		}
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", p, err)
		}
		written = append(written, p)
		return nil
	}

	for i, c := range s.binder.RenderAll(chartW, chartH) {
		if err := write(chartFile(i, c.Name), c.Image); err != nil {
			return written, err
		}
	}
	names := s.renderer.Names()
	for i, n := range names {
		img, ok := s.renderer.Snapshot(n)
		if !ok {
			continue
		}
		if err := write(fmt.Sprintf("frame_%02d_%s.png", i, FileSafe(n)), img); err != nil {
			return written, err
		}
	}
	if len(names) > 0 {
		if err := write("frames_side_by_side.png", s.renderer.Composite(names...)); err != nil {
			return written, err
		}
	}

	var txt bytes.Buffer
	if err := s.WriteLatest(&txt); err != nil {
		return written, err
	}
	p := filepath.Join(dir, "latest.txt")
	if err := os.WriteFile(p, txt.Bytes(), 0o644); err != nil {
		return written, fmt.Errorf("write %s: %w", p, err)
	}
	written = append(written, p)
	s.log.Infof("snapshot: %d files in %s", len(written), dir)
	return written, nil
}

// WriteLatest prints the latest value of every metric and the current epoch
// summary.
func (s *Session) WriteLatest(w io.Writer) error {
	if err := WriteLatestTable(w, s.store); err != nil {
		return err
	}
	if sum, ok := s.Summary(); ok {
		parts := make([]string, len(sum.Fields))
		for i, f := range sum.Fields {
			parts[i] = f.Label + "=" + f.Format()
		}
		if _, err := fmt.Fprintf(w, "\nepoch summary: %s\n", strings.Join(parts, " ")); err != nil {
			return err
		}
	}
	return nil
}

// WriteLatestTable prints one aligned row per metric in first-seen order.
func WriteLatestTable(w io.Writer, store *metrics.Store) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tSTEP\tLATEST\tPOINTS")
	for _, r := range store.LatestTable() {
		step := "-"
		if r.Points > 0 {
			step = fmt.Sprint(r.Step)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", r.Name, step, r.Value, r.Points)
	}
	return tw.Flush()
}

// WriteCharts renders every binding of b into dir; used for historical runs.
func WriteCharts(dir string, b *charts.Binder, chartW, chartH int) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	var written []string
	for i, name := range b.Names() {
		p := filepath.Join(dir, chartFile(i, name))
		f, err := os.Create(p)
		if err != nil {
			return written, err
		}
		err = b.WritePNG(f, name, chartW, chartH)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return written, fmt.Errorf("write %s: %w", p, err)
		}
		written = append(written, p)
	}
	return written, nil
}

// chartFile names the PNG of the i-th binding. The index keeps names that
// fold to the same fragment apart.
func chartFile(i int, name string) string {
	return fmt.Sprintf("chart_%02d_%s.png", i, FileSafe(name))
}

// FileSafe maps a metric or source name to a file name fragment.
func FileSafe(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "unnamed"
	}
	return out
}
