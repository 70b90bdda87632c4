package charts

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"strings"

	chart "github.com/wcharczuk/go-chart/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/iafilius/Chip8Dashboard/src/logging"
	"github.com/iafilius/Chip8Dashboard/src/metrics"
)

var log = logging.Prefixed("charts")

// Chart is a rendered binding.
type Chart struct {
	Name  string
	Image image.Image
}

// Render draws the current window of name as a line chart of Value over Step.
// Unknown or empty bindings render as a dark placeholder with a hint.
func (b *Binder) Render(name string, w, h int) image.Image {
	bd, ok := b.Lookup(name)
	if !ok {
		return drawHint(blank(w, h), name+": no data")
	}
	pts := b.Points(name)
	if len(pts) == 0 {
		return drawHint(blank(w, h), name+": waiting for data")
	}
	ch := buildChart(bd, pts, w, h)
	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		log.Warnf("render %q: %v; showing blank fallback", name, err)
		return blank(w, h)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		log.Warnf("decode %q: %v; showing blank fallback", name, err)
		return blank(w, h)
	}
	return img
}

// RenderAll renders every binding in binding order.
func (b *Binder) RenderAll(w, h int) []Chart {
	names := b.Names()
	out := make([]Chart, 0, len(names))
	for _, n := range names {
		out = append(out, Chart{Name: n, Image: b.Render(n, w, h)})
	}
	return out
}

// WritePNG renders name and encodes it to dst.
func (b *Binder) WritePNG(dst io.Writer, name string, w, h int) error {
	if err := png.Encode(dst, b.Render(name, w, h)); err != nil {
		return fmt.Errorf("encode chart %q: %w", name, err)
	}
	return nil
}

func buildChart(bd *Binding, pts []metrics.Sample, w, h int) chart.Chart {
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	minY, maxY := math.MaxFloat64, -math.MaxFloat64
	for i, p := range pts {
		xs[i] = float64(p.Step)
		ys[i] = p.Value
		if p.Value < minY {
			minY = p.Value
		}
		if p.Value > maxY {
			maxY = p.Value
		}
	}
	st := chart.Style{StrokeColor: bd.Line, StrokeWidth: 2, DotColor: bd.Fill, DotWidth: 2}
	if len(pts) == 1 {
		// go-chart needs two X values
		xs = []float64{xs[0], xs[0] + 1}
		ys = []float64{ys[0], ys[0]}
		st.DotWidth = 6
	}
	minX, maxX := xs[0], xs[len(xs)-1]
	if maxX <= minX {
		maxX = minX + 1
	}
	yMin, yMax := niceAxisBounds(minY, maxY)

	ch := chart.Chart{
		Title:      bd.Name,
		Width:      w,
		Height:     h,
		Background: chart.Style{Padding: chart.Box{Top: 24, Left: 16, Right: 12, Bottom: 28}},
		XAxis: chart.XAxis{
			Name:  "Step",
			Range: &chart.ContinuousRange{Min: minX, Max: maxX},
			Ticks: niceTicks(minX, maxX, 6, formatStepTick),
		},
		YAxis: chart.YAxis{
			Name:  "Value",
			Range: &chart.ContinuousRange{Min: yMin, Max: yMax},
			Ticks: niceTicks(yMin, yMax, 6, formatValueTick),
		},
		Series: []chart.Series{
			chart.ContinuousSeries{Name: bd.Name, XValues: xs, YValues: ys, Style: st},
		},
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	return ch
}

func blank(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 18, G: 18, B: 18, A: 255}), image.Point{}, draw.Src)
	return img
}

// drawHint writes text near the bottom-left corner on a dark backdrop.
func drawHint(img *image.RGBA, text string) *image.RGBA {
	if strings.TrimSpace(text) == "" {
		return img
	}
	b := img.Bounds()
	face := basicfont.Face7x13
	dr := &font.Drawer{Dst: img, Src: image.NewUniform(color.RGBA{R: 255, G: 255, B: 255, A: 255}), Face: face}
	tw := dr.MeasureString(text).Ceil()
	x := b.Min.X + 8
	y := b.Max.Y - 8
	pad := 6
	rect := image.Rect(x-pad, y-face.Metrics().Ascent.Ceil()-pad, x+tw+pad, y+pad/2)
	draw.Draw(img, rect, image.NewUniform(color.RGBA{A: 200}), image.Point{}, draw.Over)
	dr.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)}
	dr.DrawString(text)
	return img
}
