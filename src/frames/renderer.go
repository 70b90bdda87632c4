// Package frames decodes emulator/model frame payloads and draws them onto
// fixed-size upscaled surfaces.
package frames

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// DefaultScale is the integer upscale factor applied to every source.
const DefaultScale = 10

// Well-known source names used by the producers.
const (
	SourceChip8 = "CHIP-8"
	SourceAI    = "AI Simulation"
)

// Renderer owns one surface per named source. Surfaces are allocated on the
// first frame for a source and reused for every later frame.
type Renderer struct {
	mu       sync.RWMutex
	scale    int
	surfaces map[string]*image.RGBA
	order    []string
	frames   map[string]int
}

// NewRenderer returns a renderer with the given upscale factor (<= 0 uses
// DefaultScale).
func NewRenderer(scale int) *Renderer {
	if scale <= 0 {
		scale = DefaultScale
	}
	return &Renderer{
		scale:    scale,
		surfaces: make(map[string]*image.RGBA),
		frames:   make(map[string]int),
	}
}

// Scale returns the upscale factor.
func (r *Renderer) Scale() int { return r.scale }

// SurfaceSize returns the pixel size of every surface.
func (r *Renderer) SurfaceSize() (int, int) { return Width * r.scale, Height * r.scale }

// Render draws p onto the named source's surface, replacing the previous
// frame completely. Payloads with the wrong shape are rejected with a
// *ValidationError and leave the surface untouched.
func (r *Renderer) Render(source string, p Payload) error {
	g, err := p.gray()
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			ve.Source = source
		}
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	dst, ok := r.surfaces[source]
	if !ok {
		w, h := r.SurfaceSize()
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
		r.surfaces[source] = dst
		r.order = append(r.order, source)
	}
	// Src with an opaque gray source overwrites every pixel with alpha 255.
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), g, g.Bounds(), xdraw.Src, nil)
	r.frames[source]++
	return nil
}

// RenderAll renders every source and returns the names it rejected together
// with the joined errors. Valid sources are drawn even when others fail.
func (r *Renderer) RenderAll(sources []Source) ([]string, error) {
	var rejected []string
	var errs []error
	for _, s := range sources {
		if err := r.Render(s.Name, s.Payload); err != nil {
			rejected = append(rejected, s.Name)
			errs = append(errs, err)
		}
	}
	return rejected, errors.Join(errs...)
}

// Source pairs a payload with the name it is displayed under.
type Source struct {
	Name    string
	Payload Payload
}

// Names returns source names in first-rendered order.
func (r *Renderer) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// FrameCount returns how many frames were drawn for source.
func (r *Renderer) FrameCount(source string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frames[source]
}

// Snapshot returns a copy of the named surface.
func (r *Renderer) Snapshot(source string) (*image.RGBA, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.surfaces[source]
	if !ok {
		return nil, false
	}
	cp := image.NewRGBA(s.Bounds())
	copy(cp.Pix, s.Pix)
	return cp, true
}

// Composite places the named surfaces side by side, each labelled with its
// source name. Sources that have not produced a frame yet are drawn black.
// With no names, every known source is used.
func (r *Renderer) Composite(names ...string) *image.RGBA {
	if len(names) == 0 {
		names = r.Names()
	}
	w, h := r.SurfaceSize()
	n := len(names)
	if n == 0 {
		n = 1
	}
	out := image.NewRGBA(image.Rect(0, 0, w*n, h))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i, name := range names {
		panel := image.Rect(i*w, 0, (i+1)*w, h)
		if s, ok := r.surfaces[name]; ok {
			draw.Draw(out, panel, s, image.Point{}, draw.Src)
		}
		drawLabel(out, panel.Min.X+10, 10, name)
	}
	return out
}

// drawLabel writes text with a dark backdrop so it stays readable on lit cells.
func drawLabel(dst *image.RGBA, x, top int, text string) {
	face := basicfont.Face7x13
	dr := &font.Drawer{Dst: dst, Src: image.NewUniform(color.White), Face: face}
	tw := dr.MeasureString(text).Ceil()
	ascent := face.Metrics().Ascent.Ceil()
	pad := 3
	bg := image.NewUniform(color.RGBA{A: 200})
	draw.Draw(dst, image.Rect(x-pad, top-pad, x+tw+pad, top+ascent+pad+2), bg, image.Point{}, draw.Over)
	dr.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(top + ascent)}
	dr.DrawString(text)
}

// String describes the renderer configuration.
func (r *Renderer) String() string {
	w, h := r.SurfaceSize()
	return fmt.Sprintf("frames.Renderer{%dx%d@%dx -> %dx%d}", Width, Height, r.scale, w, h)
}
