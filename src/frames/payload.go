package frames

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
)

// Logical resolution of every frame source.
const (
	Width  = 64
	Height = 32
)

// ErrBadPayload is returned by ParsePayload for input that is neither a grid
// nor a base64 PNG string.
var ErrBadPayload = errors.New("frame payload is neither a grid nor a base64 PNG")

// Payload is one raster snapshot as delivered by a producer. Exactly one of
// Grid or Image is set.
type Payload struct {
	// Grid holds cell intensities (0 or 255) row-major as received; rows may be
	// ragged until validated.
	Grid [][]uint8
	// Image is a decoded PNG frame converted to grayscale.
	Image *image.Gray
}

// GridPayload builds a payload from on/off cells.
func GridPayload(cells [][]bool) Payload {
	grid := make([][]uint8, len(cells))
	for y, row := range cells {
		grid[y] = make([]uint8, len(row))
		for x, on := range row {
			if on {
				grid[y][x] = 255
			}
		}
	}
	return Payload{Grid: grid}
}

// Filled returns a 64x32 grid payload with every cell set to on.
func Filled(on bool) Payload {
	cells := make([][]bool, Height)
	for y := range cells {
		cells[y] = make([]bool, Width)
		for x := range cells[y] {
			cells[y][x] = on
		}
	}
	return GridPayload(cells)
}

// ParsePayload accepts either a JSON 2D array of 0/1 (or booleans, or any
// number where non-zero means lit) or a JSON string holding a base64 PNG,
// optionally prefixed with a data URL header.
func ParsePayload(raw json.RawMessage) (Payload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Payload{}, ErrBadPayload
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Payload{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		return DecodeBase64PNG(s)
	case '[':
		return parseGrid(trimmed)
	}
	return Payload{}, ErrBadPayload
}

func parseGrid(raw []byte) (Payload, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	grid := make([][]uint8, len(rows))
	for y, row := range rows {
		grid[y] = make([]uint8, len(row))
		for x, cell := range row {
			on, err := cellOn(cell)
			if err != nil {
				return Payload{}, fmt.Errorf("%w: cell (%d,%d): %v", ErrBadPayload, x, y, err)
			}
			if on {
				grid[y][x] = 255
			}
		}
	}
	return Payload{Grid: grid}, nil
}

func cellOn(cell json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(cell, &b); err == nil {
		return b, nil
	}
	var f float64
	if err := json.Unmarshal(cell, &f); err != nil {
		return false, fmt.Errorf("cell %s is not a number or boolean", string(cell))
	}
	return f != 0, nil
}

// DecodeBase64PNG decodes a base64 PNG frame into a grayscale payload.
func DecodeBase64PNG(s string) (Payload, error) {
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return Payload{}, fmt.Errorf("%w: base64: %v", ErrBadPayload, err)
	}
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		return Payload{}, fmt.Errorf("%w: png: %v", ErrBadPayload, err)
	}
	if g, ok := img.(*image.Gray); ok {
		return Payload{Image: g}, nil
	}
	bounds := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(g, g.Bounds(), img, bounds.Min, draw.Src)
	return Payload{Image: g}, nil
}

// EncodeBase64PNG is the inverse of DecodeBase64PNG for a grid of on/off cells.
// Producers and tests use it to build "update" events.
func EncodeBase64PNG(cells [][]bool) (string, error) {
	h := len(cells)
	w := 0
	if h > 0 {
		w = len(cells[0])
	}
	g := image.NewGray(image.Rect(0, 0, w, h))
	for y, row := range cells {
		for x, on := range row {
			if on {
				g.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, g); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// gray validates the payload shape and returns it as a 64x32 grayscale image.
func (p Payload) gray() (*image.Gray, error) {
	if p.Image != nil {
		b := p.Image.Bounds()
		if b.Dx() != Width || b.Dy() != Height {
			return nil, &ValidationError{Rows: b.Dy(), Cols: b.Dx()}
		}
		return p.Image, nil
	}
	if len(p.Grid) != Height {
		cols := 0
		if len(p.Grid) > 0 {
			cols = len(p.Grid[0])
		}
		return nil, &ValidationError{Rows: len(p.Grid), Cols: cols}
	}
	g := image.NewGray(image.Rect(0, 0, Width, Height))
	for y, row := range p.Grid {
		if len(row) != Width {
			return nil, &ValidationError{Rows: len(p.Grid), Cols: len(row), Row: y, Ragged: y > 0}
		}
		copy(g.Pix[y*g.Stride:y*g.Stride+Width], row)
	}
	return g, nil
}

// ValidationError reports a frame whose shape is not 64x32.
type ValidationError struct {
	Source string
	Rows   int
	Cols   int
	Row    int
	Ragged bool
}

func (e *ValidationError) Error() string {
	src := ""
	if e.Source != "" {
		src = " " + e.Source
	}
	if e.Ragged {
		return fmt.Sprintf("frame%s: row %d has %d cells, want %d", src, e.Row, e.Cols, Width)
	}
	return fmt.Sprintf("frame%s: got %dx%d, want %dx%d", src, e.Cols, e.Rows, Width, Height)
}
