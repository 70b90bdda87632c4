package charts

import "github.com/wcharczuk/go-chart/v2/drawing"

// Palette is the fixed cycle of line colours. A binding takes the entry at
// its insertion position modulo the palette length.
var Palette = []drawing.Color{
	{R: 255, G: 99, B: 132, A: 255},
	{R: 53, G: 162, B: 235, A: 255},
	{R: 75, G: 192, B: 192, A: 255},
	{R: 255, G: 206, B: 86, A: 255},
	{R: 153, G: 102, B: 255, A: 255},
	{R: 255, G: 159, B: 64, A: 255},
}

// fillAlpha is the translucent variant used for dots and legend swatches.
const fillAlpha = 128

// ColorAt returns the line and fill colours for the i-th binding.
func ColorAt(i int) (line, fill drawing.Color) {
	if i < 0 {
		i = -i
	}
	line = Palette[i%len(Palette)]
	fill = line.WithAlpha(fillAlpha)
	return line, fill
}
