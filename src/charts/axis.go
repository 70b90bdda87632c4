package charts

import (
	"math"
	"strconv"

	chart "github.com/wcharczuk/go-chart/v2"
)

// ComputeChartDimensions clamps a desired chart width and derives its height.
func ComputeChartDimensions(rawW int) (int, int) {
	w := rawW
	if w < 480 {
		w = 480
	}
	h := int(float32(w) * 0.5)
	if h < 240 {
		h = 240
	}
	if h > 420 {
		h = 420
	}
	return w, h
}

// ComputeGridColumns picks how many charts fit side by side in a window.
func ComputeGridColumns(winW float32) int {
	switch {
	case winW < 1000:
		return 1
	case winW < 1600:
		return 2
	default:
		return 3
	}
}

// niceAxisBounds pads [min,max] by 5% and rounds outward to the span's order
// of magnitude.
func niceAxisBounds(min, max float64) (float64, float64) {
	if math.IsNaN(min) || math.IsNaN(max) {
		return min, max
	}
	if max <= min {
		max = min + 1
	}
	span := max - min
	pad := span * 0.05
	a := min - pad
	b := max + pad
	mag := math.Pow(10, math.Floor(math.Log10(span)))
	if !math.IsInf(mag, 0) && mag > 0 {
		a = math.Floor(a/mag) * mag
		b = math.Ceil(b/mag) * mag
	}
	return a, b
}

// niceTicks returns roughly n ticks on a 1/2/2.5/5 grid, clipped to [min,max].
func niceTicks(min, max float64, n int, label func(float64) string) []chart.Tick {
	if n < 2 || math.IsNaN(min) || math.IsNaN(max) {
		return nil
	}
	if max <= min {
		max = min + 1
	}
	span := max - min
	mag := math.Pow(10, math.Floor(math.Log10(span/float64(n-1))))
	bestStep := mag
	bestScore := math.MaxFloat64
	for _, c := range []float64{1, 2, 2.5, 5, 10} {
		step := c * mag
		count := math.Ceil(span/step) + 1
		if score := math.Abs(count - float64(n)); score < bestScore {
			bestScore = score
			bestStep = step
		}
	}
	var ticks []chart.Tick
	for v := math.Ceil(min/bestStep) * bestStep; v <= max+bestStep*1e-9; v += bestStep {
		v = round6(v)
		ticks = append(ticks, chart.Tick{Value: v, Label: label(v)})
		if len(ticks) > n+2 {
			break
		}
	}
	return ticks
}

func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }

// formatValueTick keeps small metric values (losses, accuracies) readable.
func formatValueTick(v float64) string {
	av := math.Abs(v)
	switch {
	case v == 0:
		return "0"
	case av >= 100:
		return strconv.FormatInt(int64(math.Round(v)), 10)
	case av >= 10:
		return strconv.FormatFloat(v, 'f', 1, 64)
	case av >= 1:
		return strconv.FormatFloat(v, 'f', 2, 64)
	case av >= 0.01:
		return strconv.FormatFloat(v, 'f', 3, 64)
	default:
		return strconv.FormatFloat(v, 'f', 4, 64)
	}
}

func formatStepTick(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}
