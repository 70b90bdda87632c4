package charts

import (
	"math"
	"testing"
)

func TestComputeChartDimensions(t *testing.T) {
	tests := []struct{ in, w, h int }{
		{0, 480, 240},
		{640, 640, 320},
		{1200, 1200, 420},
	}
	for _, tc := range tests {
		w, h := ComputeChartDimensions(tc.in)
		if w != tc.w || h != tc.h {
			t.Fatalf("ComputeChartDimensions(%d) = %d,%d want %d,%d", tc.in, w, h, tc.w, tc.h)
		}
	}
}

func TestComputeGridColumns(t *testing.T) {
	if ComputeGridColumns(800) != 1 || ComputeGridColumns(1200) != 2 || ComputeGridColumns(2000) != 3 {
		t.Fatalf("unexpected column breakpoints")
	}
}

func TestNiceAxisBoundsContainData(t *testing.T) {
	cases := [][2]float64{{0.1, 0.9}, {5, 5}, {-3, 12}, {1000, 1010}}
	for _, c := range cases {
		a, b := niceAxisBounds(c[0], c[1])
		if a > c[0] || b < c[1] || b <= a {
			t.Fatalf("niceAxisBounds(%v,%v) = %v,%v", c[0], c[1], a, b)
		}
	}
}

func TestNiceTicksStayInRange(t *testing.T) {
	cases := [][2]float64{{0, 1}, {0, 99}, {-0.2, 1.2}, {10, 11}}
	for _, c := range cases {
		ticks := niceTicks(c[0], c[1], 6, formatValueTick)
		if len(ticks) < 2 {
			t.Fatalf("niceTicks(%v,%v) gave %d ticks", c[0], c[1], len(ticks))
		}
		for _, tk := range ticks {
			if tk.Value < c[0]-1e-9 || tk.Value > c[1]+1e-9 {
				t.Fatalf("tick %v outside [%v,%v]", tk.Value, c[0], c[1])
			}
		}
	}
	if niceTicks(math.NaN(), 1, 6, formatValueTick) != nil {
		t.Fatalf("NaN bounds should give no ticks")
	}
}

func TestTickLabels(t *testing.T) {
	if got := formatStepTick(40); got != "40" {
		t.Fatalf("formatStepTick(40) = %q", got)
	}
	if got := formatValueTick(0.125); got != "0.125" {
		t.Fatalf("formatValueTick(0.125) = %q", got)
	}
	if got := formatValueTick(250.4); got != "250" {
		t.Fatalf("formatValueTick(250.4) = %q", got)
	}
}
