package main

import (
	"strings"
	"testing"

	"github.com/iafilius/Chip8Dashboard/src/charts"
	"github.com/iafilius/Chip8Dashboard/src/dashboard"
	"github.com/iafilius/Chip8Dashboard/src/events"
	"github.com/iafilius/Chip8Dashboard/src/frames"
	"github.com/iafilius/Chip8Dashboard/src/metrics"
)

func TestLatestText(t *testing.T) {
	store := metrics.NewStore()
	if got := latestText(store); got != "no metrics yet" {
		t.Fatalf("empty store text = %q", got)
	}
	store.Record("loss", 3, 0.123456)
	store.Declare("accuracy")
	got := latestText(store)
	if !strings.Contains(got, "0.1235") || !strings.Contains(got, "N/A") {
		t.Fatalf("latest text = %q", got)
	}
	if strings.Index(got, "loss") > strings.Index(got, "accuracy") {
		t.Fatalf("rows not in first-seen order: %q", got)
	}
}

func TestSummaryText(t *testing.T) {
	if got := summaryText(events.EpochSummary{}, false); got != "no epoch summary yet" {
		t.Fatalf("got %q", got)
	}
	sum := events.EpochSummary{Fields: []events.SummaryField{
		{Label: "epoch", Number: 7, IsNumber: true},
		{Label: "phase", Text: "train"},
	}}
	if got := summaryText(sum, true); got != "epoch: 7.0000\nphase: train" {
		t.Fatalf("got %q", got)
	}
}

func TestStatusAndFrameImage(t *testing.T) {
	s := dashboard.NewSession(dashboard.Options{ChartWindow: 100, FrameScale: 10})
	s.Apply(events.StateChange{Transport: "metrics", State: events.Connected})
	if got := statusText(s); !strings.Contains(got, "metrics: connected") || !strings.Contains(got, "frames: disconnected") {
		t.Fatalf("status = %q", got)
	}
	img := frameImage(s.Renderer(), frames.SourceAI)
	if img.Bounds().Dx() != 640 || img.Bounds().Dy() != 320 {
		t.Fatalf("placeholder size %v", img.Bounds())
	}
}

func TestNewNames(t *testing.T) {
	b := charts.NewBinder(10)
	b.Bind("a")
	b.Bind("b")
	b.Bind("c")
	got := newNames(b, map[string]bool{"b": true})
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("newNames = %v", got)
	}
}

func TestFrameSourcesIncludeEveryModel(t *testing.T) {
	s := dashboard.NewSession(dashboard.Options{ChartWindow: 100, FrameScale: 10})
	got := frameSources(s.Renderer(), nil)
	if strings.Join(got, ",") != frames.SourceChip8+","+frames.SourceAI {
		t.Fatalf("initial sources = %v", got)
	}

	chip := frames.Filled(true)
	s.Apply(events.Update{
		Chip8:  &chip,
		Models: []frames.Source{{Name: "Model 1", Payload: frames.Filled(false)}},
	})
	shown := map[string]bool{frames.SourceChip8: true, frames.SourceAI: true}
	got = frameSources(s.Renderer(), shown)
	if len(got) != 1 || got[0] != "Model 1" {
		t.Fatalf("new sources = %v", got)
	}
	if img := frameImage(s.Renderer(), "Model 1"); img.Bounds().Dx() != 640 {
		t.Fatalf("model panel size %v", img.Bounds())
	}
	shown["Model 1"] = true
	if got := frameSources(s.Renderer(), shown); len(got) != 0 {
		t.Fatalf("sources after all shown = %v", got)
	}
}

func TestChartLayout(t *testing.T) {
	cases := []struct {
		winW       float32
		cols, w, h int
	}{
		{800, 1, 760, 380},
		{1400, 2, 660, 330},
		{2000, 3, 626, 313},
		{600, 1, 560, 280},
		{300, 1, 480, 240},
	}
	for _, tc := range cases {
		cols, w, h := chartLayout(tc.winW)
		if cols != tc.cols || w != tc.w || h != tc.h {
			t.Fatalf("chartLayout(%v) = %d,%d,%d want %d,%d,%d", tc.winW, cols, w, h, tc.cols, tc.w, tc.h)
		}
	}
}
