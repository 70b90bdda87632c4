package main

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"sync/atomic"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/spf13/pflag"

	"github.com/iafilius/Chip8Dashboard/src/charts"
	"github.com/iafilius/Chip8Dashboard/src/config"
	"github.com/iafilius/Chip8Dashboard/src/dashboard"
	"github.com/iafilius/Chip8Dashboard/src/events"
	"github.com/iafilius/Chip8Dashboard/src/frames"
	"github.com/iafilius/Chip8Dashboard/src/history"
	"github.com/iafilius/Chip8Dashboard/src/logging"
	"github.com/iafilius/Chip8Dashboard/src/telemetry"
	"github.com/iafilius/Chip8Dashboard/src/transport"
)

// dark theme wrapper
type darkTheme struct{}

func (d *darkTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	return theme.DefaultTheme().Color(name, theme.VariantDark)
}
func (d *darkTheme) Font(style fyne.TextStyle) fyne.Resource { return theme.DefaultTheme().Font(style) }
func (d *darkTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}
func (d *darkTheme) Size(name fyne.ThemeSizeName) float32 { return theme.DefaultTheme().Size(name) }

const winWidth, winHeight = 1400, 900

// chartGroup is a column grid of chart images fed by one binder.
type chartGroup struct {
	grid   *fyne.Container
	images map[string]*canvas.Image
	w, h   int
}

func newChartGroup(winW float32) *chartGroup {
	cols, w, h := chartLayout(winW)
	return &chartGroup{
		grid:   container.NewGridWithColumns(cols),
		images: map[string]*canvas.Image{},
		w:      w,
		h:      h,
	}
}

// sync adds images for new bindings and re-renders all of them. Must run on
// the fyne goroutine.
func (g *chartGroup) sync(b *charts.Binder) {
	seen := make(map[string]bool, len(g.images))
	for n := range g.images {
		seen[n] = true
	}
	for _, n := range newNames(b, seen) {
		img := canvas.NewImageFromImage(image.NewRGBA(image.Rect(0, 0, g.w, g.h)))
		img.FillMode = canvas.ImageFillContain
		img.SetMinSize(fyne.NewSize(float32(g.w), float32(g.h)))
		g.images[n] = img
		g.grid.Add(img)
	}
	for n, img := range g.images {
		img.Image = b.Render(n, g.w, g.h)
		img.Refresh()
	}
}

// reset drops every chart, used when a different run is selected.
func (g *chartGroup) reset() {
	g.grid.RemoveAll()
	g.images = map[string]*canvas.Image{}
}

// frameGroup holds one labelled panel per frame source. Panels are added the
// first time a source shows up, so every model of an update gets its own.
type frameGroup struct {
	box    *fyne.Container
	images map[string]*canvas.Image
	w, h   int
}

func newFrameGroup(w, h int) *frameGroup {
	return &frameGroup{
		box:    container.NewGridWrap(fyne.NewSize(float32(w), float32(h)+40)),
		images: map[string]*canvas.Image{},
		w:      w,
		h:      h,
	}
}

// sync adds panels for new sources and redraws all of them. Must run on the
// fyne goroutine.
func (g *frameGroup) sync(r *frames.Renderer) {
	shown := make(map[string]bool, len(g.images))
	for n := range g.images {
		shown[n] = true
	}
	for _, src := range frameSources(r, shown) {
		img := canvas.NewImageFromImage(frameImage(r, src))
		img.ScaleMode = canvas.ImageScalePixels
		img.FillMode = canvas.ImageFillContain
		img.SetMinSize(fyne.NewSize(float32(g.w), float32(g.h)))
		g.images[src] = img
		g.box.Add(container.NewBorder(widget.NewLabelWithStyle(src, fyne.TextAlignCenter, fyne.TextStyle{Bold: true}), nil, nil, nil, img))
	}
	for src, img := range g.images {
		img.Image = frameImage(r, src)
		img.Refresh()
	}
}

type viewer struct {
	cfg     config.Config
	session *dashboard.Session
	browser *history.Browser

	status  *widget.Label
	latest  *widget.Label
	summary *widget.Label
	frames  *frameGroup
	live    *chartGroup

	runSelect   *widget.Select
	pastLatest  *widget.Label
	past        *chartGroup
	dirty       atomic.Bool
	pastChanged atomic.Bool
}

func main() {
	fs := pflag.NewFlagSet("chip8viewer", pflag.ContinueOnError)
	cfg, err := config.Resolve(fs, os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		logging.Errorf("%v", err)
		os.Exit(2)
	}
	logging.SetLogLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tel := telemetry.New()

	a := app.NewWithID("com.chip8dash.viewer")
	a.Settings().SetTheme(&darkTheme{})
	w := a.NewWindow("CHIP-8 Dashboard")
	w.Resize(fyne.NewSize(winWidth, winHeight))

	hc := history.NewClient(cfg.HistoryURL, time.Duration(cfg.HistoryTimeout))
	hc.Telemetry = tel
	v := &viewer{
		cfg:     cfg,
		session: dashboard.NewSession(dashboard.Options{ChartWindow: cfg.ChartWindow, FrameScale: cfg.FrameScale, Telemetry: tel}),
		browser: history.NewBrowser(hc),
	}
	v.session.OnChange = func(events.Kind) { v.dirty.Store(true) }
	v.browser.OnChange = func() { v.pastChanged.Store(true) }

	tabs := container.NewAppTabs(
		container.NewTabItem("Live", v.buildLive()),
		container.NewTabItem("Past runs", v.buildPast(ctx)),
	)
	tabs.SetTabLocation(container.TabLocationTop)
	w.SetContent(container.NewBorder(nil, v.status, nil, nil, tabs))

	if err := v.startLive(ctx, tel); err != nil {
		logging.Errorf("live channels: %v", err)
	}
	go func() {
		if err := v.browser.Refresh(ctx); err != nil {
			logging.Warnf("past runs unavailable: %v", err)
		}
	}()

	done := make(chan struct{})
	w.SetOnClosed(func() {
		cancel()
		close(done)
	})
	go v.redrawLoop(done)
	w.ShowAndRun()
}

func (v *viewer) buildLive() fyne.CanvasObject {
	fw, fh := v.session.Renderer().SurfaceSize()
	v.frames = newFrameGroup(fw, fh)
	v.frames.sync(v.session.Renderer())
	mono := fyne.TextStyle{Monospace: true}
	v.status = widget.NewLabel("starting")
	v.latest = widget.NewLabelWithStyle("no metrics yet", fyne.TextAlignLeading, mono)
	v.summary = widget.NewLabelWithStyle("no epoch summary yet", fyne.TextAlignLeading, mono)
	v.live = newChartGroup(winWidth)

	side := container.NewVBox(
		widget.NewLabelWithStyle("Latest values", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}), v.latest,
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Epoch summary", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}), v.summary,
	)
	body := container.NewVBox(v.frames.box, widget.NewSeparator(), v.live.grid)
	return container.NewBorder(nil, nil, nil, container.NewVScroll(side), container.NewVScroll(body))
}

func (v *viewer) buildPast(ctx context.Context) fyne.CanvasObject {
	v.past = newChartGroup(winWidth)
	v.pastLatest = widget.NewLabelWithStyle("", fyne.TextAlignLeading, fyne.TextStyle{Monospace: true})
	v.runSelect = widget.NewSelect(nil, func(ref string) {
		if ref == "" || history.ExperimentRef(ref) == v.browser.Selected() {
			return
		}
		go func() {
			if err := v.browser.Select(ctx, history.ExperimentRef(ref)); err != nil {
				fyne.Do(func() { v.pastLatest.SetText("Error: " + err.Error()) })
			}
		}()
	})
	v.runSelect.PlaceHolder = "(no runs)"
	refresh := widget.NewButton("Refresh", func() {
		go func() {
			if err := v.browser.Refresh(ctx); err != nil {
				fyne.Do(func() { v.pastLatest.SetText("Error: " + err.Error()) })
			}
		}()
	})
	top := container.NewHBox(widget.NewLabel("Run:"), v.runSelect, refresh)
	return container.NewBorder(top, nil, nil, nil, container.NewVScroll(container.NewVBox(v.pastLatest, v.past.grid)))
}

func (v *viewer) startLive(ctx context.Context, tel *telemetry.Collector) error {
	var chans []<-chan events.Event
	for _, o := range []transport.Options{
		{Name: "metrics", URL: v.cfg.MetricsURL, Decode: events.DecodeLive},
		{Name: "frames", URL: v.cfg.FramesURL, Decode: events.DecodeChannel},
	} {
		o.ReconnectDelay = time.Duration(v.cfg.ReconnectDelay)
		o.Telemetry = tel
		c, err := transport.New(o)
		if err != nil {
			return err
		}
		if err := c.Start(ctx); err != nil {
			return err
		}
		chans = append(chans, c.Events())
	}
	go func() {
		if err := v.session.Run(ctx, events.Merge(ctx, chans...)); err != nil && !errors.Is(err, context.Canceled) {
			logging.Errorf("session: %v", err)
		}
	}()
	return nil
}

// redrawLoop coalesces change notifications into at most five redraws a
// second and hands them to the fyne goroutine.
func (v *viewer) redrawLoop(done <-chan struct{}) {
	t := time.NewTicker(200 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			live := v.dirty.Swap(false)
			past := v.pastChanged.Swap(false)
			fyne.Do(func() {
				v.status.SetText(statusText(v.session))
				if live {
					v.redrawLive()
				}
				if past {
					v.redrawPast()
				}
			})
		}
	}
}

func (v *viewer) redrawLive() {
	v.frames.sync(v.session.Renderer())
	v.latest.SetText(latestText(v.session.Store()))
	v.summary.SetText(summaryText(v.session.Summary()))
	v.live.sync(v.session.Binder())
}

func (v *viewer) redrawPast() {
	runs := v.browser.Runs()
	opts := make([]string, len(runs))
	for i, r := range runs {
		opts[i] = string(r)
	}
	v.runSelect.Options = opts
	v.runSelect.Refresh()
	if sel := string(v.browser.Selected()); sel != "" && v.runSelect.Selected != sel {
		v.runSelect.SetSelected(sel)
	}
	v.pastLatest.SetText(latestText(v.browser.Store()))
	v.past.reset()
	v.past.sync(v.browser.Binder())
}
