// Chip8Dashboard command line entrypoint.
//
// Modes (first positional argument, default "live"):
//  1. live: connect to the metrics and frames channels, apply every event to one session and
//     write PNG snapshots (charts, frame surfaces, side-by-side composite, latest values) on exit
//     and optionally every --snapshot-interval.
//  2. runs: list finalized experiments.
//  3. history: load one experiment (--run, default the first listed), print its latest values and
//     write its charts as PNGs.
//  4. start / upload / stop: run control against the backend.
//
// Settings come from defaults, then --config (YAML or JSONC), then flags.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/iafilius/Chip8Dashboard/src/config"
	"github.com/iafilius/Chip8Dashboard/src/control"
	"github.com/iafilius/Chip8Dashboard/src/dashboard"
	"github.com/iafilius/Chip8Dashboard/src/events"
	"github.com/iafilius/Chip8Dashboard/src/history"
	"github.com/iafilius/Chip8Dashboard/src/logging"
	"github.com/iafilius/Chip8Dashboard/src/telemetry"
	"github.com/iafilius/Chip8Dashboard/src/transport"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		logging.Errorf("%v", err)
		os.Exit(1)
	}
}

// cliFlags are the per-mode flags on top of config.Config.
type cliFlags struct {
	run          string
	rom          string
	models       map[string]string
	modelFile    string
	configPath   string
	syncInterval int
	logFile      string
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("chip8dash", pflag.ContinueOnError)
	var f cliFlags
	fs.StringVar(&f.run, "run", "", "history: experiment id to load (default: first listed)")
	fs.StringVar(&f.rom, "rom", "", "start: ROM path on the backend host; upload: local ROM file")
	fs.StringToStringVar(&f.models, "model", nil, "start: model label=path on the backend host (repeatable)")
	fs.StringVar(&f.modelFile, "model-file", "", "upload: local model file")
	fs.StringVar(&f.configPath, "backend-config", "", "start/upload: emulator config path on the backend host")
	fs.IntVar(&f.syncInterval, "sync-interval", 0, "upload: frames between AI resyncs (0 = never)")
	fs.StringVar(&f.logFile, "log-file", "", "append logs to this file instead of stderr")

	cfg, err := config.Resolve(fs, args)
	if err != nil {
		return err
	}
	if f.logFile != "" {
		lf, err := os.OpenFile(f.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer lf.Close()
		logging.SetOutput(lf)
		defer logging.SetOutput(os.Stderr)
	}
	if !logging.SetLogLevel(cfg.LogLevel) {
		logging.Warnf("unknown log level %q, keeping %v", cfg.LogLevel, logging.GetLogLevel())
	}

	mode := "live"
	if fs.NArg() > 0 {
		mode = fs.Arg(0)
	}
	tel := telemetry.New()
	switch mode {
	case "live":
		return runLive(ctx, cfg, tel)
	case "runs":
		return runRuns(ctx, cfg, tel, out)
	case "history":
		return runHistory(ctx, cfg, tel, f.run, out)
	case "start":
		c := newControl(cfg, tel)
		msg, err := c.Start(ctx, control.StartRequest{ROMPath: f.rom, ModelPaths: f.models, ConfigPath: f.configPath})
		return report(out, msg, err)
	case "upload":
		return runUpload(ctx, cfg, tel, f, out)
	case "stop":
		msg, err := newControl(cfg, tel).Stop(ctx)
		return report(out, msg, err)
	}
	return fmt.Errorf("unknown mode %q (want live|runs|history|start|upload|stop)", mode)
}

func newControl(cfg config.Config, tel *telemetry.Collector) *control.Client {
	c := control.NewClient(cfg.ControlURL, time.Duration(cfg.HistoryTimeout))
	c.Telemetry = tel
	return c
}

func newHistory(cfg config.Config, tel *telemetry.Collector) *history.Client {
	c := history.NewClient(cfg.HistoryURL, time.Duration(cfg.HistoryTimeout))
	c.Telemetry = tel
	return c
}

func report(out io.Writer, msg string, err error) error {
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, msg)
	return err
}

func runLive(ctx context.Context, cfg config.Config, tel *telemetry.Collector) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.MetricsAddr != "" {
		tel.Registry().MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: tel.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Errorf("metrics server: %v", err)
			}
		}()
		defer srv.Close()
		logging.Infof("serving Prometheus metrics on %s", cfg.MetricsAddr)
	}

	metricsTr, err := transport.New(transport.Options{
		Name:           "metrics",
		URL:            cfg.MetricsURL,
		Decode:         events.DecodeLive,
		ReconnectDelay: time.Duration(cfg.ReconnectDelay),
		Telemetry:      tel,
	})
	if err != nil {
		return err
	}
	framesTr, err := transport.New(transport.Options{
		Name:           "frames",
		URL:            cfg.FramesURL,
		Decode:         events.DecodeChannel,
		ReconnectDelay: time.Duration(cfg.ReconnectDelay),
		Telemetry:      tel,
	})
	if err != nil {
		return err
	}
	for _, tr := range []*transport.Client{metricsTr, framesTr} {
		if err := tr.Start(ctx); err != nil {
			return err
		}
		defer tr.Close()
	}

	s := dashboard.NewSession(dashboard.Options{ChartWindow: cfg.ChartWindow, FrameScale: cfg.FrameScale, Telemetry: tel})
	dir := filepath.Join(cfg.SnapshotDir, s.ID)
	stopSnapshots := periodic(ctx, time.Duration(cfg.SnapshotInterval), func() {
		if _, err := s.WriteSnapshot(dir, cfg.ChartWidth, cfg.ChartHeight); err != nil {
			logging.Warnf("snapshot: %v", err)
		}
	})

	err = s.Run(ctx, events.Merge(ctx, metricsTr.Events(), framesTr.Events()))
	stopSnapshots()
	if _, serr := s.WriteSnapshot(dir, cfg.ChartWidth, cfg.ChartHeight); serr != nil {
		return serr
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// periodic calls fn every interval until ctx is done or the returned stop
// is called. stop returns only after fn has finished its last call.
func periodic(ctx context.Context, interval time.Duration, fn func()) (stop func()) {
	if interval <= 0 {
		return func() {}
	}
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-quit:
				return
			case <-t.C:
				fn()
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(quit) })
		<-done
	}
}

func runRuns(ctx context.Context, cfg config.Config, tel *telemetry.Collector, out io.Writer) error {
	refs, err := newHistory(cfg, tel).ListRuns(ctx)
	if err != nil {
		return err
	}
	for _, r := range refs {
		fmt.Fprintln(out, r)
	}
	return nil
}

func runHistory(ctx context.Context, cfg config.Config, tel *telemetry.Collector, ref string, out io.Writer) error {
	b := history.NewBrowser(newHistory(cfg, tel))
	var err error
	if ref == "" {
		err = b.Refresh(ctx)
	} else {
		err = b.Select(ctx, history.ExperimentRef(ref))
	}
	if err != nil {
		return err
	}
	if b.Selected() == "" {
		fmt.Fprintln(out, "no finalized runs")
		return nil
	}
	fmt.Fprintf(out, "run %s\n", b.Selected())
	if err := dashboard.WriteLatestTable(out, b.Store()); err != nil {
		return err
	}
	dir := filepath.Join(cfg.SnapshotDir, dashboard.FileSafe(string(b.Selected())))
	paths, err := dashboard.WriteCharts(dir, b.Binder(), cfg.ChartWidth, cfg.ChartHeight)
	if err != nil {
		return err
	}
	logging.Infof("wrote %d charts to %s", len(paths), dir)
	return nil
}

func runUpload(ctx context.Context, cfg config.Config, tel *telemetry.Collector, f cliFlags, out io.Writer) error {
	var req control.UploadRequest
	if f.rom != "" {
		rom, err := control.ReadFile(f.rom)
		if err != nil {
			return err
		}
		req.ROM = rom
	}
	if f.modelFile != "" {
		model, err := control.ReadFile(f.modelFile)
		if err != nil {
			return err
		}
		req.Model = model
	}
	req.ConfigPath = f.configPath
	req.SyncInterval = f.syncInterval
	msg, err := newControl(cfg, tel).Upload(ctx, req)
	return report(out, msg, err)
}
