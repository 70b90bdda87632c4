package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDefaultsAreValid(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if time.Duration(c.ReconnectDelay) != 5*time.Second || c.ChartWindow != 100 || c.FrameScale != 10 {
		t.Fatalf("unexpected defaults %+v", c)
	}
}

func TestLoadYAMLAndJSONC(t *testing.T) {
	yml := writeFile(t, "dash.yaml", `
metrics_url: ws://trainer:5000/ws
reconnect_delay: 2s
chart_window: 50
`)
	jsc := writeFile(t, "dash.jsonc", `{
  // history lives elsewhere
  "history_url": "http://history:8000",
  "history_timeout": 3,
  "frame_scale": 4,
}`)

	c := Default()
	if err := LoadFile(yml, &c); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if c.MetricsURL != "ws://trainer:5000/ws" || time.Duration(c.ReconnectDelay) != 2*time.Second || c.ChartWindow != 50 {
		t.Fatalf("yaml not applied: %+v", c)
	}
	if c.FramesURL != Default().FramesURL {
		t.Fatalf("unset key overwrote default")
	}

	c = Default()
	if err := LoadFile(jsc, &c); err != nil {
		t.Fatalf("jsonc: %v", err)
	}
	if c.HistoryURL != "http://history:8000" || time.Duration(c.HistoryTimeout) != 3*time.Second || c.FrameScale != 4 {
		t.Fatalf("jsonc not applied: %+v", c)
	}

	if err := LoadFile(writeFile(t, "dash.toml", ""), &c); err == nil {
		t.Fatalf("expected unsupported format error")
	}
	if err := LoadFile(writeFile(t, "bad.yaml", "reconnect_delay: soon\n"), &c); err == nil {
		t.Fatalf("expected duration parse error")
	}
}

func TestResolveFlagsOverrideFile(t *testing.T) {
	path := writeFile(t, "dash.yml", "chart_window: 10\nlog_level: debug\n")
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	rom := fs.String("rom", "", "")
	c, err := Resolve(fs, []string{"--config", path, "--chart-window", "25", "--rom", "PONG", "live"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if c.ChartWindow != 25 {
		t.Fatalf("flag did not override file: %d", c.ChartWindow)
	}
	if c.LogLevel != "debug" {
		t.Fatalf("file value lost: %q", c.LogLevel)
	}
	if *rom != "PONG" || fs.Arg(0) != "live" {
		t.Fatalf("caller flags/args not parsed: %q %v", *rom, fs.Args())
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	c := Default()
	c.MetricsURL = ""
	c.FrameScale = 0
	c.ReconnectDelay = 0
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected errors")
	}
	for _, want := range []string{"metrics_url is empty", "frame_scale", "reconnect_delay"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}
