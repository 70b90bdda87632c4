package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iafilius/Chip8Dashboard/src/control"
)

func historyServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/experiments", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`["exp-42"]`))
	})
	mux.HandleFunc("/api/experiments/exp-42/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"loss":[[0,0.9],[1,0.5]]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunsModeListsExperiments(t *testing.T) {
	srv := historyServer(t)
	var out bytes.Buffer
	if err := run(context.Background(), []string{"runs", "--history-url", srv.URL}, &out); err != nil {
		t.Fatalf("runs: %v", err)
	}
	if strings.TrimSpace(out.String()) != "exp-42" {
		t.Fatalf("output = %q", out.String())
	}
}

func TestHistoryModeWritesCharts(t *testing.T) {
	srv := historyServer(t)
	dir := t.TempDir()
	var out bytes.Buffer
	err := run(context.Background(), []string{"history", "--history-url", srv.URL, "--snapshot-dir", dir}, &out)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out.String(), "run exp-42") || !strings.Contains(out.String(), "0.5000") {
		t.Fatalf("output = %q", out.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "exp_42", "chart_00_loss.png")); err != nil {
		t.Fatalf("chart not written: %v", err)
	}
}

func TestStartModeValidatesBeforeSending(t *testing.T) {
	err := run(context.Background(), []string{"start", "--control-url", "http://127.0.0.1:1"}, &bytes.Buffer{})
	var ve *control.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("start err = %v", err)
	}
}

func TestUnknownMode(t *testing.T) {
	if err := run(context.Background(), []string{"dance"}, &bytes.Buffer{}); err == nil || !strings.Contains(err.Error(), "unknown mode") {
		t.Fatalf("err = %v", err)
	}
}

func TestPeriodicStopWaitsForRunningCall(t *testing.T) {
	var calls, inFlight atomic.Int32
	started := make(chan struct{}, 1)
	stop := periodic(context.Background(), time.Millisecond, func() {
		inFlight.Add(1)
		select {
		case started <- struct{}{}:
		default:
		}
		time.Sleep(20 * time.Millisecond)
		calls.Add(1)
		inFlight.Add(-1)
	})
	<-started
	stop()
	if n := inFlight.Load(); n != 0 {
		t.Fatalf("stop returned with %d calls in flight", n)
	}
	after := calls.Load()
	time.Sleep(30 * time.Millisecond)
	if got := calls.Load(); got != after {
		t.Fatalf("calls continued after stop: %d -> %d", after, got)
	}
	stop()
}

func TestPeriodicDisabled(t *testing.T) {
	stop := periodic(context.Background(), 0, func() { t.Fatalf("called with zero interval") })
	stop()
}
