// Package dashboard wires the transports to the metric store, chart binder and
// frame renderer through a single consumer loop.
package dashboard

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/iafilius/Chip8Dashboard/src/charts"
	"github.com/iafilius/Chip8Dashboard/src/events"
	"github.com/iafilius/Chip8Dashboard/src/frames"
	"github.com/iafilius/Chip8Dashboard/src/logging"
	"github.com/iafilius/Chip8Dashboard/src/metrics"
	"github.com/iafilius/Chip8Dashboard/src/telemetry"
)

// Options configures a Session.
type Options struct {
	ChartWindow int
	FrameScale  int
	Telemetry   *telemetry.Collector
}

// Session owns the live state of one dashboard: metric store, chart
// bindings, frame surfaces, the latest epoch summary and connection states.
// Only the Run loop mutates it; accessors may be called from any goroutine.
type Session struct {
	ID string

	// OnChange, when set, is called from the Run loop after each event is
	// applied.
	OnChange func(events.Kind)

	store    *metrics.Store
	binder   *charts.Binder
	renderer *frames.Renderer
	tel      *telemetry.Collector
	log      logging.Logger

	mu      sync.RWMutex
	summary *events.EpochSummary
	conns   map[string]events.ConnState
	applied int
}

// NewSession creates an empty session.
func NewSession(opts Options) *Session {
	id := uuid.NewString()[:8]
	return &Session{
		ID:       id,
		store:    metrics.NewStore(),
		binder:   charts.NewBinder(opts.ChartWindow),
		renderer: frames.NewRenderer(opts.FrameScale),
		tel:      opts.Telemetry,
		log:      logging.Prefixed("session " + id),
		conns:    map[string]events.ConnState{},
	}
}

// Run applies events from in until it is closed or ctx is done.
func (s *Session) Run(ctx context.Context, in <-chan events.Event) error {
	s.log.Infof("started")
	defer s.log.Infof("stopped after %d events", s.Applied())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-in:
			if !ok {
				return nil
			}
			s.Apply(ev)
		}
	}
}

// Apply dispatches one event. A store mutation and its chart append happen
// together, before the next event is looked at.
func (s *Session) Apply(ev events.Event) {
	switch e := ev.(type) {
	case events.Metric:
		s.record(e.Name, e.Step, e.Value)
	case events.EpochSummary:
		s.mu.Lock()
		cp := events.EpochSummary{Fields: append([]events.SummaryField(nil), e.Fields...)}
		s.summary = &cp
		s.mu.Unlock()
	case events.Frames:
		s.renderAll(e.Sources)
	case events.Update:
		s.applyUpdate(e)
	case events.TrainingUpdate:
		s.record(e.Model+" - loss", e.Epoch, e.Loss)
		s.record(e.Model+" - accuracy", e.Epoch, e.Accuracy)
	case events.StateChange:
		s.mu.Lock()
		s.conns[e.Transport] = e.State
		s.mu.Unlock()
		if e.Err != nil {
			s.log.Debugf("%s %s: %v", e.Transport, e.State, e.Err)
		}
	default:
		s.log.Debugf("ignoring event %T", ev)
		return
	}
	s.mu.Lock()
	s.applied++
	s.mu.Unlock()
	s.tel.EventDispatched(string(ev.Kind()))
	if s.OnChange != nil {
		s.OnChange(ev.Kind())
	}
}

func (s *Session) record(name string, step int64, value float64) {
	s.store.Record(name, step, value)
	s.binder.AppendNamed(name, step, value)
}

func (s *Session) renderAll(sources []frames.Source) {
	rejected, err := s.renderer.RenderAll(sources)
	for _, name := range rejected {
		s.tel.FrameRejected(name)
	}
	if err != nil {
		s.log.Warnf("%v", err)
	}
}

// applyUpdate renders the emulator and model frames and charts each model
// metric as "<model> - <metric>", stepping by the number of points already
// recorded for that chart.
func (s *Session) applyUpdate(u events.Update) {
	var srcs []frames.Source
	if u.Chip8 != nil {
		srcs = append(srcs, frames.Source{Name: frames.SourceChip8, Payload: *u.Chip8})
	}
	s.renderAll(append(srcs, u.Models...))
	for _, mm := range u.Metrics {
		for _, v := range mm.Values {
			name := mm.Model + " - " + v.Name
			s.record(name, int64(s.store.Len(name)), v.Value)
		}
	}
}

// Store returns the live metric store.
func (s *Session) Store() *metrics.Store { return s.store }

// Binder returns the live chart bindings.
func (s *Session) Binder() *charts.Binder { return s.binder }

// Renderer returns the frame surfaces.
func (s *Session) Renderer() *frames.Renderer { return s.renderer }

// Summary returns the most recent epoch summary.
func (s *Session) Summary() (events.EpochSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.summary == nil {
		return events.EpochSummary{}, false
	}
	return *s.summary, true
}

// ConnState returns the last reported state of a transport.
func (s *Session) ConnState(transport string) events.ConnState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conns[transport]
}

// Applied is the number of events dispatched so far.
func (s *Session) Applied() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applied
}
