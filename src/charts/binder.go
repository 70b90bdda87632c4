// Package charts binds metric series to chart displays and renders them as
// PNG line charts.
package charts

import (
	"sync"

	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/iafilius/Chip8Dashboard/src/metrics"
)

// DefaultWindow is the number of points a live chart displays.
const DefaultWindow = 100

// Binding ties one metric name to its colour and displayed window.
type Binding struct {
	Name  string
	Index int
	Line  drawing.Color
	Fill  drawing.Color

	win *window
}

// Binder is the registry of chart bindings, keyed by metric name. It is safe
// for one writer and any number of concurrent readers.
type Binder struct {
	mu       sync.RWMutex
	capacity int
	bindings map[string]*Binding
	order    []string
}

// NewBinder creates an empty registry. capacity <= 0 gives unbounded windows.
func NewBinder(capacity int) *Binder {
	return &Binder{capacity: capacity, bindings: map[string]*Binding{}}
}

// Bind returns the binding for name, creating it on first use.
func (b *Binder) Bind(name string) *Binding {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bindLocked(name)
}

func (b *Binder) bindLocked(name string) *Binding {
	if bd, ok := b.bindings[name]; ok {
		return bd
	}
	idx := len(b.order)
	line, fill := ColorAt(idx)
	bd := &Binding{Name: name, Index: idx, Line: line, Fill: fill, win: newWindow(b.capacity)}
	b.bindings[name] = bd
	b.order = append(b.order, name)
	return bd
}

// Append adds a point to a binding, evicting the oldest point when the window
// is full.
func (b *Binder) Append(bd *Binding, step int64, value float64) {
	b.mu.Lock()
	bd.win.push(metrics.Sample{Step: step, Value: value})
	b.mu.Unlock()
}

// AppendNamed binds name if needed and appends a point.
func (b *Binder) AppendNamed(name string, step int64, value float64) *Binding {
	b.mu.Lock()
	defer b.mu.Unlock()
	bd := b.bindLocked(name)
	bd.win.push(metrics.Sample{Step: step, Value: value})
	return bd
}

// RefreshFrom rebuilds every binding from the full contents of store. Names
// are bound in the store's first-seen order; existing bindings keep their
// colour.
func (b *Binder) RefreshFrom(store *metrics.Store) {
	names := store.Names()
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, name := range names {
		bd := b.bindLocked(name)
		bd.win.reset()
		for _, s := range store.Series(name) {
			bd.win.push(s)
		}
	}
}

// Lookup returns the binding for name without creating one.
func (b *Binder) Lookup(name string) (*Binding, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bd, ok := b.bindings[name]
	return bd, ok
}

// Names returns bound names in binding order.
func (b *Binder) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.order...)
}

// Points returns a copy of the displayed window for name, oldest first.
func (b *Binder) Points(name string) []metrics.Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bd, ok := b.bindings[name]
	if !ok {
		return nil
	}
	return bd.win.samples()
}

// Len is the number of displayed points for name.
func (b *Binder) Len(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if bd, ok := b.bindings[name]; ok {
		return bd.win.len()
	}
	return 0
}
