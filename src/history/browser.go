package history

import (
	"context"
	"sync"

	"github.com/iafilius/Chip8Dashboard/src/charts"
	"github.com/iafilius/Chip8Dashboard/src/logging"
	"github.com/iafilius/Chip8Dashboard/src/metrics"
)

// Loader is the subset of Client the browser needs.
type Loader interface {
	ListRuns(ctx context.Context) ([]ExperimentRef, error)
	LoadMetrics(ctx context.Context, ref ExperimentRef) (*metrics.Store, error)
}

// Browser tracks the run list and the currently displayed run. Selecting a
// run replaces the displayed store and charts wholesale.
type Browser struct {
	loader Loader
	log    logging.Logger

	// OnChange, when set, is called after the run list or selection changes.
	OnChange func()

	mu       sync.RWMutex
	runs     []ExperimentRef
	selected ExperimentRef
	store    *metrics.Store
	binder   *charts.Binder
	gen      uint64
}

// NewBrowser creates a browser with an empty selection.
func NewBrowser(loader Loader) *Browser {
	return &Browser{
		loader: loader,
		log:    logging.Prefixed("history"),
		store:  metrics.NewStore(),
		binder: charts.NewBinder(0),
	}
}

// Refresh reloads the run list and selects the first run. Errors are logged
// and returned; the previous list stays in place.
func (b *Browser) Refresh(ctx context.Context) error {
	runs, err := b.loader.ListRuns(ctx)
	if err != nil {
		b.log.Errorf("list runs: %v", err)
		return err
	}
	b.mu.Lock()
	b.runs = runs
	b.mu.Unlock()
	b.changed()
	if len(runs) == 0 {
		return nil
	}
	return b.Select(ctx, runs[0])
}

// Select loads ref and makes it the displayed run. When selections overlap,
// the one issued last wins regardless of response order.
func (b *Browser) Select(ctx context.Context, ref ExperimentRef) error {
	b.mu.Lock()
	b.gen++
	gen := b.gen
	b.mu.Unlock()

	store, err := b.loader.LoadMetrics(ctx, ref)
	if err != nil {
		b.log.Errorf("load %s: %v", ref, err)
		return err
	}
	binder := charts.NewBinder(0)
	binder.RefreshFrom(store)

	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		b.log.Debugf("discarding stale load of %s", ref)
		return nil
	}
	b.selected = ref
	b.store = store
	b.binder = binder
	b.mu.Unlock()
	b.log.Infof("selected %s (%d series)", ref, store.Count())
	b.changed()
	return nil
}

func (b *Browser) changed() {
	if b.OnChange != nil {
		b.OnChange()
	}
}

// Runs returns the last fetched run list.
func (b *Browser) Runs() []ExperimentRef {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]ExperimentRef(nil), b.runs...)
}

// Selected returns the displayed run, or "" before the first selection.
func (b *Browser) Selected() ExperimentRef {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.selected
}

// Store returns the displayed run's store.
func (b *Browser) Store() *metrics.Store {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store
}

// Binder returns the displayed run's charts.
func (b *Browser) Binder() *charts.Binder {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.binder
}
