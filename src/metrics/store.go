// Package metrics holds the in-memory metric store fed by live events and by
// finalized historical runs.
package metrics

import (
	"strconv"
	"sync"
)

// Unavailable is what FormatLatest shows for a metric with no samples.
const Unavailable = "N/A"

// Sample is one recorded point of a metric series.
type Sample struct {
	Step  int64   `json:"step"`
	Value float64 `json:"value"`
}

// Store maps metric names to append-only sample series. Names keep the order
// in which they were first observed; that order drives chart iteration and
// palette assignment.
//
// A single writer (the session loop) is expected; readers may run concurrently.
type Store struct {
	mu     sync.RWMutex
	series map[string][]Sample
	order  []string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{series: make(map[string][]Sample)}
}

// Record appends (step, value) to the named series, creating it on first use.
// Producer order is trusted: samples are never re-sorted.
func (s *Store) Record(name string, step int64, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.series[name]; !ok {
		s.order = append(s.order, name)
	}
	s.series[name] = append(s.series[name], Sample{Step: step, Value: value})
}

// Declare registers name without a sample so it appears in Names. It is a
// no-op for known names.
func (s *Store) Declare(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.series[name]; !ok {
		s.order = append(s.order, name)
		s.series[name] = nil
	}
}

// Latest returns the value of the most recent sample. ok is false when the
// series is absent or empty.
func (s *Store) Latest(name string) (value float64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ser := s.series[name]
	if len(ser) == 0 {
		return 0, false
	}
	return ser[len(ser)-1].Value, true
}

// Names returns the known metric names in first-seen order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Series returns a copy of the named series (nil when unknown).
func (s *Store) Series(name string) []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ser, ok := s.series[name]
	if !ok {
		return nil
	}
	out := make([]Sample, len(ser))
	copy(out, ser)
	return out
}

// Len returns the number of samples recorded for name.
func (s *Store) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series[name])
}

// Count returns the number of distinct metric names.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// FormatLatest renders the latest value with 4 decimal places, or Unavailable.
func (s *Store) FormatLatest(name string) string {
	v, ok := s.Latest(name)
	return FormatValue(v, ok)
}

// FormatValue formats a metric value the way the dashboard displays it.
func FormatValue(v float64, ok bool) string {
	if !ok {
		return Unavailable
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// Row is one line of the latest-values table.
type Row struct {
	Name   string
	Step   int64
	Value  string
	Points int
}

// LatestTable returns one Row per metric in first-seen order.
func (s *Store) LatestTable() []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]Row, 0, len(s.order))
	for _, name := range s.order {
		ser := s.series[name]
		r := Row{Name: name, Value: Unavailable, Points: len(ser)}
		if len(ser) > 0 {
			last := ser[len(ser)-1]
			r.Step = last.Step
			r.Value = FormatValue(last.Value, true)
		}
		rows = append(rows, r)
	}
	return rows
}
