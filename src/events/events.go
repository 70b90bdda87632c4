// Package events defines the typed events flowing from the transports into the
// session loop and the codecs that produce them from wire messages.
package events

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/iafilius/Chip8Dashboard/src/frames"
)

// Kind discriminates events in the session loop.
type Kind string

const (
	KindMetric         Kind = "metric"
	KindEpochSummary   Kind = "epoch_summary"
	KindFrames         Kind = "frames"
	KindUpdate         Kind = "update"
	KindTrainingUpdate Kind = "training_update"
	KindState          Kind = "state"
)

// Event is implemented by every inbound event type.
type Event interface {
	Kind() Kind
}

// Metric is one numeric sample of a named metric.
type Metric struct {
	Name  string
	Step  int64
	Value float64
}

func (Metric) Kind() Kind { return KindMetric }

// SummaryField is one label of an epoch summary; either numeric or text.
type SummaryField struct {
	Label    string
	Number   float64
	Text     string
	IsNumber bool
}

// Format renders numbers with 4 decimals and text verbatim.
func (f SummaryField) Format() string {
	if f.IsNumber {
		return strconv.FormatFloat(f.Number, 'f', 4, 64)
	}
	return f.Text
}

// EpochSummary is a flat snapshot in the order the producer sent it.
type EpochSummary struct {
	Fields []SummaryField
}

func (EpochSummary) Kind() Kind { return KindEpochSummary }

// Get returns the field with the given label.
func (s EpochSummary) Get(label string) (SummaryField, bool) {
	for _, f := range s.Fields {
		if f.Label == label {
			return f, true
		}
	}
	return SummaryField{}, false
}

// Frames carries one frame per named source.
type Frames struct {
	Sources []frames.Source
}

func (Frames) Kind() Kind { return KindFrames }

// ModelMetrics holds one model's metric values from an update event.
type ModelMetrics struct {
	Model  string
	Values []NamedValue
}

// NamedValue is a metric name and value pair.
type NamedValue struct {
	Name  string
	Value float64
}

// Update is the combined frame + metrics event: the emulator frame, one frame
// per model, and the latest value of each model metric.
type Update struct {
	Chip8   *frames.Payload
	Models  []frames.Source
	Metrics []ModelMetrics
}

func (Update) Kind() Kind { return KindUpdate }

// TrainingUpdate is a per-epoch progress report for a model.
type TrainingUpdate struct {
	Model    string
	Epoch    int64
	Loss     float64
	Accuracy float64
}

func (TrainingUpdate) Kind() Kind { return KindTrainingUpdate }

// ConnState is the connection state of a transport.
type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown(" + strconv.Itoa(int(s)) + ")"
}

// StateChange is emitted by a transport on every state transition.
type StateChange struct {
	Transport string
	State     ConnState
	Err       error
}

func (StateChange) Kind() Kind { return KindState }

// ErrMalformed matches every *MalformedError with errors.Is.
var ErrMalformed = errors.New("malformed payload")

// MalformedError describes a message that could not be decoded. Such messages
// are dropped by the transport.
type MalformedError struct {
	Reason string
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed payload: %s: %v", e.Reason, e.Err)
	}
	return "malformed payload: " + e.Reason
}

func (e *MalformedError) Unwrap() error { return e.Err }

func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }

func malformed(reason string, err error) error {
	return &MalformedError{Reason: reason, Err: err}
}

// Merge fans several event channels into one. Per-input order is preserved.
// The output closes once every input is closed or ctx is done.
func Merge(ctx context.Context, inputs ...<-chan Event) <-chan Event {
	out := make(chan Event)
	var wg sync.WaitGroup
	for _, in := range inputs {
		if in == nil {
			continue
		}
		wg.Add(1)
		go func(in <-chan Event) {
			defer wg.Done()
			for ev := range in {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}(in)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
