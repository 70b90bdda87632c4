package events

import (
	"encoding/json"
	"errors"
	"math"

	"github.com/iafilius/Chip8Dashboard/src/frames"
	"github.com/iafilius/Chip8Dashboard/src/jsonobj"
)

// Decoder turns one wire message into an event. Errors should wrap
// ErrMalformed so callers can tell bad input from other failures.
type Decoder func(data []byte) (Event, error)

// DecodeLive decodes the tagged envelope of the live metrics channel:
//
//	{"type": "metric", "name": "loss", "step": 3, "value": 0.25}
//	{"type": "epoch_summary", "epoch": 3, "phase": "train", ...}
func DecodeLive(data []byte) (Event, error) {
	var head struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, malformed("envelope", err)
	}
	if head.Type == nil {
		return nil, malformed("missing type", nil)
	}
	switch *head.Type {
	case string(KindMetric):
		return decodeMetric(data)
	case string(KindEpochSummary):
		return decodeSummary(data)
	}
	return nil, malformed("unknown type "+*head.Type, nil)
}

func decodeMetric(data []byte) (Event, error) {
	var m struct {
		Name  *string  `json:"name"`
		Step  *float64 `json:"step"`
		Value *float64 `json:"value"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, malformed("metric fields", err)
	}
	if m.Name == nil || *m.Name == "" {
		return nil, malformed("metric without name", nil)
	}
	if m.Value == nil {
		return nil, malformed("metric without value", nil)
	}
	if m.Step == nil {
		return nil, malformed("metric without step", nil)
	}
	step, err := integralStep(*m.Step)
	if err != nil {
		return nil, err
	}
	return Metric{Name: *m.Name, Step: step, Value: *m.Value}, nil
}

func integralStep(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Trunc(f) != f || math.Abs(f) > 1<<53 {
		return 0, malformed("step is not an integer", nil)
	}
	return int64(f), nil
}

func decodeSummary(data []byte) (Event, error) {
	members, err := jsonobj.Members(data)
	if err != nil {
		return nil, malformed("epoch summary", err)
	}
	s := EpochSummary{}
	for _, m := range members {
		if m.Key == "type" {
			continue
		}
		f, err := summaryField(m)
		if err != nil {
			return nil, err
		}
		s.Fields = append(s.Fields, f)
	}
	return s, nil
}

func summaryField(m jsonobj.Member) (SummaryField, error) {
	var num float64
	if err := json.Unmarshal(m.Value, &num); err == nil && !jsonobj.IsNull(m.Value) {
		return SummaryField{Label: m.Key, Number: num, IsNumber: true}, nil
	}
	var text string
	if err := json.Unmarshal(m.Value, &text); err == nil && !jsonobj.IsNull(m.Value) {
		return SummaryField{Label: m.Key, Text: text}, nil
	}
	return SummaryField{}, malformed("summary field "+m.Key+" is not a number or string", nil)
}

// DecodeChannel decodes a named event of the frames channel:
//
//	{"event": "frames", "data": {"CHIP-8": [[0,1,...],...], "AI Simulation": [[...]]}}
//	{"event": "update", "data": {"chip8": "<b64 png>", "models": {...}, "metrics": {...}}}
//	{"event": "training_update", "data": {"model_name": "cnn", "epoch": 1, "loss": 0.4, "accuracy": 0.8}}
func DecodeChannel(data []byte) (Event, error) {
	var env struct {
		Event *string         `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, malformed("channel envelope", err)
	}
	if env.Event == nil {
		return nil, malformed("missing event name", nil)
	}
	if len(env.Data) == 0 || jsonobj.IsNull(env.Data) {
		return nil, malformed("event "+*env.Event+" without data", nil)
	}
	switch *env.Event {
	case string(KindFrames):
		return decodeFrames(env.Data)
	case string(KindUpdate):
		return decodeUpdate(env.Data)
	case string(KindTrainingUpdate):
		return decodeTraining(env.Data)
	}
	return nil, malformed("unknown event "+*env.Event, nil)
}

func decodeFrames(data json.RawMessage) (Event, error) {
	members, err := jsonobj.Members(data)
	if err != nil {
		return nil, malformed("frames", err)
	}
	ev := Frames{}
	for _, m := range members {
		p, err := frames.ParsePayload(m.Value)
		if err != nil {
			return nil, malformed("frame "+m.Key, err)
		}
		ev.Sources = append(ev.Sources, frames.Source{Name: m.Key, Payload: p})
	}
	return ev, nil
}

func decodeUpdate(data json.RawMessage) (Event, error) {
	var raw struct {
		Chip8   *string         `json:"chip8"`
		Models  json.RawMessage `json:"models"`
		Metrics json.RawMessage `json:"metrics"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, malformed("update", err)
	}
	ev := Update{}
	if raw.Chip8 != nil {
		p, err := frames.DecodeBase64PNG(*raw.Chip8)
		if err != nil {
			return nil, malformed("update chip8 frame", err)
		}
		ev.Chip8 = &p
	}
	if len(raw.Models) > 0 && !jsonobj.IsNull(raw.Models) {
		members, err := jsonobj.Members(raw.Models)
		if err != nil {
			return nil, malformed("update models", err)
		}
		for _, m := range members {
			var s string
			if err := json.Unmarshal(m.Value, &s); err != nil {
				return nil, malformed("update model "+m.Key, err)
			}
			p, err := frames.DecodeBase64PNG(s)
			if err != nil {
				return nil, malformed("update model "+m.Key, err)
			}
			ev.Models = append(ev.Models, frames.Source{Name: m.Key, Payload: p})
		}
	}
	if len(raw.Metrics) > 0 && !jsonobj.IsNull(raw.Metrics) {
		models, err := jsonobj.Members(raw.Metrics)
		if err != nil {
			return nil, malformed("update metrics", err)
		}
		for _, model := range models {
			values, err := jsonobj.Members(model.Value)
			if err != nil {
				return nil, malformed("update metrics "+model.Key, err)
			}
			mm := ModelMetrics{Model: model.Key}
			for _, v := range values {
				var f float64
				if err := json.Unmarshal(v.Value, &f); err != nil || jsonobj.IsNull(v.Value) {
					return nil, malformed("update metric "+model.Key+"/"+v.Key+" is not a number", err)
				}
				mm.Values = append(mm.Values, NamedValue{Name: v.Key, Value: f})
			}
			ev.Metrics = append(ev.Metrics, mm)
		}
	}
	if ev.Chip8 == nil && len(ev.Models) == 0 && len(ev.Metrics) == 0 {
		return nil, malformed("empty update", nil)
	}
	return ev, nil
}

func decodeTraining(data json.RawMessage) (Event, error) {
	var raw struct {
		Model    *string  `json:"model_name"`
		Epoch    *float64 `json:"epoch"`
		Loss     *float64 `json:"loss"`
		Accuracy *float64 `json:"accuracy"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, malformed("training update", err)
	}
	if raw.Model == nil || *raw.Model == "" || raw.Epoch == nil || raw.Loss == nil || raw.Accuracy == nil {
		return nil, malformed("training update missing fields", nil)
	}
	epoch, err := integralStep(*raw.Epoch)
	if err != nil {
		return nil, err
	}
	return TrainingUpdate{Model: *raw.Model, Epoch: epoch, Loss: *raw.Loss, Accuracy: *raw.Accuracy}, nil
}

// IsMalformed reports whether err marks a dropped message.
func IsMalformed(err error) bool { return errors.Is(err, ErrMalformed) }
