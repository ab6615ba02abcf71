// Package report serializes training results and streams progress events.
// Results are encoded as protobuf Struct messages, either in canonical
// protobuf JSON or in binary wire format.
package report

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/tsawler/go-fit/training"
)

const (
	Framework = "go-fit"
	Version   = "1.0.0"
)

// Format selects the encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatProto
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "JSON"
	case FormatProto:
		return "Proto"
	default:
		return "Unknown"
	}
}

// Metadata describes the report itself.
type Metadata struct {
	Framework   string
	Version     string
	CreatedAt   time.Time
	Description string
	Tags        []string
}

// Summary is a decoded report.
type Summary struct {
	Metadata      Metadata
	RunID         string
	Epochs        int
	Duration      time.Duration
	BestEpoch     *int
	Monitor       string
	StoppedReason training.StopReason
	FinalMetrics  map[string]float64
	History       map[string][]float64
	Overfitting   training.Diagnostics
}

// Encoder writes training results in one format.
type Encoder struct {
	format      Format
	description string
	tags        []string
	now         func() time.Time
}

// NewEncoder creates an encoder for format.
func NewEncoder(format Format) *Encoder {
	return &Encoder{format: format, now: time.Now}
}

// WithDescription sets free-form metadata stored with every report.
func (e *Encoder) WithDescription(description string, tags ...string) *Encoder {
	e.description = description
	e.tags = tags
	return e
}

// Encode serializes r.
func (e *Encoder) Encode(r *training.Result) ([]byte, error) {
	msg, err := e.resultStruct(r)
	if err != nil {
		return nil, err
	}
	switch e.format {
	case FormatJSON:
		return protojson.MarshalOptions{Indent: "  "}.Marshal(msg)
	case FormatProto:
		return proto.Marshal(msg)
	default:
		return nil, errors.Errorf("unsupported report format: %s", e.format)
	}
}

// Save encodes r and writes it to path.
func (e *Encoder) Save(r *training.Result, path string) error {
	data, err := e.Encode(r)
	if err != nil {
		return errors.Wrap(err, "encoding training report")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "writing training report %s", path)
	}
	return nil
}

// Decode parses a report produced by Encode with the same format.
func (e *Encoder) Decode(data []byte) (*Summary, error) {
	msg := &structpb.Struct{}
	var err error
	switch e.format {
	case FormatJSON:
		err = protojson.Unmarshal(data, msg)
	case FormatProto:
		err = proto.Unmarshal(data, msg)
	default:
		err = errors.Errorf("unsupported report format: %s", e.format)
	}
	if err != nil {
		return nil, errors.Wrap(err, "decoding training report")
	}
	return summaryFromStruct(msg)
}

// Load reads and decodes a report file.
func (e *Encoder) Load(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading training report %s", path)
	}
	return e.Decode(data)
}

// EncodeResult renders r as indented protobuf JSON.
func EncodeResult(r *training.Result) ([]byte, error) {
	return NewEncoder(FormatJSON).Encode(r)
}

func (e *Encoder) resultStruct(r *training.Result) (*structpb.Struct, error) {
	if r == nil {
		return nil, errors.New("nil training result")
	}
	created, err := timestampString(e.now())
	if err != nil {
		return nil, err
	}
	duration, err := durationString(r.Duration)
	if err != nil {
		return nil, err
	}

	tags := make([]interface{}, len(e.tags))
	for i, t := range e.tags {
		tags[i] = t
	}
	fields := map[string]interface{}{
		"metadata": map[string]interface{}{
			"framework":   Framework,
			"version":     Version,
			"created_at":  created,
			"description": e.description,
			"tags":        tags,
		},
		"run_id":         r.RunID,
		"epochs":         r.Epochs,
		"duration":       duration,
		"monitor":        r.Monitor,
		"stopped":        r.Stopped,
		"stopped_reason": string(r.StoppedReason),
		"final_metrics":  metricMap(r.FinalMetrics),
		"history":        historyMap(r.History),
		"overfitting": map[string]interface{}{
			"available":      r.Overfitting.Available,
			"train_loss":     r.Overfitting.TrainLoss,
			"val_loss":       r.Overfitting.ValLoss,
			"gap":            r.Overfitting.Gap,
			"threshold":      r.Overfitting.Threshold,
			"is_overfitting": r.Overfitting.IsOverfitting,
		},
	}
	if r.BestEpoch != nil {
		fields["best_epoch"] = *r.BestEpoch
	}
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, errors.Wrap(err, "building report message")
	}
	return msg, nil
}

func summaryFromStruct(msg *structpb.Struct) (*Summary, error) {
	f := msg.GetFields()
	if _, ok := f["run_id"]; !ok {
		return nil, errors.New("report has no run_id")
	}
	s := &Summary{
		RunID:         f["run_id"].GetStringValue(),
		Epochs:        int(f["epochs"].GetNumberValue()),
		Monitor:       f["monitor"].GetStringValue(),
		StoppedReason: training.StopReason(f["stopped_reason"].GetStringValue()),
		FinalMetrics:  make(map[string]float64),
		History:       make(map[string][]float64),
	}

	d, err := parseDuration(f["duration"].GetStringValue())
	if err != nil {
		return nil, err
	}
	s.Duration = d

	if v, ok := f["best_epoch"]; ok {
		e := int(v.GetNumberValue())
		s.BestEpoch = &e
	}
	for k, v := range f["final_metrics"].GetStructValue().GetFields() {
		s.FinalMetrics[k] = v.GetNumberValue()
	}
	for k, v := range f["history"].GetStructValue().GetFields() {
		values := v.GetListValue().GetValues()
		series := make([]float64, len(values))
		for i, x := range values {
			series[i] = x.GetNumberValue()
		}
		s.History[k] = series
	}

	o := f["overfitting"].GetStructValue().GetFields()
	s.Overfitting = training.Diagnostics{
		Available:     o["available"].GetBoolValue(),
		TrainLoss:     o["train_loss"].GetNumberValue(),
		ValLoss:       o["val_loss"].GetNumberValue(),
		Gap:           o["gap"].GetNumberValue(),
		Threshold:     o["threshold"].GetNumberValue(),
		IsOverfitting: o["is_overfitting"].GetBoolValue(),
	}

	m := f["metadata"].GetStructValue().GetFields()
	s.Metadata = Metadata{
		Framework:   m["framework"].GetStringValue(),
		Version:     m["version"].GetStringValue(),
		Description: m["description"].GetStringValue(),
	}
	for _, t := range m["tags"].GetListValue().GetValues() {
		s.Metadata.Tags = append(s.Metadata.Tags, t.GetStringValue())
	}
	if c := m["created_at"].GetStringValue(); c != "" {
		ts := &timestamppb.Timestamp{}
		if err := protojson.Unmarshal([]byte(`"`+c+`"`), ts); err != nil {
			return nil, errors.Wrap(err, "parsing created_at")
		}
		s.Metadata.CreatedAt = ts.AsTime()
	}
	return s, nil
}

func metricMap(m map[string]float64) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func historyMap(h map[string][]float64) map[string]interface{} {
	out := make(map[string]interface{}, len(h))
	for k, series := range h {
		values := make([]interface{}, len(series))
		for i, v := range series {
			values[i] = v
		}
		out[k] = values
	}
	return out
}

// durationString renders d in the canonical protobuf JSON form, e.g. "1.5s".
func durationString(d time.Duration) (string, error) {
	b, err := protojson.Marshal(durationpb.New(d))
	if err != nil {
		return "", errors.Wrap(err, "encoding duration")
	}
	return strings.Trim(string(b), `"`), nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d := &durationpb.Duration{}
	if err := protojson.Unmarshal([]byte(`"`+s+`"`), d); err != nil {
		return 0, errors.Wrapf(err, "parsing duration %q", s)
	}
	return d.AsDuration(), nil
}

func timestampString(t time.Time) (string, error) {
	b, err := protojson.Marshal(timestamppb.New(t))
	if err != nil {
		return "", errors.Wrap(err, "encoding timestamp")
	}
	return strings.Trim(string(b), `"`), nil
}
