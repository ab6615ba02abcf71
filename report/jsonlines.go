package report

import (
	"io"
	"sync"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tsawler/go-fit/training"
)

// JSONLines writes one JSON object per training event to a writer:
// "train_start", "progress" after each epoch, then "train_end" or "error".
type JSONLines struct {
	mu  sync.Mutex
	w   io.Writer
	err error
}

// NewJSONLines creates a reporter writing to w.
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{w: w}
}

// JSONLinesReporter returns callbacks that stream events to w.
func JSONLinesReporter(w io.Writer) training.Callbacks {
	return NewJSONLines(w).Callbacks()
}

// Callbacks hooks the reporter into a training run.
func (j *JSONLines) Callbacks() training.Callbacks {
	return training.Callbacks{
		OnTrainStart: func() {
			j.emit("train_start", nil)
		},
		OnProgress: func(p training.Progress) {
			elapsed, err := durationString(p.Elapsed)
			if err != nil {
				j.fail(err)
				return
			}
			remaining, err := durationString(p.Remaining)
			if err != nil {
				j.fail(err)
				return
			}
			j.emit("progress", map[string]interface{}{
				"epoch":        p.Epoch,
				"total_epochs": p.TotalEpochs,
				"elapsed":      elapsed,
				"remaining":    remaining,
				"logs":         metricMap(p.Logs),
			})
		},
		OnTrainEnd: func(r *training.Result) {
			fields := map[string]interface{}{
				"run_id":         r.RunID,
				"epochs":         r.Epochs,
				"duration_ms":    r.DurationMs(),
				"stopped_reason": string(r.StoppedReason),
				"final_metrics":  metricMap(r.FinalMetrics),
				"is_overfitting": r.Overfitting.IsOverfitting,
			}
			if r.BestEpoch != nil {
				fields["best_epoch"] = *r.BestEpoch
			}
			j.emit("train_end", fields)
		},
		OnError: func(err error) {
			j.emit("error", map[string]interface{}{"message": err.Error()})
		},
	}
}

// Err returns the first write or encoding error.
func (j *JSONLines) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *JSONLines) emit(event string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{}, 1)
	}
	fields["event"] = event
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		j.fail(errors.Wrapf(err, "building %s event", event))
		return
	}
	line, err := protojson.Marshal(msg)
	if err != nil {
		j.fail(errors.Wrapf(err, "encoding %s event", event))
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return
	}
	if _, err := j.w.Write(append(line, '\n')); err != nil {
		j.err = errors.Wrap(err, "writing progress event")
	}
}

func (j *JSONLines) fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err == nil {
		j.err = err
	}
}
