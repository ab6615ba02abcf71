package training

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/tsawler/go-fit/backend"
)

func TestCombineCallbacksOrder(t *testing.T) {
	var got []string
	mk := func(tag string) Callbacks {
		return Callbacks{
			OnEpochEnd: func(epoch int, logs backend.Logs) { got = append(got, tag) },
		}
	}
	only := Callbacks{OnTrainStart: func() { got = append(got, "start") }}

	combined := CombineCallbacks(mk("a"), only, mk("b"), mk("c"))
	if combined.OnProgress != nil || combined.OnError != nil {
		t.Error("hooks without implementers should stay nil")
	}
	combined.OnTrainStart()
	combined.OnEpochEnd(0, backend.Logs{})
	want := "start,a,b,c"
	if strings.Join(got, ",") != want {
		t.Errorf("order = %v, want %s", got, want)
	}
}

func TestCallbackListError(t *testing.T) {
	l := NewCallbackList()
	var seen []error
	l.Add(Callbacks{OnError: func(err error) { seen = append(seen, err) }}, Callbacks{})
	if l.Len() != 2 {
		t.Errorf("len = %d", l.Len())
	}
	boom := errors.New("boom")
	l.Error(boom)
	if len(seen) != 1 || seen[0] != boom {
		t.Errorf("seen = %v", seen)
	}
}

func TestEstimateRemaining(t *testing.T) {
	tests := []struct {
		elapsed          time.Duration
		completed, total int
		want             time.Duration
	}{
		{10 * time.Second, 1, 5, 40 * time.Second},
		{30 * time.Second, 3, 4, 10 * time.Second},
		{30 * time.Second, 4, 4, 0},
		{0, 0, 4, 0},
	}
	for _, tt := range tests {
		if got := estimateRemaining(tt.elapsed, tt.completed, tt.total); got != tt.want {
			t.Errorf("estimateRemaining(%v, %d, %d) = %v, want %v", tt.elapsed, tt.completed, tt.total, got, tt.want)
		}
	}
}

func TestMetricsLoggerEvery(t *testing.T) {
	logger, hook := test.NewNullLogger()
	cb := MetricsLogger(logger, 2)
	for epoch := 0; epoch < 5; epoch++ {
		cb.OnProgress(Progress{Epoch: epoch, TotalEpochs: 5, Logs: backend.Logs{"loss": 1}})
	}
	// epochs 2, 4 and the final fifth
	if n := len(hook.AllEntries()); n != 3 {
		t.Errorf("logged %d times, want 3", n)
	}
	if hook.LastEntry().Data["epoch"] != 5 {
		t.Errorf("last entry = %v", hook.LastEntry().Data)
	}
}

func TestProgressBarLine(t *testing.T) {
	var buf bytes.Buffer
	pb := NewProgressBar("Training", &buf)
	p := Progress{
		Epoch:       1,
		TotalEpochs: 4,
		Logs:        backend.Logs{"val_loss": 0.5, "accuracy": 0.875, "loss": 0.25},
		Elapsed:     90 * time.Second,
		Remaining:   3 * time.Minute,
	}

	line := pb.Line(p)
	for _, want := range []string{"Training:  50%", "2/4", "[01:30<03:00", "accuracy=87.50%", "loss=0.2500", "val_loss=0.5000"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	if strings.Index(line, "accuracy") > strings.Index(line, "val_loss") {
		t.Error("metrics not sorted")
	}

	cbs := pb.Callbacks()
	cbs.OnProgress(p)
	cbs.OnTrainEnd(&Result{})
	if out := buf.String(); !strings.HasPrefix(out, "\r") || !strings.HasSuffix(out, "\n") {
		t.Errorf("output = %q", out)
	}
}
