package training

import (
	"strings"
)

// lowerIsBetterNames are error-style metrics without "loss" or "error" in
// their name.
var lowerIsBetterNames = map[string]bool{
	"mse":  true,
	"mae":  true,
	"mape": true,
	"msle": true,
	"rmse": true,
}

// LowerIsBetter reports whether a metric improves by decreasing. Loss and
// error metrics do; accuracy-style metrics do not. A "val_" prefix is
// ignored.
func LowerIsBetter(name string) bool {
	n := strings.ToLower(strings.TrimPrefix(name, "val_"))
	if strings.Contains(n, "loss") || strings.Contains(n, "error") {
		return true
	}
	return lowerIsBetterNames[n]
}

// improved applies the direction-aware improvement test with minDelta.
func improved(current, best, minDelta float64, lowerBetter bool) bool {
	if lowerBetter {
		return current < best-minDelta
	}
	return current > best+minDelta
}

// metricTracker follows the best value of one metric across epochs.
type metricTracker struct {
	monitor     string
	minDelta    float64
	lowerBetter bool

	best      float64
	bestEpoch int
	seen      bool
}

func newMetricTracker(monitor string, minDelta float64) *metricTracker {
	return &metricTracker{monitor: monitor, minDelta: minDelta, lowerBetter: LowerIsBetter(monitor), bestEpoch: -1}
}

// observe reports whether epoch improved on the best value. present is
// false when logs lack the monitored metric.
func (m *metricTracker) observe(epoch int, logs map[string]float64) (better, present bool) {
	value, ok := logs[m.monitor]
	if !ok {
		return false, false
	}
	if !m.seen || improved(value, m.best, m.minDelta, m.lowerBetter) {
		m.best, m.bestEpoch, m.seen = value, epoch, true
		return true, true
	}
	return false, true
}

func (m *metricTracker) bestEpochPtr() *int {
	if !m.seen {
		return nil
	}
	e := m.bestEpoch
	return &e
}

// FinalMetrics returns the last value of every metric series.
func FinalMetrics(history map[string][]float64) map[string]float64 {
	out := make(map[string]float64, len(history))
	for name, series := range history {
		if len(series) > 0 {
			out[name] = series[len(series)-1]
		}
	}
	return out
}

// BestEpoch returns the epoch with the best value of monitor, using the
// same improvement test as early stopping. It returns false when the
// metric was never recorded.
func BestEpoch(history map[string][]float64, monitor string, minDelta float64) (int, bool) {
	series, ok := history[monitor]
	if !ok || len(series) == 0 {
		return 0, false
	}
	tracker := newMetricTracker(monitor, minDelta)
	for epoch, v := range series {
		tracker.observe(epoch, map[string]float64{monitor: v})
	}
	return tracker.bestEpoch, true
}

// Diagnostics is the overfitting check run at the end of training.
type Diagnostics struct {
	// Available is false when the run had no validation loss.
	Available     bool    `json:"available"`
	TrainLoss     float64 `json:"train_loss"`
	ValLoss       float64 `json:"val_loss"`
	Gap           float64 `json:"gap"` // ValLoss - TrainLoss
	Threshold     float64 `json:"threshold"`
	IsOverfitting bool    `json:"is_overfitting"`
}

// AnalyzeOverfitting compares the final training and validation losses. A
// gap above threshold flags overfitting.
func AnalyzeOverfitting(final map[string]float64, threshold float64) Diagnostics {
	d := Diagnostics{Threshold: threshold}
	trainLoss, okTrain := final["loss"]
	valLoss, okVal := final["val_loss"]
	if !okTrain || !okVal {
		return d
	}
	d.Available = true
	d.TrainLoss, d.ValLoss = trainLoss, valLoss
	d.Gap = valLoss - trainLoss
	d.IsOverfitting = d.Gap > threshold
	return d
}
