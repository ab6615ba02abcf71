package training

import (
	"time"
)

// StopReason says why a run ended.
type StopReason string

const (
	StopCompleted     StopReason = "completed"
	StopEarlyStopping StopReason = "early_stopping"
	StopError         StopReason = "error"
)

// Result summarizes a finished run.
type Result struct {
	RunID        string               `json:"run_id"`
	History      map[string][]float64 `json:"history"`
	FinalMetrics map[string]float64   `json:"final_metrics"`
	Epochs       int                  `json:"epochs"` // epochs actually run
	Duration     time.Duration        `json:"duration"`

	// BestEpoch is the zero-based epoch with the best Monitor value, nil
	// when the monitored metric was never reported.
	BestEpoch *int   `json:"best_epoch,omitempty"`
	Monitor   string `json:"monitor"`

	Stopped             bool       `json:"stopped"`
	StoppedReason       StopReason `json:"stopped_reason"`
	RestoredBestWeights bool       `json:"restored_best_weights,omitempty"`

	Overfitting Diagnostics `json:"overfitting"`
}

// DurationMs is the wall clock training time in milliseconds.
func (r *Result) DurationMs() int64 {
	return r.Duration.Milliseconds()
}

// Metric returns the series for one metric name.
func (r *Result) Metric(name string) []float64 {
	return r.History[name]
}
