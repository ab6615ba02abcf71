package training

import (
	"github.com/sirupsen/logrus"

	"github.com/tsawler/go-fit/backend"
	"github.com/tsawler/go-fit/errs"
)

// EarlyStoppingConfig configures an EarlyStopping controller.
type EarlyStoppingConfig struct {
	Patience int     // epochs without improvement before stopping, > 0
	Monitor  string  // metric to watch, DefaultMonitor when empty
	MinDelta float64 // smallest change that counts as improvement, >= 0
}

// EarlyStopping watches one metric and raises a stop flag after Patience
// epochs without improvement. Whether a lower or a higher value is better
// follows LowerIsBetter.
//
// The controller only signals; the trainer asks the backend to stop after
// the epoch in progress.
type EarlyStopping struct {
	cfg     EarlyStoppingConfig
	logger  *logrus.Logger
	tracker *metricTracker

	wait         int
	stop         bool
	stoppedEpoch int
}

// NewEarlyStopping creates a controller. A nil logger uses a fresh logrus
// logger.
func NewEarlyStopping(cfg EarlyStoppingConfig, logger *logrus.Logger) (*EarlyStopping, error) {
	if cfg.Patience <= 0 {
		return nil, errs.NewConfigValidation("early_stopping_patience", "must be positive, got %d", cfg.Patience)
	}
	if cfg.MinDelta < 0 {
		return nil, errs.NewConfigValidation("min_delta", "must not be negative, got %g", cfg.MinDelta)
	}
	if cfg.Monitor == "" {
		cfg.Monitor = DefaultMonitor
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &EarlyStopping{
		cfg:          cfg,
		logger:       logger,
		tracker:      newMetricTracker(cfg.Monitor, cfg.MinDelta),
		stoppedEpoch: -1,
	}, nil
}

// OnEpochEnd updates the controller with one epoch of logs. Epochs that do
// not report the monitored metric are skipped with a warning.
func (e *EarlyStopping) OnEpochEnd(epoch int, logs backend.Logs) {
	if e.stop {
		return
	}
	better, present := e.tracker.observe(epoch, logs)
	if !present {
		e.logger.WithFields(logrus.Fields{
			"epoch":   epoch,
			"monitor": e.cfg.Monitor,
		}).Warn("early stopping metric missing from epoch logs, skipping check")
		return
	}
	if better {
		e.wait = 0
		return
	}
	e.wait++
	if e.wait >= e.cfg.Patience {
		e.stop = true
		e.stoppedEpoch = epoch
		e.logger.WithFields(logrus.Fields{
			"epoch":      epoch,
			"best_epoch": e.tracker.bestEpoch,
			"best_value": e.tracker.best,
			"monitor":    e.cfg.Monitor,
			"patience":   e.cfg.Patience,
		}).Info("early stopping triggered")
	}
}

// Callbacks exposes the controller as a callback set.
func (e *EarlyStopping) Callbacks() Callbacks {
	return Callbacks{OnEpochEnd: e.OnEpochEnd}
}

// ShouldStop reports whether patience has run out.
func (e *EarlyStopping) ShouldStop() bool { return e.stop }

// StoppedEpoch is the epoch that raised the stop flag, or -1.
func (e *EarlyStopping) StoppedEpoch() int { return e.stoppedEpoch }

// Wait is the number of consecutive epochs without improvement.
func (e *EarlyStopping) Wait() int { return e.wait }

// BestEpoch returns the epoch with the best monitored value so far.
func (e *EarlyStopping) BestEpoch() (int, bool) {
	return e.tracker.bestEpoch, e.tracker.seen
}

// BestValue returns the best monitored value so far.
func (e *EarlyStopping) BestValue() (float64, bool) {
	return e.tracker.best, e.tracker.seen
}

// Monitor is the watched metric name.
func (e *EarlyStopping) Monitor() string { return e.cfg.Monitor }
