package training

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tsawler/go-fit/backend"
)

// Progress is the payload of OnProgress, sent after every epoch.
type Progress struct {
	Epoch       int           `json:"epoch"` // zero-based index of the finished epoch
	TotalEpochs int           `json:"total_epochs"`
	Logs        backend.Logs  `json:"logs"`
	Elapsed     time.Duration `json:"elapsed"`
	Remaining   time.Duration `json:"remaining"` // elapsed / completed * epochs left
}

// Completed is the number of finished epochs.
func (p Progress) Completed() int { return p.Epoch + 1 }

// Fraction is the share of planned epochs finished so far.
func (p Progress) Fraction() float64 {
	if p.TotalEpochs <= 0 {
		return 0
	}
	return float64(p.Completed()) / float64(p.TotalEpochs)
}

func estimateRemaining(elapsed time.Duration, completed, total int) time.Duration {
	if completed <= 0 || total <= completed {
		return 0
	}
	return time.Duration(float64(elapsed) / float64(completed) * float64(total-completed))
}

// Callbacks is a set of optional lifecycle hooks. Nil hooks are skipped.
// Logs passed to OnEpochEnd are shared between hooks and must not be
// modified.
type Callbacks struct {
	OnTrainStart func()
	OnEpochStart func(epoch int)
	OnEpochEnd   func(epoch int, logs backend.Logs)
	OnProgress   func(p Progress)
	OnTrainEnd   func(result *Result)
	OnError      func(err error)
}

// CallbackList is an ordered list of observers. Every event is delivered to
// each entry in registration order, one after another.
type CallbackList struct {
	entries []Callbacks
}

// NewCallbackList creates a list holding cbs in order.
func NewCallbackList(cbs ...Callbacks) *CallbackList {
	l := &CallbackList{}
	l.Add(cbs...)
	return l
}

// Add appends observers.
func (l *CallbackList) Add(cbs ...Callbacks) {
	l.entries = append(l.entries, cbs...)
}

// Len returns the number of registered observers.
func (l *CallbackList) Len() int { return len(l.entries) }

// TrainStart notifies every observer.
func (l *CallbackList) TrainStart() {
	for _, c := range l.entries {
		if c.OnTrainStart != nil {
			c.OnTrainStart()
		}
	}
}

// EpochStart notifies every observer.
func (l *CallbackList) EpochStart(epoch int) {
	for _, c := range l.entries {
		if c.OnEpochStart != nil {
			c.OnEpochStart(epoch)
		}
	}
}

// EpochEnd notifies every observer.
func (l *CallbackList) EpochEnd(epoch int, logs backend.Logs) {
	for _, c := range l.entries {
		if c.OnEpochEnd != nil {
			c.OnEpochEnd(epoch, logs)
		}
	}
}

// Progress notifies every observer.
func (l *CallbackList) Progress(p Progress) {
	for _, c := range l.entries {
		if c.OnProgress != nil {
			c.OnProgress(p)
		}
	}
}

// TrainEnd notifies every observer.
func (l *CallbackList) TrainEnd(result *Result) {
	for _, c := range l.entries {
		if c.OnTrainEnd != nil {
			c.OnTrainEnd(result)
		}
	}
}

// Error notifies every observer.
func (l *CallbackList) Error(err error) {
	for _, c := range l.entries {
		if c.OnError != nil {
			c.OnError(err)
		}
	}
}

func (l *CallbackList) has(pick func(Callbacks) bool) bool {
	for _, c := range l.entries {
		if pick(c) {
			return true
		}
	}
	return false
}

// Combined returns a single Callbacks value that fans out to the list. A
// hook is nil when no observer implements it.
func (l *CallbackList) Combined() Callbacks {
	snapshot := NewCallbackList(l.entries...)
	var out Callbacks
	if snapshot.has(func(c Callbacks) bool { return c.OnTrainStart != nil }) {
		out.OnTrainStart = snapshot.TrainStart
	}
	if snapshot.has(func(c Callbacks) bool { return c.OnEpochStart != nil }) {
		out.OnEpochStart = snapshot.EpochStart
	}
	if snapshot.has(func(c Callbacks) bool { return c.OnEpochEnd != nil }) {
		out.OnEpochEnd = snapshot.EpochEnd
	}
	if snapshot.has(func(c Callbacks) bool { return c.OnProgress != nil }) {
		out.OnProgress = snapshot.Progress
	}
	if snapshot.has(func(c Callbacks) bool { return c.OnTrainEnd != nil }) {
		out.OnTrainEnd = snapshot.TrainEnd
	}
	if snapshot.has(func(c Callbacks) bool { return c.OnError != nil }) {
		out.OnError = snapshot.Error
	}
	return out
}

// CombineCallbacks merges several callback sets into one. Each merged hook
// calls the matching hook of every set in argument order.
func CombineCallbacks(cbs ...Callbacks) Callbacks {
	return NewCallbackList(cbs...).Combined()
}

// LoggingCallbacks logs the start and end of training, each epoch's
// metrics at debug level, and errors.
func LoggingCallbacks(logger *logrus.Logger) Callbacks {
	if logger == nil {
		logger = logrus.New()
	}
	return Callbacks{
		OnTrainStart: func() {
			logger.Info("training started")
		},
		OnEpochEnd: func(epoch int, logs backend.Logs) {
			logger.WithFields(logFields(logs)).WithField("epoch", epoch).Debug("epoch finished")
		},
		OnTrainEnd: func(r *Result) {
			entry := logger.WithFields(logrus.Fields{
				"epochs":      r.Epochs,
				"duration_ms": r.DurationMs(),
				"reason":      r.StoppedReason,
			})
			if r.BestEpoch != nil {
				entry = entry.WithField("best_epoch", *r.BestEpoch)
			}
			entry.WithFields(logFields(r.FinalMetrics)).Info("training finished")
		},
		OnError: func(err error) {
			logger.WithError(err).Error("training failed")
		},
	}
}

// MetricsLogger logs epoch metrics at info level every n epochs and on the
// final planned epoch.
func MetricsLogger(logger *logrus.Logger, every int) Callbacks {
	if logger == nil {
		logger = logrus.New()
	}
	if every <= 0 {
		every = 1
	}
	return Callbacks{
		OnProgress: func(p Progress) {
			if p.Completed()%every != 0 && p.Completed() != p.TotalEpochs {
				return
			}
			logger.WithFields(logFields(p.Logs)).WithFields(logrus.Fields{
				"epoch":     p.Completed(),
				"of":        p.TotalEpochs,
				"elapsed":   p.Elapsed.Round(time.Millisecond),
				"remaining": p.Remaining.Round(time.Millisecond),
			}).Info("epoch metrics")
		},
	}
}

// ProgressCallbacks forwards progress snapshots to fn.
func ProgressCallbacks(fn func(Progress)) Callbacks {
	return Callbacks{OnProgress: fn}
}

func logFields(metrics map[string]float64) logrus.Fields {
	fields := make(logrus.Fields, len(metrics))
	for k, v := range metrics {
		fields[k] = v
	}
	return fields
}
