package training

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tsawler/go-fit/backend"
	"github.com/tsawler/go-fit/errs"
	"github.com/tsawler/go-fit/optimizer"
)

// State is the lifecycle state of a ModelTrainer.
type State int32

const (
	StateIdle State = iota
	StateCompiling
	StateFitting
	StateCompleted
	StateEarlyStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCompiling:
		return "compiling"
	case StateFitting:
		return "fitting"
	case StateCompleted:
		return "completed"
	case StateEarlyStopped:
		return "early_stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const defaultEvalBatchSize = 32

// ModelTrainer drives compile, fit, evaluate and predict against a backend
// graph. A trainer runs one training session at a time.
type ModelTrainer struct {
	backend    backend.Backend
	logger     *logrus.Logger
	optimizers *optimizer.Factory
	now        func() time.Time

	busy  atomic.Bool
	state atomic.Int32
}

// TrainerOption configures a ModelTrainer.
type TrainerOption func(*ModelTrainer)

// WithLogger sets the trainer logger. It is also handed to the default
// logging callbacks and the early stopping controller.
func WithLogger(logger *logrus.Logger) TrainerOption {
	return func(t *ModelTrainer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithOptimizerFactory replaces the optimizer factory.
func WithOptimizerFactory(f *optimizer.Factory) TrainerOption {
	return func(t *ModelTrainer) {
		if f != nil {
			t.optimizers = f
		}
	}
}

// NewModelTrainer creates a trainer that builds optimizers on b.
func NewModelTrainer(b backend.Backend, opts ...TrainerOption) *ModelTrainer {
	t := &ModelTrainer{
		backend: b,
		logger:  logrus.New(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.optimizers == nil {
		t.optimizers = optimizer.NewFactory(t.logger)
	}
	return t
}

// State returns the current lifecycle state.
func (t *ModelTrainer) State() State {
	return State(t.state.Load())
}

func (t *ModelTrainer) setState(s State) {
	t.state.Store(int32(s))
}

// Train compiles graph with cfg and fits it on inputs and labels.
//
// inputs and labels are consumed: they are disposed before Train returns,
// whatever the outcome. Config problems return an *errs.ConfigValidationError
// before the backend is touched. Failures during compile or fit call
// OnError and return an *errs.BackendTrainingError holding the history of
// every completed epoch; no Result is returned in that case. A concurrent
// call on the same trainer returns errs.ErrTrainerBusy.
func (t *ModelTrainer) Train(ctx context.Context, graph backend.Graph, inputs, labels backend.Tensor, cfg Config, callbacks ...Callbacks) (*Result, error) {
	defer disposeTensors(inputs, labels)

	if !t.busy.CompareAndSwap(false, true) {
		return nil, errs.ErrTrainerBusy
	}
	defer t.busy.Store(false)

	if err := cfg.Validate(); err != nil {
		t.setState(StateFailed)
		return nil, err
	}
	if graph == nil {
		t.setState(StateFailed)
		return nil, errs.NewConfigValidation("graph", "is required")
	}
	if inputs == nil || labels == nil {
		t.setState(StateFailed)
		return nil, errs.NewConfigValidation("data", "inputs and labels are required")
	}

	r, err := t.newRun(graph, cfg, callbacks)
	if err != nil {
		t.setState(StateFailed)
		return nil, err
	}
	return r.execute(ctx, inputs, labels)
}

// Evaluate computes every compiled metric on x and y. The scalar tensors
// returned by the backend are disposed before returning.
func (t *ModelTrainer) Evaluate(graph backend.Graph, x, y backend.Tensor) (map[string]float64, error) {
	scalars, err := graph.Evaluate(x, y, defaultEvalBatchSize)
	defer disposeTensors(scalars...)
	if err != nil {
		return nil, errs.NewBackendTraining("evaluate", -1, nil, err)
	}

	names := graph.MetricNames()
	if len(names) != len(scalars) {
		return nil, errs.NewBackendTraining("evaluate", -1, nil,
			errors.Errorf("backend returned %d values for %d metrics", len(scalars), len(names)))
	}

	out := make(map[string]float64, len(names))
	for i, s := range scalars {
		data, err := s.Data()
		if err != nil {
			return nil, errs.NewBackendTraining("evaluate", -1, nil, errors.Wrapf(err, "reading %s", names[i]))
		}
		if len(data) == 0 {
			return nil, errs.NewBackendTraining("evaluate", -1, nil, errors.Errorf("metric %s is empty", names[i]))
		}
		out[names[i]] = float64(data[0])
	}
	return out, nil
}

// Predict runs inference. The caller owns the returned tensor; x is not
// disposed.
func (t *ModelTrainer) Predict(graph backend.Graph, x backend.Tensor) (backend.Tensor, error) {
	out, err := graph.Predict(x)
	if err != nil {
		return nil, errs.NewBackendTraining("predict", -1, nil, err)
	}
	return out, nil
}

// run holds the state of a single Train call.
type run struct {
	trainer   *ModelTrainer
	graph     backend.Graph
	cfg       Config
	callbacks *CallbackList
	stopper   *EarlyStopping
	tracker   *metricTracker

	snapshotter backend.WeightSnapshotter
	bestWeights [][]float32

	history *backend.History
	start   time.Time
}

func (t *ModelTrainer) newRun(graph backend.Graph, cfg Config, extra []Callbacks) (*run, error) {
	r := &run{
		trainer:   t,
		graph:     graph,
		cfg:       cfg,
		callbacks: NewCallbackList(LoggingCallbacks(t.logger)),
		tracker:   newMetricTracker(cfg.MonitorName(), cfg.MinDelta),
		history:   backend.NewHistory(),
	}

	if cfg.EarlyStoppingPatience > 0 {
		stopper, err := NewEarlyStopping(EarlyStoppingConfig{
			Patience: cfg.EarlyStoppingPatience,
			Monitor:  cfg.MonitorName(),
			MinDelta: cfg.MinDelta,
		}, t.logger)
		if err != nil {
			return nil, err
		}
		r.stopper = stopper
		r.callbacks.Add(stopper.Callbacks())
	}
	if cfg.LogEvery > 0 {
		r.callbacks.Add(MetricsLogger(t.logger, cfg.LogEvery))
	}
	r.callbacks.Add(extra...)

	if cfg.RestoreBestWeights {
		if s, ok := graph.(backend.WeightSnapshotter); ok {
			r.snapshotter = s
		} else {
			t.logger.WithField("backend", t.backend.Name()).Warn("graph cannot snapshot weights, best weights will not be restored")
		}
	}
	return r, nil
}

func (r *run) execute(ctx context.Context, inputs, labels backend.Tensor) (*Result, error) {
	t := r.trainer
	t.setState(StateIdle)
	r.callbacks.TrainStart()

	t.setState(StateCompiling)
	opt, err := t.optimizers.Create(t.backend, r.cfg.Optimizer, r.cfg.optimizerParams())
	if err != nil {
		return r.fail("optimizer", err)
	}
	err = r.graph.Compile(backend.CompileOptions{
		Optimizer: opt,
		Loss:      r.cfg.Loss,
		Metrics:   r.cfg.Metrics,
	})
	if err != nil {
		return r.fail("compile", err)
	}

	t.setState(StateFitting)
	r.start = t.now()
	_, err = r.graph.Fit(ctx, inputs, labels, backend.FitOptions{
		Epochs:          r.cfg.Epochs,
		BatchSize:       r.cfg.BatchSize,
		ValidationSplit: r.cfg.ValidationSplit,
		Shuffle:         r.cfg.Shuffle,
		OnEpochBegin: func(epoch int) error {
			r.callbacks.EpochStart(epoch)
			return nil
		},
		OnEpochEnd: func(epoch int, logs backend.Logs) error {
			return r.epochEnd(ctx, epoch, logs)
		},
	})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return r.fail("fit", err)
	}
	return r.finish()
}

func (r *run) epochEnd(ctx context.Context, epoch int, logs backend.Logs) error {
	r.history.Record(epoch, logs)

	if better, _ := r.tracker.observe(epoch, logs); better && r.snapshotter != nil {
		weights, err := r.snapshotter.Weights()
		if err != nil {
			return errors.Wrapf(err, "snapshotting weights at epoch %d", epoch)
		}
		r.bestWeights = weights
	}

	r.callbacks.EpochEnd(epoch, logs)

	elapsed := r.trainer.now().Sub(r.start)
	r.callbacks.Progress(Progress{
		Epoch:       epoch,
		TotalEpochs: r.cfg.Epochs,
		Logs:        logs,
		Elapsed:     elapsed,
		Remaining:   estimateRemaining(elapsed, epoch+1, r.cfg.Epochs),
	})

	if (r.stopper != nil && r.stopper.ShouldStop()) || ctx.Err() != nil {
		r.graph.StopTraining()
	}
	return nil
}

func (r *run) finish() (*Result, error) {
	t := r.trainer
	metrics := cloneHistory(r.history.Metrics)
	final := FinalMetrics(metrics)

	res := &Result{
		RunID:         uuid.NewString(),
		History:       metrics,
		FinalMetrics:  final,
		Epochs:        r.history.Len(),
		Duration:      t.now().Sub(r.start),
		BestEpoch:     r.tracker.bestEpochPtr(),
		Monitor:       r.tracker.monitor,
		Stopped:       true,
		StoppedReason: StopCompleted,
		Overfitting:   AnalyzeOverfitting(final, r.cfg.overfittingThreshold()),
	}
	state := StateCompleted
	if r.stopper != nil && r.stopper.ShouldStop() {
		res.StoppedReason = StopEarlyStopping
		state = StateEarlyStopped
	}

	if r.bestWeights != nil && res.BestEpoch != nil && *res.BestEpoch != res.Epochs-1 {
		if err := r.snapshotter.SetWeights(r.bestWeights); err != nil {
			return r.fail("restore_weights", err)
		}
		res.RestoredBestWeights = true
		t.logger.WithField("epoch", *res.BestEpoch).Info("restored best weights")
	}

	if res.Overfitting.IsOverfitting {
		t.logger.WithFields(logrus.Fields{
			"train_loss": res.Overfitting.TrainLoss,
			"val_loss":   res.Overfitting.ValLoss,
			"gap":        res.Overfitting.Gap,
			"threshold":  res.Overfitting.Threshold,
		}).Warn("validation loss exceeds training loss, model may be overfitting")
	}

	r.callbacks.TrainEnd(res)
	t.setState(state)
	return res, nil
}

func (r *run) fail(op string, cause error) (*Result, error) {
	err := errs.NewBackendTraining(op, r.history.Len()-1, cloneHistory(r.history.Metrics), cause)
	r.callbacks.Error(err)
	r.trainer.setState(StateFailed)
	return nil, err
}

func cloneHistory(h map[string][]float64) map[string][]float64 {
	out := make(map[string][]float64, len(h))
	for k, v := range h {
		out[k] = append([]float64(nil), v...)
	}
	return out
}

func disposeTensors(ts ...backend.Tensor) {
	for _, t := range ts {
		if t != nil && !t.IsDisposed() {
			t.Dispose()
		}
	}
}
