package cpu

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/tsawler/go-fit/backend"
	"github.com/tsawler/go-fit/errs"
	"github.com/tsawler/go-fit/tensor"
)

// Sequential is a linear stack of layers trained with minibatch gradient
// descent.
type Sequential struct {
	rng    *rand.Rand
	logger *logrus.Logger

	layers     []runtimeLayer
	inputShape []int
	outShape   []int

	optimizer optimizer
	loss      lossFunc
	metrics   []metric
	compiled  bool

	stop     atomic.Bool
	disposed atomic.Bool
}

var (
	_ backend.Graph             = (*Sequential)(nil)
	_ backend.WeightSnapshotter = (*Sequential)(nil)
	_ backend.Tensor            = (*tensor.Tensor)(nil)
)

func newSequential(rng *rand.Rand, logger *logrus.Logger) *Sequential {
	return &Sequential{rng: rng, logger: logger}
}

// Add instantiates layer and appends it. The first layer must declare an
// input shape.
func (s *Sequential) Add(layer backend.Layer) error {
	if s.disposed.Load() {
		return errs.NewDisposed("graph")
	}
	spec, ok := layer.(layerSpec)
	if !ok {
		return fmt.Errorf("layer %T was not created by the cpu backend", layer)
	}

	prev := s.outShape
	if len(s.layers) == 0 {
		prev = spec.declaredInputShape()
		if len(prev) == 0 {
			return fmt.Errorf("the first layer must declare an input shape")
		}
		s.inputShape = copyShape(prev)
	}

	rl := spec.instantiate()
	if rl.Name() == "" {
		rl.setName(fmt.Sprintf("%s_%d", rl.Kind(), len(s.layers)+1))
	}
	out, err := rl.build(prev, s.rng)
	if err != nil {
		return err
	}
	s.layers = append(s.layers, rl)
	s.outShape = out
	s.compiled = false
	return nil
}

// Layers returns the instantiated layers in order.
func (s *Sequential) Layers() []backend.Layer {
	out := make([]backend.Layer, len(s.layers))
	for i, l := range s.layers {
		out[i] = l
	}
	return out
}

// OutputShape returns the per-sample output shape.
func (s *Sequential) OutputShape() []int {
	return copyShape(s.outShape)
}

// Compile binds the optimizer, loss and metrics.
func (s *Sequential) Compile(opts backend.CompileOptions) error {
	if s.disposed.Load() {
		return errs.NewDisposed("graph")
	}
	if len(s.layers) == 0 {
		return fmt.Errorf("cannot compile an empty graph")
	}
	opt, ok := opts.Optimizer.(optimizer)
	if !ok {
		return fmt.Errorf("optimizer %T was not created by the cpu backend", opts.Optimizer)
	}
	loss, err := newLoss(opts.Loss)
	if err != nil {
		return err
	}
	metrics := make([]metric, 0, len(opts.Metrics))
	for _, name := range opts.Metrics {
		m, err := newMetric(name)
		if err != nil {
			return err
		}
		metrics = append(metrics, m)
	}
	s.optimizer, s.loss, s.metrics = opt, loss, metrics
	s.compiled = true
	return nil
}

// MetricNames lists the scalars returned by Evaluate.
func (s *Sequential) MetricNames() []string {
	names := []string{"loss"}
	for _, m := range s.metrics {
		names = append(names, m.key)
	}
	return names
}

// StopTraining asks Fit to return after the epoch in progress.
func (s *Sequential) StopTraining() {
	s.stop.Store(true)
}

// Dispose releases the layer parameters.
func (s *Sequential) Dispose() {
	if s.disposed.Swap(true) {
		return
	}
	s.layers = nil
	s.optimizer = nil
}

// Fit trains the graph. Validation rows are taken from the end of x and y
// before any shuffling.
func (s *Sequential) Fit(ctx context.Context, x, y backend.Tensor, opts backend.FitOptions) (*backend.History, error) {
	history := backend.NewHistory()
	if err := s.ready(); err != nil {
		return history, err
	}
	if opts.Epochs <= 0 || opts.BatchSize <= 0 {
		return history, fmt.Errorf("epochs and batch size must be positive")
	}
	xb, yb, err := s.toBatches(x, y)
	if err != nil {
		return history, err
	}

	trainX, trainY := xb, yb
	var valX, valY *batch
	if opts.ValidationSplit > 0 {
		nVal := int(math.Floor(float64(xb.rows) * opts.ValidationSplit))
		nTrain := xb.rows - nVal
		if nVal == 0 || nTrain == 0 {
			return history, fmt.Errorf("validation split %v leaves an empty partition for %d samples", opts.ValidationSplit, xb.rows)
		}
		trainX, valX = splitRows(xb, nTrain)
		trainY, valY = splitRows(yb, nTrain)
	}

	s.stop.Store(false)
	s.logger.WithFields(logrus.Fields{
		"samples":    trainX.rows,
		"validation": rowsOf(valX),
		"epochs":     opts.Epochs,
		"batch_size": opts.BatchSize,
	}).Debug("cpu backend fit started")

	order := make([]int, trainX.rows)
	for i := range order {
		order[i] = i
	}

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return history, err
		}
		if opts.OnEpochBegin != nil {
			if err := opts.OnEpochBegin(epoch); err != nil {
				return history, err
			}
		}
		if opts.Shuffle {
			s.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		logs, err := s.trainEpoch(trainX, trainY, order, opts.BatchSize)
		if err != nil {
			return history, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		if valX != nil {
			valLogs, err := s.evaluateBatches(valX, valY, opts.BatchSize)
			if err != nil {
				return history, fmt.Errorf("epoch %d validation: %w", epoch, err)
			}
			for k, v := range valLogs {
				logs["val_"+k] = v
			}
		}

		history.Record(epoch, logs)
		if opts.OnEpochEnd != nil {
			if err := opts.OnEpochEnd(epoch, logs.Clone()); err != nil {
				return history, err
			}
		}
		if s.stop.Load() {
			break
		}
	}
	return history, nil
}

func (s *Sequential) trainEpoch(x, y *batch, order []int, batchSize int) (backend.Logs, error) {
	totals := make(map[string]float64)
	for start := 0; start < len(order); start += batchSize {
		end := start + batchSize
		if end > len(order) {
			end = len(order)
		}
		bx := gatherRows(x, order[start:end])
		by := gatherRows(y, order[start:end])

		pred, err := s.forward(bx, true)
		if err != nil {
			return nil, err
		}
		lossValue := s.loss.value(pred.data, by.data, pred.rows)
		if math.IsNaN(lossValue) || math.IsInf(lossValue, 0) {
			return nil, fmt.Errorf("loss became %v; training is numerically unstable", lossValue)
		}

		grad := &batch{rows: pred.rows, cols: pred.cols, data: s.loss.gradient(pred.data, by.data, pred.rows)}
		for i := len(s.layers) - 1; i >= 0; i-- {
			grad, err = s.layers[i].backward(grad)
			if err != nil {
				return nil, err
			}
		}
		s.optimizer.step(s.allParams())

		weight := float64(pred.rows)
		totals["loss"] += lossValue * weight
		for _, m := range s.metrics {
			totals[m.key] += m.value(pred.data, by.data, pred.rows, pred.cols) * weight
		}
	}

	logs := make(backend.Logs, len(totals))
	for k, v := range totals {
		logs[k] = v / float64(len(order))
	}
	return logs, nil
}

func (s *Sequential) evaluateBatches(x, y *batch, batchSize int) (backend.Logs, error) {
	totals := make(map[string]float64)
	for start := 0; start < x.rows; start += batchSize {
		end := start + batchSize
		if end > x.rows {
			end = x.rows
		}
		bx, by := rowRange(x, start, end), rowRange(y, start, end)
		pred, err := s.forward(bx, false)
		if err != nil {
			return nil, err
		}
		weight := float64(pred.rows)
		totals["loss"] += s.loss.value(pred.data, by.data, pred.rows) * weight
		for _, m := range s.metrics {
			totals[m.key] += m.value(pred.data, by.data, pred.rows, pred.cols) * weight
		}
	}
	logs := make(backend.Logs, len(totals))
	for k, v := range totals {
		logs[k] = v / float64(x.rows)
	}
	return logs, nil
}

// Evaluate returns loss and metric scalars in MetricNames order.
func (s *Sequential) Evaluate(x, y backend.Tensor, batchSize int) ([]backend.Tensor, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	xb, yb, err := s.toBatches(x, y)
	if err != nil {
		return nil, err
	}
	logs, err := s.evaluateBatches(xb, yb, batchSize)
	if err != nil {
		return nil, err
	}
	names := s.MetricNames()
	out := make([]backend.Tensor, len(names))
	for i, name := range names {
		out[i] = tensor.Scalar(float32(logs[name]))
	}
	return out, nil
}

// Predict runs an inference forward pass.
func (s *Sequential) Predict(x backend.Tensor) (backend.Tensor, error) {
	if s.disposed.Load() {
		return nil, errs.NewDisposed("graph")
	}
	if len(s.layers) == 0 {
		return nil, fmt.Errorf("cannot predict with an empty graph")
	}
	xb, err := toBatch(x, numElements(s.inputShape))
	if err != nil {
		return nil, err
	}
	pred, err := s.forward(xb, false)
	if err != nil {
		return nil, err
	}
	shape := append([]int{pred.rows}, s.outShape...)
	return tensor.FromFloat64s(pred.data, shape...)
}

// Weights returns a copy of every parameter buffer, running statistics
// included, in layer order.
func (s *Sequential) Weights() ([][]float32, error) {
	if s.disposed.Load() {
		return nil, errs.NewDisposed("graph")
	}
	params := s.allParams()
	out := make([][]float32, len(params))
	for i, p := range params {
		w := make([]float32, len(p.value))
		for j, v := range p.value {
			w[j] = float32(v)
		}
		out[i] = w
	}
	return out, nil
}

// SetWeights overwrites every parameter buffer.
func (s *Sequential) SetWeights(weights [][]float32) error {
	if s.disposed.Load() {
		return errs.NewDisposed("graph")
	}
	params := s.allParams()
	if len(weights) != len(params) {
		return fmt.Errorf("expected %d weight buffers, got %d", len(params), len(weights))
	}
	for i, p := range params {
		if len(weights[i]) != len(p.value) {
			return fmt.Errorf("weight buffer %d (%s) has %d values, expected %d", i, p.name, len(weights[i]), len(p.value))
		}
	}
	for i, p := range params {
		for j, v := range weights[i] {
			p.value[j] = float64(v)
		}
	}
	return nil
}

func (s *Sequential) ready() error {
	if s.disposed.Load() {
		return errs.NewDisposed("graph")
	}
	if !s.compiled {
		return fmt.Errorf("graph must be compiled before training or evaluation")
	}
	return nil
}

func (s *Sequential) forward(x *batch, training bool) (*batch, error) {
	out := x
	var err error
	for _, l := range s.layers {
		out, err = l.forward(out, training, s.rng)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Sequential) allParams() []*param {
	var params []*param
	for _, l := range s.layers {
		params = append(params, l.params()...)
	}
	return params
}

func (s *Sequential) toBatches(x, y backend.Tensor) (*batch, *batch, error) {
	xb, err := toBatch(x, numElements(s.inputShape))
	if err != nil {
		return nil, nil, fmt.Errorf("inputs: %w", err)
	}
	yb, err := toBatch(y, numElements(s.outShape))
	if err != nil {
		return nil, nil, fmt.Errorf("labels: %w", err)
	}
	if xb.rows != yb.rows {
		return nil, nil, fmt.Errorf("inputs have %d samples but labels have %d", xb.rows, yb.rows)
	}
	return xb, yb, nil
}

func toBatch(t backend.Tensor, cols int) (*batch, error) {
	ct, ok := t.(*tensor.Tensor)
	if !ok {
		return nil, fmt.Errorf("tensor %T was not created by the tensor package", t)
	}
	data, err := ct.Float64s()
	if err != nil {
		return nil, err
	}
	if ct.RowSize() != cols {
		return nil, fmt.Errorf("expected %d values per sample, got shape %v", cols, ct.Shape())
	}
	return &batch{rows: ct.Rows(), cols: cols, data: data}, nil
}

func gatherRows(b *batch, idx []int) *batch {
	out := newBatch(len(idx), b.cols)
	for i, r := range idx {
		copy(out.data[i*b.cols:(i+1)*b.cols], b.data[r*b.cols:(r+1)*b.cols])
	}
	return out
}

func rowRange(b *batch, start, end int) *batch {
	return &batch{rows: end - start, cols: b.cols, data: b.data[start*b.cols : end*b.cols]}
}

func splitRows(b *batch, n int) (*batch, *batch) {
	return rowRange(b, 0, n), rowRange(b, n, b.rows)
}

func rowsOf(b *batch) int {
	if b == nil {
		return 0
	}
	return b.rows
}
