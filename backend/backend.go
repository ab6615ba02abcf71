// Package backend declares the numeric tensor backend contract consumed by
// the model compiler and the trainer. Implementations build sequential
// graphs, own the epoch loop and hand back disposable tensors.
package backend

import (
	"context"
)

// Tensor is a backend-owned multidimensional array with explicit disposal.
type Tensor interface {
	Shape() []int
	Size() int
	// Data copies the elements out in row-major order.
	Data() ([]float32, error)
	Dispose()
	IsDisposed() bool
}

// Layer is an executable layer produced by the backend. Layers are
// configuration until added to a graph.
type Layer interface {
	Name() string
	Kind() string
}

// Optimizer is a backend optimizer instance.
type Optimizer interface {
	Name() string
	LearningRate() float64
}

// Logs maps metric names (loss, accuracy, val_loss, ...) to epoch values.
type Logs map[string]float64

// Clone returns an independent copy of the logs.
func (l Logs) Clone() Logs {
	out := make(Logs, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// History is the per-epoch metric record returned by Fit.
type History struct {
	Epochs  []int
	Metrics map[string][]float64
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{Metrics: make(map[string][]float64)}
}

// Record appends one epoch worth of logs.
func (h *History) Record(epoch int, logs Logs) {
	h.Epochs = append(h.Epochs, epoch)
	for name, value := range logs {
		h.Metrics[name] = append(h.Metrics[name], value)
	}
}

// Len returns the number of recorded epochs.
func (h *History) Len() int {
	return len(h.Epochs)
}

// CompileOptions configures a graph for training.
type CompileOptions struct {
	Optimizer Optimizer
	Loss      string
	Metrics   []string
}

// FitOptions configures the backend epoch loop. OnEpochEnd runs
// synchronously after each epoch; the next epoch does not start until it
// returns. A non-nil error aborts the loop.
type FitOptions struct {
	Epochs          int
	BatchSize       int
	ValidationSplit float64
	Shuffle         bool
	OnEpochBegin    func(epoch int) error
	OnEpochEnd      func(epoch int, logs Logs) error
}

// Graph is a sequential computation graph.
type Graph interface {
	Add(layer Layer) error
	Layers() []Layer
	Compile(opts CompileOptions) error
	// Fit runs the epoch loop. The returned history is valid even when an
	// error is returned and holds every completed epoch.
	Fit(ctx context.Context, x, y Tensor, opts FitOptions) (*History, error)
	// Evaluate returns one scalar tensor per name in MetricNames. The
	// caller owns and disposes them.
	Evaluate(x, y Tensor, batchSize int) ([]Tensor, error)
	MetricNames() []string
	// Predict runs a forward pass; the caller owns the result.
	Predict(x Tensor) (Tensor, error)
	// StopTraining asks Fit to return after the epoch in progress.
	StopTraining()
	Dispose()
}

// WeightSnapshotter is implemented by graphs whose parameters can be copied
// out and restored.
type WeightSnapshotter interface {
	Weights() ([][]float32, error)
	SetWeights(weights [][]float32) error
}

// DenseOptions configures a fully connected layer.
type DenseOptions struct {
	Name       string
	Units      int
	Activation string
	UseBias    bool
	InputShape []int
}

// DropoutOptions configures a dropout layer.
type DropoutOptions struct {
	Name       string
	Rate       float64
	InputShape []int
}

// BatchNormOptions configures batch normalization.
type BatchNormOptions struct {
	Name       string
	Axis       int
	Momentum   float64
	Epsilon    float64
	InputShape []int
}

// Conv1DOptions configures a temporal convolution.
type Conv1DOptions struct {
	Name       string
	Filters    int
	KernelSize int
	Strides    int
	Padding    string
	Activation string
	InputShape []int
}

// ActivationOptions configures a standalone activation layer.
type ActivationOptions struct {
	Name       string
	Activation string
	InputShape []int
}

// FlattenOptions configures a flatten layer.
type FlattenOptions struct {
	Name       string
	InputShape []int
}

// OptimizerParams holds the hyperparameters accepted by Backend.Optimizer.
// Zero values select backend defaults.
type OptimizerParams struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
	Momentum     float64
	Rho          float64
	Decay        float64
	Nesterov     bool
}

// Backend builds graphs, layers and optimizers.
type Backend interface {
	Name() string
	NewSequential() Graph
	// Input declares the input shape when the first layer cannot carry it.
	Input(shape []int) Layer
	Dense(opts DenseOptions) Layer
	Dropout(opts DropoutOptions) Layer
	BatchNormalization(opts BatchNormOptions) Layer
	Conv1D(opts Conv1DOptions) Layer
	Activation(opts ActivationOptions) Layer
	Flatten(opts FlattenOptions) Layer
	// Optimizer returns an error for names it does not implement.
	Optimizer(name string, params OptimizerParams) (Optimizer, error)
}
