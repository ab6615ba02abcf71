// Package cpu is a pure-Go reference implementation of backend.Backend. It
// favors clarity over speed and is meant for tests, examples and small
// tabular models.
package cpu

import (
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tsawler/go-fit/backend"
)

// Backend builds CPU graphs. Each graph draws its own random source from
// the backend seed sequence, so graphs never share mutable state.
type Backend struct {
	mu     sync.Mutex
	seeds  *rand.Rand
	logger *logrus.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithSeed makes weight initialization, dropout and shuffling reproducible.
func WithSeed(seed int64) Option {
	return func(b *Backend) {
		b.seeds = rand.New(rand.NewSource(seed))
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *logrus.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a CPU backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		seeds:  rand.New(rand.NewSource(time.Now().UnixNano())),
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var _ backend.Backend = (*Backend)(nil)

// Name identifies the backend.
func (b *Backend) Name() string { return "cpu" }

// NewSequential creates an empty sequential graph.
func (b *Backend) NewSequential() backend.Graph {
	b.mu.Lock()
	seed := b.seeds.Int63()
	b.mu.Unlock()
	return newSequential(rand.New(rand.NewSource(seed)), b.logger)
}

// Input declares an input shape.
func (b *Backend) Input(shape []int) backend.Layer {
	return &inputLayer{layerBase: layerBase{kind: "input"}, shape: copyShape(shape)}
}

// Dense creates a fully connected layer.
func (b *Backend) Dense(opts backend.DenseOptions) backend.Layer {
	opts.InputShape = copyShape(opts.InputShape)
	return &denseLayer{layerBase: layerBase{name: opts.Name, kind: "dense"}, opts: opts}
}

// Dropout creates a dropout layer.
func (b *Backend) Dropout(opts backend.DropoutOptions) backend.Layer {
	opts.InputShape = copyShape(opts.InputShape)
	return &dropoutLayer{layerBase: layerBase{name: opts.Name, kind: "dropout"}, opts: opts}
}

// BatchNormalization creates a batch normalization layer.
func (b *Backend) BatchNormalization(opts backend.BatchNormOptions) backend.Layer {
	opts.InputShape = copyShape(opts.InputShape)
	return &batchNormLayer{layerBase: layerBase{name: opts.Name, kind: "batchNormalization"}, opts: opts}
}

// Conv1D creates a temporal convolution layer.
func (b *Backend) Conv1D(opts backend.Conv1DOptions) backend.Layer {
	opts.InputShape = copyShape(opts.InputShape)
	return &conv1DLayer{layerBase: layerBase{name: opts.Name, kind: "conv1d"}, opts: opts}
}

// Activation creates a standalone activation layer.
func (b *Backend) Activation(opts backend.ActivationOptions) backend.Layer {
	opts.InputShape = copyShape(opts.InputShape)
	return &activationLayer{layerBase: layerBase{name: opts.Name, kind: "activation"}, opts: opts}
}

// Flatten creates a flatten layer.
func (b *Backend) Flatten(opts backend.FlattenOptions) backend.Layer {
	opts.InputShape = copyShape(opts.InputShape)
	return &flattenLayer{layerBase: layerBase{name: opts.Name, kind: "flatten"}, opts: opts}
}

// Optimizer creates one of sgd, adam, rmsprop, adagrad or adadelta.
func (b *Backend) Optimizer(name string, params backend.OptimizerParams) (backend.Optimizer, error) {
	return newOptimizer(name, params)
}
