package training

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/tsawler/go-fit/backend"
)

// fakeTensor is a minimal backend.Tensor that records disposal.
type fakeTensor struct {
	shape    []int
	data     []float32
	disposed bool
}

func newFakeTensor(data []float32, shape ...int) *fakeTensor {
	return &fakeTensor{shape: shape, data: data}
}

func (t *fakeTensor) Shape() []int { return t.shape }
func (t *fakeTensor) Size() int    { return len(t.data) }
func (t *fakeTensor) Dispose()     { t.disposed = true }
func (t *fakeTensor) IsDisposed() bool {
	return t.disposed
}

func (t *fakeTensor) Data() ([]float32, error) {
	if t.disposed {
		return nil, errors.New("disposed")
	}
	return append([]float32(nil), t.data...), nil
}

type fakeOptimizer struct {
	name string
	lr   float64
}

func (o fakeOptimizer) Name() string          { return o.name }
func (o fakeOptimizer) LearningRate() float64 { return o.lr }

// fakeBackend only builds optimizers; graphs are constructed directly.
type fakeBackend struct {
	backend.Backend
	optimizerErr error
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Optimizer(name string, p backend.OptimizerParams) (backend.Optimizer, error) {
	if b.optimizerErr != nil {
		return nil, b.optimizerErr
	}
	return fakeOptimizer{name: name, lr: p.LearningRate}, nil
}

// scriptedGraph replays a fixed series of epoch logs. After epoch e its
// single weight buffer holds {e}.
type scriptedGraph struct {
	mu sync.Mutex

	script     []backend.Logs
	failAt     int
	compileErr error
	fitStarted chan struct{}
	release    chan struct{}

	compiled     bool
	compileOpts  backend.CompileOptions
	stop         bool
	stopCalls    int
	weights      [][]float32
	restored     [][]float32
	metricNames  []string
	evalValues   []float32
	evalOutputs  []*fakeTensor
	predictCalls int
}

func newScriptedGraph(script ...backend.Logs) *scriptedGraph {
	return &scriptedGraph{script: script, failAt: -1, weights: [][]float32{{-1}}}
}

// lossSeries builds a script with loss and val_loss values.
func lossSeries(loss, valLoss []float64) []backend.Logs {
	out := make([]backend.Logs, len(loss))
	for i := range loss {
		out[i] = backend.Logs{"loss": loss[i]}
		if valLoss != nil {
			out[i]["val_loss"] = valLoss[i]
		}
	}
	return out
}

func (g *scriptedGraph) Add(backend.Layer) error { return nil }
func (g *scriptedGraph) Layers() []backend.Layer { return nil }

func (g *scriptedGraph) Compile(opts backend.CompileOptions) error {
	if g.compileErr != nil {
		return g.compileErr
	}
	g.compiled = true
	g.compileOpts = opts
	return nil
}

func (g *scriptedGraph) Fit(ctx context.Context, x, y backend.Tensor, opts backend.FitOptions) (*backend.History, error) {
	history := backend.NewHistory()
	g.stop = false
	if g.fitStarted != nil {
		close(g.fitStarted)
	}
	if g.release != nil {
		<-g.release
	}
	for epoch := 0; epoch < opts.Epochs && epoch < len(g.script); epoch++ {
		if err := ctx.Err(); err != nil {
			return history, err
		}
		if opts.OnEpochBegin != nil {
			if err := opts.OnEpochBegin(epoch); err != nil {
				return history, err
			}
		}
		if epoch == g.failAt {
			return history, errors.Errorf("device lost at epoch %d", epoch)
		}
		g.mu.Lock()
		g.weights = [][]float32{{float32(epoch)}}
		g.mu.Unlock()

		logs := g.script[epoch].Clone()
		history.Record(epoch, logs)
		if opts.OnEpochEnd != nil {
			if err := opts.OnEpochEnd(epoch, logs.Clone()); err != nil {
				return history, err
			}
		}
		if g.stop {
			break
		}
	}
	return history, nil
}

func (g *scriptedGraph) Evaluate(x, y backend.Tensor, batchSize int) ([]backend.Tensor, error) {
	out := make([]backend.Tensor, len(g.evalValues))
	for i, v := range g.evalValues {
		t := newFakeTensor([]float32{v})
		g.evalOutputs = append(g.evalOutputs, t)
		out[i] = t
	}
	return out, nil
}

func (g *scriptedGraph) MetricNames() []string { return g.metricNames }

func (g *scriptedGraph) Predict(x backend.Tensor) (backend.Tensor, error) {
	g.predictCalls++
	return newFakeTensor([]float32{1, 2}, 1, 2), nil
}

func (g *scriptedGraph) StopTraining() {
	g.stop = true
	g.stopCalls++
}

func (g *scriptedGraph) Dispose() {}

func (g *scriptedGraph) Weights() ([][]float32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([][]float32, len(g.weights))
	for i, w := range g.weights {
		out[i] = append([]float32(nil), w...)
	}
	return out, nil
}

func (g *scriptedGraph) SetWeights(w [][]float32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.restored = w
	g.weights = w
	return nil
}

// testData returns a fresh pair of input and label tensors.
func testData() (*fakeTensor, *fakeTensor) {
	return newFakeTensor(make([]float32, 8), 4, 2), newFakeTensor(make([]float32, 4), 4, 1)
}

// testConfig is a small valid config without early stopping.
func testConfig(epochs int) Config {
	cfg := DefaultConfig()
	cfg.Epochs = epochs
	cfg.BatchSize = 2
	cfg.Shuffle = false
	return cfg
}
