package cpu

import (
	"context"
	"math"
	"testing"

	"github.com/tsawler/go-fit/backend"
	"github.com/tsawler/go-fit/errs"
	"github.com/tsawler/go-fit/tensor"
)

func buildRegressionGraph(t *testing.T, b *Backend, optName string) *Sequential {
	t.Helper()
	g := b.NewSequential().(*Sequential)
	if err := g.Add(b.Dense(backend.DenseOptions{Units: 4, Activation: "tanh", UseBias: true, InputShape: []int{2}})); err != nil {
		t.Fatalf("add hidden: %v", err)
	}
	if err := g.Add(b.Dense(backend.DenseOptions{Units: 1, UseBias: true})); err != nil {
		t.Fatalf("add output: %v", err)
	}
	opt, err := b.Optimizer(optName, backend.OptimizerParams{LearningRate: 0.05})
	if err != nil {
		t.Fatalf("optimizer: %v", err)
	}
	if err := g.Compile(backend.CompileOptions{Optimizer: opt, Loss: "meanSquaredError", Metrics: []string{"mae"}}); err != nil {
		t.Fatalf("compile: %v", err)
	}
	return g
}

func regressionData(t *testing.T, n int) (*tensor.Tensor, *tensor.Tensor) {
	t.Helper()
	xs := make([]float32, 0, n*2)
	ys := make([]float32, 0, n)
	for i := 0; i < n; i++ {
		a := float32(i)/float32(n) - 0.5
		c := float32(i%3) / 3
		xs = append(xs, a, c)
		ys = append(ys, 0.5*a-0.25*c)
	}
	x, err := tensor.New(xs, n, 2)
	if err != nil {
		t.Fatal(err)
	}
	y, err := tensor.New(ys, n, 1)
	if err != nil {
		t.Fatal(err)
	}
	return x, y
}

// checkGradients compares backpropagated parameter gradients against
// central finite differences of the training-mode loss. Graphs under test
// must not contain dropout.
func checkGradients(t *testing.T, g *Sequential, x, y *batch, tol float64) {
	t.Helper()
	lossAt := func() float64 {
		pred, err := g.forward(x, true)
		if err != nil {
			t.Fatal(err)
		}
		return g.loss.value(pred.data, y.data, pred.rows)
	}

	pred, err := g.forward(x, true)
	if err != nil {
		t.Fatal(err)
	}
	grad := &batch{rows: pred.rows, cols: pred.cols, data: g.loss.gradient(pred.data, y.data, pred.rows)}
	for i := len(g.layers) - 1; i >= 0; i-- {
		if grad, err = g.layers[i].backward(grad); err != nil {
			t.Fatal(err)
		}
	}

	const h = 1e-6
	for _, p := range g.allParams() {
		if !p.trainable {
			continue
		}
		for i := range p.value {
			orig := p.value[i]
			p.value[i] = orig + h
			plus := lossAt()
			p.value[i] = orig - h
			minus := lossAt()
			p.value[i] = orig
			numeric := (plus - minus) / (2 * h)
			if math.Abs(numeric-p.grad[i]) > tol {
				t.Fatalf("%s[%d]: analytic %v, numeric %v", p.name, i, p.grad[i], numeric)
			}
		}
	}
}

func TestDenseGradientMatchesFiniteDifference(t *testing.T) {
	b := New(WithSeed(7))
	g := buildRegressionGraph(t, b, "sgd")

	x := &batch{rows: 3, cols: 2, data: []float64{0.1, -0.3, 0.5, 0.2, -0.7, 0.9}}
	y := &batch{rows: 3, cols: 1, data: []float64{0.2, -0.1, 0.4}}
	checkGradients(t, g, x, y, 1e-5)
}

func TestConvSoftmaxGradientMatchesFiniteDifference(t *testing.T) {
	b := New(WithSeed(11))
	g := b.NewSequential().(*Sequential)
	layers := []backend.Layer{
		b.Conv1D(backend.Conv1DOptions{Filters: 3, KernelSize: 2, Strides: 1, Padding: "same", Activation: "tanh", InputShape: []int{4, 2}}),
		b.Flatten(backend.FlattenOptions{}),
		b.Dense(backend.DenseOptions{Units: 3, Activation: "softmax", UseBias: true}),
	}
	for _, l := range layers {
		if err := g.Add(l); err != nil {
			t.Fatalf("add %s: %v", l.Kind(), err)
		}
	}
	opt, _ := b.Optimizer("sgd", backend.OptimizerParams{LearningRate: 0.1})
	if err := g.Compile(backend.CompileOptions{Optimizer: opt, Loss: "categoricalCrossentropy"}); err != nil {
		t.Fatal(err)
	}

	x := &batch{rows: 2, cols: 8, data: []float64{
		0.1, -0.2, 0.3, 0.4, -0.5, 0.6, 0.7, -0.8,
		-0.3, 0.2, 0.1, -0.6, 0.5, 0.4, -0.2, 0.9,
	}}
	y := &batch{rows: 2, cols: 3, data: []float64{1, 0, 0, 0, 0, 1}}
	checkGradients(t, g, x, y, 1e-5)
}

func TestBatchNormGradientMatchesFiniteDifference(t *testing.T) {
	b := New(WithSeed(12))
	g := b.NewSequential().(*Sequential)
	layers := []backend.Layer{
		b.Dense(backend.DenseOptions{Units: 3, UseBias: true, InputShape: []int{2}}),
		b.BatchNormalization(backend.BatchNormOptions{Axis: -1, Momentum: 0.9, Epsilon: 1e-3}),
		b.Dense(backend.DenseOptions{Units: 1, Activation: "sigmoid", UseBias: true}),
	}
	for _, l := range layers {
		if err := g.Add(l); err != nil {
			t.Fatalf("add %s: %v", l.Kind(), err)
		}
	}
	opt, _ := b.Optimizer("sgd", backend.OptimizerParams{LearningRate: 0.1})
	if err := g.Compile(backend.CompileOptions{Optimizer: opt, Loss: "binaryCrossentropy"}); err != nil {
		t.Fatal(err)
	}

	x := &batch{rows: 4, cols: 2, data: []float64{0.1, 0.9, -0.4, 0.3, 0.8, -0.6, -0.2, -0.1}}
	y := &batch{rows: 4, cols: 1, data: []float64{1, 0, 1, 0}}
	checkGradients(t, g, x, y, 1e-5)
}

func TestFitReducesLoss(t *testing.T) {
	for _, name := range []string{"sgd", "adam", "rmsprop", "adagrad"} {
		t.Run(name, func(t *testing.T) {
			b := New(WithSeed(1))
			g := buildRegressionGraph(t, b, name)
			x, y := regressionData(t, 30)

			history, err := g.Fit(context.Background(), x, y, backend.FitOptions{Epochs: 40, BatchSize: 5, Shuffle: true})
			if err != nil {
				t.Fatalf("fit: %v", err)
			}
			losses := history.Metrics["loss"]
			if len(losses) != 40 {
				t.Fatalf("expected 40 loss entries, got %d", len(losses))
			}
			if losses[len(losses)-1] >= losses[0] {
				t.Errorf("loss did not decrease: first %v last %v", losses[0], losses[len(losses)-1])
			}
		})
	}
}

func TestFitValidationSplitRecordsValMetrics(t *testing.T) {
	b := New(WithSeed(3))
	g := buildRegressionGraph(t, b, "adam")
	x, y := regressionData(t, 10)

	var seen []int
	history, err := g.Fit(context.Background(), x, y, backend.FitOptions{
		Epochs:          3,
		BatchSize:       2,
		ValidationSplit: 0.2,
		OnEpochEnd: func(epoch int, logs backend.Logs) error {
			seen = append(seen, epoch)
			if _, ok := logs["val_loss"]; !ok {
				t.Errorf("epoch %d logs missing val_loss: %v", epoch, logs)
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if len(seen) != 3 || seen[0] != 0 || seen[2] != 2 {
		t.Errorf("unexpected epoch callbacks: %v", seen)
	}
	for _, key := range []string{"loss", "mae", "val_loss", "val_mae"} {
		if len(history.Metrics[key]) != 3 {
			t.Errorf("history[%s] has %d entries", key, len(history.Metrics[key]))
		}
	}
}

func TestFitRejectsEmptyValidationPartition(t *testing.T) {
	b := New(WithSeed(3))
	g := buildRegressionGraph(t, b, "adam")
	x, y := regressionData(t, 3)

	if _, err := g.Fit(context.Background(), x, y, backend.FitOptions{Epochs: 1, BatchSize: 1, ValidationSplit: 0.2}); err == nil {
		t.Fatal("expected error when the validation partition is empty")
	}
}

func TestStopTrainingEndsAfterCurrentEpoch(t *testing.T) {
	b := New(WithSeed(4))
	g := buildRegressionGraph(t, b, "sgd")
	x, y := regressionData(t, 8)

	history, err := g.Fit(context.Background(), x, y, backend.FitOptions{
		Epochs:    10,
		BatchSize: 4,
		OnEpochEnd: func(epoch int, _ backend.Logs) error {
			if epoch == 1 {
				g.StopTraining()
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if history.Len() != 2 {
		t.Errorf("expected 2 epochs, got %d", history.Len())
	}
}

func TestFitHonorsCancelledContext(t *testing.T) {
	b := New(WithSeed(4))
	g := buildRegressionGraph(t, b, "sgd")
	x, y := regressionData(t, 8)

	ctx, cancel := context.WithCancel(context.Background())
	history, err := g.Fit(ctx, x, y, backend.FitOptions{
		Epochs:    5,
		BatchSize: 4,
		OnEpochEnd: func(epoch int, _ backend.Logs) error {
			cancel()
			return nil
		},
	})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if history.Len() != 1 {
		t.Errorf("expected the completed epoch in history, got %d", history.Len())
	}
}

func TestEvaluateAndPredict(t *testing.T) {
	b := New(WithSeed(5))
	g := buildRegressionGraph(t, b, "adam")
	x, y := regressionData(t, 6)

	scalars, err := g.Evaluate(x, y, 4)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(scalars) != 2 {
		t.Fatalf("expected loss and mae scalars, got %d", len(scalars))
	}
	if names := g.MetricNames(); names[0] != "loss" || names[1] != "mae" {
		t.Errorf("unexpected metric names %v", names)
	}

	pred, err := g.Predict(x)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if shape := pred.(*tensor.Tensor).Shape(); len(shape) != 2 || shape[0] != 6 || shape[1] != 1 {
		t.Errorf("unexpected prediction shape %v", shape)
	}
}

func TestGraphsDoNotShareWeights(t *testing.T) {
	b := New(WithSeed(6))
	hidden := b.Dense(backend.DenseOptions{Units: 2, UseBias: true, InputShape: []int{2}})

	g1 := b.NewSequential().(*Sequential)
	g2 := b.NewSequential().(*Sequential)
	if err := g1.Add(hidden); err != nil {
		t.Fatal(err)
	}
	if err := g2.Add(hidden); err != nil {
		t.Fatal(err)
	}
	g1.allParams()[0].value[0] = 42
	if g2.allParams()[0].value[0] == 42 {
		t.Fatal("graphs built from the same layer share parameters")
	}
}

func TestWeightsRoundTrip(t *testing.T) {
	b := New(WithSeed(8))
	g := b.NewSequential().(*Sequential)
	if err := g.Add(b.Dense(backend.DenseOptions{Units: 3, UseBias: true, InputShape: []int{2}})); err != nil {
		t.Fatal(err)
	}
	if err := g.Add(b.BatchNormalization(backend.BatchNormOptions{Axis: -1, Momentum: 0.99, Epsilon: 1e-3})); err != nil {
		t.Fatal(err)
	}

	snapshot, err := g.Weights()
	if err != nil {
		t.Fatal(err)
	}
	// kernel, bias, gamma, beta, moving mean, moving variance
	if len(snapshot) != 6 {
		t.Fatalf("expected 6 buffers, got %d", len(snapshot))
	}
	g.allParams()[0].value[0] += 1
	if err := g.SetWeights(snapshot); err != nil {
		t.Fatal(err)
	}
	if got := float32(g.allParams()[0].value[0]); got != snapshot[0][0] {
		t.Errorf("weight not restored: got %v want %v", got, snapshot[0][0])
	}
	if err := g.SetWeights(snapshot[:2]); err == nil {
		t.Error("expected error for a short snapshot")
	}
}

func TestDisposedGraphRejectsCalls(t *testing.T) {
	b := New(WithSeed(9))
	g := buildRegressionGraph(t, b, "sgd")
	x, y := regressionData(t, 4)
	g.Dispose()
	g.Dispose()

	if _, err := g.Fit(context.Background(), x, y, backend.FitOptions{Epochs: 1, BatchSize: 2}); !errs.IsDisposed(err) {
		t.Errorf("expected disposed error from Fit, got %v", err)
	}
	if _, err := g.Predict(x); !errs.IsDisposed(err) {
		t.Errorf("expected disposed error from Predict, got %v", err)
	}
}

func TestCompileRejectsUnknownLoss(t *testing.T) {
	b := New()
	g := b.NewSequential()
	if err := g.Add(b.Dense(backend.DenseOptions{Units: 1, InputShape: []int{1}})); err != nil {
		t.Fatal(err)
	}
	opt, _ := b.Optimizer("sgd", backend.OptimizerParams{LearningRate: 0.1})
	if err := g.Compile(backend.CompileOptions{Optimizer: opt, Loss: "hinge"}); err == nil {
		t.Fatal("expected error for unsupported loss")
	}
}

func TestFirstLayerNeedsInputShape(t *testing.T) {
	b := New()
	g := b.NewSequential()
	if err := g.Add(b.Dense(backend.DenseOptions{Units: 1})); err == nil {
		t.Fatal("expected error when the first layer has no input shape")
	}
}
