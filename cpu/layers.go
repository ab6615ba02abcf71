package cpu

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/tsawler/go-fit/backend"
)

// batch is a row-major [rows x cols] buffer; each row is one flattened sample.
type batch struct {
	rows int
	cols int
	data []float64
}

func newBatch(rows, cols int) *batch {
	return &batch{rows: rows, cols: cols, data: make([]float64, rows*cols)}
}

func (b *batch) dense() *mat.Dense {
	return mat.NewDense(b.rows, b.cols, b.data)
}

func batchFromDense(m *mat.Dense) *batch {
	r, c := m.Dims()
	out := newBatch(r, c)
	for i := 0; i < r; i++ {
		mat.Row(out.data[i*c:(i+1)*c], i, m)
	}
	return out
}

// param is one weight buffer. Non-trainable params (running statistics)
// are part of the weight snapshot but receive no gradient.
type param struct {
	name      string
	value     []float64
	grad      []float64
	trainable bool
}

func newParam(name string, size int, trainable bool) *param {
	p := &param{name: name, value: make([]float64, size), trainable: trainable}
	if trainable {
		p.grad = make([]float64, size)
	}
	return p
}

func (p *param) zeroGrad() {
	for i := range p.grad {
		p.grad[i] = 0
	}
}

// layerSpec is what Backend constructors return. Graph.Add instantiates a
// fresh runtimeLayer from it so no weights are ever shared between graphs.
type layerSpec interface {
	backend.Layer
	declaredInputShape() []int
	instantiate() runtimeLayer
}

type runtimeLayer interface {
	backend.Layer
	setName(name string)
	build(inputShape []int, rng *rand.Rand) ([]int, error)
	forward(x *batch, training bool, rng *rand.Rand) (*batch, error)
	backward(grad *batch) (*batch, error)
	params() []*param
}

type layerBase struct {
	name string
	kind string
}

func (l *layerBase) Name() string        { return l.name }
func (l *layerBase) Kind() string        { return l.kind }
func (l *layerBase) setName(name string) { l.name = name }

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func copyShape(shape []int) []int {
	if shape == nil {
		return nil
	}
	out := make([]int, len(shape))
	copy(out, shape)
	return out
}

func glorotUniform(rng *rand.Rand, values []float64, fanIn, fanOut int) {
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	for i := range values {
		values[i] = (rng.Float64()*2 - 1) * limit
	}
}

// inputLayer only declares the input shape.
type inputLayer struct {
	layerBase
	shape []int
}

func (l *inputLayer) declaredInputShape() []int { return copyShape(l.shape) }

func (l *inputLayer) instantiate() runtimeLayer {
	return &inputLayer{layerBase: l.layerBase, shape: copyShape(l.shape)}
}

func (l *inputLayer) build(inputShape []int, _ *rand.Rand) ([]int, error) {
	if numElements(inputShape) != numElements(l.shape) {
		return nil, fmt.Errorf("input layer shape %v does not match %v", l.shape, inputShape)
	}
	return copyShape(l.shape), nil
}

func (l *inputLayer) forward(x *batch, _ bool, _ *rand.Rand) (*batch, error) { return x, nil }
func (l *inputLayer) backward(grad *batch) (*batch, error)                   { return grad, nil }
func (l *inputLayer) params() []*param                                       { return nil }

// denseLayer computes act(x·W + b) over the flattened input.
type denseLayer struct {
	layerBase
	opts backend.DenseOptions
	act  activation
	in   int
	w, b *param

	x, z, a *batch
}

func (l *denseLayer) declaredInputShape() []int { return copyShape(l.opts.InputShape) }

func (l *denseLayer) instantiate() runtimeLayer {
	opts := l.opts
	opts.InputShape = copyShape(l.opts.InputShape)
	return &denseLayer{layerBase: l.layerBase, opts: opts}
}

func (l *denseLayer) build(inputShape []int, rng *rand.Rand) ([]int, error) {
	if l.opts.Units <= 0 {
		return nil, fmt.Errorf("dense layer %s: units must be positive, got %d", l.name, l.opts.Units)
	}
	act, err := newActivation(l.opts.Activation)
	if err != nil {
		return nil, fmt.Errorf("dense layer %s: %v", l.name, err)
	}
	l.act = act
	l.in = numElements(inputShape)
	l.w = newParam(l.name+"/kernel", l.in*l.opts.Units, true)
	glorotUniform(rng, l.w.value, l.in, l.opts.Units)
	if l.opts.UseBias {
		l.b = newParam(l.name+"/bias", l.opts.Units, true)
	}
	return []int{l.opts.Units}, nil
}

func (l *denseLayer) forward(x *batch, _ bool, _ *rand.Rand) (*batch, error) {
	if x.cols != l.in {
		return nil, fmt.Errorf("dense layer %s: expected %d input features, got %d", l.name, l.in, x.cols)
	}
	units := l.opts.Units
	var zm mat.Dense
	zm.Mul(x.dense(), mat.NewDense(l.in, units, l.w.value))
	z := batchFromDense(&zm)
	if l.b != nil {
		for r := 0; r < z.rows; r++ {
			floats.Add(z.data[r*units:(r+1)*units], l.b.value)
		}
	}
	l.x, l.z = x, z
	l.a = &batch{rows: z.rows, cols: units, data: l.act.forward(z.data, units)}
	return l.a, nil
}

func (l *denseLayer) backward(grad *batch) (*batch, error) {
	if l.x == nil {
		return nil, fmt.Errorf("dense layer %s: backward called before forward", l.name)
	}
	units := l.opts.Units
	dz := &batch{rows: grad.rows, cols: units, data: l.act.backward(grad.data, l.z.data, l.a.data, units)}
	dzm := dz.dense()

	var dw mat.Dense
	dw.Mul(l.x.dense().T(), dzm)
	copy(l.w.grad, batchFromDense(&dw).data)

	if l.b != nil {
		l.b.zeroGrad()
		for r := 0; r < dz.rows; r++ {
			floats.Add(l.b.grad, dz.data[r*units:(r+1)*units])
		}
	}

	var dx mat.Dense
	dx.Mul(dzm, mat.NewDense(l.in, units, l.w.value).T())
	return batchFromDense(&dx), nil
}

func (l *denseLayer) params() []*param {
	if l.b != nil {
		return []*param{l.w, l.b}
	}
	return []*param{l.w}
}

// dropoutLayer zeroes a fraction of inputs during training and rescales the
// rest; it is the identity at inference.
type dropoutLayer struct {
	layerBase
	opts backend.DropoutOptions
	mask []float64
}

func (l *dropoutLayer) declaredInputShape() []int { return copyShape(l.opts.InputShape) }

func (l *dropoutLayer) instantiate() runtimeLayer {
	opts := l.opts
	opts.InputShape = copyShape(l.opts.InputShape)
	return &dropoutLayer{layerBase: l.layerBase, opts: opts}
}

func (l *dropoutLayer) build(inputShape []int, _ *rand.Rand) ([]int, error) {
	if l.opts.Rate < 0 || l.opts.Rate >= 1 {
		return nil, fmt.Errorf("dropout layer %s: rate must be in [0, 1), got %v", l.name, l.opts.Rate)
	}
	return copyShape(inputShape), nil
}

func (l *dropoutLayer) forward(x *batch, training bool, rng *rand.Rand) (*batch, error) {
	if !training || l.opts.Rate == 0 {
		l.mask = nil
		return x, nil
	}
	keep := 1 - l.opts.Rate
	l.mask = make([]float64, len(x.data))
	out := newBatch(x.rows, x.cols)
	for i, v := range x.data {
		if rng.Float64() < keep {
			l.mask[i] = 1 / keep
			out.data[i] = v / keep
		}
	}
	return out, nil
}

func (l *dropoutLayer) backward(grad *batch) (*batch, error) {
	if l.mask == nil {
		return grad, nil
	}
	out := newBatch(grad.rows, grad.cols)
	for i, g := range grad.data {
		out.data[i] = g * l.mask[i]
	}
	return out, nil
}

func (l *dropoutLayer) params() []*param { return nil }

// activationLayer applies a nonlinearity along the last axis.
type activationLayer struct {
	layerBase
	opts  backend.ActivationOptions
	act   activation
	group int
	z, a  *batch
}

func (l *activationLayer) declaredInputShape() []int { return copyShape(l.opts.InputShape) }

func (l *activationLayer) instantiate() runtimeLayer {
	opts := l.opts
	opts.InputShape = copyShape(l.opts.InputShape)
	return &activationLayer{layerBase: l.layerBase, opts: opts}
}

func (l *activationLayer) build(inputShape []int, _ *rand.Rand) ([]int, error) {
	act, err := newActivation(l.opts.Activation)
	if err != nil {
		return nil, fmt.Errorf("activation layer %s: %v", l.name, err)
	}
	l.act = act
	l.group = inputShape[len(inputShape)-1]
	return copyShape(inputShape), nil
}

func (l *activationLayer) forward(x *batch, _ bool, _ *rand.Rand) (*batch, error) {
	l.z = x
	l.a = &batch{rows: x.rows, cols: x.cols, data: l.act.forward(x.data, l.group)}
	return l.a, nil
}

func (l *activationLayer) backward(grad *batch) (*batch, error) {
	return &batch{rows: grad.rows, cols: grad.cols, data: l.act.backward(grad.data, l.z.data, l.a.data, l.group)}, nil
}

func (l *activationLayer) params() []*param { return nil }

// flattenLayer collapses every non-batch dimension. Rows are already
// stored flat, so only the declared shape changes.
type flattenLayer struct {
	layerBase
	opts backend.FlattenOptions
}

func (l *flattenLayer) declaredInputShape() []int { return copyShape(l.opts.InputShape) }

func (l *flattenLayer) instantiate() runtimeLayer {
	opts := l.opts
	opts.InputShape = copyShape(l.opts.InputShape)
	return &flattenLayer{layerBase: l.layerBase, opts: opts}
}

func (l *flattenLayer) build(inputShape []int, _ *rand.Rand) ([]int, error) {
	return []int{numElements(inputShape)}, nil
}

func (l *flattenLayer) forward(x *batch, _ bool, _ *rand.Rand) (*batch, error) { return x, nil }
func (l *flattenLayer) backward(grad *batch) (*batch, error)                   { return grad, nil }
func (l *flattenLayer) params() []*param                                       { return nil }
