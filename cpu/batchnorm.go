package cpu

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/tsawler/go-fit/backend"
)

// batchNormLayer normalizes the last axis. Statistics are taken over the
// batch and every other axis; moving averages are used at inference.
type batchNormLayer struct {
	layerBase
	opts backend.BatchNormOptions

	channels   int
	gamma      *param
	beta       *param
	movingMean *param
	movingVar  *param

	xhat   []float64
	invStd []float64
	cache  bool
}

func (l *batchNormLayer) declaredInputShape() []int { return copyShape(l.opts.InputShape) }

func (l *batchNormLayer) instantiate() runtimeLayer {
	opts := l.opts
	opts.InputShape = copyShape(l.opts.InputShape)
	return &batchNormLayer{layerBase: l.layerBase, opts: opts}
}

func (l *batchNormLayer) build(inputShape []int, _ *rand.Rand) ([]int, error) {
	// Axis counts the batch dimension, so the last axis is len(inputShape).
	if l.opts.Axis != -1 && l.opts.Axis != len(inputShape) {
		return nil, fmt.Errorf("batchnorm layer %s: only the last axis is supported, got axis %d for input %v", l.name, l.opts.Axis, inputShape)
	}
	if l.opts.Epsilon <= 0 {
		return nil, fmt.Errorf("batchnorm layer %s: epsilon must be positive", l.name)
	}
	l.channels = inputShape[len(inputShape)-1]
	l.gamma = newParam(l.name+"/gamma", l.channels, true)
	l.beta = newParam(l.name+"/beta", l.channels, true)
	l.movingMean = newParam(l.name+"/moving_mean", l.channels, false)
	l.movingVar = newParam(l.name+"/moving_variance", l.channels, false)
	for c := 0; c < l.channels; c++ {
		l.gamma.value[c] = 1
		l.movingVar.value[c] = 1
	}
	return copyShape(inputShape), nil
}

func (l *batchNormLayer) forward(x *batch, training bool, _ *rand.Rand) (*batch, error) {
	if x.cols%l.channels != 0 {
		return nil, fmt.Errorf("batchnorm layer %s: %d values per sample not divisible by %d channels", l.name, x.cols, l.channels)
	}
	C := l.channels
	out := newBatch(x.rows, x.cols)

	if !training {
		l.cache = false
		for i, v := range x.data {
			c := i % C
			std := math.Sqrt(l.movingVar.value[c] + l.opts.Epsilon)
			out.data[i] = l.gamma.value[c]*(v-l.movingMean.value[c])/std + l.beta.value[c]
		}
		return out, nil
	}

	count := float64(len(x.data) / C)
	mean := make([]float64, C)
	for i, v := range x.data {
		mean[i%C] += v
	}
	for c := range mean {
		mean[c] /= count
	}
	variance := make([]float64, C)
	for i, v := range x.data {
		d := v - mean[i%C]
		variance[i%C] += d * d
	}
	l.invStd = make([]float64, C)
	for c := range variance {
		variance[c] /= count
		l.invStd[c] = 1 / math.Sqrt(variance[c]+l.opts.Epsilon)
	}

	l.xhat = make([]float64, len(x.data))
	for i, v := range x.data {
		c := i % C
		l.xhat[i] = (v - mean[c]) * l.invStd[c]
		out.data[i] = l.gamma.value[c]*l.xhat[i] + l.beta.value[c]
	}

	m := l.opts.Momentum
	for c := 0; c < C; c++ {
		l.movingMean.value[c] = l.movingMean.value[c]*m + mean[c]*(1-m)
		l.movingVar.value[c] = l.movingVar.value[c]*m + variance[c]*(1-m)
	}
	l.cache = true
	return out, nil
}

func (l *batchNormLayer) backward(grad *batch) (*batch, error) {
	if !l.cache {
		return nil, fmt.Errorf("batchnorm layer %s: backward requires a training forward pass", l.name)
	}
	C := l.channels
	count := float64(len(grad.data) / C)
	l.gamma.zeroGrad()
	l.beta.zeroGrad()

	sumDxhat := make([]float64, C)
	sumDxhatXhat := make([]float64, C)
	dxhat := make([]float64, len(grad.data))
	for i, g := range grad.data {
		c := i % C
		l.gamma.grad[c] += g * l.xhat[i]
		l.beta.grad[c] += g
		dxhat[i] = g * l.gamma.value[c]
		sumDxhat[c] += dxhat[i]
		sumDxhatXhat[c] += dxhat[i] * l.xhat[i]
	}

	dx := newBatch(grad.rows, grad.cols)
	for i := range dx.data {
		c := i % C
		dx.data[i] = l.invStd[c] / count * (count*dxhat[i] - sumDxhat[c] - l.xhat[i]*sumDxhatXhat[c])
	}
	return dx, nil
}

func (l *batchNormLayer) params() []*param {
	return []*param{l.gamma, l.beta, l.movingMean, l.movingVar}
}
