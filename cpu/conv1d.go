package cpu

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/tsawler/go-fit/backend"
)

// conv1DLayer convolves a [steps, channels] sample with filters of shape
// [kernel, channels], producing [outSteps, filters].
type conv1DLayer struct {
	layerBase
	opts backend.Conv1DOptions
	act  activation

	steps, channels int
	outSteps        int
	padLeft         int
	kernel, bias    *param

	x, z, a *batch
}

func (l *conv1DLayer) declaredInputShape() []int { return copyShape(l.opts.InputShape) }

func (l *conv1DLayer) instantiate() runtimeLayer {
	opts := l.opts
	opts.InputShape = copyShape(l.opts.InputShape)
	return &conv1DLayer{layerBase: l.layerBase, opts: opts}
}

func (l *conv1DLayer) build(inputShape []int, rng *rand.Rand) ([]int, error) {
	if len(inputShape) != 2 {
		return nil, fmt.Errorf("conv1d layer %s: expected [steps, channels] input, got %v", l.name, inputShape)
	}
	if l.opts.Filters <= 0 || l.opts.KernelSize <= 0 || l.opts.Strides <= 0 {
		return nil, fmt.Errorf("conv1d layer %s: filters, kernel size and strides must be positive", l.name)
	}
	act, err := newActivation(l.opts.Activation)
	if err != nil {
		return nil, fmt.Errorf("conv1d layer %s: %v", l.name, err)
	}
	l.act = act
	l.steps, l.channels = inputShape[0], inputShape[1]

	k, s := l.opts.KernelSize, l.opts.Strides
	switch strings.ToLower(l.opts.Padding) {
	case "", "valid":
		if l.steps < k {
			return nil, fmt.Errorf("conv1d layer %s: kernel size %d exceeds %d steps", l.name, k, l.steps)
		}
		l.outSteps = (l.steps-k)/s + 1
		l.padLeft = 0
	case "same":
		l.outSteps = (l.steps + s - 1) / s
		total := (l.outSteps-1)*s + k - l.steps
		if total < 0 {
			total = 0
		}
		l.padLeft = total / 2
	default:
		return nil, fmt.Errorf("conv1d layer %s: unsupported padding %q", l.name, l.opts.Padding)
	}

	l.kernel = newParam(l.name+"/kernel", k*l.channels*l.opts.Filters, true)
	glorotUniform(rng, l.kernel.value, k*l.channels, k*l.opts.Filters)
	l.bias = newParam(l.name+"/bias", l.opts.Filters, true)
	return []int{l.outSteps, l.opts.Filters}, nil
}

// kernelIndex addresses kernel[kk][c][f].
func (l *conv1DLayer) kernelIndex(kk, c, f int) int {
	return (kk*l.channels+c)*l.opts.Filters + f
}

func (l *conv1DLayer) forward(x *batch, _ bool, _ *rand.Rand) (*batch, error) {
	if x.cols != l.steps*l.channels {
		return nil, fmt.Errorf("conv1d layer %s: expected %d input values per sample, got %d", l.name, l.steps*l.channels, x.cols)
	}
	filters := l.opts.Filters
	z := newBatch(x.rows, l.outSteps*filters)
	for n := 0; n < x.rows; n++ {
		in := x.data[n*x.cols : (n+1)*x.cols]
		out := z.data[n*z.cols : (n+1)*z.cols]
		for o := 0; o < l.outSteps; o++ {
			for f := 0; f < filters; f++ {
				sum := l.bias.value[f]
				for kk := 0; kk < l.opts.KernelSize; kk++ {
					pos := o*l.opts.Strides + kk - l.padLeft
					if pos < 0 || pos >= l.steps {
						continue
					}
					for c := 0; c < l.channels; c++ {
						sum += in[pos*l.channels+c] * l.kernel.value[l.kernelIndex(kk, c, f)]
					}
				}
				out[o*filters+f] = sum
			}
		}
	}
	l.x, l.z = x, z
	l.a = &batch{rows: z.rows, cols: z.cols, data: l.act.forward(z.data, filters)}
	return l.a, nil
}

func (l *conv1DLayer) backward(grad *batch) (*batch, error) {
	if l.x == nil {
		return nil, fmt.Errorf("conv1d layer %s: backward called before forward", l.name)
	}
	filters := l.opts.Filters
	dz := l.act.backward(grad.data, l.z.data, l.a.data, filters)
	l.kernel.zeroGrad()
	l.bias.zeroGrad()

	dx := newBatch(l.x.rows, l.x.cols)
	for n := 0; n < l.x.rows; n++ {
		in := l.x.data[n*l.x.cols : (n+1)*l.x.cols]
		din := dx.data[n*dx.cols : (n+1)*dx.cols]
		dout := dz[n*l.z.cols : (n+1)*l.z.cols]
		for o := 0; o < l.outSteps; o++ {
			for f := 0; f < filters; f++ {
				g := dout[o*filters+f]
				if g == 0 {
					continue
				}
				l.bias.grad[f] += g
				for kk := 0; kk < l.opts.KernelSize; kk++ {
					pos := o*l.opts.Strides + kk - l.padLeft
					if pos < 0 || pos >= l.steps {
						continue
					}
					for c := 0; c < l.channels; c++ {
						idx := l.kernelIndex(kk, c, f)
						l.kernel.grad[idx] += g * in[pos*l.channels+c]
						din[pos*l.channels+c] += g * l.kernel.value[idx]
					}
				}
			}
		}
	}
	return dx, nil
}

func (l *conv1DLayer) params() []*param {
	return []*param{l.kernel, l.bias}
}
