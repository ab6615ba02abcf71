package cpu

import (
	"fmt"
	"math"
	"strings"
)

// activation applies an elementwise or last-axis nonlinearity to a flat
// batch buffer. group is the size of the last axis (used by softmax).
type activation interface {
	name() string
	forward(z []float64, group int) []float64
	// backward maps dL/da to dL/dz given the pre-activation z and output a.
	backward(grad, z, a []float64, group int) []float64
}

const leakyReLUSlope = 0.2

func newActivation(name string) (activation, error) {
	switch canonicalActivation(name) {
	case "linear":
		return linearActivation{}, nil
	case "relu":
		return reluActivation{}, nil
	case "sigmoid":
		return sigmoidActivation{}, nil
	case "tanh":
		return tanhActivation{}, nil
	case "softmax":
		return softmaxActivation{}, nil
	case "elu":
		return eluActivation{}, nil
	case "leakyrelu":
		return leakyReLUActivation{}, nil
	default:
		return nil, fmt.Errorf("unsupported activation %q", name)
	}
}

func canonicalActivation(name string) string {
	n := strings.ToLower(strings.ReplaceAll(name, "_", ""))
	if n == "" || n == "none" {
		return "linear"
	}
	return n
}

type linearActivation struct{}

func (linearActivation) name() string { return "linear" }

func (linearActivation) forward(z []float64, _ int) []float64 {
	out := make([]float64, len(z))
	copy(out, z)
	return out
}

func (linearActivation) backward(grad, _, _ []float64, _ int) []float64 {
	out := make([]float64, len(grad))
	copy(out, grad)
	return out
}

type reluActivation struct{}

func (reluActivation) name() string { return "relu" }

func (reluActivation) forward(z []float64, _ int) []float64 {
	out := make([]float64, len(z))
	for i, v := range z {
		if v > 0 {
			out[i] = v
		}
	}
	return out
}

func (reluActivation) backward(grad, z, _ []float64, _ int) []float64 {
	out := make([]float64, len(grad))
	for i, g := range grad {
		if z[i] > 0 {
			out[i] = g
		}
	}
	return out
}

type sigmoidActivation struct{}

func (sigmoidActivation) name() string { return "sigmoid" }

func (sigmoidActivation) forward(z []float64, _ int) []float64 {
	out := make([]float64, len(z))
	for i, v := range z {
		out[i] = 1 / (1 + math.Exp(-v))
	}
	return out
}

func (sigmoidActivation) backward(grad, _, a []float64, _ int) []float64 {
	out := make([]float64, len(grad))
	for i, g := range grad {
		out[i] = g * a[i] * (1 - a[i])
	}
	return out
}

type tanhActivation struct{}

func (tanhActivation) name() string { return "tanh" }

func (tanhActivation) forward(z []float64, _ int) []float64 {
	out := make([]float64, len(z))
	for i, v := range z {
		out[i] = math.Tanh(v)
	}
	return out
}

func (tanhActivation) backward(grad, _, a []float64, _ int) []float64 {
	out := make([]float64, len(grad))
	for i, g := range grad {
		out[i] = g * (1 - a[i]*a[i])
	}
	return out
}

type eluActivation struct{}

func (eluActivation) name() string { return "elu" }

func (eluActivation) forward(z []float64, _ int) []float64 {
	out := make([]float64, len(z))
	for i, v := range z {
		if v > 0 {
			out[i] = v
		} else {
			out[i] = math.Exp(v) - 1
		}
	}
	return out
}

func (eluActivation) backward(grad, z, a []float64, _ int) []float64 {
	out := make([]float64, len(grad))
	for i, g := range grad {
		if z[i] > 0 {
			out[i] = g
		} else {
			out[i] = g * (a[i] + 1)
		}
	}
	return out
}

type leakyReLUActivation struct{}

func (leakyReLUActivation) name() string { return "leakyRelu" }

func (leakyReLUActivation) forward(z []float64, _ int) []float64 {
	out := make([]float64, len(z))
	for i, v := range z {
		if v > 0 {
			out[i] = v
		} else {
			out[i] = leakyReLUSlope * v
		}
	}
	return out
}

func (leakyReLUActivation) backward(grad, z, _ []float64, _ int) []float64 {
	out := make([]float64, len(grad))
	for i, g := range grad {
		if z[i] > 0 {
			out[i] = g
		} else {
			out[i] = leakyReLUSlope * g
		}
	}
	return out
}

// softmaxActivation normalizes every consecutive run of group values.
type softmaxActivation struct{}

func (softmaxActivation) name() string { return "softmax" }

func (softmaxActivation) forward(z []float64, group int) []float64 {
	out := make([]float64, len(z))
	for start := 0; start < len(z); start += group {
		row := z[start : start+group]
		maxVal := row[0]
		for _, v := range row[1:] {
			if v > maxVal {
				maxVal = v
			}
		}
		sum := 0.0
		for j, v := range row {
			e := math.Exp(v - maxVal)
			out[start+j] = e
			sum += e
		}
		for j := range row {
			out[start+j] /= sum
		}
	}
	return out
}

func (softmaxActivation) backward(grad, _, a []float64, group int) []float64 {
	out := make([]float64, len(grad))
	for start := 0; start < len(grad); start += group {
		dot := 0.0
		for j := 0; j < group; j++ {
			dot += grad[start+j] * a[start+j]
		}
		for j := 0; j < group; j++ {
			out[start+j] = a[start+j] * (grad[start+j] - dot)
		}
	}
	return out
}
