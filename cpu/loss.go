package cpu

import (
	"fmt"
	"math"
	"strings"
)

const probabilityEpsilon = 1e-7

// lossFunc computes a scalar objective over a batch and its gradient with
// respect to the predictions.
type lossFunc interface {
	name() string
	value(pred, target []float64, rows int) float64
	gradient(pred, target []float64, rows int) []float64
}

func newLoss(name string) (lossFunc, error) {
	switch canonicalName(name) {
	case "meansquarederror", "mse":
		return mseLoss{}, nil
	case "meanabsoluteerror", "mae":
		return maeLoss{}, nil
	case "binarycrossentropy":
		return binaryCrossEntropyLoss{}, nil
	case "categoricalcrossentropy":
		return categoricalCrossEntropyLoss{}, nil
	default:
		return nil, fmt.Errorf("unsupported loss %q", name)
	}
}

func canonicalName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(name, "_", ""), "-", ""))
}

func clipProbability(p float64) float64 {
	return math.Min(math.Max(p, probabilityEpsilon), 1-probabilityEpsilon)
}

type mseLoss struct{}

func (mseLoss) name() string { return "meanSquaredError" }

func (mseLoss) value(pred, target []float64, _ int) float64 {
	sum := 0.0
	for i, p := range pred {
		d := p - target[i]
		sum += d * d
	}
	return sum / float64(len(pred))
}

func (mseLoss) gradient(pred, target []float64, _ int) []float64 {
	out := make([]float64, len(pred))
	n := float64(len(pred))
	for i, p := range pred {
		out[i] = 2 * (p - target[i]) / n
	}
	return out
}

type maeLoss struct{}

func (maeLoss) name() string { return "meanAbsoluteError" }

func (maeLoss) value(pred, target []float64, _ int) float64 {
	sum := 0.0
	for i, p := range pred {
		sum += math.Abs(p - target[i])
	}
	return sum / float64(len(pred))
}

func (maeLoss) gradient(pred, target []float64, _ int) []float64 {
	out := make([]float64, len(pred))
	n := float64(len(pred))
	for i, p := range pred {
		switch {
		case p > target[i]:
			out[i] = 1 / n
		case p < target[i]:
			out[i] = -1 / n
		}
	}
	return out
}

type binaryCrossEntropyLoss struct{}

func (binaryCrossEntropyLoss) name() string { return "binaryCrossentropy" }

func (binaryCrossEntropyLoss) value(pred, target []float64, _ int) float64 {
	sum := 0.0
	for i, p := range pred {
		p = clipProbability(p)
		sum -= target[i]*math.Log(p) + (1-target[i])*math.Log(1-p)
	}
	return sum / float64(len(pred))
}

func (binaryCrossEntropyLoss) gradient(pred, target []float64, _ int) []float64 {
	out := make([]float64, len(pred))
	n := float64(len(pred))
	for i, p := range pred {
		p = clipProbability(p)
		out[i] = (p - target[i]) / (p * (1 - p)) / n
	}
	return out
}

// categoricalCrossEntropyLoss sums over classes and averages over rows.
type categoricalCrossEntropyLoss struct{}

func (categoricalCrossEntropyLoss) name() string { return "categoricalCrossentropy" }

func (categoricalCrossEntropyLoss) value(pred, target []float64, rows int) float64 {
	sum := 0.0
	for i, p := range pred {
		if target[i] != 0 {
			sum -= target[i] * math.Log(clipProbability(p))
		}
	}
	return sum / float64(rows)
}

func (categoricalCrossEntropyLoss) gradient(pred, target []float64, rows int) []float64 {
	out := make([]float64, len(pred))
	for i, p := range pred {
		out[i] = -target[i] / clipProbability(p) / float64(rows)
	}
	return out
}
