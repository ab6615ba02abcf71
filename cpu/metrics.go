package cpu

import (
	"fmt"
	"math"
)

// metric is evaluated on a batch of predictions; the log key is the name
// the caller asked for.
type metric struct {
	key   string
	value func(pred, target []float64, rows, cols int) float64
}

func newMetric(name string) (metric, error) {
	switch canonicalName(name) {
	case "accuracy", "acc":
		return metric{key: name, value: accuracy}, nil
	case "meansquarederror", "mse":
		return metric{key: name, value: func(p, t []float64, rows, _ int) float64 {
			return mseLoss{}.value(p, t, rows)
		}}, nil
	case "meanabsoluteerror", "mae":
		return metric{key: name, value: func(p, t []float64, rows, _ int) float64 {
			return maeLoss{}.value(p, t, rows)
		}}, nil
	default:
		return metric{}, fmt.Errorf("unsupported metric %q", name)
	}
}

// accuracy thresholds single-unit outputs at 0.5 and compares argmax
// otherwise.
func accuracy(pred, target []float64, rows, cols int) float64 {
	if rows == 0 {
		return 0
	}
	correct := 0
	for r := 0; r < rows; r++ {
		p := pred[r*cols : (r+1)*cols]
		t := target[r*cols : (r+1)*cols]
		if cols == 1 {
			if (p[0] >= 0.5) == (t[0] >= 0.5) {
				correct++
			}
			continue
		}
		if argmax(p) == argmax(t) {
			correct++
		}
	}
	return float64(correct) / float64(rows)
}

func argmax(values []float64) int {
	best := 0
	bestVal := math.Inf(-1)
	for i, v := range values {
		if v > bestVal {
			best, bestVal = i, v
		}
	}
	return best
}
