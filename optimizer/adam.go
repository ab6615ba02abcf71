package optimizer

import "github.com/tsawler/go-fit/backend"

// AdamConfig holds configuration for Adam optimizer
type AdamConfig struct {
	LearningRate float64
	Beta1        float64 // first moment decay
	Beta2        float64 // second moment decay
	Epsilon      float64
	WeightDecay  float64
}

// DefaultAdamConfig returns default Adam optimizer configuration
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
	}
}

func (c AdamConfig) merge(p Params) AdamConfig {
	c.LearningRate = orDefault(p.LearningRate, c.LearningRate)
	c.Beta1 = orDefault(p.Beta1, c.Beta1)
	c.Beta2 = orDefault(p.Beta2, c.Beta2)
	c.Epsilon = orDefault(p.Epsilon, c.Epsilon)
	c.WeightDecay = orDefault(p.WeightDecay, c.WeightDecay)
	return c
}

func (c AdamConfig) backendParams() backend.OptimizerParams {
	return backend.OptimizerParams{
		LearningRate: c.LearningRate,
		Beta1:        c.Beta1,
		Beta2:        c.Beta2,
		Epsilon:      c.Epsilon,
		Decay:        c.WeightDecay,
	}
}
