package optimizer

import "github.com/tsawler/go-fit/backend"

// AdaGradConfig holds configuration for AdaGrad optimizer
type AdaGradConfig struct {
	LearningRate float64
	Epsilon      float64
	WeightDecay  float64
}

// DefaultAdaGradConfig returns default AdaGrad optimizer configuration
func DefaultAdaGradConfig() AdaGradConfig {
	return AdaGradConfig{
		LearningRate: 0.01,
		Epsilon:      1e-10,
		WeightDecay:  0.0,
	}
}

func (c AdaGradConfig) merge(p Params) AdaGradConfig {
	c.LearningRate = orDefault(p.LearningRate, c.LearningRate)
	c.Epsilon = orDefault(p.Epsilon, c.Epsilon)
	c.WeightDecay = orDefault(p.WeightDecay, c.WeightDecay)
	return c
}

func (c AdaGradConfig) backendParams() backend.OptimizerParams {
	return backend.OptimizerParams{
		LearningRate: c.LearningRate,
		Epsilon:      c.Epsilon,
		Decay:        c.WeightDecay,
	}
}
