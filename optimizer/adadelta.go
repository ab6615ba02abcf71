package optimizer

import "github.com/tsawler/go-fit/backend"

// AdaDeltaConfig holds configuration for AdaDelta optimizer. LearningRate
// scales the computed update; 1.0 is the unscaled algorithm.
type AdaDeltaConfig struct {
	LearningRate float64
	Rho          float64
	Epsilon      float64
	WeightDecay  float64
}

// DefaultAdaDeltaConfig returns default AdaDelta optimizer configuration
func DefaultAdaDeltaConfig() AdaDeltaConfig {
	return AdaDeltaConfig{
		LearningRate: 1.0,
		Rho:          0.95,
		Epsilon:      1e-6,
		WeightDecay:  0.0,
	}
}

func (c AdaDeltaConfig) merge(p Params) AdaDeltaConfig {
	c.LearningRate = orDefault(p.LearningRate, c.LearningRate)
	c.Rho = orDefault(p.Rho, c.Rho)
	c.Epsilon = orDefault(p.Epsilon, c.Epsilon)
	c.WeightDecay = orDefault(p.WeightDecay, c.WeightDecay)
	return c
}

func (c AdaDeltaConfig) backendParams() backend.OptimizerParams {
	return backend.OptimizerParams{
		LearningRate: c.LearningRate,
		Rho:          c.Rho,
		Epsilon:      c.Epsilon,
		Decay:        c.WeightDecay,
	}
}
