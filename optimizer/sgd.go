package optimizer

import "github.com/tsawler/go-fit/backend"

// SGDConfig holds configuration for SGD optimizer
type SGDConfig struct {
	LearningRate float64
	Momentum     float64
	WeightDecay  float64
	Nesterov     bool
}

// DefaultSGDConfig returns default SGD optimizer configuration
func DefaultSGDConfig() SGDConfig {
	return SGDConfig{
		LearningRate: 0.01,
		Momentum:     0.0,
		WeightDecay:  0.0,
		Nesterov:     false,
	}
}

func (c SGDConfig) merge(p Params) SGDConfig {
	c.LearningRate = orDefault(p.LearningRate, c.LearningRate)
	c.Momentum = orDefault(p.Momentum, c.Momentum)
	c.WeightDecay = orDefault(p.WeightDecay, c.WeightDecay)
	c.Nesterov = c.Nesterov || p.Nesterov
	return c
}

func (c SGDConfig) backendParams() backend.OptimizerParams {
	return backend.OptimizerParams{
		LearningRate: c.LearningRate,
		Momentum:     c.Momentum,
		Decay:        c.WeightDecay,
		// Nesterov only applies with momentum
		Nesterov: c.Nesterov && c.Momentum > 0,
	}
}
