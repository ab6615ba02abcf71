package optimizer

import "github.com/tsawler/go-fit/backend"

// RMSPropConfig holds configuration for RMSProp optimizer
type RMSPropConfig struct {
	LearningRate float64
	Alpha        float64 // smoothing constant for the squared-gradient average
	Epsilon      float64
	WeightDecay  float64
	Momentum     float64
}

// DefaultRMSPropConfig returns default RMSProp optimizer configuration
func DefaultRMSPropConfig() RMSPropConfig {
	return RMSPropConfig{
		LearningRate: 0.01,
		Alpha:        0.99,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
		Momentum:     0.0,
	}
}

// merge maps Params.Rho to Alpha.
func (c RMSPropConfig) merge(p Params) RMSPropConfig {
	c.LearningRate = orDefault(p.LearningRate, c.LearningRate)
	c.Alpha = orDefault(p.Rho, c.Alpha)
	c.Epsilon = orDefault(p.Epsilon, c.Epsilon)
	c.WeightDecay = orDefault(p.WeightDecay, c.WeightDecay)
	c.Momentum = orDefault(p.Momentum, c.Momentum)
	return c
}

func (c RMSPropConfig) backendParams() backend.OptimizerParams {
	return backend.OptimizerParams{
		LearningRate: c.LearningRate,
		Rho:          c.Alpha,
		Epsilon:      c.Epsilon,
		Momentum:     c.Momentum,
		Decay:        c.WeightDecay,
	}
}
